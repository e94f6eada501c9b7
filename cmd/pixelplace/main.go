// Command pixelplace is the interactive canvas client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/gekko3d/pixelplace"
	"github.com/gekko3d/pixelplace/canvas/overlay"
)

const (
	StateRunning pixelplace.State = iota
	StateExit
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "TOML config file")
	backend := flag.String("store", "", "store backend: memory, badger or ws")
	url := flag.String("url", "", "relay websocket url for the ws backend")
	dir := flag.String("dir", "", "badger directory")
	debug := flag.Bool("debug", false, "enable debug logging and frame stats")
	flag.Parse()

	cfg, err := pixelplace.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *url != "" {
		cfg.Store.URL = *url
	}
	if *dir != "" {
		cfg.Store.Dir = *dir
	}
	if *debug {
		cfg.Logging.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// logs before the app's logger exists go to stderr
	boot := pixelplace.NewDefaultLogger(cfg.Logging.Prefix, cfg.Logging.Debug)
	s, err := pixelplace.OpenStore(context.Background(), cfg.Store, boot)
	if err != nil {
		boot.Errorf("open store: %v", err)
		os.Exit(1)
	}
	defer s.Close()

	app := pixelplace.NewAppBuilder().
		UseStates(StateRunning, StateExit).
		UseModule(
			pixelplace.LoggingModule{Prefix: cfg.Logging.Prefix, Debug: cfg.Logging.Debug, File: cfg.Logging.LogConfig},
			pixelplace.TimeModule{},
			pixelplace.NewPlatformWindow(cfg.Window),
			pixelplace.InputModule{},
			pixelplace.CanvasModule{Config: cfg, Store: s},
			pixelplace.ProfilerModule{Interval: cfg.Logging.StatsInterval.Duration},
			pixelplace.RenderModule{},
			pixelplace.OverlayModule{Config: overlay.DefaultConfig()},
		).
		Build()

	app.Run()
}
