// Command placerelay serves a canvas store to pixelplace clients over websockets.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gekko3d/pixelplace"
)

func main() {
	configPath := flag.String("config", "", "TOML config file")
	addr := flag.String("addr", "", "listen address, overrides [relay].addr")
	backend := flag.String("backend", "", "backing store: memory or badger")
	dir := flag.String("dir", "", "badger directory")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := pixelplace.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Relay.Addr = *addr
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *dir != "" {
		cfg.Store.Dir = *dir
	}
	if *debug {
		cfg.Logging.Debug = true
	}

	logger, closer := pixelplace.NewFileLogger("placerelay", cfg.Logging.Debug, cfg.Logging.LogConfig)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg pixelplace.Config, logger pixelplace.Logger) error {
	if cfg.Store.Backend == "ws" {
		return fmt.Errorf("%w: the relay cannot use the ws backend", pixelplace.ErrBadConfig)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	backing, err := pixelplace.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer backing.Close()

	ln, err := net.Listen("tcp", cfg.Relay.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Relay.Addr, err)
	}
	return pixelplace.NewRelay(backing, cfg.Relay, logger).Serve(ctx, ln)
}
