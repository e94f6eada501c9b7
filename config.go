package pixelplace

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gekko3d/pixelplace/canvas/edit"
	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/palette"
	"github.com/gekko3d/pixelplace/canvas/view"
)

var ErrBadConfig = errors.New("bad config")

// Duration decodes TOML strings such as "50ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type WindowConfig struct {
	Width  int
	Height int
	Title  string
}

type CanvasConfig struct {
	CellSize         float64 `toml:"cell_size"`
	Capacity         int
	Extent           int
	CompactThreshold int  `toml:"compact_threshold"`
	GrowOnOverflow   bool `toml:"grow_on_overflow"`
	// Palette overrides the 32 default colors when set.
	Palette []string
}

type EditConfig struct {
	Debounce     Duration
	FlushDelay   Duration `toml:"flush_delay"`
	MaxQueue     int      `toml:"max_queue"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type StoreConfig struct {
	// Backend is one of "memory", "badger" or "ws".
	Backend      string
	Path         string
	Dir          string
	URL          string
	SyncInterval Duration `toml:"sync_interval"`
	// MaxMessageSize bounds one relay message in bytes. Zero uses the wsstore default.
	MaxMessageSize int64 `toml:"max_message_size"`
}

type LoggingConfig struct {
	LogConfig
	Debug         bool
	Prefix        string
	StatsInterval Duration `toml:"stats_interval"`
}

type RelayConfig struct {
	Addr           string
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxMessageSize int64    `toml:"max_message_size"`
}

type Config struct {
	Window   WindowConfig
	Canvas   CanvasConfig
	Viewport view.Config
	Edit     EditConfig
	Store    StoreConfig
	Logging  LoggingConfig
	Relay    RelayConfig
}

func DefaultConfig() Config {
	lc := grid.DefaultLayerConfig()
	ec := edit.DefaultConfig()
	return Config{
		Window: WindowConfig{Width: 1280, Height: 720, Title: "pixelplace"},
		Canvas: CanvasConfig{
			CellSize:         10,
			Capacity:         lc.Capacity,
			Extent:           lc.DefaultExtent,
			CompactThreshold: lc.CompactThreshold,
			GrowOnOverflow:   lc.GrowOnOverflow,
		},
		Viewport: view.DefaultConfig(),
		Edit: EditConfig{
			Debounce:     Duration{ec.Debounce},
			FlushDelay:   Duration{ec.FlushDelay},
			MaxQueue:     ec.MaxQueue,
			WriteTimeout: Duration{ec.WriteTimeout},
		},
		Store: StoreConfig{
			Backend:      "memory",
			Path:         ec.Path,
			SyncInterval: Duration{30 * time.Second},
		},
		Logging: LoggingConfig{
			Prefix:        "pixelplace",
			StatsInterval: Duration{5 * time.Second},
		},
		Relay: RelayConfig{Addr: ":8420"},
	}
}

// LoadConfig decodes a TOML file over the defaults.
func LoadConfig(filename string) (Config, error) {
	c := DefaultConfig()
	if filename == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(filename, &c)
	if err != nil {
		return c, fmt.Errorf("could not decode TOML config %q: %w", filename, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return c, fmt.Errorf("%w: unknown keys %v in %q", ErrBadConfig, undecoded, filename)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Canvas.CellSize <= 0:
		return fmt.Errorf("%w: canvas.cell_size must be positive", ErrBadConfig)
	case c.Canvas.Capacity <= 0:
		return fmt.Errorf("%w: canvas.capacity must be positive", ErrBadConfig)
	case c.Canvas.Palette != nil && len(c.Canvas.Palette) != palette.Size:
		return fmt.Errorf("%w: canvas.palette needs 32 colors, got %d", ErrBadConfig, len(c.Canvas.Palette))
	case c.Viewport.MinScale <= 0 || c.Viewport.MaxScale < c.Viewport.MinScale:
		return fmt.Errorf("%w: viewport scale range [%g, %g]", ErrBadConfig, c.Viewport.MinScale, c.Viewport.MaxScale)
	case c.Viewport.ZoomFactor <= 1:
		return fmt.Errorf("%w: viewport.zoom_factor must exceed 1", ErrBadConfig)
	case c.Edit.MaxQueue <= 0:
		return fmt.Errorf("%w: edit.max_queue must be positive", ErrBadConfig)
	}
	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Dir == "" {
			return fmt.Errorf("%w: store.dir is required for the badger backend", ErrBadConfig)
		}
	case "ws":
		if c.Store.URL == "" {
			return fmt.Errorf("%w: store.url is required for the ws backend", ErrBadConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrBadConfig, c.Store.Backend)
	}
	return nil
}

func (c Config) LayerConfig() grid.LayerConfig {
	return grid.LayerConfig{
		Capacity:         c.Canvas.Capacity,
		DefaultExtent:    c.Canvas.Extent,
		CompactThreshold: c.Canvas.CompactThreshold,
		GrowOnOverflow:   c.Canvas.GrowOnOverflow,
	}
}

func (c Config) EditConfig() edit.Config {
	return edit.Config{
		Debounce:     c.Edit.Debounce.Duration,
		FlushDelay:   c.Edit.FlushDelay.Duration,
		MaxQueue:     c.Edit.MaxQueue,
		WriteTimeout: c.Edit.WriteTimeout.Duration,
		Path:         c.Store.Path,
	}
}

// Palette returns the configured palette or the default one.
func (c Config) Palette() (*palette.Palette, error) {
	if c.Canvas.Palette == nil {
		return palette.Default(), nil
	}
	var hex [palette.Size]string
	copy(hex[:], c.Canvas.Palette)
	p, err := palette.New(hex)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	return p, nil
}
