package pixelplace

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gekko3d/pixelplace/canvas/edit"
	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/ingest"
	"github.com/gekko3d/pixelplace/canvas/palette"
	"github.com/gekko3d/pixelplace/canvas/view"
	"github.com/gekko3d/pixelplace/store"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

const (
	// dragThreshold is how far the cursor may travel, in pixels, before a left
	// press turns from a click into a pan.
	dragThreshold = 4
	keyPanStep    = 16
)

// Canvas is the per-session canvas state shared by the canvas, render and overlay
// modules. It is only touched from the main loop.
type Canvas struct {
	Session  uuid.UUID
	Layer    *grid.Layer
	Viewport *view.Viewport
	Palette  *palette.Palette
	Ingest   *ingest.Ingest
	Edits    *edit.Batcher
	CellSize float64

	// Hovered is the cell under the cursor after the last input pass.
	Hovered grid.Cell

	log    Logger
	prof   *Profiler
	sub    store.Subscription
	cancel context.CancelFunc

	pressed  bool
	dragging bool
	travel   float64
}

// CanvasModule subscribes the canvas to Store and installs the ingest, edit and
// canvas input systems.
type CanvasModule struct {
	Config Config
	Store  store.Store
}

func (m CanvasModule) Install(app *App, cmd *Commands) {
	c, err := NewCanvas(m.Config, m.Store, app.Logger())
	if err != nil {
		panic(err)
	}
	cmd.AddResources(c)
	if p, ok := app.Resource((*Profiler)(nil)); ok {
		c.prof = p.(*Profiler)
	}

	if app.hasResource((*Input)(nil)) && app.hasResource((*Time)(nil)) {
		app.UseSystem(
			System(canvasInputSystem).
				InStage(PreUpdate).
				RunAlways(),
		)
	}
	app.UseSystem(
		System(canvasIngestSystem).
			InStage(Update).
			RunAlways(),
	)
	app.UseSystem(
		System(canvasEditSystem).
			InStage(Update).
			RunAlways(),
	)
	if app.stateful {
		app.UseSystem(
			System(canvasCloseSystem).
				InStage(PostUpdate).
				InState(OnExit(app.finalState)),
		)
	}
}

// NewCanvas builds the canvas state and subscribes it to s.
func NewCanvas(cfg Config, s store.Store, logger Logger) (*Canvas, error) {
	pal, err := cfg.Palette()
	if err != nil {
		return nil, err
	}
	c := &Canvas{
		Session:  uuid.New(),
		Layer:    grid.NewLayer(cfg.LayerConfig()),
		Viewport: view.New(cfg.Viewport),
		Palette:  pal,
		CellSize: cfg.Canvas.CellSize,
		log:      logger,
	}
	c.Ingest = ingest.New(c.Layer, logger)
	c.Edits = edit.New(c.Layer, s, logger, cfg.EditConfig())
	c.Ingest.SetPending(c.Edits)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	sub, err := s.Subscribe(ctx, cfg.Store.Path, c.Ingest.Deliver)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %q: %w", cfg.Store.Path, err)
	}
	c.sub = sub
	logger.Infof("session %s subscribed to %q", c.Session, cfg.Store.Path)
	return c, nil
}

// HandleInput applies one frame of input: wheel zoom to the cursor, drag to pan,
// click to paint and the tool keys. It reports whether the user asked to quit.
func (c *Canvas) HandleInput(in *Input, now time.Time) bool {
	vp := c.Viewport

	if in.ScrollY != 0 {
		dir := 1
		if in.ScrollY < 0 {
			dir = -1
		}
		ticks := int(math.Max(1, math.Round(math.Abs(in.ScrollY))))
		for i := 0; i < ticks; i++ {
			vp.Zoom(in.MouseX, in.MouseY, dir)
		}
	}
	if in.JustPressed[KeyEqual] || in.JustPressed[KeyKPPlus] {
		vp.Zoom(float64(in.WindowWidth)/2, float64(in.WindowHeight)/2, 1)
	}
	if in.JustPressed[KeyMinus] || in.JustPressed[KeyKPMinus] {
		vp.Zoom(float64(in.WindowWidth)/2, float64(in.WindowHeight)/2, -1)
	}

	if in.Pressed[MouseButtonRight] || in.Pressed[MouseButtonMiddle] {
		vp.Pan(in.MouseDeltaX, in.MouseDeltaY)
	}
	c.handleLeft(in, now)

	var dx, dy float64
	if in.Pressed[KeyLeft] {
		dx += keyPanStep
	}
	if in.Pressed[KeyRight] {
		dx -= keyPanStep
	}
	if in.Pressed[KeyUp] {
		dy += keyPanStep
	}
	if in.Pressed[KeyDown] {
		dy -= keyPanStep
	}
	if dx != 0 || dy != 0 {
		vp.Pan(dx, dy)
	}
	if in.JustPressed[KeyC] {
		vp.SetState(mgl64.Vec2{}, 1)
	}

	c.handleTools(in)
	c.Hovered = vp.CellAt(in.MouseX, in.MouseY, c.CellSize)
	return in.JustPressed[KeyEscape]
}

// handleLeft paints on release unless the press moved far enough to become a pan.
func (c *Canvas) handleLeft(in *Input, now time.Time) {
	switch {
	case in.JustPressed[MouseButtonLeft]:
		c.pressed, c.dragging, c.travel = true, false, 0
	case in.Pressed[MouseButtonLeft] && c.pressed:
		c.travel += math.Hypot(in.MouseDeltaX, in.MouseDeltaY)
		if c.travel > dragThreshold {
			c.dragging = true
		}
		if c.dragging {
			c.Viewport.Pan(in.MouseDeltaX, in.MouseDeltaY)
		}
	case in.JustReleased[MouseButtonLeft] && c.pressed:
		if !c.dragging {
			c.Paint(c.Viewport.CellAt(in.MouseX, in.MouseY, c.CellSize), now)
		}
		c.pressed, c.dragging = false, false
	}
}

func (c *Canvas) handleTools(in *Input) {
	for k := Key0; k <= Key9; k++ {
		if in.JustPressed[k] {
			i := k - Key0
			if in.Pressed[KeyShift] {
				i += 10
			}
			c.Edits.Select(palette.Index(i))
		}
	}
	tool := c.Edits.Tool()
	if in.JustPressed[KeyLeftBracket] {
		c.Edits.Select(palette.Next(tool.Color, -1))
	}
	if in.JustPressed[KeyRightBracket] {
		c.Edits.Select(palette.Next(tool.Color, 1))
	}
	if in.JustPressed[KeyE] {
		c.Edits.SetEraser(!tool.Eraser)
	}
}

// Paint submits a local edit of cell with the current tool.
func (c *Canvas) Paint(cell grid.Cell, now time.Time) edit.EditResult {
	r := c.Edits.Edit(cell, now)
	c.log.Debugf("edit %v: %v", cell, r)
	return r
}

func (c *Canvas) Close() []error {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	errs := c.Edits.Close()
	c.cancel()
	return errs
}

func canvasInputSystem(c *Canvas, input *Input, t *Time, cmd *Commands) {
	if c.HandleInput(input, t.Time) {
		cmd.Quit()
	}
}

func canvasIngestSystem(c *Canvas) {
	if c.prof != nil {
		c.prof.BeginScope("ingest")
		defer c.prof.EndScope("ingest")
	}
	c.Ingest.Drain()
}

func canvasEditSystem(c *Canvas, t *Time) {
	if c.prof != nil {
		c.prof.BeginScope("edits")
		defer c.prof.EndScope("edits")
	}
	c.Edits.Tick(t.Time)
	c.Edits.Collect()
}

func canvasCloseSystem(c *Canvas) {
	errs := c.Close()
	c.log.Infof("canvas closed, %d failed writes at shutdown", len(errs))
}
