package pixelplace

import (
	"errors"

	"github.com/gekko3d/pixelplace/canvas/frame"
	"github.com/gekko3d/pixelplace/canvas/gpu"
)

// Renderer owns the GPU device and the per-frame render loop.
type Renderer struct {
	dev  *gpu.Device
	Loop *frame.Loop
	prof *Profiler
	log  Logger
}

// RenderModule draws the canvas every frame. When the graphics context cannot be
// created it logs the error and installs nothing; ingest and edits keep working.
type RenderModule struct{}

func (m RenderModule) Install(app *App, cmd *Commands) {
	log := app.Logger()
	ws, ok := app.Resource((*WindowState)(nil))
	if !ok {
		log.Errorf("render disabled: %v", gpu.ErrGraphicsContextUnavailable)
		return
	}
	cr, ok := app.Resource((*Canvas)(nil))
	if !ok {
		panic("RenderModule needs CanvasModule")
	}
	c := cr.(*Canvas)

	dev, err := gpu.Open(ws.(*WindowState).Window(), log)
	if err != nil {
		log.Errorf("render disabled: %v", err)
		return
	}
	r := &Renderer{
		dev:  dev,
		Loop: frame.New(c.Layer, c.Viewport, c.Palette, dev, log, frame.Config{CellSize: c.CellSize}),
		log:  log,
	}
	if p, ok := app.Resource((*Profiler)(nil)); ok {
		r.prof = p.(*Profiler)
	}
	cmd.AddResources(r)

	app.UseSystem(
		System(renderSystem).
			InStage(Render).
			RunAlways(),
	)
	if app.stateful {
		app.UseSystem(
			System(releaseRendererSystem).
				InStage(PostRender).
				InState(OnExit(app.finalState)),
		)
	}
}

func renderSystem(r *Renderer, ws *WindowState) {
	fbw, fbh := ws.windowGlfw.GetFramebufferSize()
	w, h := ws.windowGlfw.GetSize()
	if fbw == 0 || fbh == 0 || w == 0 || h == 0 {
		return
	}
	r.dev.Resize(fbw, fbh)

	if err := r.Loop.Frame(frame.Input{Width: w, Height: h}); err != nil && !errors.Is(err, frame.ErrNoDevice) {
		r.log.Warnf("frame: %v", err)
	}
	if r.prof != nil {
		s := r.Loop.Stats()
		r.prof.SetScope("query", s.Query)
		r.prof.SetScope("upload", s.Upload)
		r.prof.SetScope("draw", s.Draw)
		r.prof.SetCount("visible", s.Visible)
		r.prof.SetCount("reallocations", s.Reallocations)
		r.prof.SetBytes("uploaded", s.BytesUploaded)
	}
}

func releaseRendererSystem(r *Renderer) {
	r.Loop.Release()
	r.dev.Release()
}
