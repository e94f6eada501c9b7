package pixelplace

import (
	"github.com/gekko3d/pixelplace/canvas/overlay"
)

type HoverOverlay struct {
	*overlay.Hover
}

// OverlayModule draws the hovered cell outline and coordinates on top of the
// canvas. It needs a Renderer and is skipped without one.
type OverlayModule struct {
	Config overlay.Config
}

func (m OverlayModule) Install(app *App, cmd *Commands) {
	if !app.hasResource((*Renderer)(nil)) {
		app.Logger().Warnf("hover overlay disabled: no renderer")
		return
	}
	cmd.AddResources(&HoverOverlay{Hover: overlay.New(m.Config)})
	app.UseSystem(
		System(overlaySystem).
			InStage(PreRender).
			RunAlways(),
	)
}

func overlaySystem(h *HoverOverlay, c *Canvas, r *Renderer, input *Input, t *Time) {
	img, ok := h.Update(t.Time, input.MouseX, input.MouseY, c.Viewport, c.CellSize, input.WindowWidth, input.WindowHeight)
	if !ok {
		return
	}
	if err := r.dev.SetOverlay(img); err != nil {
		r.log.Warnf("overlay: %v", err)
	}
}
