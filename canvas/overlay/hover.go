// Package overlay draws the hover indicator: an outline around the cell under the
// cursor and its coordinates. It is a 2D surface separate from the pixel draw.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/view"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type Config struct {
	// Interval is the minimum time between redraws.
	Interval  time.Duration
	LineWidth float64
	Outline   string
	Label     color.Color
}

func DefaultConfig() Config {
	return Config{
		Interval:  time.Second / 60,
		LineWidth: 2,
		Outline:   "#000000",
		Label:     color.Black,
	}
}

type state struct {
	cell   grid.Cell
	offset mgl64.Vec2
	scale  float64
	size   image.Point
}

type Hover struct {
	cfg     Config
	outline gg.RGBA

	last  time.Time
	drawn bool
	prev  state
	img   *image.RGBA

	Redraws int
}

func New(cfg Config) *Hover {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.LineWidth <= 0 {
		cfg.LineWidth = def.LineWidth
	}
	if cfg.Outline == "" {
		cfg.Outline = def.Outline
	}
	if cfg.Label == nil {
		cfg.Label = def.Label
	}
	return &Hover{cfg: cfg, outline: gg.Hex(cfg.Outline)}
}

// Update redraws the overlay when the throttle allows and the hovered cell, the
// view transform or the surface size changed. The image is only valid until the
// next redraw.
func (h *Hover) Update(now time.Time, cursorX, cursorY float64, vp *view.Viewport, cellSize float64, w, ht int) (*image.RGBA, bool) {
	if w <= 0 || ht <= 0 {
		return nil, false
	}
	if h.drawn && now.Sub(h.last) < h.cfg.Interval {
		return nil, false
	}
	st := state{
		cell:   vp.CellAt(cursorX, cursorY, cellSize),
		offset: vp.Offset(),
		scale:  vp.Scale(),
		size:   image.Pt(w, ht),
	}
	if h.drawn && st == h.prev {
		return nil, false
	}

	h.img = h.draw(st, vp, cellSize)
	h.prev = st
	h.last = now
	h.drawn = true
	h.Redraws++
	return h.img, true
}

// Cell returns the cell of the last redraw.
func (h *Hover) Cell() (grid.Cell, bool) {
	return h.prev.cell, h.drawn
}

func (h *Hover) draw(st state, vp *view.Viewport, cellSize float64) *image.RGBA {
	dc := gg.NewContext(st.size.X, st.size.Y)
	defer dc.Close()
	dc.Clear()

	x, y := vp.WorldToScreen(float64(st.cell.X)*cellSize, float64(st.cell.Y)*cellSize)
	side := cellSize * st.scale
	dc.SetRGBA(h.outline.R, h.outline.G, h.outline.B, h.outline.A)
	dc.SetLineWidth(h.cfg.LineWidth)
	dc.DrawRectangle(x, y, side, side)
	dc.Stroke()

	img := dc.Image().(*image.RGBA)

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(h.cfg.Label),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, st.size.Y-8),
	}
	d.DrawString(fmt.Sprintf("%d, %d", st.cell.X, st.cell.Y))
	return img
}
