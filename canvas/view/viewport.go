package view

import (
	"math"

	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/go-gl/mathgl/mgl64"
)

type Config struct {
	MinScale   float64 `toml:"min_scale"`
	MaxScale   float64 `toml:"max_scale"`
	ZoomFactor float64 `toml:"zoom_factor"`
}

func DefaultConfig() Config {
	return Config{MinScale: 0.1, MaxScale: 40, ZoomFactor: 1.1}
}

// Viewport maps screen pixels to canvas world units: screen = world*scale + offset.
type Viewport struct {
	cfg    Config
	offset mgl64.Vec2
	scale  float64
}

func New(cfg Config) *Viewport {
	def := DefaultConfig()
	if cfg.MinScale <= 0 {
		cfg.MinScale = def.MinScale
	}
	if cfg.MaxScale < cfg.MinScale {
		cfg.MaxScale = math.Max(def.MaxScale, cfg.MinScale)
	}
	if cfg.ZoomFactor <= 1 {
		cfg.ZoomFactor = def.ZoomFactor
	}
	return &Viewport{cfg: cfg, scale: mgl64.Clamp(1, cfg.MinScale, cfg.MaxScale)}
}

func (v *Viewport) Offset() mgl64.Vec2 { return v.offset }
func (v *Viewport) Scale() float64     { return v.scale }

func (v *Viewport) SetState(offset mgl64.Vec2, scale float64) {
	v.offset = offset
	v.scale = mgl64.Clamp(scale, v.cfg.MinScale, v.cfg.MaxScale)
}

// Pan moves the canvas by a screen-space delta.
func (v *Viewport) Pan(dx, dy float64) {
	v.offset = v.offset.Add(mgl64.Vec2{dx, dy})
}

// Zoom scales by the zoom factor raised to dir around the cursor, keeping the world
// point under the cursor fixed. It reports whether the scale changed.
func (v *Viewport) Zoom(cx, cy float64, dir int) bool {
	next := mgl64.Clamp(v.scale*math.Pow(v.cfg.ZoomFactor, float64(dir)), v.cfg.MinScale, v.cfg.MaxScale)
	if next == v.scale {
		return false
	}
	cursor := mgl64.Vec2{cx, cy}
	v.offset = cursor.Sub(cursor.Sub(v.offset).Mul(next / v.scale))
	v.scale = next
	return true
}

func (v *Viewport) ScreenToWorld(sx, sy float64) (float64, float64) {
	return (sx - v.offset[0]) / v.scale, (sy - v.offset[1]) / v.scale
}

func (v *Viewport) WorldToScreen(wx, wy float64) (float64, float64) {
	return wx*v.scale + v.offset[0], wy*v.scale + v.offset[1]
}

// VisibleGridRect returns the cells covering a w x h surface, with one extra cell on
// the right and bottom edges.
func (v *Viewport) VisibleGridRect(w, h, cellSize float64) grid.Rect {
	x0, y0 := v.ScreenToWorld(0, 0)
	x1, y1 := v.ScreenToWorld(w, h)
	minX := toCoord(math.Floor(x0 / cellSize))
	minY := toCoord(math.Floor(y0 / cellSize))
	maxX := toCoord(math.Ceil(x1/cellSize)) + 1
	maxY := toCoord(math.Ceil(y1/cellSize)) + 1
	return grid.RectFromCorners(minX, minY, maxX, maxY)
}

func (v *Viewport) CellAt(sx, sy, cellSize float64) grid.Cell {
	wx, wy := v.ScreenToWorld(sx, sy)
	return grid.Cell{X: toCoord(math.Floor(wx / cellSize)), Y: toCoord(math.Floor(wy / cellSize))}
}

// toCoord converts a floored world coordinate, saturating at grid.CoordLimit.
func toCoord(f float64) int {
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Max(-grid.CoordLimit, math.Min(f, grid.CoordLimit)))
}
