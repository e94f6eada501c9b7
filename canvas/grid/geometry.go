package grid

import (
	"fmt"

	"github.com/gekko3d/pixelplace/canvas/palette"
)

// Cell is one discrete grid location.
type Cell struct {
	X, Y int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Point is a colored cell.
type Point struct {
	X, Y  int
	Color palette.Index
}

func (p Point) Cell() Cell {
	return Cell{X: p.X, Y: p.Y}
}

// Rect covers the cells X <= x < X+Width, Y <= y < Y+Height.
type Rect struct {
	X, Y          int
	Width, Height int
}

// MaxCoord bounds cell coordinates on both axes. Instance offsets are float32, which
// holds every integer up to 2^24 exactly.
const MaxCoord = 1 << 24

// CoordLimit bounds rect corners. Rects reaching past it cover no cell anyway, and
// clamping keeps width and height arithmetic from overflowing.
const CoordLimit = 4 * MaxCoord

// InRange reports whether c is a storable cell.
func (c Cell) InRange() bool {
	return c.X >= -MaxCoord && c.X <= MaxCoord && c.Y >= -MaxCoord && c.Y <= MaxCoord
}

func clampCoord(v int) int {
	return min(max(v, -CoordLimit), CoordLimit)
}

// RectFromCorners builds the half-open rect [minX, maxX) x [minY, maxY). Corners are
// clamped to CoordLimit.
func RectFromCorners(minX, minY, maxX, maxY int) Rect {
	minX, minY = clampCoord(minX), clampCoord(minY)
	maxX, maxY = clampCoord(maxX), clampCoord(maxY)
	return Rect{X: minX, Y: minY, Width: max(maxX-minX, 0), Height: max(maxY-minY, 0)}
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) MaxX() int { return r.X + r.Width }
func (r Rect) MaxY() int { return r.Y + r.Height }

func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.MaxX() && o.X < r.MaxX() && r.Y < o.MaxY() && o.Y < r.MaxY()
}

// Union returns the smallest rect covering both. Empty rects are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return RectFromCorners(min(r.X, o.X), min(r.Y, o.Y), max(r.MaxX(), o.MaxX()), max(r.MaxY(), o.MaxY()))
}

// quadrants splits r into four rects that cover it exactly.
func (r Rect) quadrants() (ne, nw, se, sw Rect) {
	lw := r.Width / 2
	th := r.Height / 2
	rw := r.Width - lw
	bh := r.Height - th
	nw = Rect{X: r.X, Y: r.Y, Width: lw, Height: th}
	ne = Rect{X: r.X + lw, Y: r.Y, Width: rw, Height: th}
	sw = Rect{X: r.X, Y: r.Y + th, Width: lw, Height: bh}
	se = Rect{X: r.X + lw, Y: r.Y + th, Width: rw, Height: bh}
	return
}

func (r Rect) String() string {
	return fmt.Sprintf("{x:%d y:%d w:%d h:%d}", r.X, r.Y, r.Width, r.Height)
}

const DefaultExtent = 1000

// BoundaryFor sizes a root boundary for a snapshot: the bounding box of the points
// expanded by one cell on every side. Points outside MaxCoord are ignored. A
// snapshot without usable points gets [-extent, extent) on both axes.
func BoundaryFor(points []Point, extent int) Rect {
	if extent <= 0 || extent > MaxCoord {
		extent = DefaultExtent
	}
	minX, minY := MaxCoord+1, MaxCoord+1
	maxX, maxY := -MaxCoord-1, -MaxCoord-1
	for _, p := range points {
		if !p.Cell().InRange() {
			continue
		}
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	if minX > maxX {
		return Rect{X: -extent, Y: -extent, Width: 2 * extent, Height: 2 * extent}
	}
	// max is inclusive here; +1 for the margin and +1 for the half-open edge
	return RectFromCorners(minX-1, minY-1, maxX+2, maxY+2)
}
