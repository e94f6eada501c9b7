package grid

import (
	"github.com/gekko3d/pixelplace/canvas/palette"
)

type ApplyResult int

const (
	Unchanged ApplyResult = iota
	Applied
	Erased
	OutOfBounds
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case Erased:
		return "erased"
	case OutOfBounds:
		return "out-of-bounds"
	default:
		return "unchanged"
	}
}

type LayerConfig struct {
	Capacity      int
	DefaultExtent int
	// CompactThreshold is the number of shadowed points tolerated before the index is
	// rebuilt from the live cells. Zero disables compaction.
	CompactThreshold int
	GrowOnOverflow   bool
}

func DefaultLayerConfig() LayerConfig {
	return LayerConfig{
		Capacity:         DefaultCapacity,
		DefaultExtent:    DefaultExtent,
		CompactThreshold: 4096,
		GrowOnOverflow:   true,
	}
}

// Layer owns the spatial index for one canvas session together with the latest
// color of every painted cell. The index only ever grows, so a repainted cell has
// several stacked points; the latest table decides which one is live.
type Layer struct {
	cfg    LayerConfig
	index  *Index
	latest map[Cell]palette.Index
	stored int

	rebuilds int
	scratch  []Point
	visible  []Point
	seen     map[Cell]struct{}
}

func NewLayer(cfg LayerConfig) *Layer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.DefaultExtent <= 0 {
		cfg.DefaultExtent = DefaultExtent
	}
	l := &Layer{
		cfg:    cfg,
		latest: make(map[Cell]palette.Index),
		seen:   make(map[Cell]struct{}),
	}
	l.index = NewIndex(BoundaryFor(nil, cfg.DefaultExtent), cfg.Capacity)
	return l
}

// Build replaces the layer content with points. Background points and cells outside
// MaxCoord are skipped and a repeated cell keeps its last color.
func (l *Layer) Build(points []Point) {
	live := points[:0:0]
	for _, p := range points {
		if p.Color != palette.Background && p.Cell().InRange() {
			live = append(live, p)
		}
	}
	clear(l.latest)
	for _, p := range live {
		l.latest[p.Cell()] = p.Color
	}
	l.rebuild(BoundaryFor(live, l.cfg.DefaultExtent))
}

// Apply records p as the newest color of its cell.
func (l *Layer) Apply(p Point) ApplyResult {
	c := p.Cell()
	if !c.InRange() {
		return OutOfBounds
	}
	cur, ok := l.latest[c]

	if p.Color == palette.Background {
		if !ok {
			return Unchanged
		}
		delete(l.latest, c)
		l.maybeCompact()
		return Erased
	}
	if ok && cur == p.Color {
		return Unchanged
	}

	if !l.index.Insert(p) {
		if !l.cfg.GrowOnOverflow {
			return OutOfBounds
		}
		next := grow(l.index.Boundary(), c)
		if next.Empty() || !next.Contains(c.X, c.Y) {
			return OutOfBounds
		}
		l.latest[c] = p.Color
		l.rebuild(next)
		return Applied
	}
	l.stored++
	l.latest[c] = p.Color
	l.maybeCompact()
	return Applied
}

func (l *Layer) ColorAt(c Cell) (palette.Index, bool) {
	col, ok := l.latest[c]
	return col, ok
}

// Cells is the number of painted cells.
func (l *Layer) Cells() int {
	return len(l.latest)
}

// Each visits every painted cell in unspecified order.
func (l *Layer) Each(fn func(Point)) {
	for c, col := range l.latest {
		fn(Point{X: c.X, Y: c.Y, Color: col})
	}
}

// Visible returns the live points inside r, one per cell. The slice is reused by
// the next call.
func (l *Layer) Visible(r Rect) []Point {
	l.scratch = l.index.QueryInto(r, l.scratch[:0])
	l.visible = l.visible[:0]
	clear(l.seen)
	for _, p := range l.scratch {
		c := p.Cell()
		col, ok := l.latest[c]
		if !ok || col != p.Color {
			continue
		}
		if _, dup := l.seen[c]; dup {
			continue
		}
		l.seen[c] = struct{}{}
		l.visible = append(l.visible, p)
	}
	return l.visible
}

func (l *Layer) Boundary() Rect {
	return l.index.Boundary()
}

// Shadowed is the number of stored points that no longer define their cell.
func (l *Layer) Shadowed() int {
	return l.stored - len(l.latest)
}

func (l *Layer) Rebuilds() int {
	return l.rebuilds
}

func (l *Layer) Stats() IndexStats {
	return l.index.Stats()
}

// Compact rebuilds the index from the live cells, keeping the boundary.
func (l *Layer) Compact() {
	l.rebuild(l.index.Boundary())
}

func (l *Layer) maybeCompact() {
	if l.cfg.CompactThreshold <= 0 {
		return
	}
	if s := l.Shadowed(); s > l.cfg.CompactThreshold && s > len(l.latest) {
		l.Compact()
	}
}

func (l *Layer) rebuild(boundary Rect) {
	l.index = NewIndex(boundary, l.cfg.Capacity)
	l.stored = 0
	for c, col := range l.latest {
		if l.index.Insert(Point{X: c.X, Y: c.Y, Color: col}) {
			l.stored++
		}
	}
	l.rebuilds++
}

// grow covers b and c, then doubles the extent around the union. The result
// saturates at CoordLimit.
func grow(b Rect, c Cell) Rect {
	u := b.Union(Rect{X: c.X, Y: c.Y, Width: 1, Height: 1})
	return RectFromCorners(
		u.X-u.Width/2,
		u.Y-u.Height/2,
		u.MaxX()+(u.Width-u.Width/2),
		u.MaxY()+(u.Height-u.Height/2),
	)
}
