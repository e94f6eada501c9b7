package grid

import (
	"testing"

	"github.com/gekko3d/pixelplace/canvas/palette"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayer_BuildSkipsBackground(t *testing.T) {
	l := NewLayer(DefaultLayerConfig())
	l.Build([]Point{
		{X: 0, Y: 0, Color: 5},
		{X: 4, Y: 2, Color: palette.Background},
		{X: 10, Y: 10, Color: 2},
	})

	assert.Equal(t, 2, l.Cells())
	assert.Equal(t, Rect{X: -1, Y: -1, Width: 13, Height: 13}, l.Boundary())
	_, ok := l.ColorAt(Cell{X: 4, Y: 2})
	assert.False(t, ok)
}

func TestLayer_LatestColorWins(t *testing.T) {
	l := NewLayer(DefaultLayerConfig())
	l.Build(nil)

	assert.Equal(t, Applied, l.Apply(Point{X: 3, Y: 3, Color: 5}))
	assert.Equal(t, Applied, l.Apply(Point{X: 3, Y: 3, Color: 9}))
	assert.Equal(t, Unchanged, l.Apply(Point{X: 3, Y: 3, Color: 9}))

	got := l.Visible(Rect{X: 0, Y: 0, Width: 10, Height: 10})
	assert.Equal(t, []Point{{X: 3, Y: 3, Color: 9}}, got)
	assert.Equal(t, 1, l.Shadowed())
}

func TestLayer_RepaintedBackToOldColorOnce(t *testing.T) {
	l := NewLayer(DefaultLayerConfig())
	l.Build(nil)
	l.Apply(Point{X: 1, Y: 1, Color: 5})
	l.Apply(Point{X: 1, Y: 1, Color: 6})
	l.Apply(Point{X: 1, Y: 1, Color: 5})

	got := l.Visible(l.Boundary())
	assert.Equal(t, []Point{{X: 1, Y: 1, Color: 5}}, got)
}

func TestLayer_EraseHidesStackedPoints(t *testing.T) {
	l := NewLayer(DefaultLayerConfig())
	l.Build([]Point{{X: 2, Y: 2, Color: 1}})
	l.Apply(Point{X: 2, Y: 2, Color: 7})

	assert.Equal(t, Erased, l.Apply(Point{X: 2, Y: 2, Color: palette.Background}))
	assert.Equal(t, Unchanged, l.Apply(Point{X: 2, Y: 2, Color: palette.Background}))
	assert.Empty(t, l.Visible(l.Boundary()))
	assert.Equal(t, 0, l.Cells())
}

func TestLayer_OutOfBoundsWithoutGrowth(t *testing.T) {
	cfg := DefaultLayerConfig()
	cfg.GrowOnOverflow = false
	cfg.DefaultExtent = 10
	l := NewLayer(cfg)
	l.Build(nil)

	assert.Equal(t, OutOfBounds, l.Apply(Point{X: 10, Y: 0, Color: 1}))
	assert.Equal(t, 0, l.Cells())
}

func TestLayer_GrowsBoundary(t *testing.T) {
	cfg := DefaultLayerConfig()
	cfg.DefaultExtent = 10
	l := NewLayer(cfg)
	l.Build([]Point{{X: 0, Y: 0, Color: 1}})
	before := l.Boundary()

	assert.Equal(t, Applied, l.Apply(Point{X: 50, Y: -40, Color: 2}))
	after := l.Boundary()
	assert.True(t, after.Contains(50, -40))
	assert.True(t, after.Contains(before.X, before.Y))
	assert.ElementsMatch(t, []Point{{X: 0, Y: 0, Color: 1}, {X: 50, Y: -40, Color: 2}}, l.Visible(after))
}

func TestLayer_RejectsCellsBeyondMaxCoord(t *testing.T) {
	l := NewLayer(DefaultLayerConfig())
	l.Build([]Point{{X: 0, Y: 0, Color: 1}})
	before := l.Boundary()

	const huge = int(^uint(0) >> 1)
	assert.Equal(t, OutOfBounds, l.Apply(Point{X: huge, Y: 0, Color: 2}))
	assert.Equal(t, OutOfBounds, l.Apply(Point{X: 0, Y: -MaxCoord - 1, Color: 2}))
	assert.Equal(t, before, l.Boundary())
	assert.Equal(t, 1, l.Cells())
	assert.Len(t, l.Visible(l.Boundary()), 1)
}

func TestLayer_GrowthSaturatesAtCoordLimit(t *testing.T) {
	cfg := DefaultLayerConfig()
	cfg.DefaultExtent = 10
	l := NewLayer(cfg)
	l.Build(nil)

	assert.Equal(t, Applied, l.Apply(Point{X: MaxCoord, Y: -MaxCoord, Color: 2}))
	assert.Equal(t, Applied, l.Apply(Point{X: -MaxCoord, Y: MaxCoord, Color: 3}))
	b := l.Boundary()
	assert.False(t, b.Empty())
	assert.GreaterOrEqual(t, b.X, -CoordLimit)
	assert.LessOrEqual(t, b.MaxX(), CoordLimit)
	assert.Len(t, l.Visible(b), 2)
}

func TestLayer_BuildSkipsCellsBeyondMaxCoord(t *testing.T) {
	l := NewLayer(DefaultLayerConfig())
	const huge = int(^uint(0) >> 1)
	l.Build([]Point{{X: huge, Y: huge, Color: 4}, {X: 2, Y: 2, Color: 1}})

	assert.Equal(t, 1, l.Cells())
	assert.Equal(t, Rect{X: 1, Y: 1, Width: 3, Height: 3}, l.Boundary())
}

func TestLayer_CompactionKeepsResults(t *testing.T) {
	cfg := DefaultLayerConfig()
	cfg.CompactThreshold = 8
	l := NewLayer(cfg)
	l.Build([]Point{{X: 0, Y: 0, Color: 0}, {X: 1, Y: 0, Color: 0}})

	for i := 1; i <= 20; i++ {
		l.Apply(Point{X: 0, Y: 0, Color: palette.Index(i % 30)})
	}

	assert.LessOrEqual(t, l.Shadowed(), 8)
	assert.Greater(t, l.Rebuilds(), 1)
	got := l.Visible(l.Boundary())
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []Point{{X: 0, Y: 0, Color: 20}, {X: 1, Y: 0, Color: 0}}, got)
}

func TestLayer_Each(t *testing.T) {
	l := NewLayer(DefaultLayerConfig())
	l.Build([]Point{{X: 0, Y: 0, Color: 3}, {X: 5, Y: 5, Color: 4}})

	var got []Point
	l.Each(func(p Point) { got = append(got, p) })
	assert.ElementsMatch(t, []Point{{X: 0, Y: 0, Color: 3}, {X: 5, Y: 5, Color: 4}}, got)
}
