package view

import (
	"math/rand"
	"testing"

	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func TestZoomAroundCursor(t *testing.T) {
	v := New(DefaultConfig())
	wx, wy := v.ScreenToWorld(50, 50)

	assert.True(t, v.Zoom(50, 50, 1))
	assert.InDelta(t, 1.1, v.Scale(), eps)
	assert.InDelta(t, -5.0, v.Offset()[0], eps)
	assert.InDelta(t, -5.0, v.Offset()[1], eps)

	ax, ay := v.ScreenToWorld(50, 50)
	assert.InDelta(t, wx, ax, eps)
	assert.InDelta(t, wy, ay, eps)
}

func TestZoomKeepsCursorFixedRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	v := New(DefaultConfig())
	for i := 0; i < 500; i++ {
		v.SetState(mgl64.Vec2{rng.Float64()*2000 - 1000, rng.Float64()*2000 - 1000}, 0.1+rng.Float64()*20)
		cx, cy := rng.Float64()*1920, rng.Float64()*1080
		dir := rng.Intn(7) - 3

		bx, by := v.ScreenToWorld(cx, cy)
		v.Zoom(cx, cy, dir)
		ax, ay := v.ScreenToWorld(cx, cy)

		assert.InDelta(t, bx, ax, 1e-6)
		assert.InDelta(t, by, ay, 1e-6)
	}
}

func TestScreenWorldRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	v := New(DefaultConfig())
	for i := 0; i < 500; i++ {
		v.SetState(mgl64.Vec2{rng.NormFloat64() * 500, rng.NormFloat64() * 500}, 0.1+rng.Float64()*39.9)
		sx, sy := rng.Float64()*4000-2000, rng.Float64()*4000-2000

		sx2, sy2 := v.WorldToScreen(v.ScreenToWorld(sx, sy))
		assert.InDelta(t, sx, sx2, 1e-7)
		assert.InDelta(t, sy, sy2, 1e-7)
	}
}

func TestZoomClamps(t *testing.T) {
	v := New(Config{MinScale: 0.5, MaxScale: 2, ZoomFactor: 2})

	assert.True(t, v.Zoom(0, 0, 1))
	assert.False(t, v.Zoom(0, 0, 1))
	assert.Equal(t, 2.0, v.Scale())

	v.Zoom(0, 0, -5)
	assert.Equal(t, 0.5, v.Scale())
}

func TestPan(t *testing.T) {
	v := New(DefaultConfig())
	v.Pan(10, -4)
	v.Pan(1, 1)
	assert.Equal(t, mgl64.Vec2{11, -3}, v.Offset())
}

func TestVisibleGridRect(t *testing.T) {
	v := New(DefaultConfig())
	assert.Equal(t, grid.Rect{X: 0, Y: 0, Width: 11, Height: 6}, v.VisibleGridRect(100, 50, 10))

	v.SetState(mgl64.Vec2{-15, 5}, 1)
	// world x spans [15, 115), y spans [-5, 45)
	assert.Equal(t, grid.Rect{X: 1, Y: -1, Width: 12, Height: 7}, v.VisibleGridRect(100, 50, 10))
}

func TestCellAt(t *testing.T) {
	v := New(DefaultConfig())
	v.SetState(mgl64.Vec2{0, 0}, 2)

	assert.Equal(t, grid.Cell{X: 2, Y: 0}, v.CellAt(45, 19, 10))
	assert.Equal(t, grid.Cell{X: -1, Y: -1}, v.CellAt(-1, -1, 10))
}

func TestFarPanSaturatesGridCoordinates(t *testing.T) {
	v := New(DefaultConfig())
	v.SetState(mgl64.Vec2{-1e30, 0}, 1)

	assert.True(t, v.VisibleGridRect(100, 50, 10).Empty())
	assert.Equal(t, grid.Cell{X: grid.CoordLimit, Y: 0}, v.CellAt(0, 0, 10))

	v.SetState(mgl64.Vec2{1e30, 1e30}, 1)
	c := v.CellAt(0, 0, 10)
	assert.Equal(t, grid.Cell{X: -grid.CoordLimit, Y: -grid.CoordLimit}, c)
	assert.False(t, c.InRange())
}
