package overlay

import (
	"testing"
	"time"

	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoverThrottlesAndSkipsUnchanged(t *testing.T) {
	h := New(DefaultConfig())
	vp := view.New(view.DefaultConfig())
	now := time.Now()

	img, ok := h.Update(now, 15, 15, vp, 10, 64, 48)
	require.True(t, ok)
	require.NotNil(t, img)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())

	// inside the throttle window
	_, ok = h.Update(now.Add(5*time.Millisecond), 35, 15, vp, 10, 64, 48)
	assert.False(t, ok)

	// same cell after the window
	_, ok = h.Update(now.Add(20*time.Millisecond), 18, 12, vp, 10, 64, 48)
	assert.False(t, ok)

	_, ok = h.Update(now.Add(40*time.Millisecond), 35, 15, vp, 10, 64, 48)
	assert.True(t, ok)
	c, _ := h.Cell()
	assert.Equal(t, grid.Cell{X: 3, Y: 1}, c)

	vp.Pan(1, 0)
	_, ok = h.Update(now.Add(60*time.Millisecond), 35, 15, vp, 10, 64, 48)
	assert.True(t, ok)
	assert.Equal(t, 3, h.Redraws)
}

func TestHoverDrawsOutlineAroundCell(t *testing.T) {
	h := New(DefaultConfig())
	vp := view.New(view.DefaultConfig())

	img, ok := h.Update(time.Now(), 25, 25, vp, 10, 64, 64)
	require.True(t, ok)

	// cell (2,2) spans [20,30) on screen
	assert.NotZero(t, img.RGBAAt(20, 25).A)
	assert.Zero(t, img.RGBAAt(25, 25).A)
	assert.Zero(t, img.RGBAAt(50, 5).A)
}

func TestHoverIgnoresEmptySurface(t *testing.T) {
	h := New(DefaultConfig())
	_, ok := h.Update(time.Now(), 0, 0, view.New(view.DefaultConfig()), 10, 0, 10)
	assert.False(t, ok)
}

func TestHoverLabelDrawnOverOutline(t *testing.T) {
	h := New(DefaultConfig())
	vp := view.New(view.DefaultConfig())

	img, ok := h.Update(time.Now(), 25, 25, vp, 10, 64, 64)
	require.True(t, ok)

	// both the stroke and the coordinate label land on the same surface
	assert.NotZero(t, img.RGBAAt(20, 25).A)
	var label int
	for y := 64 - 8 - 13; y < 64; y++ {
		for x := 8; x < 40; x++ {
			if img.RGBAAt(x, y).A != 0 {
				label++
			}
		}
	}
	assert.Positive(t, label)
}
