package palette

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPalette(t *testing.T) {
	p := Default()

	assert.Equal(t, "#FFFFFF", p.Hex(Background))
	assert.Equal(t, [3]float32{1, 1, 1}, p.RGB(Background))
	assert.Equal(t, [3]float32{0, 0, 0}, p.RGB(27))
	assert.Equal(t, color.NRGBA{R: 0xFF, G: 0x45, B: 0x00, A: 0xFF}, p.Color(2))
}

func TestNewRejectsMalformedHex(t *testing.T) {
	for _, bad := range []string{"FFD635", "#GGGGGG", "#12345Z", "#+12345"} {
		hex := DefaultHex
		hex[4] = bad
		_, err := New(hex)
		require.Error(t, err, bad)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(0))
	assert.True(t, Valid(31))
	assert.False(t, Valid(32))
	assert.False(t, Valid(-1))
}

func TestNextSkipsBackground(t *testing.T) {
	assert.Equal(t, Index(0), Next(30, 1))
	assert.Equal(t, Index(30), Next(0, -1))
	assert.Equal(t, Index(5), Next(4, 1))
}
