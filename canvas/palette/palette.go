package palette

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"github.com/gogpu/gg"
)

// Index is a position in the palette table.
type Index uint8

const (
	Size = 32
	// Background is the unpainted/erase color. Cells with this color are never stored.
	Background Index = Size - 1
)

// DefaultHex is the shared 32 color table. Index 31 must stay white.
var DefaultHex = [Size]string{
	"#6D001A", "#BE0039", "#FF4500", "#FFA800", "#FFD635", "#FFF8B8", "#00A368", "#00CC78",
	"#7EED56", "#00756F", "#009EAA", "#00CCC0", "#2450A4", "#3690EA", "#51E9F4", "#493AC1",
	"#6A5CFF", "#94B3FF", "#811E9F", "#B44AC0", "#E4ABFF", "#DE107F", "#FF3881", "#FF99AA",
	"#6D482F", "#9C6926", "#FFB470", "#000000", "#515252", "#898D90", "#D4D7D9", "#FFFFFF",
}

type entry struct {
	hex  string
	rgb  [3]float32
	nrgb color.NRGBA
}

type Palette struct {
	entries [Size]entry
}

// Default returns the palette built from DefaultHex.
func Default() *Palette {
	p, err := New(DefaultHex)
	if err != nil {
		panic(err)
	}
	return p
}

func New(hex [Size]string) (*Palette, error) {
	p := &Palette{}
	for i, h := range hex {
		if len(h) != 7 || h[0] != '#' {
			return nil, fmt.Errorf("palette entry %d: want #RRGGBB, got %q", i, h)
		}
		if _, err := strconv.ParseUint(h[1:], 16, 32); err != nil {
			return nil, fmt.Errorf("palette entry %d: want #RRGGBB, got %q", i, h)
		}
		c := gg.Hex(h)
		p.entries[i] = entry{
			hex:  h,
			rgb:  [3]float32{float32(c.R), float32(c.G), float32(c.B)},
			nrgb: color.NRGBA{R: to8(c.R), G: to8(c.G), B: to8(c.B), A: 0xFF},
		}
	}
	return p, nil
}

func to8(v float64) uint8 {
	return uint8(math.Round(v * 255))
}

// Valid reports whether i addresses a palette entry.
func Valid(i int) bool {
	return i >= 0 && i < Size
}

// RGB returns the color normalized to [0, 1].
func (p *Palette) RGB(i Index) [3]float32 {
	return p.entries[i%Size].rgb
}

func (p *Palette) Hex(i Index) string {
	return p.entries[i%Size].hex
}

func (p *Palette) Color(i Index) color.NRGBA {
	return p.entries[i%Size].nrgb
}

// Next cycles forward through the paintable colors, skipping Background.
func Next(i Index, step int) Index {
	n := (int(i) + step) % int(Background)
	if n < 0 {
		n += int(Background)
	}
	return Index(n)
}
