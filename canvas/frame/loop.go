// Package frame runs the per-frame read path: viewport query, instance buffer
// upload and one instanced draw.
package frame

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/logx"
	"github.com/gekko3d/pixelplace/canvas/palette"
	"github.com/gekko3d/pixelplace/canvas/view"
)

// Buffer is a GPU buffer owned by a Device.
type Buffer interface {
	Size() uint64
	Release()
}

// Uniforms matches the pixel shader uniform block.
type Uniforms struct {
	Offset     [2]float32
	Resolution [2]float32
	Scale      float32
	PixelSize  float32
}

// Pass describes one instanced draw of the unit quad. Offsets holds two float32
// per instance, Colors three.
type Pass struct {
	Offsets   Buffer
	Colors    Buffer
	Instances int
	Uniforms  Uniforms
}

type Device interface {
	CreateInstanceBuffer(label string, data []byte) (Buffer, error)
	WriteBuffer(b Buffer, data []byte) error
	// Draw clears the surface and draws the pass. Instances may be zero.
	Draw(p Pass) error
}

type Config struct {
	CellSize float64
}

type Input struct {
	Width, Height int
}

type Stats struct {
	Frames        uint64
	Visible       int
	BytesUploaded uint64
	Reallocations int
	Query         time.Duration
	Upload        time.Duration
	Draw          time.Duration
}

type Loop struct {
	layer *grid.Layer
	vp    *view.Viewport
	pal   *palette.Palette
	dev   Device
	log   logx.Logger
	cfg   Config

	offsets []float32
	colors  []float32
	offBuf  Buffer
	colBuf  Buffer

	stats Stats
}

func New(layer *grid.Layer, vp *view.Viewport, pal *palette.Palette, dev Device, logger logx.Logger, cfg Config) *Loop {
	if cfg.CellSize <= 0 {
		cfg.CellSize = 1
	}
	return &Loop{
		layer: layer,
		vp:    vp,
		pal:   pal,
		dev:   dev,
		log:   logx.OrNop(logger),
		cfg:   cfg,
	}
}

// Frame renders the visible part of the layer to a surface of the given size.
func (l *Loop) Frame(in Input) error {
	if l.dev == nil {
		return ErrNoDevice
	}
	var s Stats
	s.Frames = l.stats.Frames + 1

	start := time.Now()
	rect := l.vp.VisibleGridRect(float64(in.Width), float64(in.Height), l.cfg.CellSize)
	points := l.layer.Visible(rect)
	s.Visible = len(points)

	l.offsets = l.offsets[:0]
	l.colors = l.colors[:0]
	for _, p := range points {
		rgb := l.pal.RGB(p.Color)
		l.offsets = append(l.offsets, float32(p.X), float32(p.Y))
		l.colors = append(l.colors, rgb[0], rgb[1], rgb[2])
	}
	s.Query = time.Since(start)

	start = time.Now()
	offBytes := float32Bytes(l.offsets)
	colBytes := float32Bytes(l.colors)
	var err error
	if l.offBuf, err = l.upload(l.offBuf, "pixel offsets", offBytes, &s); err != nil {
		return err
	}
	if l.colBuf, err = l.upload(l.colBuf, "pixel colors", colBytes, &s); err != nil {
		return err
	}
	s.Upload = time.Since(start)

	off := l.vp.Offset()
	pass := Pass{
		Offsets:   l.offBuf,
		Colors:    l.colBuf,
		Instances: len(points),
		Uniforms: Uniforms{
			Offset:     [2]float32{float32(off[0]), float32(off[1])},
			Resolution: [2]float32{float32(in.Width), float32(in.Height)},
			Scale:      float32(l.vp.Scale()),
			PixelSize:  float32(l.cfg.CellSize),
		},
	}
	start = time.Now()
	err = l.dev.Draw(pass)
	s.Draw = time.Since(start)
	l.stats = s
	if err != nil {
		return fmt.Errorf("draw %d pixels: %w", len(points), err)
	}
	return nil
}

// upload reuses buf when the byte length is unchanged and replaces it otherwise.
func (l *Loop) upload(buf Buffer, label string, data []byte, s *Stats) (Buffer, error) {
	if len(data) == 0 {
		return buf, nil
	}
	if buf != nil && buf.Size() == uint64(len(data)) {
		if err := l.dev.WriteBuffer(buf, data); err != nil {
			return buf, fmt.Errorf("write %s: %w", label, err)
		}
		s.BytesUploaded += uint64(len(data))
		return buf, nil
	}
	if buf != nil {
		buf.Release()
	}
	nb, err := l.dev.CreateInstanceBuffer(label, data)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	s.Reallocations++
	s.BytesUploaded += uint64(len(data))
	return nb, nil
}

func (l *Loop) Stats() Stats {
	return l.stats
}

// Release frees the instance buffers.
func (l *Loop) Release() {
	for _, b := range []Buffer{l.offBuf, l.colBuf} {
		if b != nil {
			b.Release()
		}
	}
	l.offBuf, l.colBuf = nil, nil
}

var ErrNoDevice = errors.New("frame: no device")

func float32Bytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}
