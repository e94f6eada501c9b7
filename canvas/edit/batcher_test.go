package edit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/palette"
	"github.com/gekko3d/pixelplace/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches []map[string]json.RawMessage
	err     error
	block   chan struct{}
}

func (w *recordingWriter) BatchWrite(ctx context.Context, path string, updates map[string]json.RawMessage) error {
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, updates)
	return w.err
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func newBatcher(w *recordingWriter) (*Batcher, *grid.Layer) {
	layer := grid.NewLayer(grid.DefaultLayerConfig())
	layer.Build(nil)
	return New(layer, w, nil, DefaultConfig()), layer
}

var t0 = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func TestDebounceDropsSecondEdit(t *testing.T) {
	w := &recordingWriter{}
	b, layer := newBatcher(w)
	b.Select(5)

	assert.Equal(t, Queued, b.Edit(grid.Cell{X: 3, Y: 3}, t0))
	b.Select(9)
	assert.Equal(t, Debounced, b.Edit(grid.Cell{X: 3, Y: 3}, t0.Add(10*time.Millisecond)))

	q := b.Queued()
	require.Len(t, q, 1)
	assert.Equal(t, palette.Index(5), q[grid.Cell{X: 3, Y: 3}].Color)
	c, _ := layer.ColorAt(grid.Cell{X: 3, Y: 3})
	assert.Equal(t, palette.Index(5), c)

	// outside the window the cell can be edited again
	assert.Equal(t, Queued, b.Edit(grid.Cell{X: 3, Y: 3}, t0.Add(60*time.Millisecond)))
	assert.Equal(t, palette.Index(9), b.Queued()[grid.Cell{X: 3, Y: 3}].Color)
}

func TestFlushAtMaxQueue(t *testing.T) {
	w := &recordingWriter{}
	b, _ := newBatcher(w)
	b.Select(2)

	for i := 0; i < 49; i++ {
		require.Equal(t, Queued, b.Edit(grid.Cell{X: i, Y: 0}, t0))
	}
	assert.Equal(t, Flushed, b.Edit(grid.Cell{X: 49, Y: 0}, t0))
	assert.Equal(t, 0, b.Len())
	_, armed := b.Deadline()
	assert.False(t, armed)

	assert.Empty(t, b.Wait())
	require.Equal(t, 1, w.count())
	assert.Len(t, w.batches[0], 50)

	// the cleared timer does not produce an empty flush
	assert.False(t, b.Tick(t0.Add(time.Second)))
	b.Wait()
	assert.Equal(t, 1, w.count())
}

func TestTimerFlush(t *testing.T) {
	w := &recordingWriter{}
	b, _ := newBatcher(w)
	b.Select(1)

	b.Edit(grid.Cell{X: 0, Y: 0}, t0)
	b.Edit(grid.Cell{X: 1, Y: 0}, t0.Add(40*time.Millisecond))

	assert.False(t, b.Tick(t0.Add(99*time.Millisecond)))
	assert.Equal(t, 2, b.Len())
	assert.True(t, b.Tick(t0.Add(100*time.Millisecond)))
	assert.Equal(t, 0, b.Len())

	b.Wait()
	require.Equal(t, 1, w.count())
	assert.JSONEq(t, `{"x":1,"y":0,"color":1}`, string(w.batches[0]["1_0"]))
}

func TestEraseWritesNull(t *testing.T) {
	w := &recordingWriter{}
	b, layer := newBatcher(w)
	layer.Apply(grid.Point{X: 7, Y: 7, Color: 4})

	b.SetEraser(true)
	b.Edit(grid.Cell{X: 7, Y: 7}, t0)
	_, ok := layer.ColorAt(grid.Cell{X: 7, Y: 7})
	assert.False(t, ok)

	b.Flush()
	b.Wait()
	require.Equal(t, 1, w.count())
	v, present := w.batches[0]["7_7"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestFailedFlushIsReportedNotRetried(t *testing.T) {
	w := &recordingWriter{err: errors.New("permission denied")}
	b, layer := newBatcher(w)
	b.Select(6)
	b.Edit(grid.Cell{X: 1, Y: 1}, t0)
	b.Flush()

	errs := b.Wait()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrWriteFlush)
	assert.Equal(t, 1, b.Stats().Failed)

	// optimistic state stays
	c, ok := layer.ColorAt(grid.Cell{X: 1, Y: 1})
	assert.True(t, ok)
	assert.Equal(t, palette.Index(6), c)
	assert.False(t, b.Tick(t0.Add(time.Second)))
	assert.Equal(t, 1, w.count())
}

func TestPendingUntilCollected(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	b, _ := newBatcher(w)
	cell := grid.Cell{X: 2, Y: 5}

	b.Edit(cell, t0)
	assert.True(t, b.IsPending(cell))
	b.Flush()
	assert.True(t, b.IsPending(cell))
	assert.Empty(t, b.Collect())
	assert.True(t, b.IsPending(cell))

	close(w.block)
	b.Wait()
	assert.False(t, b.IsPending(cell))
	assert.False(t, b.IsPending(grid.Cell{X: 0, Y: 0}))
}

func TestZeroConfigDebounces(t *testing.T) {
	layer := grid.NewLayer(grid.DefaultLayerConfig())
	layer.Build(nil)
	b := New(layer, &recordingWriter{}, nil, Config{})

	assert.Equal(t, Queued, b.Edit(grid.Cell{X: 1, Y: 1}, t0))
	assert.Equal(t, Debounced, b.Edit(grid.Cell{X: 1, Y: 1}, t0.Add(time.Millisecond)))
	assert.Equal(t, Queued, b.Edit(grid.Cell{X: 1, Y: 1}, t0.Add(DefaultConfig().Debounce)))
}

func TestPendingReturnsNewestLocalPoint(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	b, _ := newBatcher(w)
	cell := grid.Cell{X: 2, Y: 5}

	b.Select(4)
	b.Edit(cell, t0)
	b.Flush()
	b.Select(6)
	b.Edit(cell, t0.Add(time.Second))

	p, ok := b.Pending(cell)
	require.True(t, ok)
	assert.Equal(t, palette.Index(6), p.Color)

	b.Flush()
	p, ok = b.Pending(cell)
	require.True(t, ok)
	assert.Equal(t, palette.Index(6), p.Color)

	b.SetEraser(true)
	b.Edit(cell, t0.Add(2*time.Second))
	p, ok = b.Pending(cell)
	require.True(t, ok)
	assert.Equal(t, palette.Background, p.Color)

	close(w.block)
	b.Close()
	_, ok = b.Pending(cell)
	assert.False(t, ok)
}

func TestEditsReachStore(t *testing.T) {
	s := memstore.New()
	layer := grid.NewLayer(grid.DefaultLayerConfig())
	layer.Build(nil)
	b := New(layer, s, nil, DefaultConfig())

	var seen []grid.Point
	b.OnEdit = func(p grid.Point) { seen = append(seen, p) }
	b.Select(3)
	b.Edit(grid.Cell{X: -4, Y: 8}, t0)
	require.Empty(t, b.Close())

	assert.Equal(t, []grid.Point{{X: -4, Y: 8, Color: 3}}, seen)
	assert.JSONEq(t, `{"x":-4,"y":8,"color":3}`, string(s.Get("pixels")["-4_8"]))
}

func TestSelectTool(t *testing.T) {
	b, _ := newBatcher(&recordingWriter{})
	b.SetEraser(true)
	b.Select(4)
	assert.Equal(t, Tool{Color: 4}, b.Tool())
	b.Select(palette.Background)
	assert.Equal(t, Tool{Color: 4, Eraser: true}, b.Tool())
}
