// Package edit turns local paint actions into optimistic layer updates and
// batched store writes.
package edit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/ingest"
	"github.com/gekko3d/pixelplace/canvas/logx"
	"github.com/gekko3d/pixelplace/canvas/palette"
	"github.com/gekko3d/pixelplace/store"
)

var ErrWriteFlush = errors.New("flush write failed")

type Config struct {
	Debounce     time.Duration
	FlushDelay   time.Duration
	MaxQueue     int
	WriteTimeout time.Duration
	Path         string
}

func DefaultConfig() Config {
	return Config{
		Debounce:     50 * time.Millisecond,
		FlushDelay:   100 * time.Millisecond,
		MaxQueue:     50,
		WriteTimeout: 5 * time.Second,
		Path:         "pixels",
	}
}

type EditResult int

const (
	// Queued means the edit was applied locally and waits for the next flush.
	Queued EditResult = iota
	// Debounced means the edit repeated a cell inside the debounce window and was dropped.
	Debounced
	// Flushed means the edit filled the queue and triggered a flush.
	Flushed
)

func (r EditResult) String() string {
	switch r {
	case Debounced:
		return "debounced"
	case Flushed:
		return "flushed"
	default:
		return "queued"
	}
}

type Tool struct {
	Color  palette.Index
	Eraser bool
}

type Stats struct {
	Edits     int
	Debounced int
	Flushes   int
	Written   int
	Failed    int
	InFlight  int
}

type flushResult struct {
	cells []grid.Cell
	err   error
	took  time.Duration
}

type Batcher struct {
	layer  *grid.Layer
	writer store.Writer
	log    logx.Logger
	cfg    Config

	tool Tool

	queue    map[grid.Cell]grid.Point
	lastEdit map[grid.Cell]time.Time
	armed    bool
	deadline time.Time

	// written holds the newest point of each cell with an unconfirmed write.
	inflight map[grid.Cell]int
	written  map[grid.Cell]grid.Point
	results  chan flushResult
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	stats Stats

	// OnEdit is called with every point applied locally.
	OnEdit func(grid.Point)
}

func New(layer *grid.Layer, writer store.Writer, logger logx.Logger, cfg Config) *Batcher {
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = def.MaxQueue
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = def.FlushDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher{
		layer:    layer,
		writer:   writer,
		log:      logx.OrNop(logger),
		cfg:      cfg,
		queue:    make(map[grid.Cell]grid.Point),
		lastEdit: make(map[grid.Cell]time.Time),
		inflight: make(map[grid.Cell]int),
		written:  make(map[grid.Cell]grid.Point),
		results:  make(chan flushResult, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (b *Batcher) Select(i palette.Index) {
	if i == palette.Background {
		b.tool.Eraser = true
		return
	}
	b.tool = Tool{Color: i % palette.Size}
}

func (b *Batcher) SetEraser(on bool) {
	b.tool.Eraser = on
}

func (b *Batcher) Tool() Tool {
	return b.tool
}

// Edit paints c with the current tool at time now.
func (b *Batcher) Edit(c grid.Cell, now time.Time) EditResult {
	if last, ok := b.lastEdit[c]; ok && now.Sub(last) < b.cfg.Debounce {
		b.stats.Debounced++
		return Debounced
	}
	b.lastEdit[c] = now
	b.stats.Edits++

	color := b.tool.Color
	if b.tool.Eraser {
		color = palette.Background
	}
	p := grid.Point{X: c.X, Y: c.Y, Color: color}
	if b.layer.Apply(p) == grid.OutOfBounds {
		b.log.Warnf("edit at %v is outside canvas boundary %v", c, b.layer.Boundary())
	}
	if b.OnEdit != nil {
		b.OnEdit(p)
	}

	b.queue[c] = p
	if !b.armed {
		b.armed = true
		b.deadline = now.Add(b.cfg.FlushDelay)
	}
	if len(b.queue) >= b.cfg.MaxQueue {
		b.Flush()
		return Flushed
	}
	return Queued
}

// Tick fires the delayed flush once its deadline has passed and forgets debounce
// entries that can no longer suppress anything. It reports whether it flushed.
func (b *Batcher) Tick(now time.Time) bool {
	for c, t := range b.lastEdit {
		if now.Sub(t) >= b.cfg.Debounce {
			delete(b.lastEdit, c)
		}
	}
	if b.armed && !now.Before(b.deadline) {
		b.Flush()
		return true
	}
	return false
}

// Flush sends every queued edit in one write. The write runs in the background;
// its outcome is picked up by Collect.
func (b *Batcher) Flush() {
	b.armed = false
	if len(b.queue) == 0 {
		return
	}

	updates := make(map[string]json.RawMessage, len(b.queue))
	cells := make([]grid.Cell, 0, len(b.queue))
	for c, p := range b.queue {
		if p.Color == palette.Background {
			updates[store.CellKey(c.X, c.Y)] = nil
		} else {
			key, raw := ingest.EncodeRecord(p)
			updates[key] = raw
		}
		cells = append(cells, c)
		b.inflight[c]++
		b.written[c] = p
	}
	clear(b.queue)
	b.stats.Flushes++
	b.stats.InFlight++

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		start := time.Now()
		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.WriteTimeout)
		defer cancel()
		err := b.writer.BatchWrite(ctx, b.cfg.Path, updates)
		b.results <- flushResult{cells: cells, err: err, took: time.Since(start)}
	}()
}

// Collect picks up finished writes. Failed writes are logged and returned; they
// are neither retried nor rolled back.
func (b *Batcher) Collect() []error {
	var errs []error
	for {
		select {
		case r := <-b.results:
			if err := b.finish(r); err != nil {
				errs = append(errs, err)
			}
		default:
			return errs
		}
	}
}

func (b *Batcher) finish(r flushResult) error {
	b.stats.InFlight--
	for _, c := range r.cells {
		if b.inflight[c]--; b.inflight[c] <= 0 {
			delete(b.inflight, c)
			delete(b.written, c)
		}
	}
	if r.err != nil {
		err := fmt.Errorf("%w: %d cells to %q: %v", ErrWriteFlush, len(r.cells), b.cfg.Path, r.err)
		b.log.Errorf("%v", err)
		b.stats.Failed++
		return err
	}
	b.stats.Written += len(r.cells)
	b.log.Debugf("wrote %d cells in %v", len(r.cells), r.took)
	return nil
}

// Pending returns the local point of c while it has a queued or unconfirmed write.
func (b *Batcher) Pending(c grid.Cell) (grid.Point, bool) {
	if p, ok := b.queue[c]; ok {
		return p, true
	}
	p, ok := b.written[c]
	return p, ok
}

func (b *Batcher) IsPending(c grid.Cell) bool {
	_, ok := b.Pending(c)
	return ok
}

// Queued returns the edits waiting for the next flush.
func (b *Batcher) Queued() map[grid.Cell]grid.Point {
	out := make(map[grid.Cell]grid.Point, len(b.queue))
	for c, p := range b.queue {
		out[c] = p
	}
	return out
}

func (b *Batcher) Len() int {
	return len(b.queue)
}

// Deadline returns the pending flush deadline, if armed.
func (b *Batcher) Deadline() (time.Time, bool) {
	return b.deadline, b.armed
}

func (b *Batcher) Stats() Stats {
	return b.stats
}

// Wait blocks until every started write has finished and collects the results.
func (b *Batcher) Wait() []error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	var errs []error
	for {
		select {
		case r := <-b.results:
			if err := b.finish(r); err != nil {
				errs = append(errs, err)
			}
		case <-done:
			return append(errs, b.Collect()...)
		}
	}
}

// Close flushes the queue, waits for outstanding writes and returns their errors.
func (b *Batcher) Close() []error {
	b.Flush()
	errs := b.Wait()
	b.cancel()
	return errs
}
