// Package ingest turns store snapshots into layer updates. Snapshots are handed
// over from store goroutines with Deliver and applied on the main loop by Drain.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gekko3d/pixelplace/canvas/grid"
	"github.com/gekko3d/pixelplace/canvas/logx"
	"github.com/gekko3d/pixelplace/canvas/palette"
	"github.com/gekko3d/pixelplace/store"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrMalformedRecord = errors.New("malformed record")

const recordSchema = `{
	"type": "object",
	"required": ["x", "y", "color"],
	"properties": {
		"x": {"type": "integer", "minimum": -16777216, "maximum": 16777216},
		"y": {"type": "integer", "minimum": -16777216, "maximum": 16777216},
		"color": {"type": "integer", "minimum": 0, "maximum": 31}
	}
}`

var compiledSchema = jsonschema.MustCompileString("record.json", recordSchema)

// DecodeRecord validates one store entry and converts it to a point. The key and
// the record must name the same cell.
func DecodeRecord(key string, raw json.RawMessage) (grid.Point, error) {
	kx, ky, err := store.ParseCellKey(key)
	if err != nil {
		return grid.Point{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return grid.Point{}, fmt.Errorf("%w: key %q: %v", ErrMalformedRecord, key, err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return grid.Point{}, fmt.Errorf("%w: key %q: %v", ErrMalformedRecord, key, err)
	}
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return grid.Point{}, fmt.Errorf("%w: key %q: %v", ErrMalformedRecord, key, err)
	}
	if rec.X != kx || rec.Y != ky {
		return grid.Point{}, fmt.Errorf("%w: key %q holds cell (%d,%d)", ErrMalformedRecord, key, rec.X, rec.Y)
	}
	return grid.Point{X: rec.X, Y: rec.Y, Color: palette.Index(rec.Color)}, nil
}

// EncodeRecord is the inverse of DecodeRecord.
func EncodeRecord(p grid.Point) (string, json.RawMessage) {
	raw, _ := json.Marshal(store.Record{X: p.X, Y: p.Y, Color: int(p.Color)})
	return store.CellKey(p.X, p.Y), raw
}

// PendingSet reports cells with local edits the store has not confirmed yet,
// together with the locally applied point.
type PendingSet interface {
	Pending(c grid.Cell) (grid.Point, bool)
}

type Stats struct {
	Snapshots   int
	Coalesced   int
	Applied     int
	Erased      int
	Skipped     int
	Malformed   int
	OutOfBounds int
}

type Ingest struct {
	layer   *grid.Layer
	log     logx.Logger
	pending PendingSet

	mu       sync.Mutex
	next     store.Snapshot
	hasNext  bool
	notified chan struct{}

	built bool
	stats Stats
}

func New(layer *grid.Layer, logger logx.Logger) *Ingest {
	return &Ingest{
		layer:    layer,
		log:      logx.OrNop(logger),
		notified: make(chan struct{}, 1),
	}
}

// SetPending installs the set of cells reconciliation must not touch.
func (in *Ingest) SetPending(p PendingSet) {
	in.pending = p
}

// Deliver queues snap for the next Drain. Only the newest undrained snapshot is
// kept since each one is the complete state. Safe for concurrent use.
func (in *Ingest) Deliver(snap store.Snapshot) {
	in.mu.Lock()
	if in.hasNext {
		in.stats.Coalesced++
	}
	in.next = snap
	in.hasNext = true
	in.mu.Unlock()

	select {
	case in.notified <- struct{}{}:
	default:
	}
}

// Ready is signalled after Deliver.
func (in *Ingest) Ready() <-chan struct{} {
	return in.notified
}

// Drain applies the queued snapshot, if any. It reports whether one was applied.
func (in *Ingest) Drain() bool {
	in.mu.Lock()
	snap, ok := in.next, in.hasNext
	in.next, in.hasNext = nil, false
	in.mu.Unlock()
	if !ok {
		return false
	}
	in.Apply(snap)
	return true
}

func (in *Ingest) Built() bool {
	return in.built
}

// Apply processes snap on the calling goroutine. The first snapshot builds the
// layer; later ones are reconciled against it.
func (in *Ingest) Apply(snap store.Snapshot) {
	points := in.decode(snap)
	in.mu.Lock()
	in.stats.Snapshots++
	in.mu.Unlock()

	if !in.built {
		in.build(points)
		return
	}
	in.reconcile(points)
}

// build replaces the layer with the snapshot. Cells with unconfirmed local edits
// keep the local point, including local erasures.
func (in *Ingest) build(points []grid.Point) {
	live := make([]grid.Point, 0, len(points))
	skipped := 0
	for _, p := range points {
		if in.isPending(p.Cell()) {
			skipped++
			continue
		}
		live = append(live, p)
	}
	applied := len(live)
	if in.pending != nil {
		in.layer.Each(func(p grid.Point) {
			if local, ok := in.pending.Pending(p.Cell()); ok && local.Color != palette.Background {
				live = append(live, local)
			}
		})
	}

	in.layer.Build(live)
	in.built = true
	in.mu.Lock()
	in.stats.Applied += applied
	in.stats.Skipped += skipped
	in.mu.Unlock()
	in.log.Infof("built canvas from %d cells, boundary %v", in.layer.Cells(), in.layer.Boundary())
}

func (in *Ingest) decode(snap store.Snapshot) []grid.Point {
	points := make([]grid.Point, 0, len(snap))
	malformed := 0
	for key, raw := range snap {
		p, err := DecodeRecord(key, raw)
		if err != nil {
			malformed++
			in.log.Warnf("skipping record: %v", err)
			continue
		}
		points = append(points, p)
	}
	if malformed > 0 {
		in.mu.Lock()
		in.stats.Malformed += malformed
		in.mu.Unlock()
	}
	return points
}

func (in *Ingest) isPending(c grid.Cell) bool {
	if in.pending == nil {
		return false
	}
	_, ok := in.pending.Pending(c)
	return ok
}

func (in *Ingest) reconcile(points []grid.Point) {
	var s Stats
	present := make(map[grid.Cell]struct{}, len(points))
	for _, p := range points {
		present[p.Cell()] = struct{}{}
	}

	var gone []grid.Cell
	in.layer.Each(func(p grid.Point) {
		if _, ok := present[p.Cell()]; !ok {
			gone = append(gone, p.Cell())
		}
	})
	for _, c := range gone {
		if in.isPending(c) {
			s.Skipped++
			continue
		}
		if in.layer.Apply(grid.Point{X: c.X, Y: c.Y, Color: palette.Background}) == grid.Erased {
			s.Erased++
		}
	}

	for _, p := range points {
		if in.isPending(p.Cell()) {
			s.Skipped++
			continue
		}
		switch in.layer.Apply(p) {
		case grid.Applied:
			s.Applied++
		case grid.Erased:
			s.Erased++
		case grid.OutOfBounds:
			s.OutOfBounds++
			in.log.Warnf("cell %v outside canvas boundary %v", p.Cell(), in.layer.Boundary())
		}
	}

	if s.Applied+s.Erased > 0 {
		in.log.Debugf("reconciled snapshot: %d applied, %d erased, %d pending skipped", s.Applied, s.Erased, s.Skipped)
	}
	in.mu.Lock()
	in.stats.Applied += s.Applied
	in.stats.Erased += s.Erased
	in.stats.Skipped += s.Skipped
	in.stats.OutOfBounds += s.OutOfBounds
	in.mu.Unlock()
}

func (in *Ingest) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}
