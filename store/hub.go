package store

import (
	"context"
	"sync"
)

// Hub fans snapshots out to the subscribers of each path. Stores serialize their
// calls to Publish so that subscribers observe changes in order.
type Hub struct {
	mu   sync.Mutex
	seq  uint64
	subs map[string]map[uint64]func(Snapshot)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]func(Snapshot))}
}

type hubSubscription struct {
	once   sync.Once
	cancel func()
	stop   func() bool
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(s.cancel)
	if s.stop != nil {
		s.stop()
	}
}

// Add registers fn under path. The subscription ends when ctx is done.
func (h *Hub) Add(ctx context.Context, path string, fn func(Snapshot)) Subscription {
	h.mu.Lock()
	h.seq++
	id := h.seq
	if h.subs[path] == nil {
		h.subs[path] = make(map[uint64]func(Snapshot))
	}
	h.subs[path][id] = fn
	h.mu.Unlock()

	sub := &hubSubscription{cancel: func() { h.remove(path, id) }}
	if ctx != nil && ctx.Done() != nil {
		sub.stop = context.AfterFunc(ctx, func() { sub.once.Do(sub.cancel) })
	}
	return sub
}

func (h *Hub) remove(path string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[path], id)
	if len(h.subs[path]) == 0 {
		delete(h.subs, path)
	}
}

// Publish calls every subscriber of path with snap.
func (h *Hub) Publish(path string, snap Snapshot) {
	h.mu.Lock()
	fns := make([]func(Snapshot), 0, len(h.subs[path]))
	for _, fn := range h.subs[path] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Count returns the number of subscribers of path.
func (h *Hub) Count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[path])
}

// Clear drops every subscriber.
func (h *Hub) Clear() {
	h.mu.Lock()
	clear(h.subs)
	h.mu.Unlock()
}
