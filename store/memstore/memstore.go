// Package memstore is an in-process store. It is the default backend for a single
// local session and the backing of tests.
package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gekko3d/pixelplace/store"
)

type Store struct {
	mu     sync.Mutex
	data   map[string]store.Snapshot
	hub    *store.Hub
	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data: make(map[string]store.Snapshot),
		hub:  store.NewHub(),
	}
}

func (s *Store) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (store.Subscription, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	sub := s.hub.Add(ctx, path, fn)
	fn(s.data[path].Clone())
	return sub, nil
}

func (s *Store) BatchWrite(ctx context.Context, path string, updates map[string]json.RawMessage) error {
	if err := store.CheckWrite(path, updates); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	snap := s.data[path]
	if snap == nil {
		snap = store.Snapshot{}
		s.data[path] = snap
	}
	snap.Apply(updates)
	s.hub.Publish(path, snap.Clone())
	return nil
}

// Get returns a copy of the current content of path.
func (s *Store) Get(path string) store.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[path].Clone()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.Clear()
	return nil
}
