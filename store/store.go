// Package store defines the realtime key-value contract the canvas synchronizes
// through. A path holds a flat map of keys to JSON values; subscribers receive the
// whole map on subscribe and again after every change.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

var (
	ErrClosed  = errors.New("store: closed")
	ErrBadPath = errors.New("store: invalid path")
	ErrBadKey  = errors.New("store: invalid key")
)

// Snapshot is the full content of one path. Subscribers must treat it as read-only.
type Snapshot map[string]json.RawMessage

func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return maps.Clone(s)
}

type Subscription interface {
	Unsubscribe()
}

type Subscriber interface {
	// Subscribe calls fn with the current snapshot of path, then again after every
	// change, until the subscription is cancelled or ctx is done. fn must not block
	// and must not call back into the store.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error)
}

type Writer interface {
	// BatchWrite applies all updates to path at once. A nil or JSON null value
	// deletes the key.
	BatchWrite(ctx context.Context, path string, updates map[string]json.RawMessage) error
}

type Store interface {
	Subscriber
	Writer
	Close() error
}

// Record is the wire form of one painted cell.
type Record struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Color int `json:"color"`
}

// CellKey formats the key a cell is stored under.
func CellKey(x, y int) string {
	return strconv.Itoa(x) + "_" + strconv.Itoa(y)
}

func ParseCellKey(key string) (x, y int, err error) {
	xs, ys, ok := strings.Cut(key, "_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q has no separator", ErrBadKey, key)
	}
	if x, err = strconv.Atoi(xs); err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrBadKey, key, err)
	}
	if y, err = strconv.Atoi(ys); err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrBadKey, key, err)
	}
	return x, y, nil
}

// ValidatePath accepts slash separated, non-empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrBadPath)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrBadPath, path)
		}
	}
	return nil
}

func ValidateKey(key string) error {
	if key == "" || strings.Contains(key, "/") {
		return fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return nil
}

// IsDelete reports whether an update value removes its key.
func IsDelete(v json.RawMessage) bool {
	return len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Apply merges updates into s.
func (s Snapshot) Apply(updates map[string]json.RawMessage) {
	for k, v := range updates {
		if IsDelete(v) {
			delete(s, k)
			continue
		}
		s[k] = append(json.RawMessage(nil), v...)
	}
}

func validateUpdates(updates map[string]json.RawMessage) error {
	for k, v := range updates {
		if err := ValidateKey(k); err != nil {
			return err
		}
		if !IsDelete(v) && !json.Valid(v) {
			return fmt.Errorf("store: value for %q is not valid JSON", k)
		}
	}
	return nil
}

// CheckWrite validates the arguments of a BatchWrite.
func CheckWrite(path string, updates map[string]json.RawMessage) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	return validateUpdates(updates)
}
