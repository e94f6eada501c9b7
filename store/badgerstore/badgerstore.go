// Package badgerstore keeps canvas paths in a badger database so the relay
// survives restarts. Keys are stored as "<path>/<key>".
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/gekko3d/pixelplace/canvas/logx"
	"github.com/gekko3d/pixelplace/store"
)

const DefaultSyncInterval = 30 * time.Second

type Options struct {
	// Dir is the database directory. Empty runs badger in memory.
	Dir          string
	SyncInterval time.Duration
	Logger       logx.Logger
}

type Store struct {
	dir    string
	log    logx.Logger
	bdp    *badger.DB
	hub    *store.Hub
	mu     sync.Mutex
	closed bool

	// stopSyncCh stops the sync goroutine.
	stopSyncCh chan struct{}
	syncDone   chan struct{}
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at dir.
func Open(dir string, logger logx.Logger) (*Store, error) {
	return OpenWithOptions(Options{Dir: dir, Logger: logger})
}

func OpenWithOptions(o Options) (*Store, error) {
	log := logx.OrNop(o.Logger)
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}

	var opts badger.Options
	if o.Dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if _, err := os.Stat(o.Dir); os.IsNotExist(err) {
			log.Infof("no database at %s, creating directory", o.Dir)
			if err := os.MkdirAll(o.Dir, 0744); err != nil {
				return nil, fmt.Errorf("can't make directory at %s: %w", o.Dir, err)
			}
		}
		opts = badger.DefaultOptions(o.Dir)
	}
	opts = opts.
		WithNumVersionsToKeep(1).
		WithSyncWrites(false).
		WithLogger(badgerLogger{log})

	log.Infof("opening badger @ %q", o.Dir)
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:        o.Dir,
		log:        log,
		bdp:        bdp,
		hub:        store.NewHub(),
		stopSyncCh: make(chan struct{}),
		syncDone:   make(chan struct{}),
	}
	go s.syncPeriodically(o.SyncInterval)
	return s, nil
}

// syncPeriodically bounds how many buffered writes a crash can lose.
func (s *Store) syncPeriodically(every time.Duration) {
	defer close(s.syncDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSyncCh:
			s.log.Debugf("stopping sync goroutine for badger @ %q", s.dir)
			return
		case <-ticker.C:
			if err := s.bdp.Sync(); err != nil {
				s.log.Warnf("badger sync @ %q: %v", s.dir, err)
			}
		}
	}
}

func dbKey(path, key string) []byte {
	return []byte(path + "/" + key)
}

func (s *Store) load(path string) (store.Snapshot, error) {
	snap := store.Snapshot{}
	prefix := []byte(path + "/")
	err := s.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), string(prefix))
			// keys of nested paths belong to another snapshot
			if strings.Contains(key, "/") {
				continue
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			snap[key] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Get reads one key. The value is nil when the key does not exist.
func (s *Store) Get(path, key string) (json.RawMessage, error) {
	var v []byte
	err := s.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(path, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	return v, err
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
	snap, err := s.load(path)
	if err != nil {
		return nil, err
	}
	sub := s.hub.Add(ctx, path, fn)
	fn(snap)
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

	wb := s.bdp.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range updates {
		var err error
		if store.IsDelete(v) {
			err = wb.Delete(dbKey(path, k))
		} else {
			err = wb.Set(dbKey(path, k), v)
		}
		if err != nil {
			return fmt.Errorf("batch %s/%s: %w", path, k, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush batch for %s: %w", path, err)
	}

	if s.hub.Count(path) == 0 {
		return nil
	}
	snap, err := s.load(path)
	if err != nil {
		s.log.Errorf("reload %s after write: %v", path, err)
		return nil
	}
	s.hub.Publish(path, snap)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stopSyncCh)
	<-s.syncDone
	s.hub.Clear()
	err := s.bdp.Close()
	s.log.Infof("closed badger @ %q", s.dir)
	return err
}

// badgerLogger routes badger's own messages into the application logger.
type badgerLogger struct {
	log logx.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Errorf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warnf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debugf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debugf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}
