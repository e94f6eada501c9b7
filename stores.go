package pixelplace

import (
	"context"
	"fmt"

	"github.com/gekko3d/pixelplace/store"
	"github.com/gekko3d/pixelplace/store/badgerstore"
	"github.com/gekko3d/pixelplace/store/memstore"
	"github.com/gekko3d/pixelplace/store/wsstore"
)

// OpenStore opens the backend named by c.Backend.
func OpenStore(ctx context.Context, c StoreConfig, logger Logger) (store.Store, error) {
	switch c.Backend {
	case "", "memory":
		logger.Infof("using in-memory store")
		return memstore.New(), nil
	case "badger":
		logger.Infof("using badger store at %s", c.Dir)
		s, err := badgerstore.OpenWithOptions(badgerstore.Options{
			Dir:          c.Dir,
			SyncInterval: c.SyncInterval.Duration,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "ws":
		logger.Infof("connecting to relay %s", c.URL)
		opts := wsstore.DefaultClientOptions()
		opts.MaxMessageSize = c.MaxMessageSize
		s, err := wsstore.DialWithOptions(ctx, c.URL, logger, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", ErrBadConfig, c.Backend)
}
