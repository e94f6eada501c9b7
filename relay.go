package pixelplace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gekko3d/pixelplace/store"
	"github.com/gekko3d/pixelplace/store/wsstore"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

const relayShutdownTimeout = 5 * time.Second

// Relay serves one backing store to websocket clients at /ws.
type Relay struct {
	WS      *wsstore.Server
	Handler http.Handler
	log     Logger
}

func NewRelay(backing store.Store, c RelayConfig, logger Logger) *Relay {
	ws := wsstore.NewServer(backing, logger, c.AllowedOrigins...)
	if c.MaxMessageSize > 0 {
		ws.MaxMessageSize = c.MaxMessageSize
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok %d\n", ws.Connections())
	})

	origins := c.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(mux)

	return &Relay{WS: ws, Handler: handler, log: logger}
}

// Serve runs the relay on ln until ctx is cancelled or the server fails.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.log.Infof("relay listening on %s", ln.Addr())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		r.WS.Close()
		sctx, cancel := context.WithTimeout(context.Background(), relayShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("relay shutdown: %w", err)
		}
		r.log.Infof("relay stopped")
		return nil
	})
	return g.Wait()
}
