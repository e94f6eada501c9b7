package wsstore

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gekko3d/pixelplace/canvas/logx"
	"github.com/gekko3d/pixelplace/store"
	"github.com/gorilla/websocket"
)

// Server is an http.Handler that serves one backing store to websocket clients.
type Server struct {
	backing  store.Store
	log      logx.Logger
	upgrader websocket.Upgrader

	// OutboxSize bounds the messages queued for a slow client before it is dropped.
	OutboxSize int
	// MaxMessageSize bounds one incoming write, in bytes.
	MaxMessageSize int64

	mu    sync.Mutex
	conns map[*serverConn]struct{}
}

func NewServer(backing store.Store, logger logx.Logger, allowedOrigins ...string) *Server {
	s := &Server{
		backing:        backing,
		log:            logx.OrNop(logger),
		OutboxSize:     256,
		MaxMessageSize: DefaultMaxMessageSize,
		conns:          make(map[*serverConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
	}
	return s
}

type serverConn struct {
	srv    *Server
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	out    chan message
	subs   map[string]store.Subscription
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &serverConn{
		srv:    s,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan message, max(s.OutboxSize, 1)),
		subs:   make(map[string]store.Subscription),
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	n := len(s.conns)
	s.mu.Unlock()
	s.log.Infof("client %s connected (%d open)", r.RemoteAddr, n)

	go c.writeLoop()
	c.readLoop()

	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	cancel()
	ws.Close()

	s.mu.Lock()
	delete(s.conns, c)
	n = len(s.conns)
	s.mu.Unlock()
	s.log.Infof("client %s disconnected (%d open)", r.RemoteAddr, n)
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client. The backing store is left open.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.cancel()
		c.ws.Close()
	}
}

func (c *serverConn) readLoop() {
	limit := c.srv.MaxMessageSize
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	c.ws.SetReadLimit(limit)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var m message
		if err := c.ws.ReadJSON(&m); err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				c.srv.log.Errorf("client message exceeds %d bytes", limit)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.ctx.Err() == nil {
				c.srv.log.Warnf("read from client: %v", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(m)
	}
}

func (c *serverConn) handle(m message) {
	switch m.Type {
	case msgSubscribe:
		if _, dup := c.subs[m.ID]; dup || m.ID == "" {
			c.srv.log.Warnf("ignoring subscribe with id %q", m.ID)
			return
		}
		id, path := m.ID, m.Path
		sub, err := c.srv.backing.Subscribe(c.ctx, path, func(snap store.Snapshot) {
			c.enqueue(message{Type: msgSnapshot, ID: id, Path: path, Data: snap})
		})
		if err != nil {
			c.srv.log.Warnf("subscribe %q: %v", path, err)
			c.enqueue(message{Type: msgSnapshot, ID: id, Path: path, Error: err.Error()})
			return
		}
		c.subs[id] = sub

	case msgUnsubscribe:
		if sub, ok := c.subs[m.ID]; ok {
			sub.Unsubscribe()
			delete(c.subs, m.ID)
		}

	case msgWrite:
		ack := message{Type: msgAck, ID: m.ID}
		if err := c.srv.backing.BatchWrite(c.ctx, m.Path, m.Updates); err != nil {
			c.srv.log.Warnf("write %d keys to %q: %v", len(m.Updates), m.Path, err)
			ack.Error = err.Error()
		}
		c.enqueue(ack)

	default:
		c.srv.log.Warnf("unknown message type %q", m.Type)
	}
}

// enqueue never blocks: it runs inside store callbacks.
func (c *serverConn) enqueue(m message) {
	select {
	case c.out <- m:
	case <-c.ctx.Done():
	default:
		c.srv.log.Warnf("client outbox full, dropping connection")
		c.cancel()
		c.ws.Close()
	}
}

func (c *serverConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case m := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(m); err != nil {
				c.srv.log.Warnf("write to client: %v", err)
				c.cancel()
				c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				c.ws.Close()
				return
			}
		}
	}
}
