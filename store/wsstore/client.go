package wsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gekko3d/pixelplace/canvas/logx"
	"github.com/gekko3d/pixelplace/store"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrDisconnected = errors.New("wsstore: not connected")

type ClientOptions struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxMessageSize bounds one incoming snapshot, in bytes.
	MaxMessageSize int64
	Dialer         *websocket.Dialer
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		MinBackoff:     time.Second,
		MaxBackoff:     60 * time.Second,
		MaxMessageSize: DefaultMaxMessageSize,
		Dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  45 * time.Second,
			EnableCompression: true,
		},
	}
}

// Client is a store.Store backed by a relay Server. It reconnects with exponential
// backoff and re-subscribes every live subscription after a reconnect.
type Client struct {
	url  string
	log  logx.Logger
	opts ClientOptions

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex

	mu   sync.Mutex
	conn *websocket.Conn
	subs map[string]*clientSub
	acks map[string]chan error
}

var _ store.Store = (*Client)(nil)

type clientSub struct {
	c    *Client
	id   string
	path string
	fn   func(store.Snapshot)
	once sync.Once
	stop func() bool
}

func (s *clientSub) Unsubscribe() {
	s.once.Do(s.cancel)
	if s.stop != nil {
		s.stop()
	}
}

func (s *clientSub) cancel() {
	s.c.mu.Lock()
	delete(s.c.subs, s.id)
	s.c.mu.Unlock()
	if err := s.c.send(message{Type: msgUnsubscribe, ID: s.id}); err != nil {
		s.c.log.Debugf("unsubscribe %s: %v", s.id, err)
	}
}

// Dial connects to the relay at url. The first connection must succeed; later
// disconnects are retried in the background until Close.
func Dial(ctx context.Context, url string, logger logx.Logger) (*Client, error) {
	return DialWithOptions(ctx, url, logger, DefaultClientOptions())
}

func DialWithOptions(ctx context.Context, url string, logger logx.Logger, opts ClientOptions) (*Client, error) {
	def := DefaultClientOptions()
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = def.MinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(def.MaxBackoff, opts.MinBackoff)
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if opts.Dialer == nil {
		opts.Dialer = def.Dialer
	}

	conn, _, err := opts.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(opts.MaxMessageSize)

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:    url,
		log:    logx.OrNop(logger),
		opts:   opts,
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
		conn:   conn,
		subs:   make(map[string]*clientSub),
		acks:   make(map[string]chan error),
	}
	go c.run(conn)
	return c, nil
}

func (c *Client) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (store.Subscription, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	if c.ctx.Err() != nil {
		return nil, store.ErrClosed
	}
	sub := &clientSub{c: c, id: uuid.NewString(), path: path, fn: fn}
	c.mu.Lock()
	c.subs[sub.id] = sub
	c.mu.Unlock()

	// a failed send is retried by the resubscribe after reconnecting
	if err := c.send(message{Type: msgSubscribe, ID: sub.id, Path: path}); err != nil {
		c.log.Warnf("subscribe %q: %v", path, err)
	}
	if ctx != nil && ctx.Done() != nil {
		sub.stop = context.AfterFunc(ctx, func() { sub.once.Do(sub.cancel) })
	}
	return sub, nil
}

func (c *Client) BatchWrite(ctx context.Context, path string, updates map[string]json.RawMessage) error {
	if err := store.CheckWrite(path, updates); err != nil {
		return err
	}
	id := uuid.NewString()
	ch := make(chan error, 1)
	c.mu.Lock()
	c.acks[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.acks, id)
		c.mu.Unlock()
	}()

	if err := c.send(message{Type: msgWrite, ID: id, Path: path, Updates: updates}); err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return store.ErrClosed
	}
}

func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	<-c.done
	return nil
}

func (c *Client) send(m message) error {
	if c.ctx.Err() != nil {
		return store.ErrClosed
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}

func (c *Client) run(conn *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.readLoop(conn)
		c.mu.Lock()
		c.conn = nil
		for id, ch := range c.acks {
			ch <- fmt.Errorf("%w: %v", ErrDisconnected, err)
			delete(c.acks, id)
		}
		c.mu.Unlock()
		conn.Close()

		if c.ctx.Err() != nil {
			return
		}
		if errors.Is(err, websocket.ErrReadLimit) {
			c.log.Errorf("message from %s exceeds %d bytes, raise MaxMessageSize", c.url, c.opts.MaxMessageSize)
		} else {
			c.log.Warnf("connection to %s lost: %v", c.url, err)
		}
		if conn = c.reconnect(); conn == nil {
			return
		}
	}
}

func (c *Client) reconnect() *websocket.Conn {
	backoff := c.opts.MinBackoff
	for {
		conn, _, err := c.opts.Dialer.DialContext(c.ctx, c.url, nil)
		if err == nil {
			conn.SetReadLimit(c.opts.MaxMessageSize)
			c.mu.Lock()
			c.conn = conn
			subs := make([]*clientSub, 0, len(c.subs))
			for _, s := range c.subs {
				subs = append(subs, s)
			}
			c.mu.Unlock()
			c.log.Infof("reconnected to %s, resubscribing %d paths", c.url, len(subs))
			for _, s := range subs {
				if err := c.send(message{Type: msgSubscribe, ID: s.id, Path: s.path}); err != nil {
					c.log.Warnf("resubscribe %q: %v", s.path, err)
				}
			}
			return conn
		}
		if c.ctx.Err() != nil {
			return nil
		}
		c.log.Warnf("dial %s: %v, retrying in %v", c.url, err, backoff)
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			return err
		}
		switch m.Type {
		case msgSnapshot:
			c.mu.Lock()
			sub := c.subs[m.ID]
			c.mu.Unlock()
			if sub == nil {
				continue
			}
			if m.Error != "" {
				c.log.Errorf("subscription to %q rejected: %s", m.Path, m.Error)
				continue
			}
			if m.Data == nil {
				m.Data = store.Snapshot{}
			}
			sub.fn(m.Data)
		case msgAck:
			c.mu.Lock()
			ch := c.acks[m.ID]
			delete(c.acks, m.ID)
			c.mu.Unlock()
			if ch == nil {
				continue
			}
			if m.Error != "" {
				ch <- errors.New(m.Error)
			} else {
				ch <- nil
			}
		default:
			c.log.Debugf("ignoring message type %q", m.Type)
		}
	}
}
