package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/pkg/types"
)

const (
	sendQueueSize = 64
	writeTimeout  = 3 * time.Second
	drainTimeout  = 2 * time.Second
	readLimit     = 1 << 20
)

// Client is the websocket implementation of Channel. It dials in the
// background and redials with exponential backoff whenever the socket drops;
// callers never see connection errors.
type Client struct {
	url     string
	header  http.Header
	log     *zap.Logger
	backoff func() backoff.BackOff

	handlers registry

	mu    sync.Mutex
	rooms roomSet
	sendq chan types.Envelope // nil while disconnected

	ctx       context.Context
	cancel    context.CancelFunc
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	onConnect func()
}

type ClientOption func(*Client)

func WithLogger(l *zap.Logger) ClientOption { return func(c *Client) { c.log = l } }

func WithHeader(h http.Header) ClientOption { return func(c *Client) { c.header = h } }

// WithOnConnect runs f each time a socket comes up, after rooms are re-announced.
func WithOnConnect(f func()) ClientOption { return func(c *Client) { c.onConnect = f } }

// WithBackoff replaces the reconnect policy.
func WithBackoff(f func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.backoff = f }
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // keep trying for the life of the process
	return b
}

// Dial starts the connection loop and returns immediately.
func Dial(parent context.Context, url string, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		url:     url,
		backoff: defaultBackoff,
		ctx:     ctx,
		cancel:  cancel,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrNop(c.log).With(zap.String("gateway", url))

	go c.loop()
	return c
}

func (c *Client) Join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms.join(room) {
		c.enqueueLocked(types.Envelope{Event: types.EventJoinRoom, Room: room})
	}
}

func (c *Client) Leave(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms.leave(room) {
		c.enqueueLocked(types.Envelope{Event: types.EventLeaveRoom, Room: room})
	}
}

func (c *Client) Emit(event, room string, payload any) {
	env, err := encode(event, room, payload)
	if err != nil {
		c.log.Warn("emit: encode payload", zap.String("event", event), zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(env)
}

func (c *Client) On(event string, h Handler) *Registration { return c.handlers.add(event, h) }

func (c *Client) Off(r *Registration) { c.handlers.remove(r) }

// Connected reports whether a socket is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendq != nil
}

// Close stops reconnecting and closes the socket. Frames already queued on a
// live socket are written first, bounded by drainTimeout. It waits for the
// loop to exit.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	if !c.Connected() {
		c.cancel()
	}
	select {
	case <-c.done:
	case <-time.After(drainTimeout):
	}
	c.cancel()
	<-c.done
	return nil
}

func (c *Client) stopping() bool {
	select {
	case <-c.closing:
		return true
	default:
		return c.ctx.Err() != nil
	}
}

// enqueueLocked drops the frame if there is no socket or the queue is full.
func (c *Client) enqueueLocked(env types.Envelope) {
	if c.sendq == nil {
		c.log.Debug("dropping frame while disconnected", zap.String("event", env.Event), zap.String("room", env.Room))
		return
	}
	select {
	case c.sendq <- env:
	default:
		c.log.Warn("send queue full, dropping frame", zap.String("event", env.Event))
	}
}

func (c *Client) loop() {
	defer close(c.done)
	bo := c.backoff()

	for !c.stopping() {
		conn, _, err := websocket.Dial(c.ctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
		if err != nil {
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				c.log.Error("giving up on gateway", zap.Error(err))
				return
			}
			c.log.Debug("dial failed, retrying", zap.Duration("in", wait), zap.Error(err))
			select {
			case <-c.ctx.Done():
				return
			case <-c.closing:
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		conn.SetReadLimit(readLimit)

		c.serve(conn)

		if c.stopping() {
			return
		}
		c.log.Info("gateway connection lost, reconnecting")
	}
}

// serve runs one socket until it fails. Rooms are re-announced first so
// membership survives a reconnect; frames missed meanwhile are gone.
func (c *Client) serve(conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	sendq := make(chan types.Envelope, sendQueueSize)
	c.mu.Lock()
	c.sendq = sendq
	for _, room := range c.rooms.rooms() {
		c.enqueueLocked(types.Envelope{Event: types.EventJoinRoom, Room: room})
	}
	hook := c.onConnect
	c.mu.Unlock()
	c.log.Info("gateway connected")
	if hook != nil {
		hook()
	}

	connCtx, connCancel := context.WithCancel(c.ctx)
	defer connCancel()

	// Writer goroutine
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-connCtx.Done():
				return
			case <-c.closing:
				c.drain(conn, sendq)
				// The close handshake ends the reader below.
				_ = conn.Close(websocket.StatusNormalClosure, "bye")
				return
			case env := <-sendq:
				if err := write(connCtx, conn, env); err != nil {
					connCancel()
					return
				}
			}
		}
	}()

	// Reader loop: this goroutine is the dispatch thread.
	for {
		_, data, err := conn.Read(connCtx)
		if err != nil {
			break
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("bad frame from gateway", zap.Error(err))
			continue
		}
		if env.Event == types.EventError {
			c.log.Warn("gateway error", zap.String("error", env.Error))
			continue
		}
		c.handlers.dispatch(env)
	}

	c.mu.Lock()
	c.sendq = nil
	c.mu.Unlock()
	connCancel()
	<-writerDone
}

// drain flushes whatever is still queued for an orderly close.
func (c *Client) drain(conn *websocket.Conn, sendq chan types.Envelope) {
	ctx, cancel := context.WithTimeout(c.ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case env := <-sendq:
			if err := write(ctx, conn, env); err != nil {
				c.log.Debug("drain: write failed", zap.Error(err))
				return
			}
		default:
			return
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, env types.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
