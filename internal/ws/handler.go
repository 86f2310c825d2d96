package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/hub"
	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/pkg/types"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 1 << 20
)

type Options struct {
	OriginPatterns []string
	Log            *zap.Logger
}

// Handler upgrades to a websocket that can sit in any number of rooms.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := logging.OrNop(opts.Log)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(readLimit)

		c := &connection{
			id:     uuid.NewString(),
			hub:    h,
			out:    make(chan types.Envelope, outboxSize),
			joined: make(map[string]bool),
		}
		c.log = log.With(zap.String("conn", c.id))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		var once sync.Once
		c.drop = func() {
			once.Do(func() {
				c.log.Info("dropping slow connection")
				cancel()
			})
		}
		defer c.leaveAll()

		// Writer goroutine
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			c.writeLoop(ctx, conn, cancel)
		}()

		c.log.Debug("connected")
		c.readLoop(ctx, conn)
		cancel()
		<-writerDone
	}
}

type connection struct {
	id     string
	hub    *hub.Hub
	out    chan types.Envelope
	joined map[string]bool // reader-owned
	drop   func()
	log    *zap.Logger
}

func (c *connection) writeLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return

		case env := <-c.out:
			payload, _ := json.Marshal(env)
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				cancel()
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				cancel()
				return
			}
		}
	}
}

func (c *connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug("closed by client")
			default:
				if ctx.Err() == nil {
					c.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.reject("bad json")
			continue
		}
		c.handle(env)
	}
}

func (c *connection) handle(env types.Envelope) {
	switch env.Event {
	case types.EventJoinRoom:
		if !types.ValidRoom(env.Room) {
			c.reject("unknown room " + env.Room)
			return
		}
		if c.joined[env.Room] {
			return
		}
		c.joined[env.Room] = true
		c.hub.Send(hub.Join{Room: env.Room, ClientID: c.id, Outbox: c.out, Drop: c.drop})

	case types.EventLeaveRoom:
		if !c.joined[env.Room] {
			return
		}
		delete(c.joined, env.Room)
		c.hub.Send(hub.Leave{Room: env.Room, ClientID: c.id})

	case types.EventCodeChange:
		if !strings.HasPrefix(env.Room, types.ChallengeRoom("")) || !c.joined[env.Room] {
			c.reject("not in room " + env.Room)
			return
		}
		update := types.Envelope{Event: types.EventCodeUpdate, Room: env.Room, Payload: env.Payload}
		c.hub.Send(hub.Broadcast{Env: update, ExceptID: c.id})

	default:
		c.reject("unknown event " + env.Event)
	}
}

func (c *connection) leaveAll() {
	for name := range c.joined {
		c.hub.Send(hub.Leave{Room: name, ClientID: c.id})
	}
	clear(c.joined)
}

// reject reports a protocol error to this client only. It never blocks the reader.
func (c *connection) reject(msg string) {
	select {
	case c.out <- types.Envelope{Event: types.EventError, Error: msg}:
	default:
	}
}
