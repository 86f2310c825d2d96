package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/internal/room"
	"github.com/DoyleJ11/codearena/pkg/types"
)

type HubMsg interface{ isHubMsg() }

type Join struct {
	Room     string
	ClientID string
	Outbox   chan<- types.Envelope
	Drop     func()
}

type Leave struct {
	Room     string
	ClientID string
}

// Broadcast delivers Env to its room on this instance. Remote marks frames that
// arrived from the relay so they are not published back out.
type Broadcast struct {
	Env      types.Envelope
	ExceptID string
	Remote   bool
}

type GetRoom struct {
	Name  string
	Reply chan *room.Room
}

type GetState struct {
	Reply chan View
}

type View struct {
	Rooms   int
	Members map[string]int
}

type ShutdownHub struct{}

func (Join) isHubMsg()        {}
func (Leave) isHubMsg()       {}
func (Broadcast) isHubMsg()   {}
func (GetRoom) isHubMsg()     {}
func (GetState) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

// Relay carries broadcasts to the other gateway instances.
type Relay interface {
	Publish(ctx context.Context, env types.Envelope) error
}

type Option func(*Hub)

func WithRelay(r Relay) Option { return func(h *Hub) { h.relay = r } }

func WithLogger(l *zap.Logger) Option { return func(h *Hub) { h.log = l } }

// Hub owns the room registry. Rooms are created on first join and shut down
// when their last member leaves.
type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	members map[string]map[string]struct{}
	relay   Relay
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		members: make(map[string]map[string]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(h)
	}
	h.log = logging.OrNop(h.log)
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Send is Inbox for callers that may outlive the hub.
func (h *Hub) Send(m HubMsg) bool {
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				rm := h.ensure(msg.Room)
				h.members[msg.Room][msg.ClientID] = struct{}{}
				rm.Inbox() <- room.Join{ClientID: msg.ClientID, Outbox: msg.Outbox, Drop: msg.Drop}

			case Leave:
				rm := h.rooms[msg.Room]
				if rm == nil {
					break
				}
				rm.Inbox() <- room.Leave{ClientID: msg.ClientID}
				delete(h.members[msg.Room], msg.ClientID)
				if len(h.members[msg.Room]) == 0 {
					rm.Inbox() <- room.Shutdown{}
					delete(h.rooms, msg.Room)
					delete(h.members, msg.Room)
					h.log.Debug("room closed", zap.String("room", msg.Room))
				}

			case Broadcast:
				if !msg.Remote && h.relay != nil {
					go h.publish(msg.Env)
				}
				if rm := h.rooms[msg.Env.Room]; rm != nil {
					rm.Inbox() <- room.Broadcast{Env: msg.Env, ExceptID: msg.ExceptID}
				}

			case GetRoom:
				msg.Reply <- h.rooms[msg.Name] // May be nil

			case GetState:
				v := View{Rooms: len(h.rooms), Members: make(map[string]int, len(h.members))}
				for name, ids := range h.members {
					v.Members[name] = len(ids)
				}
				msg.Reply <- v

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(name string) *room.Room {
	if rm := h.rooms[name]; rm != nil {
		return rm
	}
	rm := room.New(h.ctx, name)
	h.rooms[name] = rm
	h.members[name] = make(map[string]struct{})
	h.log.Debug("room opened", zap.String("room", name))
	return rm
}

func (h *Hub) publish(env types.Envelope) {
	if err := h.relay.Publish(h.ctx, env); err != nil {
		h.log.Warn("relay publish failed", zap.String("room", env.Room), zap.Error(err))
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Inbox() <- room.Shutdown{}
	}
	clear(h.rooms)
	clear(h.members)
	h.cancel()
}
