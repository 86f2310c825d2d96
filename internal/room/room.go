package room

import (
	"context"

	"github.com/DoyleJ11/codearena/pkg/types"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Outbox   chan<- types.Envelope // shared by every room the connection is in
	Drop     func()                // called when the member is too slow to keep up
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

// Broadcast fans an envelope out to every member except ExceptID.
type Broadcast struct {
	Env      types.Envelope
	ExceptID string
}

func (Broadcast) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Name       string
	NumClients int
	Sent       int
}

type member struct {
	outbox chan<- types.Envelope
	drop   func()
}

type Room struct {
	name    string
	inbox   chan Msg
	members map[string]member
	sent    int
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(parent context.Context, name string) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		name:    name,
		inbox:   make(chan Msg, 64),
		members: make(map[string]member),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.members[msg.ClientID] = member{outbox: msg.Outbox, drop: msg.Drop}

			case Leave:
				delete(r.members, msg.ClientID)

			case Broadcast:
				r.sent++
				r.broadcast(msg.Env, msg.ExceptID)

			case GetState:
				msg.Reply <- View{Name: r.name, NumClients: len(r.members), Sent: r.sent}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	clear(r.members)
	r.cancel()
}

// broadcast never blocks: a member whose outbox is full is removed and its
// connection dropped. The client rejoins after it reconnects.
func (r *Room) broadcast(env types.Envelope, except string) {
	for id, m := range r.members {
		if id == except {
			continue
		}
		select {
		case m.outbox <- env:
		default:
			delete(r.members, id)
			if m.drop != nil {
				m.drop()
			}
		}
	}
}

func (r *Room) Name() string { return r.name }

// Inbox exposes the room's mailbox to the hub and tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }
