package realtime

import (
	"encoding/json"
	"sync"

	"github.com/DoyleJ11/codearena/pkg/types"
)

// Bus is an in-process stand-in for the gateway. Each BusChannel behaves like
// one process's websocket Client: code-change is relayed as code-update to
// the other members of the room, and the server side can push
// leaderboard-update. Used by tests and by single-process demos.
type Bus struct {
	mu      sync.Mutex
	members map[string]map[*BusChannel]struct{}
}

func NewBus() *Bus {
	return &Bus{members: make(map[string]map[*BusChannel]struct{})}
}

// Connect opens a new channel on the bus.
func (b *Bus) Connect() *BusChannel {
	ch := &BusChannel{
		bus:    b,
		in:     make(chan types.Envelope, 256),
		online: true,
		done:   make(chan struct{}),
	}
	go ch.dispatchLoop()
	return ch
}

// Members returns how many channels are in a room.
func (b *Bus) Members(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.members[room])
}

// PushLeaderboardUpdate is what the gateway does after a scored submission.
func (b *Bus) PushLeaderboardUpdate(scope string) {
	room := types.LeaderboardRoom(scope)
	env, _ := encode(types.EventLeaderboardUpdate, room, types.LeaderboardUpdate{Scope: scope})
	b.deliver(room, nil, env)
}

// Broadcast sends an arbitrary envelope to every member of a room.
func (b *Bus) Broadcast(env types.Envelope) {
	b.deliver(env.Room, nil, env)
}

func (b *Bus) add(room string, ch *BusChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.members[room] == nil {
		b.members[room] = make(map[*BusChannel]struct{})
	}
	b.members[room][ch] = struct{}{}
}

func (b *Bus) remove(room string, ch *BusChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members[room], ch)
	if len(b.members[room]) == 0 {
		delete(b.members, room)
	}
}

func (b *Bus) deliver(room string, from *BusChannel, env types.Envelope) {
	b.mu.Lock()
	targets := make([]*BusChannel, 0, len(b.members[room]))
	for ch := range b.members[room] {
		if ch != from {
			targets = append(targets, ch)
		}
	}
	b.mu.Unlock()
	for _, ch := range targets {
		ch.receive(env)
	}
}

type BusChannel struct {
	bus      *Bus
	handlers registry
	in       chan types.Envelope
	done     chan struct{}
	once     sync.Once

	mu     sync.Mutex
	rooms  roomSet
	online bool
}

func (c *BusChannel) Join(room string) {
	c.mu.Lock()
	first := c.rooms.join(room)
	online := c.online
	c.mu.Unlock()
	if first && online {
		c.bus.add(room, c)
	}
}

func (c *BusChannel) Leave(room string) {
	c.mu.Lock()
	last := c.rooms.leave(room)
	online := c.online
	c.mu.Unlock()
	if last && online {
		c.bus.remove(room, c)
	}
}

func (c *BusChannel) Emit(event, room string, payload any) {
	c.mu.Lock()
	online := c.online
	c.mu.Unlock()
	if !online || event != types.EventCodeChange {
		return
	}
	env, err := encode(types.EventCodeUpdate, room, payload)
	if err != nil {
		return
	}
	c.bus.deliver(room, c, env)
}

func (c *BusChannel) On(event string, h Handler) *Registration { return c.handlers.add(event, h) }

func (c *BusChannel) Off(r *Registration) { c.handlers.remove(r) }

// Handlers counts registrations for an event.
func (c *BusChannel) Handlers(event string) int { return c.handlers.count(event) }

// Disconnect simulates a dropped socket: the gateway forgets this channel's
// rooms, and emits and deliveries are lost until Reconnect.
func (c *BusChannel) Disconnect() {
	c.mu.Lock()
	c.online = false
	rooms := c.rooms.rooms()
	c.mu.Unlock()
	for _, room := range rooms {
		c.bus.remove(room, c)
	}
}

// Reconnect re-announces every room still held, like Client does after a redial.
func (c *BusChannel) Reconnect() {
	c.mu.Lock()
	c.online = true
	rooms := c.rooms.rooms()
	c.mu.Unlock()
	for _, room := range rooms {
		c.bus.add(room, c)
	}
}

func (c *BusChannel) Close() error {
	c.Disconnect()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *BusChannel) receive(env types.Envelope) {
	c.mu.Lock()
	online := c.online
	c.mu.Unlock()
	if !online {
		return
	}
	select {
	case c.in <- env:
	case <-c.done:
	default:
		// Slow consumer: drop, as the gateway would.
	}
}

func (c *BusChannel) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.in:
			c.handlers.dispatch(env)
		}
	}
}

// DecodeDelta is a convenience for handlers of code-update.
func DecodeDelta(payload json.RawMessage) (types.CodeDelta, error) {
	var d types.CodeDelta
	err := json.Unmarshal(payload, &d)
	return d, err
}
