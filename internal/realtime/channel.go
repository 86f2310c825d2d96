// Package realtime is the shared publish/subscribe channel to the gateway.
//
// One connection per process is shared by every view; room membership is
// per component. Delivery is best-effort: frames emitted while disconnected
// are dropped, and events missed during a reconnect are not replayed.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/DoyleJ11/codearena/pkg/types"
)

// Handler receives one inbound event. Handlers run on the channel's single
// dispatch goroutine, in registration order, and must not block.
type Handler func(room string, payload json.RawMessage)

type Registration struct {
	event string
	h     Handler
}

type Channel interface {
	Join(room string)
	Leave(room string)
	Emit(event, room string, payload any)
	On(event string, h Handler) *Registration
	Off(r *Registration)
}

// registry keeps handlers per event in registration order.
type registry struct {
	mu      sync.Mutex
	byEvent map[string][]*Registration
}

func (r *registry) add(event string, h Handler) *Registration {
	reg := &Registration{event: event, h: h}
	r.mu.Lock()
	if r.byEvent == nil {
		r.byEvent = make(map[string][]*Registration)
	}
	r.byEvent[event] = append(r.byEvent[event], reg)
	r.mu.Unlock()
	return reg
}

func (r *registry) remove(reg *Registration) {
	if reg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byEvent[reg.event]
	for i, x := range list {
		if x == reg {
			r.byEvent[reg.event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.byEvent[reg.event]) == 0 {
		delete(r.byEvent, reg.event)
	}
}

func (r *registry) dispatch(env types.Envelope) {
	r.mu.Lock()
	list := append([]*Registration(nil), r.byEvent[env.Event]...)
	r.mu.Unlock()
	for _, reg := range list {
		reg.h(env.Room, env.Payload)
	}
}

func (r *registry) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEvent[event])
}

// roomSet counts joins per room so several components can share a room on
// one connection. It reports when the wire join/leave must actually be sent.
type roomSet struct {
	refs map[string]int
}

func (s *roomSet) join(room string) (first bool) {
	if s.refs == nil {
		s.refs = make(map[string]int)
	}
	s.refs[room]++
	return s.refs[room] == 1
}

func (s *roomSet) leave(room string) (last bool) {
	n, ok := s.refs[room]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(s.refs, room)
		return true
	}
	s.refs[room] = n - 1
	return false
}

func (s *roomSet) rooms() []string {
	out := make([]string, 0, len(s.refs))
	for room := range s.refs {
		out = append(out, room)
	}
	return out
}

func encode(event, room string, payload any) (types.Envelope, error) {
	env := types.Envelope{Event: event, Room: room}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Payload = raw
	return env, nil
}
