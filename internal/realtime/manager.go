package realtime

import (
	"io"
	"sync"
)

// Transport is a Channel owning a connection that can be shut down.
type Transport interface {
	Channel
	io.Closer
}

// Manager hands out the process-wide channel. The transport is opened on the
// first Acquire and only closed by Manager.Close; Release just drops a
// reference, so one view leaving never disconnects the others.
type Manager struct {
	mu   sync.Mutex
	open func() Transport
	t    Transport
	refs int
}

func NewManager(open func() Transport) *Manager {
	return &Manager{open: open}
}

// Acquire returns the shared channel, opening it on first use.
func (m *Manager) Acquire() Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t == nil {
		m.t = m.open()
	}
	m.refs++
	return m.t
}

func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs > 0 {
		m.refs--
	}
}

func (m *Manager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Close tears down the transport at process exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	t := m.t
	m.t = nil
	m.refs = 0
	m.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}
