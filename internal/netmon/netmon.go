// Package netmon reports connectivity transitions to the sync engine.
//
// Connectivity is an externally observed fact, not something this
// package probes for. The Manual monitor is flipped by whatever signal
// the host environment provides (process signals, an admin endpoint, a
// future OS hook); the engine only consumes the Online/Events contract.
package netmon

import "sync"

// Monitor is the connectivity source consumed by the sync engine.
type Monitor interface {
	// Online reports the current connectivity belief.
	Online() bool

	// Events delivers each transition. Consecutive identical states
	// are collapsed; only real flips are sent.
	Events() <-chan bool

	// Close releases the monitor. Events is closed after this.
	Close()
}

// Manual is a Monitor driven by explicit Set calls.
type Manual struct {
	mu     sync.Mutex
	online bool
	events chan bool
	closed bool
}

// NewManual creates a monitor with the given initial state. The initial
// state is not delivered as an event.
func NewManual(online bool) *Manual {
	return &Manual{
		online: online,
		events: make(chan bool, 16),
	}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Manual) Events() <-chan bool {
	return m.events
}

// Set records a new connectivity state. Setting the current state is a
// no-op. If the event buffer is full the transition is dropped; the
// consumer can always recover the truth from Online.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.online == online {
		return
	}
	m.online = online
	select {
	case m.events <- online:
	default:
	}
}

func (m *Manual) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.events)
}
