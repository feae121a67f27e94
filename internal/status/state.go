package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/dmsync/internal/bus"
)

// State is the health of one live subscription.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Live       State = "LIVE"
	Degraded   State = "DEGRADED"
	Closed     State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:       {Connecting, Closed},
	Connecting: {Live, Degraded, Closed},
	Live:       {Degraded, Closed},
	Degraded:   {Connecting, Closed},
	Closed:     {Connecting},
}

// Machine tracks and enforces the state of a single named stream.
type Machine struct {
	mu      sync.RWMutex
	stream  string
	current State
	lastErr error
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine for stream, starting Idle.
func NewMachine(stream string, b *bus.Bus) *Machine {
	return &Machine{
		stream:  stream,
		current: Idle,
		since:   time.Now(),
		bus:     b,
	}
}

// Stream returns the stream name the machine tracks.
func (m *Machine) Stream() string {
	return m.stream
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Err returns the error that caused the last Degraded transition, if any.
func (m *Machine) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Moving to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	return m.transition(to, nil)
}

// Fail moves the stream to Degraded and records err.
func (m *Machine) Fail(err error) error {
	return m.transition(Degraded, err)
}

func (m *Machine) transition(to State, cause error) error {
	m.mu.Lock()
	if m.current == to {
		if cause != nil {
			m.lastErr = cause
		}
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("stream %s: invalid transition from %s to %s", m.stream, from, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if to == Live || to == Connecting {
		m.lastErr = nil
	}
	if cause != nil {
		m.lastErr = cause
	}
	change := StatusChange{Stream: m.stream, From: from, To: to}
	if m.lastErr != nil {
		change.Err = m.lastErr.Error()
	}
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStreamStatus,
			Timestamp: time.Now(),
			Payload:   change,
		})
	}
	return nil
}

// StatusChange is the payload for stream status events.
type StatusChange struct {
	Stream string
	From   State
	To     State
	Err    string
}
