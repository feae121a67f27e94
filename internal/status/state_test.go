package status

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/dmsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("directory", nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
	if m.Stream() != "directory" {
		t.Errorf("stream = %q, want directory", m.Stream())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Connecting},
		{Idle, Closed},
		{Connecting, Live},
		{Connecting, Degraded},
		{Live, Degraded},
		{Live, Closed},
		{Degraded, Connecting},
		{Closed, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("s", nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine("s", nil)
	if err := m.Transition(Live); err == nil {
		t.Error("Transition(IDLE -> LIVE) should fail")
	}
	if m.Current() != Idle {
		t.Errorf("state = %s, want IDLE (unchanged)", m.Current())
	}
}

func TestSameStateIsNoop(t *testing.T) {
	m := NewMachine("s", nil)
	walkTo(t, m, Live)
	if err := m.Transition(Live); err != nil {
		t.Errorf("Transition(LIVE -> LIVE) error = %v", err)
	}
}

// TestFailRecordsError verifies the degraded state keeps the cause so a
// failed load can be told apart from an empty result.
func TestFailRecordsError(t *testing.T) {
	m := NewMachine("conversations", nil)
	walkTo(t, m, Connecting)

	cause := errors.New("permission denied")
	if err := m.Fail(cause); err != nil {
		t.Fatal(err)
	}
	if m.Current() != Degraded {
		t.Errorf("state = %s, want DEGRADED", m.Current())
	}
	if !errors.Is(m.Err(), cause) {
		t.Errorf("Err() = %v, want %v", m.Err(), cause)
	}

	// Recovering clears the recorded error.
	_ = m.Transition(Connecting)
	_ = m.Transition(Live)
	if m.Err() != nil {
		t.Errorf("Err() after recovery = %v, want nil", m.Err())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("stream.", 10)
	defer unsub()

	m := NewMachine("messages", b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindStreamStatus {
			t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStreamStatus)
		}
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.Stream != "messages" || change.From != Idle || change.To != Connecting {
			t.Errorf("change = %+v, want messages IDLE -> CONNECTING", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}

// TestResubscribeCycle walks the loop a supervisor drives on stream failure:
// CONNECTING → LIVE → DEGRADED → CONNECTING → LIVE
func TestResubscribeCycle(t *testing.T) {
	m := NewMachine("s", nil)
	steps := []State{Connecting, Live, Degraded, Connecting, Live}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:       {},
		Connecting: {Connecting},
		Live:       {Connecting, Live},
		Degraded:   {Connecting, Degraded},
		Closed:     {Closed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
