package status

import (
	"testing"

	"github.com/qiaoborui/telegram-search-bot/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Ready},
		{Booting, Degraded},
		{Booting, Error},
		{Ready, Degraded},
		{Ready, Stopping},
		{Degraded, Ready},
		{Degraded, Stopping},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
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
	m := NewMachine(nil)
	if err := m.Transition(Stopping); err == nil {
		t.Error("Transition(BOOTING -> STOPPING) should fail")
	}
}

func TestStoppingIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)
	if err := m.Transition(Stopping); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition out of STOPPING should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Ready); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != "daemon.state_changed" {
		t.Errorf("event kind = %q, want daemon.state_changed", evt.Kind)
	}
	change, ok := evt.Payload.(StateChange)
	if !ok {
		t.Fatalf("payload type = %T, want StateChange", evt.Payload)
	}
	if change.From != Booting || change.To != Ready {
		t.Errorf("change = %v -> %v, want BOOTING -> READY", change.From, change.To)
	}
}

// TestDegradedRecovery simulates a boot with Redis down followed by a
// recovery: BOOTING → DEGRADED → READY.
func TestDegradedRecovery(t *testing.T) {
	m := NewMachine(nil)
	steps := []State{Degraded, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:  {},
		Ready:    {Ready},
		Degraded: {Degraded},
		Stopping: {Ready, Stopping},
		Error:    {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
