package ice

import (
	"testing"
)

func newTestAgent(t *testing.T, role Role) *Agent {
	t.Helper()
	a, err := NewAgent("0", 1, Config{RoleHint: role, IncludeLoopback: true}, Callbacks{})
	if err != nil {
		t.Fatalf("NewAgent failed: %v", err)
	}
	return a
}

func TestNewAgentGeneratesWellFormedCredentials(t *testing.T) {
	a := newTestAgent(t, RoleAuto)

	if len(a.local.Ufrag) != ufragLength {
		t.Errorf("expected ufrag length %d, got %d", ufragLength, len(a.local.Ufrag))
	}
	if len(a.local.Password) != passwordLength {
		t.Errorf("expected password length %d, got %d", passwordLength, len(a.local.Password))
	}
}

func TestRoleHintSetsControllingFlag(t *testing.T) {
	controlling := newTestAgent(t, RoleControlling)
	if !controlling.controlling {
		t.Error("expected RoleControlling hint to set controlling=true")
	}

	controlled := newTestAgent(t, RoleControlled)
	if controlled.controlling {
		t.Error("expected RoleControlled hint to set controlling=false")
	}
}

func TestSetStateIsMonotonicAndIgnoresRegressionFromTerminal(t *testing.T) {
	var got []State
	a := newTestAgent(t, RoleAuto)
	a.cb.OnStateChange = func(s State) { got = append(got, s) }

	a.setState(StateGathering)
	a.setState(StateConnecting)
	a.setState(StateFailed)
	a.setState(StateConnected) // must not move out of terminal Failed

	want := []State{StateGathering, StateConnecting, StateFailed}
	if len(got) != len(want) {
		t.Fatalf("got %v transitions, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSetStateFiresCallbackExactlyOnceForFailed(t *testing.T) {
	calls := 0
	a := newTestAgent(t, RoleAuto)
	a.cb.OnStateChange = func(s State) {
		if s == StateFailed {
			calls++
		}
	}

	a.setState(StateFailed)
	a.setState(StateFailed)
	a.setState(StateConnecting)

	if calls != 1 {
		t.Errorf("expected on_state_change(Failed) to fire exactly once, got %d", calls)
	}
}
