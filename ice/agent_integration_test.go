package ice

import (
	"testing"
	"time"
)

// waitFor polls cond every 5ms until it returns true or timeout elapses,
// failing the test on timeout.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestLoopbackHandshakeAndData drives two real Agents end to end over
// loopback sockets (spec scenario S1): gather, exchange descriptions,
// reach Completed on both sides, and move one application-data message.
func TestLoopbackHandshakeAndData(t *testing.T) {
	var received []byte
	recvCh := make(chan []byte, 1)

	controlling, err := NewAgent("0", 1, Config{
		BindAddress: "127.0.0.1",
		RoleHint:    RoleControlling,
	}, Callbacks{})
	if err != nil {
		t.Fatalf("NewAgent(controlling) failed: %v", err)
	}
	defer controlling.Close()

	controlled, err := NewAgent("0", 1, Config{
		BindAddress: "127.0.0.1",
		RoleHint:    RoleControlled,
	}, Callbacks{
		OnRecv: func(data []byte) {
			recvCh <- append([]byte(nil), data...)
		},
	})
	if err != nil {
		t.Fatalf("NewAgent(controlled) failed: %v", err)
	}
	defer controlled.Close()

	if err := controlling.Gather(); err != nil {
		t.Fatalf("controlling.Gather failed: %v", err)
	}
	if err := controlled.Gather(); err != nil {
		t.Fatalf("controlled.Gather failed: %v", err)
	}

	waitFor(t, time.Second, "controlling gathering done", func() bool {
		controlling.mu.Lock()
		defer controlling.mu.Unlock()
		return controlling.local.Done
	})
	waitFor(t, time.Second, "controlled gathering done", func() bool {
		controlled.mu.Lock()
		defer controlled.mu.Unlock()
		return controlled.local.Done
	})

	controllingDesc, err := controlling.LocalDescription()
	if err != nil {
		t.Fatalf("controlling.LocalDescription failed: %v", err)
	}
	controlledDesc, err := controlled.LocalDescription()
	if err != nil {
		t.Fatalf("controlled.LocalDescription failed: %v", err)
	}

	if err := controlled.AddRemoteDescription(controllingDesc); err != nil {
		t.Fatalf("controlled.AddRemoteDescription failed: %v", err)
	}
	if err := controlling.AddRemoteDescription(controlledDesc); err != nil {
		t.Fatalf("controlling.AddRemoteDescription failed: %v", err)
	}

	waitFor(t, 5*time.Second, "controlling agent to reach Completed", func() bool {
		return controlling.State() == StateCompleted
	})
	waitFor(t, 5*time.Second, "controlled agent to reach Completed", func() bool {
		return controlled.State() == StateCompleted
	})

	if err := controlling.Send([]byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case received = <-recvCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for application data to arrive")
	}
	if string(received) != "hello" {
		t.Errorf("got %q, want %q", received, "hello")
	}
}

// TestFailDeadlineMovesAgentToFailed drives bookkeep directly with a
// fail-deadline already in the past and no succeeded pair (spec scenario
// S5, fast-forwarded instead of sleeping the real 30s timeout).
func TestFailDeadlineMovesAgentToFailed(t *testing.T) {
	a := newTestAgent(t, RoleControlling)

	var got State
	a.cb.OnStateChange = func(s State) { got = s }

	a.mu.Lock()
	a.failDeadline = time.Now().Add(-time.Second)
	a.mu.Unlock()

	a.bookkeep()

	if got != StateFailed {
		t.Fatalf("expected bookkeep to fire StateFailed, got %v", got)
	}
	if a.State() != StateFailed {
		t.Fatalf("expected agent state to be Failed, got %v", a.State())
	}
}
