package ice

import "testing"

func TestPairPriorityFormula(t *testing.T) {
	local := Candidate{priority: 2130706431}
	remote := Candidate{priority: 1845494271}

	p := &CandidatePair{local: local, remote: remote}
	p.computePriority(true) // we are controlling, so local is G

	g, d := uint64(local.priority), uint64(remote.priority)
	min, max := d, g
	if g < d {
		min, max = g, d
	}
	want := (uint64(1)<<32)*min + 2*max + 1

	if p.priority != want {
		t.Errorf("got priority %d, want %d", p.priority, want)
	}
}

func TestPairPriorityControlledSwapsRoles(t *testing.T) {
	local := Candidate{priority: 100}
	remote := Candidate{priority: 200}

	controlling := &CandidatePair{local: local, remote: remote}
	controlling.computePriority(true)

	controlled := &CandidatePair{local: local, remote: remote}
	controlled.computePriority(false)

	if controlling.priority == controlled.priority {
		t.Errorf("expected different priorities depending on role, both were %d", controlling.priority)
	}
}

func TestPairStateString(t *testing.T) {
	cases := map[CandidatePairState]string{
		PairFrozen:     "Frozen",
		PairWaiting:    "Waiting",
		PairInProgress: "InProgress",
		PairSucceeded:  "Succeeded",
		PairFailed:     "Failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("state %d: got %q, want %q", state, got, want)
		}
	}
}
