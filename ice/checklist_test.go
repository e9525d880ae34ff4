package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func localCand(ip string, port int) Candidate {
	c := makeHostCandidate("0", 1, TransportAddress{protocol: "udp", ip: net.ParseIP(ip), port: port})
	return c
}

func remoteCand(ip string, port int) Candidate {
	c := Candidate{
		mid: "0", component: 1, typ: CandidateTypeHost,
		addr: TransportAddress{protocol: "udp", ip: net.ParseIP(ip), port: port},
	}
	c.base = c.addr
	c.computeFoundation()
	c.computePriority()
	return c
}

func TestAddCandidatePairsDedup(t *testing.T) {
	var cl Checklist
	l := localCand("192.168.1.5", 1000)
	r := remoteCand("192.168.1.9", 2000)

	added := cl.addCandidatePairs([]Candidate{l}, []Candidate{r})
	if len(added) != 1 {
		t.Fatalf("expected 1 pair added, got %d", len(added))
	}

	again := cl.addCandidatePairs([]Candidate{l}, []Candidate{r})
	if len(again) != 0 {
		t.Errorf("expected duplicate pair to be skipped, got %d new pairs", len(again))
	}
	if len(cl.pairs) != 1 {
		t.Errorf("expected exactly 1 pair in table, got %d", len(cl.pairs))
	}
}

func TestUnfreezeFirstOfFoundationBecomesWaiting(t *testing.T) {
	var cl Checklist
	l1 := localCand("192.168.1.5", 1000)
	l2 := localCand("192.168.1.5", 1001) // same base IP, different port: still same foundation key (base IP+proto)
	r := remoteCand("192.168.1.9", 2000)

	cl.addCandidatePairs([]Candidate{l1, l2}, []Candidate{r})

	waiting, frozen := 0, 0
	for _, p := range cl.pairs {
		switch p.state {
		case PairWaiting:
			waiting++
		case PairFrozen:
			frozen++
		}
	}

	assert.Equal(t, 1, waiting, "exactly one pair per foundation group should unfreeze")
}

func TestSortAndPruneOrdering(t *testing.T) {
	var cl Checklist
	l := localCand("192.168.1.5", 1000)
	r1 := remoteCand("192.168.1.9", 2000)
	r2 := remoteCand("198.51.100.9", 3000)

	cl.addCandidatePairs([]Candidate{l}, []Candidate{r1, r2})

	for i := 1; i < len(cl.orderedPairs); i++ {
		if cl.orderedPairs[i-1].priority < cl.orderedPairs[i].priority {
			t.Errorf("ordered pairs not non-increasing at index %d", i)
		}
	}
}

func TestTriggerCheckMovesPairToWaitingAndQueues(t *testing.T) {
	var cl Checklist
	l := localCand("192.168.1.5", 1000)
	r := remoteCand("192.168.1.9", 2000)
	added := cl.addCandidatePairs([]Candidate{l}, []Candidate{r})
	p := added[0]
	p.state = PairFailed

	cl.triggerCheck(p)

	if p.state != PairWaiting {
		t.Errorf("expected triggered pair to move to Waiting, got %v", p.state)
	}
	if len(cl.triggered) != 1 || cl.triggered[0] != p {
		t.Errorf("expected pair to be queued in triggered list")
	}
}

func TestNextPairPrefersWaitingInPriorityOrder(t *testing.T) {
	var cl Checklist
	l := localCand("192.168.1.5", 1000)
	r1 := remoteCand("192.168.1.9", 2000)
	r2 := remoteCand("198.51.100.9", 3000)
	cl.addCandidatePairs([]Candidate{l}, []Candidate{r1, r2})
	for _, p := range cl.pairs {
		p.state = PairWaiting
	}

	next := cl.nextPair(time.Now())
	if next == nil {
		t.Fatal("expected a pair to be returned")
	}
	if next != cl.orderedPairs[0] {
		t.Errorf("expected the highest priority waiting pair to be picked first")
	}
}
