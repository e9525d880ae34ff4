package ice

import (
	"sort"
	"sync/atomic"
	"time"
)

// Checklist is the candidate-pair table for one data stream: RFC 8445's
// "checklist", together with the ordered-priority view and triggered-check
// queue the scheduler consumes. It holds no lock of its own: the worker
// goroutine reads it every tick while AddRemoteDescription/addLocalCandidate
// can mutate it from a caller's goroutine, so every method here must be
// called with a.mu held.
type Checklist struct {
	pairs        []*CandidatePair
	orderedPairs []*CandidatePair // priority-sorted view, recomputed on mutation
	triggered    []*CandidatePair

	controlling bool
}

func (cl *Checklist) findPair(local, remote TransportAddress) *CandidatePair {
	for _, p := range cl.pairs {
		if p.local.base.equal(local) && p.remote.addr.equal(remote) {
			return p
		}
	}
	return nil
}

// addCandidatePairs forms a pair for every (local, remote) combination not
// already present, per RFC 8445 §6.1.2's candidate pair formation rules.
func (cl *Checklist) addCandidatePairs(locals, remotes []Candidate) []*CandidatePair {
	var added []*CandidatePair
	for _, l := range locals {
		for _, r := range remotes {
			if cl.findPair(l.base, r.addr) != nil {
				continue
			}
			if len(cl.pairs) >= maxCandidatePairsCount {
				continue
			}
			p := &CandidatePair{local: l, remote: r, state: PairFrozen}
			p.computePriority(cl.controlling)
			cl.pairs = append(cl.pairs, p)
			added = append(added, p)
		}
	}
	if len(added) > 0 {
		cl.unfreeze()
		cl.sortAndPrune()
	}
	return added
}

// unfreeze implements RFC 8445 §6.1.2.6's rule: a Frozen pair
// whose foundation has no InProgress or Waiting peer becomes eligible.
func (cl *Checklist) unfreeze() {
	active := map[string]bool{}
	for _, p := range cl.pairs {
		if p.state == PairInProgress || p.state == PairWaiting {
			active[p.local.foundation+"|"+p.remote.foundation] = true
		}
	}
	for _, p := range cl.pairs {
		if p.state != PairFrozen {
			continue
		}
		key := p.local.foundation + "|" + p.remote.foundation
		if !active[key] {
			p.state = PairWaiting
			active[key] = true
		}
	}
}

// sortAndPrune recomputes the priority-ordered index (RFC 8445 sections
// 6.1.2.3-6.1.2.4). Non-increasing priority along the index is invariant 2.
func (cl *Checklist) sortAndPrune() {
	cl.orderedPairs = append(cl.orderedPairs[:0], cl.pairs...)
	sort.SliceStable(cl.orderedPairs, func(i, j int) bool {
		return cl.orderedPairs[i].priority > cl.orderedPairs[j].priority
	})
}

// triggerCheck queues an immediate check for p, per RFC 8445 §7.3.1.4
// "Triggered-check creation".
func (cl *Checklist) triggerCheck(p *CandidatePair) {
	if p.state == PairSucceeded {
		return
	}
	p.state = PairWaiting
	cl.triggered = append(cl.triggered, p)
	if p.entry != nil {
		p.entry.arm(0)
	}
}

// nextPair picks the highest-priority eligible pair to send a check on,
// per RFC 8445 §7.2.4's ordering: armed entries, then triggered checks,
// then Waiting pairs in descending priority, then InProgress pairs due
// for retransmission.
func (cl *Checklist) nextPair(now time.Time) *CandidatePair {
	for _, p := range cl.pairs {
		if p.entry != nil && atomic.LoadInt32(&p.entry.armed) == 1 && !p.entry.finished {
			return p
		}
	}

	for len(cl.triggered) > 0 {
		p := cl.triggered[0]
		cl.triggered = cl.triggered[1:]
		if p.state == PairWaiting || p.state == PairFrozen {
			return p
		}
	}

	for _, p := range cl.orderedPairs {
		if p.state == PairWaiting {
			return p
		}
	}

	for _, p := range cl.orderedPairs {
		if p.state == PairInProgress && p.entry != nil && !p.entry.finished &&
			!p.entry.nextTransmission.After(now) {
			return p
		}
	}

	return nil
}

// selectedPair returns the nominated, Succeeded pair with highest priority,
// if any.
func (cl *Checklist) selectedPair() *CandidatePair {
	for _, p := range cl.orderedPairs {
		if p.nominated && p.state == PairSucceeded {
			return p
		}
	}
	return nil
}

// bestSucceeded returns the highest-priority Succeeded pair, used by the
// controlling agent to pick what to nominate.
func (cl *Checklist) bestSucceeded() *CandidatePair {
	for _, p := range cl.orderedPairs {
		if p.state == PairSucceeded {
			return p
		}
	}
	return nil
}

// hasSucceeded reports whether any pair has reached Succeeded (used by
// the fail-deadline check).
func (cl *Checklist) hasSucceeded() bool {
	for _, p := range cl.pairs {
		if p.state == PairSucceeded {
			return true
		}
	}
	return false
}

// unfreezeFoundation promotes Frozen pairs sharing p's (local, remote)
// foundation group to Waiting, called after a pair Succeeds (RFC 8445 §7.2.5.3.3,
// Binding Success handling: "unfreeze matching-foundation pairs").
func (cl *Checklist) unfreezeFoundation(p *CandidatePair) {
	key := p.local.foundation + "|" + p.remote.foundation
	for _, other := range cl.pairs {
		if other == p || other.state != PairFrozen {
			continue
		}
		if other.local.foundation+"|"+other.remote.foundation == key {
			other.state = PairWaiting
		}
	}
}
