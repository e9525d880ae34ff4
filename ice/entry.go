package ice

import (
	"net"
	"sync/atomic"
	"time"
)

const (
	maxStunRetransmissionCount = 5
	minRTO                     = 500 * time.Millisecond
	stunKeepalivePeriod        = 15 * time.Second
	stunPacingTime             = 50 * time.Millisecond
	iceFailTimeout             = 30 * time.Second
	maxCandidatePairsCount     = 100
	maxHostCandidatesCount     = 16
	maxStunServerRecordsCount  = 8
)

// EntryType distinguishes a gathering transaction toward a STUN server
// from a connectivity-check transaction toward a remote candidate.
type EntryType int

const (
	EntryServer EntryType = iota
	EntryCheck
)

// StunEntry is one outstanding or periodically re-armed STUN transaction
// The armed flag is read and cleared
// without the agent mutex so that callers arming an entry (triggered
// checks) never contend with the worker's hot path.
type StunEntry struct {
	typ EntryType

	pair   *CandidatePair // set for EntryCheck
	server net.Addr       // set for EntryServer
	base   TransportAddress

	remote TransportAddress

	transactionID [12]byte

	nextTransmission   time.Time
	retransmissionTO   time.Duration
	retransmissions    int
	finished           bool

	armed int32 // atomic one-shot trigger
}

// arm requests immediate (re)transmission on the next pacer tick and
// schedules it at now+delay if nothing preempts it sooner.
func (e *StunEntry) arm(delay time.Duration) {
	e.nextTransmission = time.Now().Add(delay)
	atomic.StoreInt32(&e.armed, 1)
}

// takeArmed clears the armed trigger and reports whether it was set,
// implementing compare-and-swap clear-if-set semantics.
func (e *StunEntry) takeArmed() bool {
	return atomic.CompareAndSwapInt32(&e.armed, 1, 0)
}

// advanceRTO doubles the retransmission timeout and counts one more
// attempt, per RFC 8445 §14.3's retransmission schedule. It reports whether the entry has now
// exhausted its retries.
func (e *StunEntry) advanceRTO() (exhausted bool) {
	e.retransmissions++
	if e.retransmissions > maxStunRetransmissionCount {
		e.finished = true
		return true
	}
	if e.retransmissionTO == 0 {
		e.retransmissionTO = minRTO
	} else {
		e.retransmissionTO *= 2
	}
	e.nextTransmission = time.Now().Add(e.retransmissionTO)
	return false
}

// EntryTable is the agent's table of StunEntry, plus the logic for
// computing the worker's next wake-up deadline. The table has no capacity
// limit of its own: add appends, and entries are allocated as pairs and
// server transactions are created. Like Checklist,
// it holds no lock of its own: callers (Agent) must hold a.mu around any
// method that touches the entries slice, since it is read by the worker
// goroutine and mutated by whichever goroutine calls AddRemoteDescription
// or addLocalCandidate.
type EntryTable struct {
	entries []*StunEntry

	// selected references whichever Check entry is currently nominated.
	// Read lock-free via atomic.Value so Send never takes the agent mutex.
	selected atomic.Value // holds *StunEntry
}

func newEntryTable() *EntryTable {
	return &EntryTable{}
}

func (t *EntryTable) add(e *StunEntry) {
	t.entries = append(t.entries, e)
}

func (t *EntryTable) remove(e *StunEntry) {
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// reset clears the table for an ICE restart without replacing the
// EntryTable pointer itself, so concurrent readers never see a torn
// pointer swap.
func (t *EntryTable) reset() {
	t.entries = nil
	t.selected.Store((*StunEntry)(nil))
}

// nextDueServer picks a single EntryServer entry ready to (re)transmit,
// mirroring Checklist.nextPair's one-per-tick selection so gather
// requests are paced the same way checks are: armed entries first, then
// whichever due entry appears first in the table.
func (t *EntryTable) nextDueServer(now time.Time) *StunEntry {
	for _, e := range t.entries {
		if e.typ != EntryServer || e.finished {
			continue
		}
		if atomic.LoadInt32(&e.armed) == 1 {
			return e
		}
	}
	for _, e := range t.entries {
		if e.typ != EntryServer || e.finished {
			continue
		}
		if e.retransmissionTO > 0 && !e.nextTransmission.After(now) {
			return e
		}
	}
	return nil
}

func (t *EntryTable) setSelected(e *StunEntry) {
	t.selected.Store(e)
}

func (t *EntryTable) getSelected() *StunEntry {
	v := t.selected.Load()
	if v == nil {
		return nil
	}
	return v.(*StunEntry)
}

// nextDeadline returns the earliest time any unfinished entry needs
// attention, bounded also by failDeadline (zero means no bound from that
// source). It returns the zero time when nothing bounds the wait. The
// result may already be in the past; callers clamp the negative duration
// to zero before waiting on it.
func (t *EntryTable) nextDeadline(failDeadline time.Time) time.Time {
	deadline := failDeadline
	for _, e := range t.entries {
		if e.finished {
			continue
		}
		if deadline.IsZero() || e.nextTransmission.Before(deadline) {
			deadline = e.nextTransmission
		}
	}
	return deadline
}
