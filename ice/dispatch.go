package ice

import (
	"github.com/pion/stun/v3"
)

// dispatchStun routes an inbound, already-classified STUN message by
// class.
func (a *Agent) dispatchStun(m *stun.Message, pkt rawPacket) {
	switch {
	case m.Type == stun.BindingRequest:
		a.handleBindingRequest(m, pkt)
	case m.Type == stun.BindingSuccess:
		a.handleBindingSuccess(m, pkt)
	case m.Type == stun.BindingError:
		a.handleBindingError(m, pkt)
	case m.Type == stun.BindingIndication:
		// Consent/keepalive: consumed silently.
	default:
		// Unrecognized classes are dropped.
	}
}

// handleBindingRequest implements RFC 8445 §7.3's Binding Request
// case: choose or create a pair for the source, verify integrity with the
// local password, resolve role conflicts, and reply.
func (a *Agent) handleBindingRequest(m *stun.Message, pkt rawPacket) {
	if !verifyIntegrity(m, a.local.Password) {
		return
	}

	if rtb, ok := getTiebreaker(m, attrIceController); ok {
		if a.controlling && rtb > a.tiebreaker {
			a.switchRole(false)
		} else if a.controlling {
			a.replyRoleConflict(m, pkt)
			return
		}
	}
	if rtb, ok := getTiebreaker(m, attrIceControlled); ok {
		if !a.controlling && rtb < a.tiebreaker {
			a.switchRole(true)
		} else if !a.controlling {
			a.replyRoleConflict(m, pkt)
			return
		}
	}

	from := makeTransportAddress(pkt.from)
	a.mu.Lock()
	p := a.checklist.findPair(pkt.base.transportAddr, from)
	a.mu.Unlock()
	if p == nil {
		priority, _ := getPriority(m)
		remote := makePeerReflexiveCandidate(a.mid, a.component, pkt.base.transportAddr, from, priority)
		local := a.localCandidateFor(pkt.base.transportAddr)
		a.mu.Lock()
		added := a.checklist.addCandidatePairs([]Candidate{local}, []Candidate{remote})
		a.mu.Unlock()
		for _, np := range added {
			a.bindEntry(np)
			a.mu.Lock()
			a.checklist.triggerCheck(np)
			a.mu.Unlock()
		}
		if len(added) > 0 {
			p = added[0]
		}
	}

	resp, err := buildBindingSuccess(m, pkt.from, a.local.Password)
	if err != nil {
		return
	}
	_ = sendOn(pkt.base, pkt.from, resp.Raw)

	if p != nil && hasUseCandidate(m) && !a.controlling {
		a.mu.Lock()
		p.nominated = true
		a.mu.Unlock()
		a.onNominated(p)
	}

	a.pulse()
}

func (a *Agent) localCandidateFor(base TransportAddress) Candidate {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.localCandidates {
		if c.base.equal(base) {
			return c
		}
	}
	return makeHostCandidate(a.mid, a.component, base)
}

func (a *Agent) replyRoleConflict(m *stun.Message, pkt rawPacket) {
	resp, err := buildRoleConflictError(m, a.local.Password)
	if err != nil {
		return
	}
	_ = sendOn(pkt.base, pkt.from, resp.Raw)
}

// switchRole implements the loser side of RFC 8445 section 7.3.1.1's
// tiebreaker comparison.
func (a *Agent) switchRole(controlling bool) {
	a.mu.Lock()
	a.controlling = controlling
	a.checklist.controlling = controlling
	for _, p := range a.checklist.pairs {
		p.computePriority(controlling)
	}
	a.checklist.sortAndPrune()
	a.mu.Unlock()
}

// handleBindingSuccess implements RFC 8445 §7.2.5's Binding Success case:
// match by transaction id, then branch on entry type.
func (a *Agent) handleBindingSuccess(m *stun.Message, pkt rawPacket) {
	e := a.findEntryByTransaction(m.TransactionID)
	if e == nil {
		return // no matching entry; drop
	}

	switch e.typ {
	case EntryServer:
		a.handleGatherResponse(m, e)
	case EntryCheck:
		a.handleCheckResponse(m, e, pkt)
	}
}

func (a *Agent) findEntryByTransaction(id stun.TransactionID) *StunEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries.entries {
		if e.transactionID == id {
			return e
		}
	}
	return nil
}

func (a *Agent) handleGatherResponse(m *stun.Message, e *StunEntry) {
	var xor stun.XORMappedAddress
	if err := xor.GetFrom(m); err != nil {
		e.finished = true
		a.gatherDone--
		if a.gatherDone <= 0 {
			a.onGatheringDone()
		}
		return
	}
	mapped := TransportAddress{protocol: "udp", ip: xor.IP, port: xor.Port}

	a.mu.Lock()
	exists := false
	for _, c := range a.localCandidates {
		if c.addr.equal(mapped) {
			exists = true
			break
		}
	}
	a.mu.Unlock()

	e.finished = true
	a.gatherDone--
	if a.gatherDone <= 0 {
		a.onGatheringDone()
	}

	if exists {
		return
	}

	c := makeServerReflexiveCandidate(a.mid, a.component, e.base, mapped)
	a.addLocalCandidate(c)
}

// handleCheckResponse marks the pair Succeeded, unfreezes sibling
// foundations, and, if controlling, nominates the best candidate pair
// (RFC 8445 §7.3).
func (a *Agent) handleCheckResponse(m *stun.Message, e *StunEntry, pkt rawPacket) {
	if !verifyIntegrity(m, a.remote.Password) {
		return
	}

	p := e.pair
	if p == nil {
		return
	}

	a.mu.Lock()
	// Taken before useCand is set below: the controlling side completes
	// only once the USE-CANDIDATE check itself has succeeded.
	nominate := p.useCand || p.nominated
	p.state = PairSucceeded
	e.finished = true
	a.checklist.unfreezeFoundation(p)
	if a.controlling {
		best := a.checklist.bestSucceeded()
		if best != nil && !best.useCand {
			best.useCand = true
			if best.entry != nil {
				best.entry.finished = false
				best.entry.arm(0)
			}
		}
	}
	a.mu.Unlock()

	a.setState(StateConnected)

	if nominate {
		a.onNominated(p)
	}

	a.pulse()
}

// onNominated implements the USE-CANDIDATE half of RFC 8445 §7.3.1.5's
// Connected -> Completed transition. When a different pair is already
// selected, the pair with the higher pair priority stays selected; the
// tiebreakers are not compared, and no check is re-sent without
// USE-CANDIDATE for the pair that is not kept.
func (a *Agent) onNominated(p *CandidatePair) {
	cur := a.entries.getSelected()
	if cur != nil && cur.pair != nil && cur.pair != p {
		// A second nomination: keep the current pair unless p has a
		// strictly higher pair priority.
		if cur.pair.priority >= p.priority {
			return
		}
	}
	a.mu.Lock()
	p.nominated = true
	a.mu.Unlock()
	a.entries.setSelected(p.entry)
	if p.entry != nil {
		p.entry.arm(stunKeepalivePeriod)
	}
	a.setState(StateCompleted)
}

// handleBindingError implements RFC 8445 §7.2.5's Binding Error case:
// 487 triggers a role switch and immediate retry; anything else fails
// the entry.
func (a *Agent) handleBindingError(m *stun.Message, pkt rawPacket) {
	e := a.findEntryByTransaction(m.TransactionID)
	if e == nil {
		return
	}

	var errAttr stun.ErrorCodeAttribute
	if err := errAttr.GetFrom(m); err == nil && errAttr.Code == stun.CodeRoleConflict {
		a.switchRole(!a.controlling)
		a.mu.Lock()
		if e.pair != nil {
			e.pair.state = PairWaiting
		}
		a.mu.Unlock()
		e.arm(0)
		return
	}

	a.mu.Lock()
	e.finished = true
	if e.pair != nil {
		e.pair.state = PairFailed
	}
	a.mu.Unlock()
}
