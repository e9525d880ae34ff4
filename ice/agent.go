package ice

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/pion/randutil"
	"github.com/pion/stun/v3"
	"github.com/pkg/errors"

	"github.com/windwardlabs/iceagent/internal/logging"
	"github.com/windwardlabs/iceagent/internal/mux"
)

// State is the agent's connectivity state, mirroring RFC 8445 §8's
// ICE states.
type State int

const (
	StateDisconnected State = iota
	StateGathering
	StateConnecting
	StateConnected
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateGathering:
		return "Gathering"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

const (
	ufragLength    = 4
	passwordLength = 22
	credCharset    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Callbacks is the public surface a host application registers to learn
// about agent progress.
type Callbacks struct {
	OnStateChange   func(State)
	OnCandidate     func(sdpLine string)
	OnGatheringDone func()
	OnRecv          func(data []byte)
}

type rawPacket struct {
	data []byte
	from net.Addr
	base *Base
}

// Agent is a single ICE session for one data component.
// It owns a UDP socket per local interface, a candidate-pair checklist,
// and an entry table, all driven by one worker goroutine.
type Agent struct {
	config Config
	cb     Callbacks

	mid       string
	component int

	mu          sync.Mutex
	state       State
	controlling bool
	roleSet     bool
	tiebreaker  uint64

	local  Description
	remote Description

	localCandidates []Candidate
	bases           []*Base

	checklist Checklist
	entries   *EntryTable

	failDeadline time.Time
	gatherDone   int // count of unfinished server entries

	packets   chan rawPacket
	interrupt chan struct{}
	done      chan struct{}
	closed    bool
	wg        sync.WaitGroup

	dataConnCh chan []byte // forwards post-Completed app data into a ChannelConn

	// lastSTUNSend is touched only from the worker goroutine (loop,
	// bookkeep and everything bookkeep calls), never from a caller
	// goroutine, so it needs no lock of its own.
	lastSTUNSend time.Time

	log *logging.Logger

	sessionID uint64
}

// NewAgent creates an ICE agent for one data stream/component. Call
// Gather to begin candidate collection.
func NewAgent(mid string, component int, config Config, cb Callbacks) (*Agent, error) {
	config.setDefaults()

	ufrag, err := randomCredential(ufragLength)
	if err != nil {
		return nil, errors.Wrap(err, "ice: generate ufrag")
	}
	pwd, err := randomCredential(passwordLength)
	if err != nil {
		return nil, errors.Wrap(err, "ice: generate password")
	}
	tiebreaker, err := randomUint64()
	if err != nil {
		return nil, errors.Wrap(err, "ice: generate tiebreaker")
	}

	a := &Agent{
		config:      config,
		cb:          cb,
		mid:         mid,
		component:   component,
		state:       StateDisconnected,
		controlling: config.RoleHint != RoleControlled,
		roleSet:     config.RoleHint != RoleAuto,
		tiebreaker:  tiebreaker,
		local:       Description{Ufrag: ufrag, Password: pwd},
		entries:     newEntryTable(),
		packets:     make(chan rawPacket, 64),
		interrupt:   make(chan struct{}, 1),
		done:        make(chan struct{}),
		log:         logging.DefaultLogger.WithTag("ice"),
		sessionID:   mustRandomUint64(),
	}
	a.checklist.controlling = a.controlling
	return a, nil
}

func randomCredential(n int) (string, error) {
	return randutil.GenerateCryptoRandomString(n, credCharset)
}

func randomUint64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func mustRandomUint64() uint64 {
	v, err := randomUint64()
	if err != nil {
		panic(err)
	}
	return v
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	if s <= a.state {
		a.mu.Unlock()
		return
	}
	a.state = s
	cb := a.cb.OnStateChange
	a.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}

// State returns the agent's current connectivity state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Gather starts candidate collection: host enumeration plus, unless this
// is an ICE-Lite agent, server-reflexive discovery.
func (a *Agent) Gather() error {
	a.setState(StateGathering)

	bases, hostCandidates, err := a.gatherHostCandidates(a.mid, a.component)
	if err != nil {
		a.setState(StateFailed)
		return err
	}
	a.bases = bases

	for _, base := range bases {
		a.wg.Add(1)
		go a.readLoop(base)
	}

	for _, c := range hostCandidates {
		a.addLocalCandidate(c)
	}

	if a.config.Lite || len(a.config.StunServers) == 0 {
		a.gatherDone = 0
		a.onGatheringDone()
	} else {
		entries := a.gatherServerReflexive(bases, a.mid, a.component)
		a.gatherDone = len(entries)
		if a.gatherDone == 0 {
			a.onGatheringDone()
		}
	}

	a.wg.Add(1)
	go a.loop()

	return nil
}

func (a *Agent) addLocalCandidate(c Candidate) {
	a.mu.Lock()
	a.localCandidates = append(a.localCandidates, c)
	a.local.Candidates = append(a.local.Candidates, c.sdpString())
	remotes := a.remoteCandidatesLocked()
	added := a.checklist.addCandidatePairs([]Candidate{c}, remotes)
	a.mu.Unlock()

	for _, p := range added {
		a.bindEntry(p)
	}

	if a.cb.OnCandidate != nil {
		a.cb.OnCandidate("candidate:" + c.sdpString())
	}

	a.pulse()
	a.maybeConnecting()
}

func (a *Agent) remoteCandidatesLocked() []Candidate {
	var out []Candidate
	for _, p := range a.checklist.pairs {
		out = append(out, p.remote)
	}
	return out
}

func (a *Agent) onGatheringDone() {
	a.mu.Lock()
	a.local.Done = true
	a.mu.Unlock()
	if a.cb.OnGatheringDone != nil {
		a.cb.OnGatheringDone()
	}
}

// bindEntry attaches a fresh StunEntry to pair p, putting it under the
// entry table so the scheduler and timer logic can drive it. p is already
// reachable from the checklist the worker goroutine scans, so the entry
// table mutation and the pair's entry pointer must be set under a.mu.
func (a *Agent) bindEntry(p *CandidatePair) {
	e := &StunEntry{
		typ:    EntryCheck,
		pair:   p,
		base:   p.local.base,
		remote: p.remote.addr,
	}
	a.mu.Lock()
	p.entry = e
	a.entries.add(e)
	if p.state == PairWaiting {
		e.arm(0)
	}
	a.mu.Unlock()
}

// AddRemoteDescription ingests the remote peer's SDP text, adding its
// candidates and pairing them against every local candidate gathered so
// far.
func (a *Agent) AddRemoteDescription(data []byte) error {
	desc, err := parseDescription(data)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.remote.Ufrag = desc.Ufrag
	a.remote.Password = desc.Password
	locals := append([]Candidate(nil), a.localCandidates...)
	a.mu.Unlock()

	var remoteCandidates []Candidate
	for _, line := range desc.Candidates {
		var c Candidate
		c.mid = a.mid
		if err := parseCandidateSDP(line, &c); err != nil {
			a.log.Warn("ice: skipping malformed remote candidate: %v", err)
			continue
		}
		remoteCandidates = append(remoteCandidates, c)
	}

	a.mu.Lock()
	added := a.checklist.addCandidatePairs(locals, remoteCandidates)
	a.mu.Unlock()

	for _, p := range added {
		a.bindEntry(p)
	}

	a.pulse()
	a.maybeConnecting()
	return nil
}

// maybeConnecting implements the Gathering -> Connecting transition: first
// candidate emitted AND remote description set.
func (a *Agent) maybeConnecting() {
	a.mu.Lock()
	ready := len(a.localCandidates) > 0 && a.remote.Ufrag != ""
	a.mu.Unlock()
	if ready {
		a.setState(StateConnecting)
		a.mu.Lock()
		if a.failDeadline.IsZero() {
			a.failDeadline = time.Now().Add(iceFailTimeout)
		}
		a.mu.Unlock()
	}
}

// LocalDescription renders this agent's local description in the exact
// wire format described in RFC 8839.
func (a *Agent) LocalDescription() ([]byte, error) {
	a.mu.Lock()
	desc := a.local
	sid := a.sessionID
	a.mu.Unlock()
	return desc.marshal(sid)
}

// pulse wakes the worker loop to reconsider its deadline, the interrupt
// mechanism the event loop requires for external mutators.
func (a *Agent) pulse() {
	select {
	case a.interrupt <- struct{}{}:
	default:
	}
}

// Send transmits application data over the selected pair. The selected
// entry and its destination are read through an atomic load; the agent
// mutex is taken only briefly to check the closed flag and the state.
func (a *Agent) Send(data []byte) error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if a.State() == StateFailed {
		return ErrFailed
	}
	e := a.entries.getSelected()
	if e == nil {
		return errNoRemoteCandidate
	}
	base := a.baseFor(e.base)
	if base == nil {
		return errors.Wrap(ErrNotAvailable, "ice: selected pair's base socket")
	}
	return sendOn(base, e.remote.netAddr(), data)
}

// SelectedPairStats reports the nominated pair's local and remote
// addresses and its entry's current retransmission timeout, read through
// the same atomic pointer Send uses. No round-trip time is measured.
type SelectedPairStats struct {
	Local, Remote string
	RTO           time.Duration
}

func (a *Agent) SelectedPairStats() (SelectedPairStats, bool) {
	e := a.entries.getSelected()
	if e == nil || e.pair == nil {
		return SelectedPairStats{}, false
	}
	return SelectedPairStats{
		Local:  e.pair.local.addr.String(),
		Remote: e.pair.remote.addr.String(),
		RTO:    e.retransmissionTO,
	}, true
}

// Restart regenerates local credentials and clears the pair table,
// re-entering Gathering without tearing down the UDP sockets (spec
// section D, "ICE restart").
func (a *Agent) Restart() error {
	ufrag, err := randomCredential(ufragLength)
	if err != nil {
		return err
	}
	pwd, err := randomCredential(passwordLength)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.local = Description{Ufrag: ufrag, Password: pwd}
	a.remote = Description{}
	a.checklist = Checklist{controlling: a.controlling}
	a.entries.reset()
	a.localCandidates = nil
	a.failDeadline = time.Time{}
	a.state = StateDisconnected
	a.mu.Unlock()

	for _, c := range a.gatherExistingBasesAsHostCandidates() {
		a.addLocalCandidate(c)
	}
	a.setState(StateGathering)
	a.pulse()
	return nil
}

func (a *Agent) gatherExistingBasesAsHostCandidates() []Candidate {
	var out []Candidate
	for _, base := range a.bases {
		out = append(out, makeHostCandidate(a.mid, a.component, base.transportAddr))
	}
	return out
}

// Close stops the worker, abandoning in-flight transactions (spec
// section 5, "Cancellation").
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.done)
	a.pulse()
	for _, b := range a.bases {
		b.Close()
	}
	a.wg.Wait()
	return nil
}

// readLoop is the per-base socket reader: it classifies datagrams as STUN
// or application data and feeds them to the central worker over a
// channel, since Go's select() works over channels rather than raw fds
// (adapted to Go's concurrency idiom).
func (a *Agent) readLoop(base *Base) {
	defer a.wg.Done()

	buf := make([]byte, a.config.MaxMessageSize)
	for {
		n, addr, err := base.ReadFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case a.packets <- rawPacket{data: data, from: addr, base: base}:
		case <-a.done:
			return
		}
	}
}

// loop is the single worker goroutine: receive-then-bookkeep, gated by a
// deadline-bounded wait over the entry table's timers, adapted
// from a blocking select(2) call to a Go select over channels/timers.
func (a *Agent) loop() {
	defer a.wg.Done()

	for {
		a.mu.Lock()
		deadline := a.entries.nextDeadline(a.failDeadline)
		a.mu.Unlock()

		now := time.Now()
		if !deadline.IsZero() && !deadline.After(now) {
			// Something is due immediately; don't let the select below
			// fire a burst of STUN transmissions tighter than
			// stunPacingTime apart.
			if pacing := a.lastSTUNSend.Add(stunPacingTime); pacing.After(deadline) {
				deadline = pacing
			}
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-a.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case pkt := <-a.packets:
			if timer != nil {
				timer.Stop()
			}
			a.handlePacket(pkt)

		case <-a.interrupt:
			if timer != nil {
				timer.Stop()
			}

		case <-timerC:
		}

		a.bookkeep()
	}
}

// handlePacket implements the classify-then-dispatch half of the event
// 4.7's recv phase: STUN first (magic cookie match), else application
// data via the recv callback.
func (a *Agent) handlePacket(pkt rawPacket) {
	if mux.MatchSTUN(pkt.data) {
		var m stun.Message
		m.Raw = pkt.data
		if err := m.Decode(); err != nil {
			a.log.Debug("%v: %v", errSTUNInvalidMessage, err)
			return
		}
		a.dispatchStun(&m, pkt)
		return
	}

	if a.cb.OnRecv != nil {
		a.cb.OnRecv(pkt.data)
	}
	if a.dataConnCh != nil {
		select {
		case a.dataConnCh <- pkt.data:
		default:
		}
	}
}

// DataConn returns a net.Conn over the selected pair. It must only be
// called once the agent has reached Completed (spec invariant 6); the
// returned conn delivers the same application-data stream OnRecv sees.
func (a *Agent) DataConn() (net.Conn, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	e := a.entries.getSelected()
	if e == nil || e.pair == nil {
		return nil, errNoRemoteCandidate
	}
	base := a.baseFor(e.pair.local.base)
	if base == nil {
		return nil, errors.Wrap(ErrNotAvailable, "ice: selected pair's base socket")
	}

	a.mu.Lock()
	if a.dataConnCh == nil {
		a.dataConnCh = make(chan []byte, 32)
	}
	ch := a.dataConnCh
	a.mu.Unlock()

	return newChannelConn(base, ch, e.pair.remote.addr.netAddr()), nil
}

// bookkeep is the event loop's bookkeeping phase: scan entries, fire due
// transmissions, retransmit expired ones, advance state, check the
// fail-deadline.
// bookkeep fires at most one STUN transmission per tick — a check, a
// keepalive, or one gather request, in that priority order — so that two
// transmissions from this agent are never less than stunPacingTime apart
// (RFC 8445 invariant on pacing; testable invariant #3). The entry/
// checklist tables are only inspected under a.mu; the transmission itself
// and the failure callback happen outside the lock.
func (a *Agent) bookkeep() {
	now := time.Now()

	a.mu.Lock()
	var nextCheck *CandidatePair
	if !a.config.Lite {
		nextCheck = a.checklist.nextPair(now)
	}
	var nextServer *StunEntry
	if nextCheck == nil {
		nextServer = a.entries.nextDueServer(now)
	}
	selected := a.entries.getSelected()
	failed := !a.failDeadline.IsZero() && now.After(a.failDeadline) && !a.checklist.hasSucceeded()
	a.mu.Unlock()

	if now.Sub(a.lastSTUNSend) >= stunPacingTime {
		switch {
		case nextCheck != nil:
			a.sendCheck(nextCheck)
			a.lastSTUNSend = now
		case selected != nil && !selected.nextTransmission.After(now):
			a.sendKeepalive(selected)
			a.lastSTUNSend = now
		case nextServer != nil:
			a.sendGatherRequest(nextServer)
			a.lastSTUNSend = now
		}
	}

	if failed {
		a.setState(StateFailed)
	}
}

// sendCheck transmits (or retransmits) a Binding Request on p's entry, per
// RFC 8445 §7.2.4. Every (re)transmission, including the first, goes
// through advanceRTO so the retransmission count and the doubling RTO are
// always in sync with what was actually sent; once MAX_STUN_RETRANSMISSION_
// COUNT is exhausted the pair fails instead of retrying forever.
func (a *Agent) sendCheck(p *CandidatePair) {
	e := p.entry
	if e == nil {
		return
	}
	e.takeArmed()

	a.mu.Lock()
	exhausted := e.advanceRTO()
	if exhausted {
		p.state = PairFailed
	}
	a.mu.Unlock()
	if exhausted {
		return
	}

	username := a.remote.Ufrag + ":" + a.local.Ufrag
	msg, err := a.buildBindingRequest(p, username, a.remote.Password)
	if err != nil {
		a.log.Warn("ice: failed to build binding request: %v", err)
		return
	}
	e.transactionID = msg.TransactionID

	base := a.baseFor(p.local.base)
	if base == nil {
		return
	}
	if err := sendOn(base, p.remote.addr.netAddr(), msg.Raw); err != nil {
		a.log.Warn("ice: send check failed: %v", err)
		return
	}

	a.mu.Lock()
	p.state = PairInProgress
	a.mu.Unlock()
}

// sendGatherRequest transmits (or retransmits) a plain Binding Request
// toward a STUN server for server-reflexive discovery, paced and retried
// the same way sendCheck is: one pick per tick, advanceRTO on every send.
func (a *Agent) sendGatherRequest(e *StunEntry) {
	e.takeArmed()

	a.mu.Lock()
	exhausted := e.advanceRTO()
	var done bool
	if exhausted {
		a.gatherDone--
		done = a.gatherDone <= 0
	}
	a.mu.Unlock()
	if exhausted {
		if done {
			a.onGatheringDone()
		}
		return
	}

	base := a.baseFor(e.base)
	if base == nil {
		e.finished = true
		return
	}

	msg, err := buildGatherRequest()
	if err != nil {
		return
	}
	e.transactionID = msg.TransactionID

	if err := sendOn(base, e.server, msg.Raw); err != nil {
		a.log.Warn("ice: send gather request failed: %v", err)
	}
}

func (a *Agent) sendKeepalive(e *StunEntry) {
	if e.pair == nil {
		return
	}
	msg, err := stun.Build(stun.TransactionID, stun.BindingIndication, stun.Fingerprint)
	if err != nil {
		return
	}
	base := a.baseFor(e.pair.local.base)
	if base == nil {
		return
	}
	_ = sendOn(base, e.pair.remote.addr.netAddr(), msg.Raw)
	e.arm(stunKeepalivePeriod)
}

func (a *Agent) baseFor(addr TransportAddress) *Base {
	for _, b := range a.bases {
		if b.transportAddr.equal(addr) {
			return b
		}
	}
	return nil
}
