package ice

import (
	"encoding/binary"
	"net"

	"github.com/pion/stun/v3"
)

// RFC 8445 section 16.1 attribute codepoints. pion/stun/v3 knows the
// generic STUN attribute set (username, integrity, fingerprint,
// XOR-MAPPED-ADDRESS, error-code); these four are ICE-specific and are
// carried as raw attributes on top of it.
const (
	attrPriority      = stun.AttrType(0x0024)
	attrUseCandidate  = stun.AttrType(0x0025)
	attrIceControlled = stun.AttrType(0x8029)
	attrIceController = stun.AttrType(0x802a)
)

type priorityAttr uint32

func (p priorityAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(p))
	m.Add(attrPriority, v)
	return nil
}

func getPriority(m *stun.Message) (uint32, bool) {
	v, err := m.Get(attrPriority)
	if err != nil || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

type useCandidateAttr struct{}

func (useCandidateAttr) AddTo(m *stun.Message) error {
	m.Add(attrUseCandidate, nil)
	return nil
}

func hasUseCandidate(m *stun.Message) bool {
	_, err := m.Get(attrUseCandidate)
	return err == nil
}

type tiebreakerAttr struct {
	controlling bool
	tiebreaker  uint64
}

func (t tiebreakerAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, t.tiebreaker)
	if t.controlling {
		m.Add(attrIceController, v)
	} else {
		m.Add(attrIceControlled, v)
	}
	return nil
}

func getTiebreaker(m *stun.Message, attr stun.AttrType) (uint64, bool) {
	v, err := m.Get(attr)
	if err != nil || len(v) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

// buildBindingRequest constructs an outbound connectivity-check or
// gathering request.
func (a *Agent) buildBindingRequest(p *CandidatePair, username string, remotePassword string) (*stun.Message, error) {
	setters := []stun.Setter{
		stun.TransactionID,
		stun.BindingRequest,
		stun.NewUsername(username),
	}
	if p != nil {
		setters = append(setters, priorityAttr(p.local.priority))
		setters = append(setters, tiebreakerAttr{controlling: a.controlling, tiebreaker: a.tiebreaker})
		if p.nominated || p.useCand {
			setters = append(setters, useCandidateAttr{})
		}
	}
	if remotePassword != "" {
		setters = append(setters, stun.NewShortTermIntegrity(remotePassword))
	}
	setters = append(setters, stun.Fingerprint)
	return stun.Build(setters...)
}

// buildGatherRequest constructs a plain Binding Request toward a STUN
// server, with no ICE attributes or MESSAGE-INTEGRITY (servers don't share
// a short-term credential with us).
func buildGatherRequest() (*stun.Message, error) {
	return stun.Build(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
}

// buildBindingSuccess constructs the reply to an inbound Binding Request.
func buildBindingSuccess(req *stun.Message, mappedAddr net.Addr, localPassword string) (*stun.Message, error) {
	xor := &stun.XORMappedAddress{}
	switch a := mappedAddr.(type) {
	case *net.UDPAddr:
		xor.IP, xor.Port = a.IP, a.Port
	}
	setters := []stun.Setter{
		req,
		stun.BindingSuccess,
		xor,
	}
	if localPassword != "" {
		setters = append(setters, stun.NewShortTermIntegrity(localPassword))
	}
	setters = append(setters, stun.Fingerprint)
	return stun.Build(setters...)
}

// buildRoleConflictError constructs a 487 (Role Conflict) response,
// per RFC 8445 section 7.3.1.1.
func buildRoleConflictError(req *stun.Message, localPassword string) (*stun.Message, error) {
	setters := []stun.Setter{
		req,
		stun.BindingError,
		&stun.ErrorCodeAttribute{Code: stun.CodeRoleConflict, Reason: []byte("Role Conflict")},
	}
	if localPassword != "" {
		setters = append(setters, stun.NewShortTermIntegrity(localPassword))
	}
	setters = append(setters, stun.Fingerprint)
	return stun.Build(setters...)
}

// verifyIntegrity recomputes MESSAGE-INTEGRITY with the supplied password
// and checks FINGERPRINT per RFC 8489 §14. A mismatch
// is reported, never propagated to a callback (spec: "Integrity" errors
// are dropped silently).
func verifyIntegrity(m *stun.Message, password string) bool {
	if password != "" {
		if err := stun.NewShortTermIntegrity(password).Check(m); err != nil {
			return false
		}
	}
	if err := stun.Fingerprint.Check(m); err != nil {
		return false
	}
	return true
}
