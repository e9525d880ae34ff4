package ice

import (
	"encoding/base32"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// CandidateType classifies how a candidate's transport address was
// discovered (RFC 8445 section 5.1.1).
type CandidateType int

const (
	CandidateTypeHost CandidateType = iota
	CandidateTypeServerReflexive
	CandidateTypePeerReflexive
	CandidateTypeRelayed
)

func (t CandidateType) String() string {
	switch t {
	case CandidateTypeHost:
		return "host"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeRelayed:
		return "relay"
	default:
		return "unknown"
	}
}

func candidateTypeFromString(s string) (CandidateType, error) {
	switch s {
	case "host":
		return CandidateTypeHost, nil
	case "srflx":
		return CandidateTypeServerReflexive, nil
	case "prflx":
		return CandidateTypePeerReflexive, nil
	case "relay":
		return CandidateTypeRelayed, nil
	default:
		return 0, fmt.Errorf("ice: unknown candidate type %q", s)
	}
}

// typePreference is RFC 8445's recommended type-preference table. The
// spec gives server-reflexive a value (100) distinct from peer-reflexive
// (110); ServerReflexive and PeerReflexive are therefore NOT collapsed
// into one bucket here.
func (t CandidateType) typePreference() int {
	switch t {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelayed:
		return 0
	default:
		return 0
	}
}

// Candidate is a single local or remote transport address usable for
// connectivity checks, together with the metadata RFC 8445 attaches to it.
type Candidate struct {
	mid       string
	component int

	typ     CandidateType
	addr    TransportAddress
	base    TransportAddress // local candidates only: socket this was sent from
	related TransportAddress // raddr/rport for non-host candidates

	foundation string
	priority   uint32
}

// localPreference assigns IPv6 addresses a higher preference than IPv4,
// except link-local IPv6 which ranks below ordinary IPv4.
func localPreference(addr TransportAddress) int {
	switch {
	case addr.isIPv6() && !addr.isLinkLocal():
		return 65535
	case !addr.isIPv6():
		return 65534
	default:
		return 1
	}
}

// computePriority implements RFC 8445 section 5.1.2:
//
//	priority = (2^24)*(type pref) + (2^8)*(local pref) + (256 - component)
func (c *Candidate) computePriority() {
	component := c.component
	if component == 0 {
		component = 1
	}
	c.priority = uint32(c.typ.typePreference())<<24 |
		uint32(localPreference(c.addr))<<8 |
		uint32(256-component)
}

// computeFoundation groups candidates that share type, base address, and
// transport protocol, per RFC 8445 section 5.1.3. Foundations need only be
// unique within this agent's candidate set, so a short hash of the
// qualifying fields suffices.
func (c *Candidate) computeFoundation() {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s", c.typ, c.base.ip, c.base.protocol)
	c.foundation = strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(h.Sum(nil)))
}

func makeHostCandidate(mid string, component int, base TransportAddress) Candidate {
	c := Candidate{mid: mid, component: component, typ: CandidateTypeHost, addr: base, base: base}
	c.computeFoundation()
	c.computePriority()
	return c
}

func makeServerReflexiveCandidate(mid string, component int, base, mapped TransportAddress) Candidate {
	c := Candidate{
		mid: mid, component: component,
		typ: CandidateTypeServerReflexive, addr: mapped, base: base, related: base,
	}
	c.computeFoundation()
	c.computePriority()
	return c
}

func makePeerReflexiveCandidate(mid string, component int, base, observed TransportAddress, priority uint32) Candidate {
	c := Candidate{
		mid: mid, component: component,
		typ: CandidateTypePeerReflexive, addr: observed, base: base, related: base,
		priority: priority,
	}
	c.computeFoundation()
	if c.priority == 0 {
		c.computePriority()
	}
	return c
}

// sdpString renders this candidate as the value of an SDP "a=candidate"
// line, per the exact format external interfaces section specifies.
func (c Candidate) sdpString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s %d %s %d typ %s",
		c.foundation, c.component, c.addr.protocol, c.priority, c.addr.ip, c.addr.port, c.typ)
	if c.typ != CandidateTypeHost && c.related.ip != nil {
		fmt.Fprintf(&b, " raddr %s rport %d", c.related.ip, c.related.port)
	}
	return b.String()
}

// parseCandidateSDP parses the value portion of an "a=candidate" line
// (without the "a=candidate:" prefix) into c. Unknown trailing extension
// attributes are ignored, matching the tolerant-parser requirement.
func parseCandidateSDP(s string, c *Candidate) error {
	fields := strings.Fields(s)
	if len(fields) < 8 {
		return fmt.Errorf("%w: candidate line has too few fields", ErrInvalidArgument)
	}

	c.foundation = fields[0]

	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("%w: bad component id", ErrInvalidArgument)
	}
	c.component = component

	protocol := strings.ToLower(fields[2])

	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: bad priority", ErrInvalidArgument)
	}
	c.priority = uint32(priority)

	ip := fields[4]
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return fmt.Errorf("%w: bad port", ErrInvalidArgument)
	}
	c.addr = TransportAddress{protocol: protocol, ip: parseIP(ip), port: port}

	if fields[6] != "typ" {
		return fmt.Errorf("%w: missing 'typ' keyword", ErrInvalidArgument)
	}
	typ, err := candidateTypeFromString(fields[7])
	if err != nil {
		return err
	}
	c.typ = typ

	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			c.related.ip = parseIP(fields[i+1])
			c.related.protocol = protocol
		case "rport":
			p, err := strconv.Atoi(fields[i+1])
			if err == nil {
				c.related.port = p
			}
		}
	}

	return nil
}
