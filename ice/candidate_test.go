package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePriorityOrdering(t *testing.T) {
	base := TransportAddress{protocol: "udp", ip: net.ParseIP("192.168.1.5"), port: 54321}

	host := makeHostCandidate("0", 1, base)
	srflx := makeServerReflexiveCandidate("0", 1, base, TransportAddress{protocol: "udp", ip: net.ParseIP("203.0.113.5"), port: 40000})
	prflx := makePeerReflexiveCandidate("0", 1, base, TransportAddress{protocol: "udp", ip: net.ParseIP("198.51.100.9"), port: 1}, 0)
	relay := Candidate{typ: CandidateTypeRelayed, component: 1, addr: base}
	relay.computePriority()

	// RFC 8445 type preferences: host > peer-reflexive > server-reflexive > relay.
	if !(host.priority > prflx.priority && prflx.priority > srflx.priority && srflx.priority > relay.priority) {
		t.Fatalf("expected host > prflx > srflx > relay, got %d, %d, %d, %d",
			host.priority, prflx.priority, srflx.priority, relay.priority)
	}
}

func TestCandidateSDPRoundTrip(t *testing.T) {
	base := TransportAddress{protocol: "udp", ip: net.ParseIP("10.0.0.2"), port: 5000}
	c := makeHostCandidate("0", 1, base)

	line := c.sdpString()

	var parsed Candidate
	require := assert.New(t)
	err := parseCandidateSDP(line, &parsed)
	require.NoError(err)
	require.Equal(c.foundation, parsed.foundation)
	require.Equal(c.component, parsed.component)
	require.Equal(c.priority, parsed.priority)
	require.Equal(c.addr.ip.String(), parsed.addr.ip.String())
	require.Equal(c.addr.port, parsed.addr.port)
	require.Equal(c.typ, parsed.typ)
}

func TestParseCandidateSDPWithRelatedAddress(t *testing.T) {
	line := "a1b2c3 1 udp 1694498815 203.0.113.5 40000 typ srflx raddr 192.168.1.5 rport 54321"

	var c Candidate
	if err := parseCandidateSDP(line, &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.typ != CandidateTypeServerReflexive {
		t.Errorf("expected srflx, got %v", c.typ)
	}
	if c.related.ip.String() != "192.168.1.5" || c.related.port != 54321 {
		t.Errorf("unexpected related address: %v:%d", c.related.ip, c.related.port)
	}
}

func TestParseCandidateSDPTooFewFields(t *testing.T) {
	var c Candidate
	if err := parseCandidateSDP("a1b2c3 1 udp", &c); err == nil {
		t.Errorf("expected error for truncated candidate line")
	}
}
