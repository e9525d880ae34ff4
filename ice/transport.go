package ice

import (
	"fmt"
	"net"
	"strings"
)

// TransportAddress is a protocol/IP/port tuple. It is the address-record
// utility the core agent treats as an external collaborator: candidates,
// pairs, and the entry table all key off it rather than raw net.Addr, so
// that equality and family checks don't depend on a particular net.Addr
// concrete type.
type TransportAddress struct {
	protocol string // "udp" (only protocol this agent gathers)
	ip       net.IP
	port     int
}

func makeTransportAddress(addr net.Addr) TransportAddress {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return TransportAddress{"udp", a.IP, a.Port}
	default:
		host, portStr, err := net.SplitHostPort(addr.String())
		if err != nil {
			return TransportAddress{}
		}
		var port int
		fmt.Sscanf(portStr, "%d", &port)
		return TransportAddress{"udp", net.ParseIP(host), port}
	}
}

func (ta TransportAddress) netAddr() net.Addr {
	return &net.UDPAddr{IP: ta.ip, Port: ta.port}
}

// isIPv6 reports whether this address is IPv6 (and not an IPv4-mapped
// IPv6 address).
func (ta TransportAddress) isIPv6() bool {
	return ta.ip != nil && ta.ip.To4() == nil
}

// isLoopback reports whether this is a loopback address.
func (ta TransportAddress) isLoopback() bool {
	return ta.ip != nil && ta.ip.IsLoopback()
}

// isLinkLocal reports whether this is a link-local unicast address.
func (ta TransportAddress) isLinkLocal() bool {
	return ta.ip != nil && ta.ip.IsLinkLocalUnicast()
}

func (ta TransportAddress) equal(other TransportAddress) bool {
	return ta.protocol == other.protocol &&
		ta.ip.Equal(other.ip) &&
		ta.port == other.port
}

func (ta TransportAddress) String() string {
	return fmt.Sprintf("%s/%s:%d", ta.protocol, ta.ip, ta.port)
}

func (ta *TransportAddress) normalize() {
	ta.protocol = strings.ToLower(ta.protocol)
}

func parseIP(s string) net.IP {
	return net.ParseIP(s)
}
