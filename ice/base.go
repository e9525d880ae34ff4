package ice

import (
	"net"

	"github.com/golang/groupcache/singleflight"
	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

// Base is one local UDP socket candidates are gathered from and checks are
// sent through (gathering operates in
// terms of one or more of these).
type Base struct {
	*net.UDPConn

	transportAddr TransportAddress
	pc            *ipv4.PacketConn
}

// localInterfaceAddrs enumerates usable local interface addresses,
// excluding loopback unless explicitly configured, up to
// maxHostCandidatesCount. When bind is non-empty, gathering is restricted
// to that single address.
func localInterfaceAddrs(includeLoopback bool, bind string) ([]net.IP, error) {
	if bind != "" {
		ip := net.ParseIP(bind)
		if ip == nil {
			return nil, errors.Errorf("ice: invalid bind address %q", bind)
		}
		return []net.IP{ip}, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "ice: enumerate interfaces")
	}

	var addrs []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 && !includeLoopback {
			continue
		}
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifaceAddrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLinkLocalMulticast() {
				continue
			}
			addrs = append(addrs, ipNet.IP)
			if len(addrs) >= maxHostCandidatesCount {
				return addrs, nil
			}
		}
	}
	return addrs, nil
}

// createBase opens a UDP socket bound to addr (or an ephemeral port within
// a/b's configured range) and wraps it as a Base.
func createBase(ip net.IP, portMin, portMax int) (*Base, error) {
	port := portMin
	if portMax < port {
		portMax = port
	}

	var conn *net.UDPConn
	var err error
	for ; port <= portMax; port++ {
		if conn, err = net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port}); err == nil {
			break
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "ice: bind local socket")
	}

	b := &Base{
		UDPConn:       conn,
		transportAddr: makeTransportAddress(conn.LocalAddr()),
		pc:            ipv4.NewPacketConn(conn),
	}
	return b, nil
}

// ReadFrom reads one datagram via the ipv4.PacketConn wrapper instead of
// the embedded UDPConn directly, shadowing the promoted method so the
// recv loop's hot path actually goes through it.
func (b *Base) ReadFrom(p []byte) (int, net.Addr, error) {
	n, _, addr, err := b.pc.ReadFrom(p)
	return n, addr, err
}

// stunResolveGroup collapses concurrent lookups of the same STUN server
// host:port into one outstanding resolution. Only Gather resolves STUN
// servers; Restart does not.
var stunResolveGroup singleflight.Group

func resolveStunServer(hostport string) (*net.UDPAddr, error) {
	v, err := stunResolveGroup.Do(hostport, func() (interface{}, error) {
		return net.ResolveUDPAddr("udp", hostport)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "ice: resolve STUN server %s", hostport)
	}
	return v.(*net.UDPAddr), nil
}

// gatherHostCandidates enumerates local addresses and returns one Host
// candidate per usable base, creating the underlying sockets.
func (a *Agent) gatherHostCandidates(mid string, component int) ([]*Base, []Candidate, error) {
	addrs, err := localInterfaceAddrs(a.config.IncludeLoopback, a.config.BindAddress)
	if err != nil {
		return nil, nil, err
	}
	if len(addrs) == 0 {
		return nil, nil, errors.Wrap(ErrNotAvailable, "ice: no usable local interface")
	}

	var bases []*Base
	var candidates []Candidate
	for _, ip := range addrs {
		base, err := createBase(ip, a.config.PortMin, a.config.PortMax)
		if err != nil {
			continue
		}
		bases = append(bases, base)
		candidates = append(candidates, makeHostCandidate(mid, component, base.transportAddr))
	}
	if len(bases) == 0 {
		return nil, nil, errors.Wrap(ErrNotAvailable, "ice: failed to bind any local socket")
	}
	return bases, candidates, nil
}

// gatherServerReflexive arms one Server entry per configured STUN server
// against each Base. Gathering is complete once
// every returned entry finishes (response or retries exhausted).
func (a *Agent) gatherServerReflexive(bases []*Base, mid string, component int) []*StunEntry {
	var entries []*StunEntry
	servers := a.config.StunServers
	if len(servers) > maxStunServerRecordsCount {
		servers = servers[:maxStunServerRecordsCount]
	}

	for _, base := range bases {
		for _, hostport := range servers {
			addr, err := resolveStunServer(hostport)
			if err != nil {
				a.log.Warn("ice: failed to resolve STUN server %s: %v", hostport, err)
				continue
			}
			e := &StunEntry{
				typ:    EntryServer,
				server: addr,
				base:   base.transportAddr,
			}
			e.arm(0)
			entries = append(entries, e)
			a.mu.Lock()
			a.entries.add(e)
			a.mu.Unlock()
		}
	}
	return entries
}

// sendOn writes raw bytes from base to dst, used for both STUN datagrams
// and, once a pair is selected, application data.
func sendOn(base *Base, dst net.Addr, data []byte) error {
	_, err := base.WriteTo(data, dst)
	return err
}
