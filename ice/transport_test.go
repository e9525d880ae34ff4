package ice

import (
	"net"
	"testing"
)

func TestTransportAddressEqual(t *testing.T) {
	a := TransportAddress{protocol: "udp", ip: net.ParseIP("192.168.1.5"), port: 1000}
	b := TransportAddress{protocol: "udp", ip: net.ParseIP("192.168.1.5"), port: 1000}
	c := TransportAddress{protocol: "udp", ip: net.ParseIP("192.168.1.6"), port: 1000}

	if !a.equal(b) {
		t.Error("expected equal addresses to compare equal")
	}
	if a.equal(c) {
		t.Error("expected different IPs to compare unequal")
	}
}

func TestTransportAddressIsIPv6(t *testing.T) {
	v4 := TransportAddress{ip: net.ParseIP("10.0.0.1")}
	v6 := TransportAddress{ip: net.ParseIP("2001:db8::1")}

	if v4.isIPv6() {
		t.Error("expected IPv4 address to report isIPv6() == false")
	}
	if !v6.isIPv6() {
		t.Error("expected IPv6 address to report isIPv6() == true")
	}
}

func TestTransportAddressString(t *testing.T) {
	a := TransportAddress{protocol: "udp", ip: net.ParseIP("192.168.1.5"), port: 1000}
	want := "udp/192.168.1.5:1000"
	if got := a.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
