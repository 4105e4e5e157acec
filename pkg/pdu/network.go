package pdu

import (
	"net/netip"

	"avaneesh/dcp-go/pkg/types"
)

// IPv4Address builds a network address for UDP_IPv4 or TCP_IPv4 from ap.
// The IPv4 address is stored as its big-endian numeric value.
func IPv4Address(protocol types.TransportProtocol, ap netip.AddrPort) NetworkAddress {
	a4 := ap.Addr().Unmap().As4()
	return NetworkAddress{
		Protocol: protocol,
		Port:     ap.Port(),
		IP:       uint32(a4[0])<<24 | uint32(a4[1])<<16 | uint32(a4[2])<<8 | uint32(a4[3]),
	}
}

// AddrPort returns the IPv4 endpoint of a, or false if a carries no IPv4 address
func (a NetworkAddress) AddrPort() (netip.AddrPort, bool) {
	if !a.Protocol.HasIPv4Address() {
		return netip.AddrPort{}, false
	}
	ip := netip.AddrFrom4([4]byte{byte(a.IP >> 24), byte(a.IP >> 16), byte(a.IP >> 8), byte(a.IP)})
	return netip.AddrPortFrom(ip, a.Port), true
}

// String returns a printable form of the address
func (a NetworkAddress) String() string {
	if ap, ok := a.AddrPort(); ok {
		return a.Protocol.String() + "://" + ap.String()
	}
	return a.Protocol.String()
}
