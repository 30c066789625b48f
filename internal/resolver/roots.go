package resolver

import "net/netip"

// RootServers are the IPv4 addresses of a.root-servers.net through
// m.root-servers.net.
var RootServers = []netip.Addr{
	netip.AddrFrom4([4]byte{198, 41, 0, 4}),     // a
	netip.AddrFrom4([4]byte{170, 247, 170, 2}),  // b
	netip.AddrFrom4([4]byte{192, 33, 4, 12}),    // c
	netip.AddrFrom4([4]byte{199, 7, 91, 13}),    // d
	netip.AddrFrom4([4]byte{192, 203, 230, 10}), // e
	netip.AddrFrom4([4]byte{192, 5, 5, 241}),    // f
	netip.AddrFrom4([4]byte{192, 112, 36, 4}),   // g
	netip.AddrFrom4([4]byte{198, 97, 190, 53}),  // h
	netip.AddrFrom4([4]byte{192, 36, 148, 17}),  // i
	netip.AddrFrom4([4]byte{192, 58, 128, 30}),  // j
	netip.AddrFrom4([4]byte{193, 0, 14, 129}),   // k
	netip.AddrFrom4([4]byte{199, 7, 83, 42}),    // l
	netip.AddrFrom4([4]byte{202, 12, 27, 33}),   // m
}

// ParseRootServers parses a list of IPv4 addresses. An empty list yields
// RootServers.
func ParseRootServers(list []string) ([]netip.Addr, error) {
	if len(list) == 0 {
		return RootServers, nil
	}
	out := make([]netip.Addr, 0, len(list))
	for _, s := range list {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
