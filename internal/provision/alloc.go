package provision

import (
	"fmt"
	"net/netip"
)

// hostRange returns the first and last usable host of subnet. IPv4 excludes
// the network and broadcast addresses except on /31 and /32; IPv6 excludes
// the all-zeros subnet-router address except on /127 and /128.
func hostRange(subnet netip.Prefix) (first, last netip.Addr, ok bool) {
	subnet = subnet.Masked()
	network := subnet.Addr()
	broadcast := lastAddr(subnet)
	if subnet.Bits() >= network.BitLen()-1 {
		return network, broadcast, true
	}
	first = network.Next()
	last = broadcast
	if network.Is4() {
		last = broadcast.Prev()
	}
	return first, last, first.IsValid() && last.IsValid()
}

func lastAddr(p netip.Prefix) netip.Addr {
	a := p.Addr()
	if a.Is4() {
		b := a.As4()
		setHostBits(b[:], p.Bits())
		return netip.AddrFrom4(b)
	}
	b := a.As16()
	setHostBits(b[:], p.Bits())
	return netip.AddrFrom16(b)
}

func setHostBits(b []byte, bits int) {
	for i := range b {
		keep := bits - i*8
		switch {
		case keep >= 8:
			continue
		case keep <= 0:
			b[i] = 0xff
		default:
			b[i] |= 0xff >> keep
		}
	}
}

// FirstHost returns the subnet address reserved for the server.
func FirstHost(subnet netip.Prefix) (netip.Addr, error) {
	first, _, ok := hostRange(subnet)
	if !ok {
		return netip.Addr{}, fmt.Errorf("subnet %s has no usable host address", subnet)
	}
	return first, nil
}

// Allocate returns the lowest host of subnet that is neither the server's
// first host nor present in assigned.
func Allocate(subnet netip.Prefix, assigned map[netip.Addr]string) (netip.Addr, error) {
	first, last, ok := hostRange(subnet)
	if !ok {
		return netip.Addr{}, &PoolExhaustedError{Subnet: subnet}
	}
	for a := first; a.IsValid(); a = a.Next() {
		if a != first {
			if _, taken := assigned[a]; !taken {
				return a, nil
			}
		}
		if a == last {
			break
		}
	}
	return netip.Addr{}, &PoolExhaustedError{Subnet: subnet}
}
