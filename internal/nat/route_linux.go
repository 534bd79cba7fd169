//go:build linux

package nat

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Netlink finds the default route through the kernel routing table.
type Netlink struct{}

func (Netlink) DefaultEgress(f Family) (string, error) {
	family := netlink.FAMILY_V4
	if f == IPv6 {
		family = netlink.FAMILY_V6
	}
	routes, err := netlink.RouteList(nil, family)
	if err != nil {
		return "", fmt.Errorf("list routes: %w", err)
	}
	for _, r := range routes {
		if r.Dst != nil {
			if ones, _ := r.Dst.Mask.Size(); ones != 0 {
				continue
			}
		}
		if r.LinkIndex == 0 {
			continue
		}
		link, err := netlink.LinkByIndex(r.LinkIndex)
		if err != nil {
			return "", fmt.Errorf("find default route link %d: %w", r.LinkIndex, err)
		}
		return link.Attrs().Name, nil
	}
	return "", fmt.Errorf("no %s default route", f)
}
