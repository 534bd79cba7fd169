//go:build linux

package wgiface

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// Netlink drives the host kernel through rtnetlink.
type Netlink struct{}

func NewKernel() Kernel { return Netlink{} }

func (Netlink) LinkIndex(name string) (int, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return 0, fmt.Errorf("%s: %w", name, ErrLinkNotFound)
		}
		return 0, fmt.Errorf("find link %q: %w", name, err)
	}
	return link.Attrs().Index, nil
}

func (Netlink) AddWireguardLink(name string) error {
	link := &netlink.GenericLink{LinkAttrs: netlink.LinkAttrs{Name: name}, LinkType: "wireguard"}
	if err := ignoreExists(netlink.LinkAdd(link)); err != nil {
		return fmt.Errorf("create wireguard link %q: %w", name, err)
	}
	return nil
}

func (Netlink) DeleteLink(index int) error {
	link, err := netlink.LinkByIndex(index)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if err := ignoreNotFound(err); err != nil {
			return fmt.Errorf("find link %d: %w", index, err)
		}
		return nil
	}
	if err := ignoreNotFound(netlink.LinkDel(link)); err != nil {
		return fmt.Errorf("delete link %s: %w", link.Attrs().Name, err)
	}
	return nil
}

func (Netlink) AddAddress(index int, addr netip.Prefix) error {
	link, err := netlink.LinkByIndex(index)
	if err != nil {
		return fmt.Errorf("find link %d: %w", index, err)
	}
	a := &netlink.Addr{IPNet: ipNet(addr)}
	if err := ignoreExists(netlink.AddrAdd(link, a)); err != nil {
		return fmt.Errorf("add address %s: %w", addr, err)
	}
	return nil
}

func (Netlink) SetUp(index int) error {
	link, err := netlink.LinkByIndex(index)
	if err != nil {
		return fmt.Errorf("find link %d: %w", index, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set link %s up: %w", link.Attrs().Name, err)
	}
	return nil
}

func (Netlink) AddRoute(index int, dst netip.Prefix) error {
	r := &netlink.Route{LinkIndex: index, Scope: netlink.SCOPE_LINK, Dst: ipNet(dst)}
	if err := ignoreExists(netlink.RouteAdd(r)); err != nil {
		return fmt.Errorf("add route %s: %w", dst, err)
	}
	return nil
}

func (Netlink) DeleteRoute(index int, dst netip.Prefix) error {
	r := &netlink.Route{LinkIndex: index, Scope: netlink.SCOPE_LINK, Dst: ipNet(dst)}
	if err := ignoreNotFound(netlink.RouteDel(r)); err != nil {
		return fmt.Errorf("delete route %s: %w", dst, err)
	}
	return nil
}

func ipNet(p netip.Prefix) *net.IPNet {
	n := allowedIPs([]netip.Prefix{p})[0]
	return &n
}
