package wgiface

import "wgbox/internal/check"

// Phase tracks how far the controller has driven the kernel interface.
type Phase uint8

const (
	Absent Phase = iota
	Created
	AddressesAssigned
	PeersConfigured
	Up
	RoutesInstalled
	PeersRemoved
	RoutesRemoved
	Deleted
)

func (p Phase) String() string {
	switch p {
	case Absent:
		return "absent"
	case Created:
		return "created"
	case AddressesAssigned:
		return "addresses-assigned"
	case PeersConfigured:
		return "peers-configured"
	case Up:
		return "up"
	case RoutesInstalled:
		return "routes-installed"
	case PeersRemoved:
		return "peers-removed"
	case RoutesRemoved:
		return "routes-removed"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Transition moves along the apply path, or onto the teardown path from any
// phase where the link may exist. Any apply-path phase may restart at
// Created so that a second Apply on the same controller is legal.
func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case Absent, Deleted:
		ok = to == Created || to == PeersRemoved
	case Created:
		ok = to == AddressesAssigned || to == PeersRemoved || to == Created
	case AddressesAssigned:
		ok = to == PeersConfigured || to == PeersRemoved || to == Created
	case PeersConfigured:
		ok = to == Up || to == PeersRemoved || to == Created
	case Up:
		ok = to == RoutesInstalled || to == PeersRemoved || to == Created
	case RoutesInstalled:
		ok = to == PeersRemoved || to == Created
	case PeersRemoved:
		ok = to == RoutesRemoved
	case RoutesRemoved:
		ok = to == Deleted
	}
	check.Assertf(ok, "wireguard interface transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}
