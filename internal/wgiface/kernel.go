package wgiface

import (
	"errors"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ErrLinkNotFound is returned by Kernel.LinkIndex for a missing link.
var ErrLinkNotFound = errors.New("link not found")

// Kernel is the link/address/route surface the controller needs. The netlink
// implementation already folds "exists" on add and "not found" on delete into
// success, so callers never inspect errno for idempotency.
type Kernel interface {
	LinkIndex(name string) (int, error)
	AddWireguardLink(name string) error
	DeleteLink(index int) error
	AddAddress(index int, addr netip.Prefix) error
	SetUp(index int) error
	AddRoute(index int, dst netip.Prefix) error
	DeleteRoute(index int, dst netip.Prefix) error
}

// ignoreExists maps "already exists" to success.
func ignoreExists(err error) error {
	if err == nil || errors.Is(err, unix.EEXIST) {
		return nil
	}
	return err
}

// ignoreNotFound maps the kernel's various "already gone" codes to success.
func ignoreNotFound(err error) error {
	if err == nil ||
		errors.Is(err, ErrLinkNotFound) ||
		errors.Is(err, unix.ENOENT) ||
		errors.Is(err, unix.ESRCH) ||
		errors.Is(err, unix.ENODEV) ||
		errors.Is(err, unix.EADDRNOTAVAIL) {
		return nil
	}
	return err
}
