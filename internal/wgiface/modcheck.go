package wgiface

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"golang.org/x/sys/unix"
)

const CheckLinkName = "wg-check"

var (
	ErrInsufficientPrivileges = fmt.Errorf("wireguard interface creation failed: missing CAP_NET_ADMIN or insufficient privileges: %w", errdefs.ErrPermissionDenied)
	ErrModuleUnavailable      = fmt.Errorf("wireguard interface creation failed: kernel module not available: %w", errdefs.ErrUnavailable)
)

// CheckSupport creates and deletes a throwaway WireGuard link to prove the
// kernel module is loaded and the process may create links.
func CheckSupport(k Kernel) error {
	if idx, err := k.LinkIndex(CheckLinkName); err == nil {
		_ = k.DeleteLink(idx)
	}

	if err := k.AddWireguardLink(CheckLinkName); err != nil {
		switch {
		case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
			return fmt.Errorf("%w: %w", ErrInsufficientPrivileges, err)
		case errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.ENODEV),
			errors.Is(err, unix.ENOTSUP), errors.Is(err, errdefs.ErrNotImplemented):
			return fmt.Errorf("%w: %w", ErrModuleUnavailable, err)
		}
		return fmt.Errorf("wireguard module check: %w", err)
	}

	idx, err := k.LinkIndex(CheckLinkName)
	if err != nil {
		return fmt.Errorf("wireguard module check: %w", err)
	}
	if err := k.DeleteLink(idx); err != nil {
		return fmt.Errorf("remove %s: %w", CheckLinkName, err)
	}
	return nil
}
