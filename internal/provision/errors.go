package provision

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/containerd/errdefs"
)

// ErrMissingExternalAddress is returned when client configs must be rendered
// but server.external_address is unset.
var ErrMissingExternalAddress = fmt.Errorf("server.external_address must be set to generate peer configs: %w", errdefs.ErrInvalidArgument)

// DuplicateIdentityError reports two configured names that map to one peer id.
type DuplicateIdentityError struct {
	Name string
	ID   string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate peer name after slugging: %q (id %s)", e.Name, e.ID)
}

func (e *DuplicateIdentityError) Unwrap() error { return errdefs.ErrConflict }

// PoolExhaustedError reports that a subnet has no free host address left.
type PoolExhaustedError struct {
	Subnet netip.Prefix
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("no free address in subnet %s", e.Subnet)
}

func (e *PoolExhaustedError) Unwrap() error { return errdefs.ErrResourceExhausted }

func IsPoolExhausted(err error) bool {
	var target *PoolExhaustedError
	return errors.As(err, &target)
}
