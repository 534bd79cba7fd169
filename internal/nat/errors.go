package nat

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// MissingDependencyError reports that NAT is required but the firewall tool
// cannot be used.
type MissingDependencyError struct {
	Tool string
	Err  error
}

func (e *MissingDependencyError) Error() string {
	msg := fmt.Sprintf("NAT required but %s is not available", e.Tool)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingDependencyError) Unwrap() []error {
	if e.Err == nil {
		return []error{errdefs.ErrFailedPrecondition}
	}
	return []error{errdefs.ErrFailedPrecondition, e.Err}
}
