package config

import "github.com/containerd/errdefs"

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "invalid config: " + e.Field + ": " + e.Message
	}
	return "invalid config: " + e.Message
}

func (e *ValidationError) Unwrap() error { return errdefs.ErrInvalidArgument }
