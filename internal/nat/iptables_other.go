//go:build !linux

package nat

import (
	"context"

	"wgbox/internal/command"
)

type Iptables struct {
	Runner command.Runner
}

func (Iptables) Name() string { return "iptables" }

func (Iptables) Available(context.Context) error {
	return &MissingDependencyError{Tool: "iptables"}
}

func (Iptables) Install(context.Context, Rule) error { return &MissingDependencyError{Tool: "iptables"} }
func (Iptables) Remove(context.Context, Rule) error  { return nil }
