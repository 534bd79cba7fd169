//go:build linux

package nat

import (
	"context"
	"fmt"

	"github.com/docker/docker/libnetwork/iptables"

	"wgbox/internal/command"
)

// Iptables programs legacy iptables/ip6tables chains. ProgramRule checks for
// an existing rule first, so insert and delete are both idempotent.
type Iptables struct {
	Runner command.Runner
}

func (Iptables) Name() string { return "iptables" }

func (b Iptables) Available(ctx context.Context) error {
	for _, tool := range []string{"iptables", "ip6tables"} {
		if _, err := b.Runner.Run(ctx, command.Cmd{Name: tool, Args: []string{"--version"}}); err != nil {
			return &MissingDependencyError{Tool: tool, Err: err}
		}
	}
	return nil
}

func version(f Family) iptables.IPVersion {
	if f == IPv6 {
		return iptables.IPv6
	}
	return iptables.IPv4
}

func masqueradeRule(r Rule) []string {
	return []string{"--src", r.Subnet.String(), "--out-interface", r.Egress, "-j", "MASQUERADE"}
}

func forwardRules(r Rule) [][]string {
	return [][]string{
		{"--in-interface", r.Interface, "-j", "ACCEPT"},
		{"--out-interface", r.Interface, "-j", "ACCEPT"},
	}
}

func (Iptables) Install(_ context.Context, r Rule) error {
	ipt := iptables.GetIptable(version(r.Family))
	if err := ipt.ProgramRule(iptables.Nat, "POSTROUTING", iptables.Insert, masqueradeRule(r)); err != nil {
		return fmt.Errorf("insert POSTROUTING rule: %w", err)
	}
	for _, rule := range forwardRules(r) {
		if err := ipt.ProgramRule(iptables.Filter, "FORWARD", iptables.Insert, rule); err != nil {
			return fmt.Errorf("insert FORWARD rule: %w", err)
		}
	}
	return nil
}

func (Iptables) Remove(_ context.Context, r Rule) error {
	ipt := iptables.GetIptable(version(r.Family))
	for _, rule := range forwardRules(r) {
		if err := ipt.ProgramRule(iptables.Filter, "FORWARD", iptables.Delete, rule); err != nil {
			return fmt.Errorf("delete FORWARD rule: %w", err)
		}
	}
	if err := ipt.ProgramRule(iptables.Nat, "POSTROUTING", iptables.Delete, masqueradeRule(r)); err != nil {
		return fmt.Errorf("delete POSTROUTING rule: %w", err)
	}
	return nil
}
