// Package nat installs masquerading and forward-accept rules for the VPN
// subnet when the peer set routes its default traffic through the server.
package nat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"wgbox/internal/logging"
	"wgbox/internal/provision"
)

type Family uint8

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Rule is everything a backend needs to install NAT for one family.
type Rule struct {
	Family Family
	// Subnet is the VPN subnet whose source addresses are masqueraded.
	Subnet netip.Prefix
	// Egress is the host's default-route device.
	Egress string
	// Interface is the WireGuard device forwarded in both directions.
	Interface string
}

// Backend programs the host firewall. Install replaces any earlier rules for
// the same family; Remove treats already-absent rules as success.
type Backend interface {
	Name() string
	Available(ctx context.Context) error
	Install(ctx context.Context, r Rule) error
	Remove(ctx context.Context, r Rule) error
}

// RouteFinder reports the device carrying the default route.
type RouteFinder interface {
	DefaultEgress(f Family) (string, error)
}

// Handles lists the rules Apply installed, for Teardown.
type Handles struct {
	Rules []Rule
}

// Required reports which families need NAT: a family is required when the
// allowed-IPs handed to peers contain its default route.
func Required(allowedIPs []string) (v4, v6 bool) {
	for _, s := range allowedIPs {
		p, err := netip.ParsePrefix(s)
		if err != nil || p.Bits() != 0 {
			continue
		}
		if p.Addr().Is4() {
			v4 = true
		} else {
			v6 = true
		}
	}
	return v4, v6
}

type Controller struct {
	Backend   Backend
	Routes    RouteFinder
	Interface string

	log *slog.Logger
}

func NewController(backend Backend, routes RouteFinder, iface string) *Controller {
	return &Controller{Backend: backend, Routes: routes, Interface: iface, log: logging.Component("nat")}
}

func (c *Controller) logger() *slog.Logger {
	if c.log == nil {
		c.log = logging.Component("nat")
	}
	return c.log
}

// Apply installs rules for every required family. Nothing is touched, and
// the backend is never probed, when no family is required.
func (c *Controller) Apply(ctx context.Context, cfg *provision.ResolvedConfig) (Handles, error) {
	log := c.logger()
	wantV4, wantV6 := Required(cfg.Network.AllowedIPs)
	if wantV6 && !cfg.SubnetV6.IsValid() {
		log.Warn("ipv6 default route requested without subnet_v6, skipping ipv6 nat")
		wantV6 = false
	}

	var rules []Rule
	if wantV4 {
		rules = append(rules, Rule{Family: IPv4, Subnet: cfg.SubnetV4, Interface: c.Interface})
	}
	if wantV6 {
		rules = append(rules, Rule{Family: IPv6, Subnet: cfg.SubnetV6, Interface: c.Interface})
	}
	if len(rules) == 0 {
		log.Debug("nat not required")
		return Handles{}, nil
	}

	if err := c.Backend.Available(ctx); err != nil {
		return Handles{}, err
	}

	var h Handles
	for _, r := range rules {
		egress, err := c.Routes.DefaultEgress(r.Family)
		if err != nil {
			return h, fmt.Errorf("find %s egress device: %w", r.Family, err)
		}
		r.Egress = egress
		if err := c.Backend.Install(ctx, r); err != nil {
			return h, fmt.Errorf("install %s NAT: %w", r.Family, err)
		}
		h.Rules = append(h.Rules, r)
		log.Info("nat installed", "family", r.Family, "backend", c.Backend.Name(),
			"subnet", r.Subnet, "egress", egress)
	}
	return h, nil
}

// Teardown removes every installed rule set, continuing past failures.
func (c *Controller) Teardown(ctx context.Context, h Handles) error {
	log := c.logger()
	var errs []error
	for i := len(h.Rules) - 1; i >= 0; i-- {
		r := h.Rules[i]
		if err := c.Backend.Remove(ctx, r); err != nil {
			log.Warn("remove NAT failed", "family", r.Family, "err", err)
			errs = append(errs, fmt.Errorf("remove %s NAT: %w", r.Family, err))
			continue
		}
		log.Info("nat removed", "family", r.Family)
	}
	return errors.Join(errs...)
}
