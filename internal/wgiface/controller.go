package wgiface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgbox/internal/logging"
	"wgbox/internal/provision"
)

const DefaultName = "wg0"

// Handle identifies an interface created by Apply.
type Handle struct {
	Name      string
	LinkIndex int
}

// Controller brings one WireGuard interface up from a resolved configuration
// and takes it down again.
type Controller struct {
	Name   string
	Kernel Kernel
	Device Device

	phase Phase
	log   *slog.Logger
}

func NewController(name string, kernel Kernel, device Device) *Controller {
	if name == "" {
		name = DefaultName
	}
	return &Controller{Name: name, Kernel: kernel, Device: device, log: logging.Component("wgiface")}
}

func (c *Controller) Phase() Phase { return c.phase }

func (c *Controller) logger() *slog.Logger {
	if c.log == nil {
		c.log = logging.Component("wgiface")
	}
	return c.log
}

type peerRoutes struct {
	id       string
	prefixes []netip.Prefix
}

// Apply creates (or adopts) the link, assigns the server addresses, pushes
// the server key and every peer into the device, brings the link up and
// installs one route per peer address.
func (c *Controller) Apply(ctx context.Context, cfg *provision.ResolvedConfig) (Handle, error) {
	log := c.logger()
	h := Handle{Name: c.Name}

	idx, err := c.Kernel.LinkIndex(c.Name)
	if errors.Is(err, ErrLinkNotFound) {
		if err := c.Kernel.AddWireguardLink(c.Name); err != nil {
			return h, err
		}
		idx, err = c.Kernel.LinkIndex(c.Name)
	}
	if err != nil {
		return h, err
	}
	h.LinkIndex = idx
	c.phase = c.phase.Transition(Created)

	addrs, err := cfg.ServerAddresses()
	if err != nil {
		return h, err
	}
	for _, a := range addrs {
		if err := c.Kernel.AddAddress(idx, a); err != nil {
			return h, err
		}
	}
	c.phase = c.phase.Transition(AddressesAssigned)

	if err := ctx.Err(); err != nil {
		return h, err
	}

	routes, err := collectRoutes(cfg)
	if err != nil {
		return h, err
	}
	if err := c.configurePeers(cfg, routes); err != nil {
		return h, err
	}
	c.phase = c.phase.Transition(PeersConfigured)

	if err := c.Kernel.SetUp(idx); err != nil {
		return h, err
	}
	c.phase = c.phase.Transition(Up)

	for _, r := range routes {
		for _, p := range r.prefixes {
			if err := c.Kernel.AddRoute(idx, p); err != nil {
				return h, fmt.Errorf("route for %s: %w", r.id, err)
			}
		}
	}
	c.phase = c.phase.Transition(RoutesInstalled)

	log.Info("wireguard interface up", "name", c.Name, "index", idx, "peers", len(routes))
	return h, nil
}

func (c *Controller) configurePeers(cfg *provision.ResolvedConfig, routes []peerRoutes) error {
	priv, err := readKey(cfg.Paths.ServerPrivateKey())
	if err != nil {
		return fmt.Errorf("server private key: %w", err)
	}
	port := cfg.Server.ListenPort

	peers := make([]wgtypes.PeerConfig, 0, len(routes))
	for _, r := range routes {
		pub, err := readKey(cfg.Paths.PeerPublicKey(r.id))
		if err != nil {
			return fmt.Errorf("peer %s public key: %w", r.id, err)
		}
		psk, err := readKey(cfg.Paths.PeerPresharedKey(r.id))
		if err != nil {
			return fmt.Errorf("peer %s preshared key: %w", r.id, err)
		}
		peers = append(peers, wgtypes.PeerConfig{
			PublicKey:         pub,
			PresharedKey:      &psk,
			ReplaceAllowedIPs: true,
			AllowedIPs:        allowedIPs(r.prefixes),
		})
	}

	if err := c.Device.ConfigureDevice(c.Name, wgtypes.Config{
		PrivateKey: &priv,
		ListenPort: &port,
		Peers:      peers,
	}); err != nil {
		return fmt.Errorf("configure wireguard device %s: %w", c.Name, err)
	}
	return nil
}

// collectRoutes reads each peer's addresses from its client config. Peers
// without one are skipped.
func collectRoutes(cfg *provision.ResolvedConfig) ([]peerRoutes, error) {
	store := provision.DirStore{Paths: cfg.Paths}
	out := make([]peerRoutes, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		prefixes, err := store.Addresses(p.ID)
		if err != nil {
			return nil, err
		}
		if len(prefixes) == 0 {
			continue
		}
		out = append(out, peerRoutes{id: p.ID, prefixes: prefixes})
	}
	return out, nil
}

// Teardown removes peers, resets the listen port, deletes routes and the
// link. Every step runs even if an earlier one failed; failures are logged
// and returned joined.
func (c *Controller) Teardown(ctx context.Context, cfg *provision.ResolvedConfig, h Handle) error {
	log := c.logger()
	var errs []error
	fail := func(step string, err error) {
		log.Warn("teardown step failed", "step", step, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
	}

	routes, err := collectRoutes(cfg)
	if err != nil {
		fail("read peer addresses", err)
	}

	for _, r := range routes {
		pub, err := readKey(cfg.Paths.PeerPublicKey(r.id))
		if err != nil {
			log.Debug("skip peer removal", "peer", r.id, "err", err)
			continue
		}
		err = c.Device.ConfigureDevice(c.Name, wgtypes.Config{
			Peers: []wgtypes.PeerConfig{{PublicKey: pub, Remove: true}},
		})
		if err != nil {
			log.Warn("remove peer", "peer", r.id, "err", err)
		}
	}
	zero := 0
	if err := c.Device.ConfigureDevice(c.Name, wgtypes.Config{ListenPort: &zero}); err != nil {
		log.Warn("reset listen port", "err", err)
	}
	c.phase = c.phase.Transition(PeersRemoved)

	for _, r := range routes {
		for _, p := range r.prefixes {
			if err := c.Kernel.DeleteRoute(h.LinkIndex, p); err != nil {
				fail("delete route "+p.String(), err)
			}
		}
	}
	c.phase = c.phase.Transition(RoutesRemoved)

	if err := c.Kernel.DeleteLink(h.LinkIndex); err != nil {
		fail("delete link", err)
	}
	c.phase = c.phase.Transition(Deleted)

	if len(errs) == 0 {
		log.Info("wireguard interface removed", "name", c.Name)
	}
	return errors.Join(errs...)
}
