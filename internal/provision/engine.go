package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"

	"wgbox/internal/config"
)

// Engine composes peer resolution, credentials, allocation, rendering and the
// digest gate into Prepare.
type Engine struct {
	Paths Paths
	Store PeerStore
	Keys  KeyGenerator
	QR    QRRenderer
	// Out receives terminal QR codes.
	Out    io.Writer
	Writer *Writer
}

// NewEngine wires an engine over the directory layout at root.
func NewEngine(root string, keys KeyGenerator, qr QRRenderer, out io.Writer) *Engine {
	paths := NewPaths(root)
	if out == nil {
		out = io.Discard
	}
	if qr == nil {
		qr = NoQR{}
	}
	return &Engine{
		Paths:  paths,
		Store:  DirStore{Paths: paths},
		Keys:   keys,
		QR:     qr,
		Out:    out,
		Writer: &Writer{},
	}
}

// Result is the outcome of Prepare.
type Result struct {
	Config      *ResolvedConfig
	Regenerated bool
	Digest      string
}

// Prepare resolves peers, ensures the directory layout and regenerates keys
// and configs when the input digest changed or any required asset is
// missing. The new digest is persisted only after a successful regeneration.
func (e *Engine) Prepare(ctx context.Context, cfg config.File) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v4, v6, err := ParseSubnets(cfg.Network)
	if err != nil {
		return nil, err
	}
	if err := e.Paths.Ensure(); err != nil {
		return nil, err
	}

	peers, err := ResolvePeers(cfg.Peers, e.Store)
	if err != nil {
		return nil, fmt.Errorf("resolve peers: %w", err)
	}

	digest, inputs, err := Digest(cfg)
	if err != nil {
		return nil, err
	}
	gate := Gate{Path: e.Paths.InputsState(), Writer: e.Writer}
	changed, err := gate.Changed(digest)
	if err != nil {
		return nil, err
	}
	missing := AssetsMissing(e.Paths, peers)

	regen := changed || missing
	if regen {
		slog.Info("regenerating configuration", "inputs_changed", changed, "assets_missing", missing, "peers", len(peers))
		if err := e.generate(ctx, cfg, peers, v4, v6); err != nil {
			return nil, err
		}
		if err := gate.Save(digest, inputs); err != nil {
			return nil, err
		}
	} else {
		slog.Info("configuration up to date", "peers", len(peers))
	}

	return &Result{
		Config: &ResolvedConfig{
			Server:   cfg.Server,
			Network:  cfg.Network,
			Peers:    peers,
			Runtime:  RuntimeFlags{EnableCoreDNS: cfg.Runtime.EnableCoreDNS},
			Paths:    e.Paths,
			SubnetV4: v4,
			SubnetV6: v6,
		},
		Regenerated: regen,
		Digest:      digest,
	}, nil
}

func (e *Engine) generate(ctx context.Context, cfg config.File, peers []Peer, v4, v6 netip.Prefix) error {
	external := cfg.Server.ExternalHost()
	if len(peers) > 0 && external == "" {
		return ErrMissingExternalAddress
	}

	creds := Credentials{Keys: e.Keys, Writer: e.Writer}
	serverKeys, err := creds.EnsureServerKeys(ctx, e.Paths)
	if err != nil {
		return err
	}

	subnets := []netip.Prefix{v4}
	if v6.IsValid() {
		subnets = append(subnets, v6)
	}
	serverAddrs := make([]netip.Prefix, 0, len(subnets))
	for _, s := range subnets {
		a, err := FirstHost(s)
		if err != nil {
			return err
		}
		serverAddrs = append(serverAddrs, SingleIPPrefix(a))
	}

	plan, err := e.planAddresses(peers, subnets)
	if err != nil {
		return err
	}

	srv := serverConf{
		Addresses:  serverAddrs,
		ListenPort: cfg.Server.ListenPort,
		PrivateKey: serverKeys.Private,
	}
	peerKeys := make([]KeyPair, len(peers))
	for i, p := range peers {
		kp, err := creds.EnsurePeerKeys(ctx, e.Paths, p.ID)
		if err != nil {
			return err
		}
		psk, err := readKey(e.Paths.PeerPresharedKey(p.ID))
		if err != nil {
			return fmt.Errorf("peer %s preshared key: %w", p.ID, err)
		}
		peerKeys[i] = kp
		srv.Peers = append(srv.Peers, serverPeer{
			PublicKey:    kp.Public,
			PresharedKey: psk,
			AllowedIPs:   plan[i],
		})
	}

	data, err := renderServerConf(srv)
	if err != nil {
		return err
	}
	if err := e.Writer.WriteFile(e.Paths.ServerConf(), data, 0o600); err != nil {
		return err
	}

	for i, p := range peers {
		data, err := renderClientConf(clientConf{
			Addresses:       plan[i],
			PrivateKey:      peerKeys[i].Private,
			DNS:             cfg.Network.PeerDNS,
			ServerPublicKey: serverKeys.Public,
			Endpoint:        endpoint(external, cfg.Server.ListenPort),
			AllowedIPs:      cfg.Network.AllowedIPs,
		})
		if err != nil {
			return fmt.Errorf("peer %s: %w", p.ID, err)
		}
		confPath := e.Paths.PeerClientConf(p.ID)
		if err := e.Writer.WriteFile(confPath, data, 0o600); err != nil {
			return err
		}
		slog.Info("peer config written", "peer", p.ID, "address", plan[i])

		if cfg.Runtime.EmitQR {
			if err := e.emitQR(ctx, p.ID, confPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// planAddresses gives each peer one address per subnet. A peer keeps the
// address in its own client config when it is still a usable host of the
// subnet and no earlier peer claimed it; everyone else draws the next free
// host.
func (e *Engine) planAddresses(peers []Peer, subnets []netip.Prefix) ([][]netip.Prefix, error) {
	assigned, existing, err := GatherAssigned(e.Store)
	if err != nil {
		return nil, err
	}

	claimed := map[netip.Addr]string{}
	plan := make([][]netip.Prefix, len(peers))
	for i, p := range peers {
		for _, subnet := range subnets {
			addr, ok := keepAddress(p.ID, subnet, existing[p.ID], claimed)
			if !ok {
				pool := assigned.V4
				if subnet.Addr().Is6() {
					pool = assigned.V6
				}
				addr, err = Allocate(subnet, pool)
				if err != nil {
					return nil, err
				}
				assigned.Claim(addr, p.ID)
			}
			claimed[addr] = p.ID
			plan[i] = append(plan[i], SingleIPPrefix(addr))
		}
	}
	return plan, nil
}

func keepAddress(id string, subnet netip.Prefix, current []netip.Prefix, claimed map[netip.Addr]string) (netip.Addr, bool) {
	first, last, ok := hostRange(subnet)
	if !ok {
		return netip.Addr{}, false
	}
	for _, pref := range current {
		a := pref.Addr()
		if a.Is4() != subnet.Addr().Is4() {
			continue
		}
		if a.Compare(first) <= 0 || a.Compare(last) > 0 {
			slog.Warn("peer address outside usable range, reallocating", "peer", id, "address", a, "subnet", subnet)
			return netip.Addr{}, false
		}
		if owner, taken := claimed[a]; taken {
			slog.Warn("peer address already held, reallocating", "peer", id, "address", a, "owner", owner)
			return netip.Addr{}, false
		}
		return a, true
	}
	return netip.Addr{}, false
}

func (e *Engine) emitQR(ctx context.Context, id, confPath string) error {
	if _, err := fmt.Fprintf(e.Out, "%s\n", id); err != nil {
		return err
	}
	if err := e.QR.Terminal(ctx, confPath, e.Out); err != nil {
		return fmt.Errorf("peer %s: %w", id, err)
	}
	if err := e.QR.PNG(ctx, confPath, filepath.Join(e.Paths.PeerDir(id), clientPNGFile)); err != nil {
		return fmt.Errorf("peer %s: %w", id, err)
	}
	return nil
}

// PeerInfo describes a provisioned peer for reporting.
type PeerInfo struct {
	ID        string
	PublicKey string
	Addresses []netip.Prefix
}

// Describe reads back what is on disk for each resolved peer.
func (e *Engine) Describe(rc *ResolvedConfig) ([]PeerInfo, error) {
	out := make([]PeerInfo, 0, len(rc.Peers))
	for _, p := range rc.Peers {
		addrs, err := e.Store.Addresses(p.ID)
		if err != nil {
			return nil, err
		}
		pub, err := readKey(rc.Paths.PeerPublicKey(p.ID))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		out = append(out, PeerInfo{ID: p.ID, PublicKey: pub, Addresses: addrs})
	}
	return out, nil
}
