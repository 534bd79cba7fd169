// Package provision turns a configuration into on-disk WireGuard identity:
// peer ids, key material, addresses and rendered configs under a state root.
//
// Layout under the root:
//
//	keys/server.key, keys/server.pub
//	peers/<id>/private.key, public.key, preshared.key, client.conf, client.png
//	server/server.conf
//	state/inputs.json
//
// Key files are never overwritten once present. Peer addresses are not stored
// anywhere else: the Address line of each client.conf is the record.
package provision

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"wgbox/internal/config"
)

const DefaultRoot = "/var/lib/wg"

const (
	serverKeyFile  = "server.key"
	serverPubFile  = "server.pub"
	privateKeyFile = "private.key"
	publicKeyFile  = "public.key"
	presharedFile  = "preshared.key"
	clientConfFile = "client.conf"
	clientPNGFile  = "client.png"
	serverConfFile = "server.conf"
	inputsFile     = "inputs.json"
)

// Paths is the fixed directory layout derived from a single root.
type Paths struct {
	Root   string
	Keys   string
	Peers  string
	Server string
	State  string
}

func NewPaths(root string) Paths {
	if root == "" {
		root = DefaultRoot
	}
	return Paths{
		Root:   root,
		Keys:   filepath.Join(root, "keys"),
		Peers:  filepath.Join(root, "peers"),
		Server: filepath.Join(root, "server"),
		State:  filepath.Join(root, "state"),
	}
}

// Ensure creates every directory of the layout.
func (p Paths) Ensure() error {
	dirs := []struct {
		path string
		perm os.FileMode
	}{
		{p.Root, 0o755},
		{p.Keys, 0o700},
		{p.Peers, 0o700},
		{p.Server, 0o700},
		{p.State, 0o755},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, d.perm); err != nil {
			return fmt.Errorf("create directory %s: %w", d.path, err)
		}
	}
	return nil
}

func (p Paths) ServerPrivateKey() string { return filepath.Join(p.Keys, serverKeyFile) }
func (p Paths) ServerPublicKey() string  { return filepath.Join(p.Keys, serverPubFile) }
func (p Paths) ServerConf() string       { return filepath.Join(p.Server, serverConfFile) }
func (p Paths) InputsState() string      { return filepath.Join(p.State, inputsFile) }
func (p Paths) PeerDir(id string) string { return filepath.Join(p.Peers, id) }

func (p Paths) PeerPublicKey(id string) string {
	return filepath.Join(p.PeerDir(id), publicKeyFile)
}

func (p Paths) PeerPresharedKey(id string) string {
	return filepath.Join(p.PeerDir(id), presharedFile)
}

func (p Paths) PeerClientConf(id string) string {
	return filepath.Join(p.PeerDir(id), clientConfFile)
}

// Peer is an identity only. Its id is also its directory name.
type Peer struct {
	ID string `json:"id"`
}

type KeyPair struct {
	Private string
	Public  string
}

type RuntimeFlags struct {
	EnableCoreDNS bool
}

// ResolvedConfig is the immutable result of Prepare.
type ResolvedConfig struct {
	Server  config.Server
	Network config.Network
	Peers   []Peer
	Runtime RuntimeFlags
	Paths   Paths

	SubnetV4 netip.Prefix
	// SubnetV6 is the zero Prefix when no IPv6 subnet is configured.
	SubnetV6 netip.Prefix
}

// ServerAddresses returns the server's interface addresses: the first host of
// each configured subnet as a single-address prefix.
func (c *ResolvedConfig) ServerAddresses() ([]netip.Prefix, error) {
	subnets := []netip.Prefix{c.SubnetV4}
	if c.SubnetV6.IsValid() {
		subnets = append(subnets, c.SubnetV6)
	}
	out := make([]netip.Prefix, 0, len(subnets))
	for _, subnet := range subnets {
		addr, err := FirstHost(subnet)
		if err != nil {
			return nil, err
		}
		out = append(out, SingleIPPrefix(addr))
	}
	return out, nil
}

// ParseSubnets validates and normalizes the configured subnets.
func ParseSubnets(n config.Network) (v4, v6 netip.Prefix, err error) {
	v4, err = netip.ParsePrefix(n.SubnetV4)
	if err != nil || !v4.Addr().Is4() {
		return netip.Prefix{}, netip.Prefix{}, &config.ValidationError{
			Field:   "network.subnet_v4",
			Message: fmt.Sprintf("%q is not an IPv4 CIDR", n.SubnetV4),
		}
	}
	v4 = v4.Masked()

	if n.SubnetV6 == nil || *n.SubnetV6 == "" {
		return v4, netip.Prefix{}, nil
	}
	v6, err = netip.ParsePrefix(*n.SubnetV6)
	if err != nil || !v6.Addr().Is6() || v6.Addr().Is4In6() {
		return netip.Prefix{}, netip.Prefix{}, &config.ValidationError{
			Field:   "network.subnet_v6",
			Message: fmt.Sprintf("%q is not an IPv6 CIDR", *n.SubnetV6),
		}
	}
	return v4, v6.Masked(), nil
}

func SingleIPPrefix(addr netip.Addr) netip.Prefix {
	return netip.PrefixFrom(addr, addr.BitLen())
}
