// Package config loads the concentrator configuration.
//
// The file lives at /etc/wg/wg.toml unless WG_CONFIG or --config points
// elsewhere. A missing file yields Default(). Files ending in .yaml or .yml are
// parsed as YAML, anything else as TOML. Environment variables override file
// values field by field (see ApplyEnv).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath       = "/etc/wg/wg.toml"
	DefaultEnvFile    = "/etc/wg/wg.env"
	DefaultListenPort = 51820
	DefaultSubnetV4   = "10.66.0.0/24"
)

// File is the on-disk configuration. The Server, Network, Peers and Runtime
// sections describe what to provision and feed the regeneration digest;
// Tools only selects how and is excluded from it.
type File struct {
	Server  Server  `toml:"server" yaml:"server" json:"server"`
	Network Network `toml:"network" yaml:"network" json:"network"`
	Peers   Peers   `toml:"peers" yaml:"peers" json:"peers"`
	Runtime Runtime `toml:"runtime" yaml:"runtime" json:"runtime"`
	Tools   Tools   `toml:"tools" yaml:"tools" json:"-"`
}

type Server struct {
	ListenPort      int     `toml:"listen_port" yaml:"listen_port" json:"listen_port"`
	ExternalAddress *string `toml:"external_address" yaml:"external_address" json:"external_address"`
}

type Network struct {
	SubnetV4   string   `toml:"subnet_v4" yaml:"subnet_v4" json:"subnet_v4"`
	SubnetV6   *string  `toml:"subnet_v6" yaml:"subnet_v6" json:"subnet_v6"`
	AllowedIPs []string `toml:"allowed_ips" yaml:"allowed_ips" json:"allowed_ips"`
	PeerDNS    []string `toml:"peer_dns" yaml:"peer_dns" json:"peer_dns"`
}

// Peers requests peers either by explicit names or by count. Names win when
// both are set and Names is non-empty.
type Peers struct {
	Count *int     `toml:"count" yaml:"count" json:"count"`
	Names []string `toml:"names" yaml:"names" json:"names"`
}

type Runtime struct {
	EnableCoreDNS bool `toml:"enable_coredns" yaml:"enable_coredns" json:"enable_coredns"`
	EmitQR        bool `toml:"emit_qr" yaml:"emit_qr" json:"emit_qr"`
}

// Tools selects backends for key generation, QR rendering, NAT and DNS.
type Tools struct {
	Keygen        string `toml:"keygen" yaml:"keygen"`
	QRRenderer    string `toml:"qr_renderer" yaml:"qr_renderer"`
	NATBackend    string `toml:"nat_backend" yaml:"nat_backend"`
	CoreDNSBinary string `toml:"coredns_binary" yaml:"coredns_binary"`
	Corefile      string `toml:"corefile" yaml:"corefile"`
	DNSProbe      string `toml:"dns_probe" yaml:"dns_probe"`
}

const (
	KeygenWG      = "wg"
	KeygenBuiltin = "builtin"

	QRQrencode = "qrencode"
	QRBuiltin  = "builtin"
	QRNone     = "none"

	NATNft      = "nft"
	NATIptables = "iptables"
)

func Default() File {
	return File{
		Server: Server{ListenPort: DefaultListenPort},
		Network: Network{
			SubnetV4:   DefaultSubnetV4,
			AllowedIPs: []string{"0.0.0.0/0", "::/0"},
			PeerDNS:    []string{},
		},
		Runtime: Runtime{EnableCoreDNS: true, EmitQR: true},
		Tools: Tools{
			Keygen:        KeygenWG,
			QRRenderer:    QRQrencode,
			NATBackend:    NATNft,
			CoreDNSBinary: "coredns",
		},
	}
}

// Path returns the config file location: WG_CONFIG when set and non-blank,
// otherwise DefaultPath.
func Path() string {
	if p := strings.TrimSpace(os.Getenv("WG_CONFIG")); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path on top of Default(). A missing file is not an error.
func Load(path string) (File, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return File{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return File{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks the fields that cannot be defaulted away.
func (f File) Validate() error {
	if f.Server.ListenPort < 0 || f.Server.ListenPort > 65535 {
		return &ValidationError{Field: "server.listen_port", Message: fmt.Sprintf("%d out of range", f.Server.ListenPort)}
	}
	if strings.TrimSpace(f.Network.SubnetV4) == "" {
		return &ValidationError{Field: "network.subnet_v4", Message: "required"}
	}
	if f.Peers.Count != nil && *f.Peers.Count < 0 {
		return &ValidationError{Field: "peers.count", Message: "must not be negative"}
	}
	switch f.Tools.Keygen {
	case "", KeygenWG, KeygenBuiltin:
	default:
		return &ValidationError{Field: "tools.keygen", Message: fmt.Sprintf("unknown generator %q", f.Tools.Keygen)}
	}
	switch f.Tools.QRRenderer {
	case "", QRQrencode, QRBuiltin, QRNone:
	default:
		return &ValidationError{Field: "tools.qr_renderer", Message: fmt.Sprintf("unknown renderer %q", f.Tools.QRRenderer)}
	}
	switch f.Tools.NATBackend {
	case "", NATNft, NATIptables:
	default:
		return &ValidationError{Field: "tools.nat_backend", Message: fmt.Sprintf("unknown backend %q", f.Tools.NATBackend)}
	}
	return nil
}

// ExternalHost returns the configured endpoint host, or "" when unset.
func (s Server) ExternalHost() string {
	if s.ExternalAddress == nil {
		return ""
	}
	return strings.TrimSpace(*s.ExternalAddress)
}
