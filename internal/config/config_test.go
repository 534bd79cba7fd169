package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "wg.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTOMLKeepsUnsetDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wg.toml")
	writeFile(t, path, `
[server]
external_address = "vpn.example.com"

[network]
subnet_v6 = "fd42::/64"
peer_dns = ["1.1.1.1"]

[peers]
names = ["Laptop", "Phone"]

[runtime]
emit_qr = false
enable_coredns = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenPort != DefaultListenPort {
		t.Fatalf("listen port = %d, want %d", cfg.Server.ListenPort, DefaultListenPort)
	}
	if got := cfg.Server.ExternalHost(); got != "vpn.example.com" {
		t.Fatalf("external host = %q", got)
	}
	if cfg.Network.SubnetV4 != DefaultSubnetV4 {
		t.Fatalf("subnet_v4 = %q, want default", cfg.Network.SubnetV4)
	}
	if cfg.Network.SubnetV6 == nil || *cfg.Network.SubnetV6 != "fd42::/64" {
		t.Fatalf("subnet_v6 = %v", cfg.Network.SubnetV6)
	}
	if diff := cmp.Diff([]string{"Laptop", "Phone"}, cfg.Peers.Names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if cfg.Runtime.EmitQR {
		t.Fatal("emit_qr = true, want false")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wg.yaml")
	writeFile(t, path, `
server:
  listen_port: 51000
peers:
  count: 3
tools:
  nat_backend: iptables
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenPort != 51000 {
		t.Fatalf("listen port = %d, want 51000", cfg.Server.ListenPort)
	}
	if cfg.Peers.Count == nil || *cfg.Peers.Count != 3 {
		t.Fatalf("count = %v, want 3", cfg.Peers.Count)
	}
	if cfg.Tools.NATBackend != NATIptables {
		t.Fatalf("nat backend = %q", cfg.Tools.NATBackend)
	}
}

func TestLoadRejectsBrokenTOML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wg.toml")
	writeFile(t, path, "[server\nlisten_port = ")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	vars := map[string]string{
		"WG_LISTEN_PORT":      "40000",
		"WG_EXTERNAL_ADDRESS": "203.0.113.7",
		"WG_ALLOWED_IPS":      " 10.0.0.0/8 , ,192.168.0.0/16",
		"WG_PEER_COUNT":       "2",
		"WG_PEER_NAMES":       " , ",
		"WG_ENABLE_COREDNS":   "no",
		"WG_EMIT_QR":          "maybe",
		"WG_SUBNET_V4":        "",
		"WG_QR_RENDERER":      "builtin",
	}
	lookup := func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}

	cfg := Default()
	cfg.ApplyEnv(lookup)

	if cfg.Server.ListenPort != 40000 {
		t.Fatalf("listen port = %d", cfg.Server.ListenPort)
	}
	if cfg.Server.ExternalHost() != "203.0.113.7" {
		t.Fatalf("external host = %q", cfg.Server.ExternalHost())
	}
	if diff := cmp.Diff([]string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Network.AllowedIPs); diff != "" {
		t.Fatalf("allowed ips mismatch (-want +got):\n%s", diff)
	}
	if cfg.Peers.Count == nil || *cfg.Peers.Count != 2 {
		t.Fatalf("count = %v", cfg.Peers.Count)
	}
	if cfg.Peers.Names != nil {
		t.Fatalf("names = %v, want nil for an empty list", cfg.Peers.Names)
	}
	if cfg.Runtime.EnableCoreDNS {
		t.Fatal("enable_coredns = true, want false")
	}
	if !cfg.Runtime.EmitQR {
		t.Fatal("emit_qr changed by unparsable token")
	}
	if cfg.Network.SubnetV4 != DefaultSubnetV4 {
		t.Fatalf("empty WG_SUBNET_V4 overrode subnet: %q", cfg.Network.SubnetV4)
	}
	if cfg.Tools.QRRenderer != QRBuiltin {
		t.Fatalf("qr renderer = %q", cfg.Tools.QRRenderer)
	}
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wg.env")
	writeFile(t, path, "WGBOX_TEST_A=from-file\nWGBOX_TEST_B=from-file\n")
	t.Setenv("WGBOX_TEST_A", "from-env")
	t.Setenv("WGBOX_TEST_B", "")
	os.Unsetenv("WGBOX_TEST_B")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv("WGBOX_TEST_A"); got != "from-env" {
		t.Fatalf("WGBOX_TEST_A = %q, want from-env", got)
	}
	if got := os.Getenv("WGBOX_TEST_B"); got != "from-file" {
		t.Fatalf("WGBOX_TEST_B = %q, want from-file", got)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFile(missing) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate(default) error = %v", err)
	}

	cfg.Tools.NATBackend = "pf"
	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "tools.nat_backend" {
		t.Fatalf("Validate() error = %v, want tools.nat_backend validation error", err)
	}
	if !errdefs.IsInvalidArgument(err) {
		t.Fatalf("Validate() error = %v, want invalid argument class", err)
	}
}

func TestPathHonoursEnv(t *testing.T) {
	t.Setenv("WG_CONFIG", "  ")
	if got := Path(); got != DefaultPath {
		t.Fatalf("Path() = %q, want default", got)
	}
	t.Setenv("WG_CONFIG", "/tmp/custom.toml")
	if got := Path(); got != "/tmp/custom.toml" {
		t.Fatalf("Path() = %q", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
