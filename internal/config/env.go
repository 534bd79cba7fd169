package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile exports the variables of a dotenv file into the process
// environment. Variables that are already set keep their value. A missing
// file is ignored.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays WG_* environment variables onto f. Empty values are
// treated as unset and values that fail to parse are ignored.
func (f *File) ApplyEnv(lookup LookupFunc) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := env{lookup: lookup}

	if port, ok := e.int("WG_LISTEN_PORT"); ok && port >= 0 && port <= 65535 {
		f.Server.ListenPort = port
	}
	if addr, ok := e.string("WG_EXTERNAL_ADDRESS"); ok {
		f.Server.ExternalAddress = &addr
	}
	if subnet, ok := e.string("WG_SUBNET_V4"); ok {
		f.Network.SubnetV4 = subnet
	}
	if subnet, ok := e.string("WG_SUBNET_V6"); ok {
		f.Network.SubnetV6 = &subnet
	}
	if list, ok := e.list("WG_ALLOWED_IPS"); ok {
		f.Network.AllowedIPs = list
	}
	if list, ok := e.list("WG_PEER_DNS"); ok {
		f.Network.PeerDNS = list
	}
	if count, ok := e.int("WG_PEER_COUNT"); ok && count >= 0 {
		f.Peers.Count = &count
	}
	if names, ok := e.list("WG_PEER_NAMES"); ok && len(names) > 0 {
		f.Peers.Names = names
	}
	if v, ok := e.bool("WG_ENABLE_COREDNS"); ok {
		f.Runtime.EnableCoreDNS = v
	}
	if v, ok := e.bool("WG_EMIT_QR"); ok {
		f.Runtime.EmitQR = v
	}

	if v, ok := e.string("WG_KEYGEN"); ok {
		f.Tools.Keygen = v
	}
	if v, ok := e.string("WG_QR_RENDERER"); ok {
		f.Tools.QRRenderer = v
	}
	if v, ok := e.string("WG_NAT_BACKEND"); ok {
		f.Tools.NATBackend = v
	}
	if v, ok := e.string("WG_COREDNS_BINARY"); ok {
		f.Tools.CoreDNSBinary = v
	}
	if v, ok := e.string("WG_COREFILE"); ok {
		f.Tools.Corefile = v
	}
	if v, ok := e.string("WG_DNS_PROBE"); ok {
		f.Tools.DNSProbe = v
	}
}

type env struct {
	lookup LookupFunc
}

func (e env) string(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e env) int(key string) (int, bool) {
	v, ok := e.string(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// list splits on commas, trimming items and dropping empty ones.
func (e env) list(key string) ([]string, bool) {
	v, ok := e.string(key)
	if !ok {
		return nil, false
	}
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, true
}

func (e env) bool(key string) (bool, bool) {
	v, ok := e.string(key)
	if !ok {
		return false, false
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}
