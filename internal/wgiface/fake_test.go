package wgiface

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgbox/internal/config"
	"wgbox/internal/provision"
)

type fakeKernel struct {
	mu     sync.Mutex
	links  map[string]int
	next   int
	calls  []string
	failOn map[string]error
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{links: map[string]int{}, next: 10, failOn: map[string]error{}}
}

func (k *fakeKernel) record(call string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, call)
	return k.failOn[call]
}

func (k *fakeKernel) Calls() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.calls...)
}

func (k *fakeKernel) LinkIndex(name string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, ok := k.links[name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, ErrLinkNotFound)
	}
	return idx, nil
}

func (k *fakeKernel) AddWireguardLink(name string) error {
	if err := k.record("link add " + name); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.links[name]; !ok {
		k.links[name] = k.next
		k.next++
	}
	return nil
}

func (k *fakeKernel) DeleteLink(index int) error {
	if err := k.record(fmt.Sprintf("link del %d", index)); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for name, idx := range k.links {
		if idx == index {
			delete(k.links, name)
		}
	}
	return nil
}

func (k *fakeKernel) AddAddress(index int, addr netip.Prefix) error {
	return k.record(fmt.Sprintf("addr add %d %s", index, addr))
}

func (k *fakeKernel) SetUp(index int) error {
	return k.record(fmt.Sprintf("link up %d", index))
}

func (k *fakeKernel) AddRoute(index int, dst netip.Prefix) error {
	return k.record(fmt.Sprintf("route add %d %s", index, dst))
}

func (k *fakeKernel) DeleteRoute(index int, dst netip.Prefix) error {
	return k.record(fmt.Sprintf("route del %d %s", index, dst))
}

type fakeDevice struct {
	mu      sync.Mutex
	configs []wgtypes.Config
	err     error
}

func (d *fakeDevice) ConfigureDevice(_ string, cfg wgtypes.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = append(d.configs, cfg)
	return d.err
}

func (d *fakeDevice) Configs() []wgtypes.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wgtypes.Config(nil), d.configs...)
}

// provisioned runs Prepare over a temp root so the controller has real keys
// and client configs to read.
func provisioned(t *testing.T, v6 bool, names ...string) *provision.ResolvedConfig {
	t.Helper()

	cfg := config.Default()
	host := "vpn.example.com"
	cfg.Server.ExternalAddress = &host
	cfg.Peers.Names = names
	if v6 {
		s := "fd42::/64"
		cfg.Network.SubnetV6 = &s
	}
	e := provision.NewEngine(t.TempDir(), provision.BuiltinKeys{}, provision.NoQR{}, nil)
	res, err := e.Prepare(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	return res.Config
}
