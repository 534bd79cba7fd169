package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgbox/internal/config"
	"wgbox/internal/metrics"
	"wgbox/internal/nat"
	"wgbox/internal/provision"
	"wgbox/internal/wgiface"
)

// journal records every side effect in order across all fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
	fail    map[string]error
}

func (j *journal) add(format string, args ...any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e := fmt.Sprintf(format, args...)
	j.entries = append(j.entries, e)
	return j.fail[e]
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) has(e string) bool {
	for _, got := range j.Entries() {
		if got == e {
			return true
		}
	}
	return false
}

type fakeKernel struct {
	j     *journal
	mu    sync.Mutex
	links map[string]int
}

func (k *fakeKernel) LinkIndex(name string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if idx, ok := k.links[name]; ok {
		return idx, nil
	}
	return 0, fmt.Errorf("%s: %w", name, wgiface.ErrLinkNotFound)
}

func (k *fakeKernel) AddWireguardLink(name string) error {
	if err := k.j.add("link add %s", name); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.links[name] = len(k.links) + 1
	return nil
}

func (k *fakeKernel) DeleteLink(index int) error {
	k.mu.Lock()
	for name, idx := range k.links {
		if idx == index {
			delete(k.links, name)
		}
	}
	k.mu.Unlock()
	return k.j.add("link del")
}

func (k *fakeKernel) AddAddress(_ int, a netip.Prefix) error { return k.j.add("addr add %s", a) }
func (k *fakeKernel) SetUp(int) error                        { return k.j.add("link up") }
func (k *fakeKernel) AddRoute(_ int, p netip.Prefix) error   { return k.j.add("route add %s", p) }
func (k *fakeKernel) DeleteRoute(_ int, p netip.Prefix) error {
	return k.j.add("route del %s", p)
}

type fakeDevice struct {
	j      *journal
	device *wgtypes.Device
}

func (d *fakeDevice) ConfigureDevice(name string, _ wgtypes.Config) error {
	return d.j.add("configure %s", name)
}

func (d *fakeDevice) Device(name string) (*wgtypes.Device, error) {
	if d.device == nil {
		return nil, errors.New("no such device")
	}
	return d.device, nil
}

func (d *fakeDevice) Close() error { return nil }

type fakeNAT struct{ j *journal }

func (fakeNAT) Name() string                      { return "fake" }
func (n fakeNAT) Available(context.Context) error { return n.j.add("nat available") }
func (n fakeNAT) Install(_ context.Context, r nat.Rule) error {
	return n.j.add("nat install %s %s", r.Family, r.Egress)
}
func (n fakeNAT) Remove(_ context.Context, r nat.Rule) error {
	return n.j.add("nat remove %s", r.Family)
}

type fakeRoutes struct{}

func (fakeRoutes) DefaultEgress(nat.Family) (string, error) { return "eth0", nil }

type fakeSidecar struct {
	j       *journal
	started chan struct{}
}

func (s *fakeSidecar) Start(context.Context) error {
	if err := s.j.add("dns start"); err != nil {
		return err
	}
	close(s.started)
	return nil
}

func (s *fakeSidecar) Stop(context.Context) error { return s.j.add("dns stop") }

func testConfig(names ...string) config.File {
	cfg := config.Default()
	host := "vpn.example.com"
	cfg.Server.ExternalAddress = &host
	cfg.Network.AllowedIPs = []string{"0.0.0.0/0"}
	cfg.Peers.Names = names
	cfg.Runtime.EmitQR = false
	return cfg
}

func newTestService(t *testing.T, cfg config.File) (*Service, *journal, *fakeSidecar) {
	t.Helper()
	j := &journal{fail: map[string]error{}}
	dns := &fakeSidecar{j: j, started: make(chan struct{})}
	s := &Service{
		Config: cfg,
		Engine: provision.NewEngine(t.TempDir(), provision.BuiltinKeys{}, provision.NoQR{}, nil),
		Kernel: &fakeKernel{j: j, links: map[string]int{}},
		OpenDevice: func() (Device, error) {
			return &fakeDevice{j: j}, nil
		},
		NAT:       fakeNAT{j: j},
		Routes:    fakeRoutes{},
		DNS:       dns,
		Metrics:   metrics.New(),
		Interface: wgiface.DefaultName,
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	}
	return s, j, dns
}
