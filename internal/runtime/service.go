// Package runtime wires provisioning, the WireGuard interface, NAT and the DNS
// sidecar into the run, generate, show-peer and status operations.
package runtime

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.zx2c4.com/wireguard/wgctrl"

	"wgbox/internal/command"
	"wgbox/internal/config"
	"wgbox/internal/dns"
	"wgbox/internal/index"
	"wgbox/internal/logging"
	"wgbox/internal/metrics"
	"wgbox/internal/nat"
	"wgbox/internal/provision"
	"wgbox/internal/telemetry"
	"wgbox/internal/wgiface"
)

const metricsFile = "metrics.prom"

// Device is the WireGuard control handle the service opens for a run or a
// status query.
type Device interface {
	wgiface.Device
	wgiface.Inspector
	io.Closer
}

type Sidecar interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Service struct {
	Config     config.File
	Engine     *provision.Engine
	Kernel     wgiface.Kernel
	OpenDevice func() (Device, error)
	NAT        nat.Backend
	Routes     nat.RouteFinder
	DNS        Sidecar
	Metrics    *metrics.Metrics
	Tracer     trace.Tracer
	Interface  string
	Now        func() time.Time
	Out        io.Writer

	log *slog.Logger
}

// New wires the production implementations selected by cfg.Tools.
func New(cfg config.File, root string, out io.Writer) *Service {
	runner := command.Exec{}
	eng := provision.NewEngine(root, keyGenerator(cfg.Tools, runner), nil, out)
	eng.QR = qrRenderer(cfg.Tools, runner, eng.Writer)

	return &Service{
		Config:     cfg,
		Engine:     eng,
		Kernel:     wgiface.NewKernel(),
		OpenDevice: openWgctrl,
		NAT:        natBackend(cfg.Tools, runner),
		Routes:     nat.Netlink{},
		DNS: &dns.Sidecar{
			Binary:   cfg.Tools.CoreDNSBinary,
			Corefile: cfg.Tools.Corefile,
			Probe:    cfg.Tools.DNSProbe,
		},
		Metrics:   metrics.New(),
		Tracer:    telemetry.Tracer(),
		Interface: wgiface.DefaultName,
		Now:       time.Now,
		Out:       out,
	}
}

func openWgctrl() (Device, error) {
	c, err := wgctrl.New()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func keyGenerator(t config.Tools, r command.Runner) provision.KeyGenerator {
	if t.Keygen == config.KeygenBuiltin {
		return provision.BuiltinKeys{}
	}
	return provision.WGTool{Runner: r}
}

func qrRenderer(t config.Tools, r command.Runner, w *provision.Writer) provision.QRRenderer {
	switch t.QRRenderer {
	case config.QRBuiltin:
		return provision.BuiltinQR{Writer: w}
	case config.QRNone:
		return provision.NoQR{}
	default:
		return provision.Qrencode{Runner: r}
	}
}

func natBackend(t config.Tools, r command.Runner) nat.Backend {
	if t.NATBackend == config.NATIptables {
		return nat.Iptables{Runner: r}
	}
	return nat.Nft{Runner: r}
}

func (s *Service) logger() *slog.Logger {
	if s.log == nil {
		s.log = logging.Component("runtime")
	}
	return s.log
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) indexPath() string {
	return filepath.Join(s.Engine.Paths.State, index.FileName)
}

func (s *Service) writeMetrics() {
	if s.Metrics == nil {
		return
	}
	path := filepath.Join(s.Engine.Paths.State, metricsFile)
	if err := s.Metrics.WriteTextfile(path); err != nil {
		s.logger().Warn("write metrics failed", "path", path, "err", err)
	}
}

// prepare runs the provisioning engine, refreshes the peer index and flags
// address drift the digest gate cannot see.
func (s *Service) prepare(ctx context.Context) (*provision.Result, error) {
	log := s.logger()
	res, err := s.Engine.Prepare(ctx, s.Config)
	if err != nil {
		return nil, err
	}
	if res.Regenerated {
		log.Info("peers provisioned", "peers", len(res.Config.Peers), "root", s.Engine.Paths.Root)
	} else {
		log.Info("peer configs up to date", "peers", len(res.Config.Peers))
	}

	infos, err := s.Engine.Describe(res.Config)
	if err != nil {
		return nil, err
	}
	if s.Metrics != nil {
		s.Metrics.Peers.Set(float64(len(infos)))
		if res.Regenerated {
			s.Metrics.Regenerations.Inc()
		}
	}

	drift := s.syncIndex(ctx, infos, res.Regenerated)
	if res.Regenerated {
		drift = nil
	}
	for _, d := range drift {
		log.Warn("peer address drift, remove inputs.json to regenerate",
			"peer", d.ID, "indexed", d.Indexed, "current", d.Current)
	}
	if s.Metrics != nil {
		s.Metrics.AddressDrift.Set(float64(len(drift)))
	}
	return res, nil
}

// syncIndex is best effort: the index is derived from the peers directory and
// never blocks provisioning.
func (s *Service) syncIndex(ctx context.Context, infos []provision.PeerInfo, regenerated bool) []index.Drift {
	x, err := index.Open(s.indexPath())
	if err != nil {
		s.logger().Warn("peer index unavailable", "err", err)
		return nil
	}
	defer x.Close()

	drift, err := x.Sync(ctx, infos, s.now(), regenerated)
	if err != nil {
		s.logger().Warn("peer index sync failed", "err", err)
		return nil
	}
	return drift
}
