package runtime

import (
	"context"
	"errors"
	"fmt"

	"wgbox/internal/lifecycle"
	"wgbox/internal/nat"
	"wgbox/internal/provision"
	"wgbox/internal/telemetry"
	"wgbox/internal/wgiface"
)

// Generate provisions keys and configs without touching the kernel.
func (s *Service) Generate(ctx context.Context) (res *provision.Result, err error) {
	op, err := telemetry.Start(ctx, s.Tracer, "generate", []string{"provision"})
	if err != nil {
		return nil, err
	}
	defer func() { op.End(err) }()

	err = op.RunStep(op.Context(), "provision", func(ctx context.Context) error {
		var err error
		res, err = s.prepare(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.writeMetrics()
	return res, nil
}

// Run checks kernel support, provisions, brings up the interface, NAT and
// DNS, then blocks until ctx is cancelled and tears everything down in
// reverse. A failed step rolls back the steps before it.
func (s *Service) Run(ctx context.Context) error {
	log := s.logger()

	var (
		res        *provision.Result
		dev        Device
		iface      *wgiface.Controller
		link       wgiface.Handle
		natCtl     = nat.NewController(s.NAT, s.Routes, s.Interface)
		natHandles nat.Handles
		dnsStarted bool
	)

	runner := lifecycle.New(
		lifecycle.Step{
			Name:  "module-check",
			Apply: func(context.Context) error { return wgiface.CheckSupport(s.Kernel) },
		},
		lifecycle.Step{
			Name: "provision",
			Apply: func(ctx context.Context) error {
				var err error
				res, err = s.prepare(ctx)
				return err
			},
		},
		lifecycle.Step{
			Name: "interface",
			Apply: func(ctx context.Context) error {
				d, err := s.OpenDevice()
				if err != nil {
					return fmt.Errorf("open wireguard control: %w", err)
				}
				iface = wgiface.NewController(s.Interface, s.Kernel, d)
				link, err = iface.Apply(ctx, res.Config)
				if err != nil {
					_ = d.Close()
					return err
				}
				dev = d
				return nil
			},
			Teardown: func(ctx context.Context) error {
				err := iface.Teardown(ctx, res.Config, link)
				return errors.Join(err, dev.Close())
			},
		},
		lifecycle.Step{
			Name: "nat",
			Apply: func(ctx context.Context) error {
				var err error
				natHandles, err = natCtl.Apply(ctx, res.Config)
				return err
			},
			Teardown: func(ctx context.Context) error { return natCtl.Teardown(ctx, natHandles) },
		},
		lifecycle.Step{
			Name: "dns",
			Apply: func(ctx context.Context) error {
				if !res.Config.Runtime.EnableCoreDNS {
					log.Info("coredns disabled")
					return nil
				}
				if err := s.DNS.Start(ctx); err != nil {
					return err
				}
				dnsStarted = true
				return nil
			},
			Teardown: func(ctx context.Context) error {
				if !dnsStarted {
					return nil
				}
				return s.DNS.Stop(ctx)
			},
		},
	)
	runner.Tracer = s.Tracer
	if s.Metrics != nil {
		runner.OnStep = s.Metrics.ObserveStep
	}

	if err := runner.Up(ctx); err != nil {
		if res != nil {
			s.writeMetrics()
		}
		return err
	}
	if s.Metrics != nil {
		s.Metrics.Up.Set(1)
	}
	s.writeMetrics()
	log.Info("wgbox running", "interface", s.Interface, "index", link.LinkIndex,
		"peers", len(res.Config.Peers), "nat", len(natHandles.Rules))

	<-ctx.Done()
	log.Info("shutting down", "cause", context.Cause(ctx))

	err := runner.Down(ctx)
	if s.Metrics != nil {
		s.Metrics.Up.Set(0)
	}
	s.writeMetrics()
	if err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	log.Info("teardown complete")
	return nil
}
