// Package dns supervises the optional CoreDNS process that serves peer
// resolvers over the tunnel.
package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"wgbox/internal/command"
	"wgbox/internal/logging"
)

const (
	DefaultBinary      = "coredns"
	defaultStopTimeout = 5 * time.Second
)

// Sidecar runs CoreDNS as a child process. The process is not bound to the
// context passed to Start so that shutdown stays graceful after the run
// context is cancelled.
type Sidecar struct {
	Binary   string
	Corefile string
	// Probe is an optional host:port queried until CoreDNS answers.
	Probe       string
	StopTimeout time.Duration
	Stdout      *os.File
	Stderr      *os.File

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan error
	log  *slog.Logger
}

func (s *Sidecar) logger() *slog.Logger {
	if s.log == nil {
		s.log = logging.Component("dns")
	}
	return s.log
}

func (s *Sidecar) args() []string {
	if s.Corefile == "" {
		return nil
	}
	return []string{"-conf", s.Corefile}
}

// Start launches CoreDNS and, when a probe address is set, waits for it to
// answer queries.
func (s *Sidecar) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return errors.New("coredns already started")
	}

	bin := s.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	cmd := exec.Command(bin, s.args()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if s.Stdout != nil {
		cmd.Stdout = s.Stdout
	}
	if s.Stderr != nil {
		cmd.Stderr = s.Stderr
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%s: %w", bin, command.ErrNotFound)
		}
		return fmt.Errorf("start coredns process: %w", err)
	}

	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	s.cmd, s.done = cmd, done

	if s.Probe != "" {
		if err := WaitReady(ctx, s.Probe, exited); err != nil {
			_ = cmd.Process.Kill()
			<-done
			s.cmd, s.done = nil, nil
			return err
		}
	}

	s.logger().Info("coredns started", "pid", cmd.Process.Pid, "corefile", s.Corefile)
	return nil
}

// Stop sends SIGTERM and waits for exit, killing the process if it outlives
// the stop timeout or ctx.
func (s *Sidecar) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	cmd, done := s.cmd, s.done
	s.cmd, s.done = nil, nil

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already exited.
		<-done
		return nil
	}

	timeout := s.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			s.logger().Debug("coredns exited", "err", err)
		}
		s.logger().Info("coredns stopped")
		return nil
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-done
		s.logger().Warn("coredns ignored sigterm, killed", "timeout", timeout)
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return fmt.Errorf("stop coredns process: %w", ctx.Err())
	}
}

// running reports whether a started process has not been stopped.
func (s *Sidecar) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}
