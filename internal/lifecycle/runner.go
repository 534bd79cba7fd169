// Package lifecycle runs an ordered list of (apply, teardown) pairs. Apply
// goes front to back; teardown walks the completed steps back to front, so a
// resource can never be added to one direction and forgotten in the other.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"wgbox/internal/logging"
	"wgbox/internal/telemetry"
)

const (
	PhaseApply    = "apply"
	PhaseTeardown = "teardown"
)

// Step is one managed resource. Teardown may be nil for steps that only
// check or compute.
type Step struct {
	Name     string
	Apply    func(ctx context.Context) error
	Teardown func(ctx context.Context) error
}

// Observer is called after every step execution in either direction.
type Observer func(step, phase string, elapsed time.Duration, err error)

type Runner struct {
	Steps  []Step
	Tracer trace.Tracer
	OnStep Observer

	completed []Step
	log       *slog.Logger
}

func New(steps ...Step) *Runner {
	return &Runner{Steps: steps, log: logging.Component("lifecycle")}
}

func (r *Runner) logger() *slog.Logger {
	if r.log == nil {
		r.log = logging.Component("lifecycle")
	}
	return r.log
}

func (r *Runner) names() []string {
	out := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Name
	}
	return out
}

func (r *Runner) observe(step, phase string, start time.Time, err error) {
	if r.OnStep != nil {
		r.OnStep(step, phase, time.Since(start), err)
	}
}

// Up applies every step in order. On the first failure the steps that
// already completed are torn down in reverse and the failure is returned.
func (r *Runner) Up(ctx context.Context) (err error) {
	op, err := telemetry.Start(ctx, r.Tracer, "up", r.names())
	if err != nil {
		return err
	}
	defer func() { op.End(err) }()

	log := r.logger()
	for _, s := range r.Steps {
		log.Debug("apply step", "step", s.Name)
		start := time.Now()
		stepErr := op.RunStep(op.Context(), s.Name, s.Apply)
		r.observe(s.Name, PhaseApply, start, stepErr)
		if stepErr != nil {
			stepErr = fmt.Errorf("%s: %w", s.Name, stepErr)
			if len(r.completed) > 0 {
				log.Warn("step failed, rolling back", "step", s.Name, "completed", len(r.completed))
				if rbErr := r.Down(ctx); rbErr != nil {
					log.Warn("rollback incomplete", "err", rbErr)
				}
			}
			return stepErr
		}
		r.completed = append(r.completed, s)
	}
	return nil
}

// Down tears down completed steps in reverse order. It ignores cancellation
// of ctx, keeps going past failures and returns them joined.
func (r *Runner) Down(ctx context.Context) (err error) {
	ctx = context.WithoutCancel(ctx)

	names := make([]string, 0, len(r.completed))
	for i := len(r.completed) - 1; i >= 0; i-- {
		if r.completed[i].Teardown != nil {
			names = append(names, r.completed[i].Name)
		}
	}
	op, err := telemetry.Start(ctx, r.Tracer, "down", names)
	if err != nil {
		return err
	}
	defer func() { op.End(err) }()

	log := r.logger()
	var errs []error
	for i := len(r.completed) - 1; i >= 0; i-- {
		s := r.completed[i]
		if s.Teardown == nil {
			continue
		}
		log.Debug("teardown step", "step", s.Name)
		start := time.Now()
		stepErr := op.RunStep(op.Context(), s.Name, s.Teardown)
		r.observe(s.Name, PhaseTeardown, start, stepErr)
		if stepErr != nil {
			log.Warn("teardown step failed", "step", s.Name, "err", stepErr)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, stepErr))
		}
	}
	r.completed = nil
	return errors.Join(errs...)
}

// Completed returns the names of applied steps that have not been torn down.
func (r *Runner) Completed() []string {
	out := make([]string, len(r.completed))
	for i, s := range r.completed {
		out[i] = s.Name
	}
	return out
}
