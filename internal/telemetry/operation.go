// Package telemetry wraps multi-step operations (run, teardown, generate) in
// OpenTelemetry spans: one span per operation carrying the step plan, one
// child span per step.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName    = "wgbox"
	PlanEventName = "wgbox.plan"
	PlanStepsKey  = "wgbox.plan.steps"
	StepNameKey   = "wgbox.step"
	defaultOpName = "operation"
)

// Tracer returns the process tracer. Without a configured provider spans are
// no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// Start opens the operation span and records the ordered step names.
func Start(ctx context.Context, tracer trace.Tracer, name string, steps []string) (*Operation, error) {
	if tracer == nil {
		tracer = Tracer()
	}
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("start operation: step %d has empty name", i)
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("start operation: duplicate step %q", s)
		}
		seen[s] = struct{}{}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultOpName
	}
	planJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("start operation: marshal plan: %w", err)
	}

	spanCtx, span := tracer.Start(ctx, name)
	span.AddEvent(PlanEventName, trace.WithAttributes(attribute.String(PlanStepsKey, string(planJSON))))
	return &Operation{ctx: spanCtx, tracer: tracer, span: span}, nil
}

func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

// RunStep runs fn inside a child span named after the step.
func (o *Operation) RunStep(ctx context.Context, name string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}
	if ctx == nil {
		ctx = o.ctx
	}

	stepCtx, span := o.tracer.Start(ctx, name, trace.WithAttributes(attribute.String(StepNameKey, name)))
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}
