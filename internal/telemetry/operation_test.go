package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return provider.Tracer("telemetry-test"), recorder
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func TestOperationSteps(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := Start(context.Background(), tracer, "run", []string{"interface", "nat"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := op.RunStep(op.Context(), "interface", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RunStep() error = %v", err)
	}
	boom := errors.New("boom")
	if err := op.RunStep(op.Context(), "nat", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("RunStep() error = %v, want boom", err)
	}
	op.End(boom)

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended spans = %d, want 3", len(spans))
	}
	root := findSpan(spans, "run")
	if root == nil || len(root.Events()) == 0 || root.Events()[0].Name != PlanEventName {
		t.Fatal("missing root span with plan event")
	}
	if root.Status().Code != codes.Error {
		t.Fatalf("root status = %v, want error", root.Status().Code)
	}
	nat := findSpan(spans, "nat")
	if nat == nil || nat.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatal("nat step span missing or not parented to the operation")
	}
	if nat.Status().Description != "boom" {
		t.Fatalf("nat status = %q, want boom", nat.Status().Description)
	}
	if s := findSpan(spans, "interface"); s == nil || s.Status().Code == codes.Error {
		t.Fatal("interface step span missing or failed")
	}
}

func TestStartRejectsBadPlan(t *testing.T) {
	t.Parallel()

	tracer, _ := newTestTracer()
	if _, err := Start(context.Background(), tracer, "run", []string{"a", "a"}); err == nil {
		t.Fatal("Start() expected duplicate step error")
	}
	if _, err := Start(context.Background(), tracer, "run", []string{" "}); err == nil {
		t.Fatal("Start() expected empty step error")
	}
}

func TestNilOperationRunsStep(t *testing.T) {
	t.Parallel()

	var op *Operation
	ran := false
	if err := op.RunStep(context.Background(), "x", func(context.Context) error { ran = true; return nil }); err != nil || !ran {
		t.Fatalf("RunStep() on nil operation: ran=%v err=%v", ran, err)
	}
	op.End(nil)
}
