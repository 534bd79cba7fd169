package command

import (
	"context"
	"sync"
)

// Fake is an in-memory Runner. Handler decides each result; when nil every
// command succeeds with empty output.
type Fake struct {
	Handler func(Cmd) (Result, error)

	mu    sync.Mutex
	calls []Cmd
}

func (f *Fake) Run(_ context.Context, c Cmd) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if f.Handler == nil {
		return Result{}, nil
	}
	return f.Handler(c)
}

// Calls returns every command run so far, in order.
func (f *Fake) Calls() []Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Cmd, len(f.calls))
	copy(out, f.calls)
	return out
}

// Names returns Cmd.String for every call.
func (f *Fake) Names() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}
