// Package command is the single capability through which wgbox runs external
// tools (wg, qrencode, nft). Everything that shells out goes through Runner so
// tests can substitute Fake.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/containerd/errdefs"
)

// ErrNotFound reports that the tool binary could not be located.
var ErrNotFound = fmt.Errorf("command not found: %w", errdefs.ErrNotFound)

// Cmd is one external invocation. Stdin, when non-nil, is written to the
// process input; secrets travel this way rather than as arguments.
type Cmd struct {
	Name  string
	Args  []string
	Stdin []byte
}

func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Output returns trimmed stdout.
func (r Result) Output() string {
	return strings.TrimSpace(string(r.Stdout))
}

// ExitError is returned when a command runs but exits non-zero.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Cmd, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// Exec runs commands as child processes of the current process.
type Exec struct{}

func (Exec) Run(ctx context.Context, c Cmd) (Result, error) {
	slog.Debug("run command", "cmd", c.Name, "args", c.Args)

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(ctx, c.Name, c.Args...)
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	if c.Stdin != nil {
		proc.Stdin = bytes.NewReader(c.Stdin)
	}

	err := proc.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return res, fmt.Errorf("%s: %w", c.Name, ErrNotFound)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{
			Cmd:    c.Name,
			Code:   res.ExitCode,
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}
	return res, fmt.Errorf("run %s: %w", c.Name, err)
}

// IsNotFound reports whether err means the tool binary is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StderrContains reports whether err is an ExitError whose stderr contains s.
func StderrContains(err error, s string) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return strings.Contains(exitErr.Stderr, s)
}
