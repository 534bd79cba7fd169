//go:build !debug

// Package check holds runtime assertions that compile away unless the
// binary is built with -tags debug.
package check

// Assert is a no-op in release builds.
func Assert(bool, string) {}

// Assertf is a no-op in release builds.
func Assertf(bool, string, ...any) {}
