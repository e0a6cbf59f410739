// SPDX-License-Identifier: MPL-2.0

// Package observe provides lightweight per-operation tracing for subprocess
// invocations. An Op names one logical step (a setup phase, a user command);
// a Recorder receives outcome notifications for it. The default recorder
// discards everything, so callers that don't care about timing pay nothing.
package observe

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

type (
	// Op identifies one traced operation. It is attached to a command
	// specification by the caller and passed through the execution layers
	// untouched.
	Op struct {
		// Name is a stable, dot-separated identifier (e.g. "setup.vm.start").
		Name string
	}

	// Recorder receives the outcome of each subprocess invocation.
	Recorder interface {
		// Observe is called once per invocation with the elapsed wall time
		// and the invocation's error (nil on success).
		Observe(ctx context.Context, op *Op, elapsed time.Duration, err error)
	}

	// NoopRecorder discards all observations.
	NoopRecorder struct{}

	// LogRecorder writes one debug line per observation to a structured logger.
	LogRecorder struct {
		Logger *log.Logger
	}
)

// NewOp creates an Op with the given name.
func NewOp(name string) *Op {
	return &Op{Name: name}
}

// Observe implements Recorder.
func (NoopRecorder) Observe(context.Context, *Op, time.Duration, error) {}

// Observe implements Recorder.
func (r LogRecorder) Observe(_ context.Context, op *Op, elapsed time.Duration, err error) {
	if r.Logger == nil {
		return
	}
	name := ""
	if op != nil {
		name = op.Name
	}
	if err != nil {
		r.Logger.Debug("invocation finished", "op", name, "elapsed", elapsed, "err", err)
		return
	}
	r.Logger.Debug("invocation finished", "op", name, "elapsed", elapsed)
}
