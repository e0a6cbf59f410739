// SPDX-License-Identifier: MPL-2.0

// Package execx is the low-level subprocess invocation primitive shared by
// all isolation tiers. It runs one argv with a working directory and extra
// environment, captures combined output, and reports the outcome to an
// observe.Recorder. The exec.Cmd constructor is injectable so higher layers
// can be tested without spawning real processes.
package execx

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"runcage/internal/observe"
)

// ErrEmptyInvocation is returned when an Invocation carries no argv.
var ErrEmptyInvocation = errors.New("invocation has no command")

type (
	// Invocation describes one subprocess to run.
	Invocation struct {
		// Key is a stable identifier for log correlation.
		Key string
		// Args is the full argv; Args[0] is the binary.
		Args []string
		// Dir is the working directory ("" inherits the parent's).
		Dir string
		// Env holds extra NAME=VALUE pairs appended to the parent environment.
		Env []string
		// Op receives the invocation's outcome, if non-nil.
		Op *observe.Op
	}

	// CommandFunc constructs the exec.Cmd for an invocation. Tests inject a
	// fake to capture argv instead of spawning processes.
	CommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// Option configures an Invoker.
	Option func(*Invoker)

	// Invoker runs Invocations on the host.
	Invoker struct {
		logger   *log.Logger
		recorder observe.Recorder
		command  CommandFunc
	}
)

// WithCommandFunc replaces the exec.Cmd constructor.
func WithCommandFunc(fn CommandFunc) Option {
	return func(i *Invoker) {
		i.command = fn
	}
}

// WithRecorder sets the observation recorder.
func WithRecorder(r observe.Recorder) Option {
	return func(i *Invoker) {
		i.recorder = r
	}
}

// New creates an Invoker that logs invocations to the given logger.
func New(logger *log.Logger, opts ...Option) *Invoker {
	inv := &Invoker{
		logger:   logger,
		recorder: observe.NoopRecorder{},
		command:  exec.CommandContext,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke runs the invocation and returns its combined output. The
// subprocess error is returned as-is: callers decide how to interpret exit
// statuses, and wrapping here would get in the way of that.
func (i *Invoker) Invoke(ctx context.Context, inv Invocation) ([]byte, error) {
	if len(inv.Args) == 0 {
		return nil, ErrEmptyInvocation
	}

	cmd := i.command(ctx, inv.Args[0], inv.Args[1:]...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}

	if i.logger != nil {
		i.logger.Debug("invoking", "key", inv.Key, "cmd", strings.Join(inv.Args, " "))
	}

	started := time.Now()
	out, err := cmd.CombinedOutput()
	if i.recorder != nil && inv.Op != nil {
		i.recorder.Observe(ctx, inv.Op, time.Since(started), err)
	}

	return out, err
}
