// SPDX-License-Identifier: MPL-2.0

// Package runtime manages the lifecycle of one isolation boundary: the
// host tier (plain processes, optionally one-shot docker containers) or the
// micro-VM tier (a named virtual machine running its own docker daemon).
// Both tiers present the same Setup / Run / Teardown contract so callers
// can drive a job's commands without caring where they land.
package runtime

import (
	"context"

	"github.com/charmbracelet/log"

	"runcage/internal/command"
	"runcage/internal/execx"
)

type (
	// Runner is the interface between a job and the isolation tier its
	// commands execute in. A Runner instance is single-owner: one job drives
	// Setup → Run* → Teardown sequentially, and concurrent calls on the same
	// instance are not supported. Distinct Runner instances are independent
	// as long as their executor names differ.
	Runner interface {
		// Setup prepares the isolation boundary for subsequent Run calls.
		Setup(ctx context.Context) error

		// Run formats and executes one command inside the boundary. The
		// subprocess error is returned verbatim; interpreting exit statuses
		// and deciding on retries is the caller's business.
		Run(ctx context.Context, spec command.Spec) error

		// Teardown disposes of everything Setup created. It is best-effort:
		// cleanup failures are logged, not returned, so one failed step
		// cannot mask the job's real outcome or stop later cleanup.
		Teardown(ctx context.Context) error
	}

	// Invoker runs a formatted invocation on the host. Satisfied by
	// execx.Invoker; tests substitute a recorder.
	Invoker interface {
		Invoke(ctx context.Context, inv execx.Invocation) ([]byte, error)
	}
)

// NewRunner selects the isolation tier from the options: the micro-VM tier
// when options.VM.Enabled is set, the host tier otherwise. dir is the
// workspace directory for the host tier, or the workspace block device
// attached to the VM for the micro-VM tier.
func NewRunner(dir string, logger *log.Logger, invoker Invoker, options command.Options) Runner {
	if !options.VM.Enabled {
		return &hostRunner{
			dir:     dir,
			invoker: invoker,
			options: options,
		}
	}

	return &vmRunner{
		name:            options.ExecutorName,
		workspaceDevice: dir,
		logger:          logger,
		invoker:         invoker,
		options:         options,
	}
}
