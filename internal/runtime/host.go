// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"

	"runcage/internal/command"
)

// hostRunner executes commands directly on the host, or in a one-shot
// docker container when the spec carries an image. It keeps no state, so
// Setup and Teardown have nothing to do.
type hostRunner struct {
	dir     string
	invoker Invoker
	options command.Options
}

var _ Runner = (*hostRunner)(nil)

func (r *hostRunner) Setup(context.Context) error {
	return nil
}

func (r *hostRunner) Run(ctx context.Context, spec command.Spec) error {
	_, err := r.invoker.Invoke(ctx, command.Format(spec, r.dir, r.options))
	return err
}

func (r *hostRunner) Teardown(context.Context) error {
	return nil
}
