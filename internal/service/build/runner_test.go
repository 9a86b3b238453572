package build

import (
	"context"

	"github.com/oshokin/ruls-install/internal/runner"
	"github.com/oshokin/ruls-install/internal/runner/fake"
)

// deadlineRunner records whether Run saw a context deadline.
type deadlineRunner struct {
	*fake.Runner

	hadDeadline bool
}

// Run implements runner.Runner.
func (r *deadlineRunner) Run(ctx context.Context, cmd runner.Command) error {
	_, r.hadDeadline = ctx.Deadline()

	return r.Runner.Run(ctx, cmd)
}
