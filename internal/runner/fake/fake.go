// Package fake provides a scripted runner.Runner for tests.
package fake

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/oshokin/ruls-install/internal/runner"
)

// Response is what a scripted command produces.
type Response struct {
	// Output is written to the command's standard output.
	Output string
	// Err is returned from Run.
	Err error
	// Effect runs before the response is returned.
	Effect func()
}

// Runner answers commands from a script keyed by the full command line.
// Unscripted commands fail with runner.ErrNotFound.
type Runner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []runner.Command
}

// New returns an empty script.
func New() *Runner {
	return &Runner{responses: make(map[string]Response)}
}

// On scripts the response for a command line such as "cargo --version".
func (r *Runner) On(line string, response Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.responses[line] = response

	return r
}

// Run implements runner.Runner.
func (r *Runner) Run(_ context.Context, cmd runner.Command) error {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	response, ok := r.responses[cmd.String()]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", cmd.Name, runner.ErrNotFound)
	}

	if response.Effect != nil {
		response.Effect()
	}

	if cmd.Stdout != nil && response.Output != "" {
		if _, err := fmt.Fprint(cmd.Stdout, response.Output); err != nil {
			return err
		}
	}

	return response.Err
}

// Output implements runner.Runner.
func (r *Runner) Output(ctx context.Context, cmd runner.Command) ([]byte, error) {
	var out bytes.Buffer

	cmd.Stdout = &out
	err := r.Run(ctx, cmd)

	return out.Bytes(), err
}

// Calls returns the command lines received so far.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := make([]string, 0, len(r.calls))
	for _, cmd := range r.calls {
		lines = append(lines, cmd.String())
	}

	return lines
}

// Commands returns the commands received so far.
func (r *Runner) Commands() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]runner.Command(nil), r.calls...)
}
