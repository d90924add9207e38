// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/clintrovert/trunkgate/internal/command"
)

// Response is the scripted result of one command line.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Fake replays scripted responses keyed by the full command line
// ("git rev-parse HEAD"). Unscripted commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []command.Cmd
}

// New creates an empty fake runner.
func New() *Fake {
	return &Fake{responses: make(map[string][]Response)}
}

// On scripts the responses for line. Repeated calls consume them in order and
// the last one sticks.
func (f *Fake) On(line string, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = append(f.responses[line], responses...)
	return f
}

// Run implements command.Runner.
func (f *Fake) Run(_ context.Context, cmd command.Cmd) (command.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, cmd)
	line := cmd.String()
	var resp Response
	if queue := f.responses[line]; len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			f.responses[line] = queue[1:]
		}
	}

	out := command.Output{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}
	if resp.ExitCode != 0 {
		msg := resp.Stderr
		if msg == "" {
			msg = resp.Stdout
		}
		return out, &command.CallError{
			Call:     line,
			ExitCode: resp.ExitCode,
			Message:  msg,
			Err:      fmt.Errorf("exit status %d", resp.ExitCode),
		}
	}
	return out, nil
}

// Calls returns every command line run so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Called reports whether line was run.
func (f *Fake) Called(line string) bool {
	for _, c := range f.Calls() {
		if c == line {
			return true
		}
	}
	return false
}
