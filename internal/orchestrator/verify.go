package orchestrator

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/command"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// maxCheckOutput bounds the output kept per verification.
const maxCheckOutput = 4096

// runVerifications runs every configured command in the repository and
// records its exit code. Commands that cannot start report -1.
func (e *Executor) runVerifications(ctx context.Context, task types.Task, g *types.GateContext) {
	for _, v := range e.verifications {
		out, err := e.runner.Run(ctx, command.Cmd{
			Dir:     task.Repository.Path,
			Name:    v.Command,
			Args:    v.Args,
			Timeout: v.Timeout,
		})

		outcome := types.CheckOutcome{
			Name:     v.Name,
			ExitCode: command.ExitCode(err),
			Output:   tail(out.Stdout+out.Stderr, maxCheckOutput),
		}
		if err != nil && outcome.Output == "" {
			outcome.Output = err.Error()
		}
		g.Checks = append(g.Checks, outcome)

		e.logger.Info("ran verification",
			zap.String("name", v.Name),
			zap.Int("exit_code", outcome.ExitCode),
		)
	}
}

// ParseVerification builds a verification from a shell-style command line.
func ParseVerification(name, line string) Verification {
	fields := strings.Fields(line)
	v := Verification{Name: name}
	if len(fields) > 0 {
		v.Command = fields[0]
		v.Args = fields[1:]
	}
	return v
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
