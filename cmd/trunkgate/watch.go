package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/watch"
	"github.com/clintrovert/trunkgate/pkg/types"
)

var (
	watchInterval time.Duration
	watchDebounce time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "also re-run on this interval to pick up CI and review changes (0 disables)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "wait this long for git to settle before re-running")
}

var watchCmd = &cobra.Command{
	Use:   "watch <issue>",
	Short: "Run a task every time the repository changes until the cycle completes",
	Long: `Run a task, then run it again whenever a ref or HEAD moves in the local
repository, for example after a commit or a branch switch. The command exits
once the cleanup gate passes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, task, done, err := newOrchestrator(args[0])
		if err != nil {
			return err
		}
		defer done()

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		w, err := watch.New(cfg.Repository.Path, watchDebounce, watchInterval, logger)
		if err != nil {
			return err
		}
		defer w.Close()

		err = w.Run(cmd.Context(), func(ctx context.Context) (bool, error) {
			attempts, err := o.Run(ctx, task)
			// a failing gate waits for the next change
			if perr := printAttempts(cmd, attempts); perr != nil && !errors.Is(perr, errGateFailed) {
				return false, perr
			}
			if err != nil {
				return false, err
			}
			return cycleComplete(attempts), nil
		})
		if errors.Is(err, context.Canceled) {
			logger.Debug("watch stopped", zap.Int("issue", task.IssueNumber))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "issue #%d completed the cycle\n", task.IssueNumber)
		return nil
	},
}

func cycleComplete(attempts []types.Attempt) bool {
	if len(attempts) == 0 {
		return false
	}
	last := attempts[len(attempts)-1]
	return last.Result.Passed && last.Result.Phase == types.PhaseCleanup
}
