package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/bootstrap"
	"github.com/clintrovert/trunkgate/internal/command"
	"github.com/clintrovert/trunkgate/internal/config"
	"github.com/clintrovert/trunkgate/internal/vcs"
)

var (
	commitMessage string
	commitAll     bool
)

func init() {
	rootCmd.AddCommand(commitCmd, rebaseCmd)
	rebaseCmd.AddCommand(rebaseAbortCmd)

	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message")
	commitCmd.Flags().BoolVarP(&commitAll, "all", "a", false, "stage every change in the repository")
	_ = commitCmd.MarkFlagRequired("message")
}

var commitCmd = &cobra.Command{
	Use:   "commit -m <message> [paths...]",
	Short: "Commit only with a conventional commit message",
	Long: `Check the commit message first and only then stage paths and commit.
A rejected message leaves the index untouched.

Examples:
  trunkgate commit -m "feat(auth): add jwt check" auth/jwt.go auth/jwt_test.go
  trunkgate commit -a -m "fix(db): handle nil rows"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadPolicy()
		if err != nil {
			return err
		}
		v, err := bootstrap.Validator(cfg, logger)
		if err != nil {
			return err
		}
		if res := v.CommitMessage(commitMessage); !res.Passed {
			return printResult(cmd, res)
		}

		paths := args
		if commitAll {
			paths = append(paths, ".")
		}
		client := gitClient(cfg, logger)
		if len(paths) > 0 {
			if err := client.Add(cmd.Context(), paths...); err != nil {
				return fmt.Errorf("failed to stage changes: %w", err)
			}
		}
		if err := client.Commit(cmd.Context(), commitMessage); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "committed:", commitMessage)
		return nil
	},
}

var rebaseCmd = &cobra.Command{
	Use:   "rebase",
	Short: "Manage a rebase left in progress by the sync or merge phase",
}

var rebaseAbortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abort a rebase that stopped on conflicts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadPolicy()
		if err != nil {
			return err
		}
		client := gitClient(cfg, logger)

		inProgress, err := client.RebaseInProgress(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read rebase state: %w", err)
		}
		if !inProgress {
			return errNoRebase
		}
		if err := client.RebaseAbort(cmd.Context()); err != nil {
			return fmt.Errorf("failed to abort rebase: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "rebase aborted")
		return nil
	},
}

var errNoRebase = errors.New("no rebase in progress")

func gitClient(cfg *config.Config, logger *zap.Logger) *vcs.Client {
	runner := command.NewExecRunner(cfg.Command.Timeout, logger)
	return vcs.NewClient(cfg.Repository.Path, cfg.Repository.Remote, runner, logger)
}
