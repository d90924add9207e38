package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/clintrovert/trunkgate/internal/bootstrap"
	"github.com/clintrovert/trunkgate/internal/config"
	"github.com/clintrovert/trunkgate/internal/orchestrator"
	"github.com/clintrovert/trunkgate/internal/report"
	"github.com/clintrovert/trunkgate/internal/state"
	"github.com/clintrovert/trunkgate/pkg/types"
)

var (
	taskSlug     string
	taskCreatePR bool
	taskJira     string
)

func init() {
	rootCmd.AddCommand(statusCmd, stepCmd, runCmd, abandonCmd)

	for _, cmd := range []*cobra.Command{stepCmd, runCmd, watchCmd} {
		cmd.Flags().StringVar(&taskSlug, "slug", "", "create the feature branch with this slug during the branch phase")
		cmd.Flags().BoolVar(&taskCreatePR, "create-pr", false, "push and open the pull request during the pr phase")
		cmd.Flags().StringVar(&taskJira, "jira", "", "Jira ticket to keep in step with the task")
	}
}

var statusCmd = &cobra.Command{
	Use:   "status <issue>",
	Short: "Show where a task stands in the cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		rec, err := state.ForRepository(cfg.Repository.Path).Load(issue)
		if errors.Is(err, state.ErrNoState) {
			return fmt.Errorf("issue #%d has no recorded task", issue)
		}
		if err != nil {
			return err
		}

		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), rec)
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Status(rec))
		return nil
	},
}

var stepCmd = &cobra.Command{
	Use:   "step <issue>",
	Short: "Attempt the current phase of a task once",
	Long: `Attempt the current phase of a task once. A passing gate advances the
task to the next phase; a failing gate blocks it on the same phase until the
next attempt passes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, task, done, err := newOrchestrator(args[0])
		if err != nil {
			return err
		}
		defer done()

		attempt, err := o.Step(cmd.Context(), task)
		if err != nil {
			return err
		}
		return printAttempts(cmd, []types.Attempt{attempt})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <issue>",
	Short: "Step a task until a gate fails or the cycle completes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, task, done, err := newOrchestrator(args[0])
		if err != nil {
			return err
		}
		defer done()

		attempts, err := o.Run(cmd.Context(), task)
		if perr := printAttempts(cmd, attempts); err == nil {
			err = perr
		}
		return err
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <issue>",
	Short: "Abandon a task, leaving merged work as is",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, task, done, err := newOrchestrator(args[0])
		if err != nil {
			return err
		}
		defer done()
		if err := o.Abandon(cmd.Context(), task); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "abandoned issue #%d\n", task.IssueNumber)
		return nil
	},
}

// newOrchestrator builds the orchestrator for the issue in arg. done releases
// notifier connections.
func newOrchestrator(arg string) (o *orchestrator.Orchestrator, task types.Task, done func(), err error) {
	issue, err := parseIssue(arg)
	if err != nil {
		return nil, task, nil, err
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, task, nil, err
	}

	task = taskFor(cfg, issue)
	executor, err := bootstrap.Executor(cfg, task.Repository, logger)
	if err != nil {
		return nil, task, nil, err
	}
	notifiers, done, err := bootstrap.Notifiers(cfg, nil, logger)
	if err != nil {
		return nil, task, nil, err
	}

	store := state.ForRepository(cfg.Repository.Path)
	return orchestrator.New(executor, store, logger, notifiers...), task, done, nil
}

func taskFor(cfg *config.Config, issue int) types.Task {
	task := cfg.Task(issue)
	task.Slug = taskSlug
	task.JiraTicketID = taskJira
	if taskCreatePR {
		task.CreatePR = true
	}
	return task
}

func printAttempts(cmd *cobra.Command, attempts []types.Attempt) error {
	out := cmd.OutOrStdout()
	if outputJSON {
		if err := writeJSON(out, attempts); err != nil {
			return err
		}
	} else {
		for _, a := range attempts {
			fmt.Fprintln(out, report.Attempt(a))
		}
	}
	if n := len(attempts); n > 0 && !attempts[n-1].Result.Passed {
		return errGateFailed
	}
	return nil
}

func parseIssue(arg string) (int, error) {
	issue, err := strconv.Atoi(arg)
	if err != nil || issue <= 0 {
		return 0, fmt.Errorf("invalid issue number %q", arg)
	}
	return issue, nil
}
