package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clintrovert/trunkgate/internal/advisor"
	"github.com/clintrovert/trunkgate/internal/bootstrap"
	"github.com/clintrovert/trunkgate/internal/command"
	"github.com/clintrovert/trunkgate/internal/report"
	"github.com/clintrovert/trunkgate/internal/vcs"
)

var adviseBranch string

func init() {
	rootCmd.AddCommand(adviseCmd)
	adviseCmd.Flags().StringVar(&adviseBranch, "branch", "", "branch to inspect (default current branch)")
}

var adviseCmd = &cobra.Command{
	Use:   "advise <issue>",
	Short: "Suggest how to scope an issue and phrase its commits",
	Long: `Suggest whether the work on an issue should be split and how its titles
and commit messages could read. The advice is never part of a gate. With an
OpenAI key configured the suggestions come from the model and are checked
against the policy before they are shown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := parseIssue(args[0])
		if err != nil {
			return err
		}
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		repo := cfg.RepositoryInfo()
		runner := command.NewExecRunner(cfg.Command.Timeout, logger)
		git := vcs.NewClient(repo.Path, repo.Remote, runner, logger)
		hostClient := bootstrap.Host(cfg, repo, runner, logger)

		req := advisor.Request{}
		if req.Issue, err = hostClient.GetIssue(ctx, issue); err != nil {
			return fmt.Errorf("failed to load issue #%d: %w", issue, err)
		}

		branch := adviseBranch
		if branch == "" {
			if branch, err = git.CurrentBranch(ctx); err != nil {
				return err
			}
		}
		if branch != repo.Trunk {
			if req.Commits, err = git.Commits(ctx, repo.RemoteTrunk(), branch); err != nil {
				return err
			}
			if req.ChangedFiles, err = git.ChangedFiles(ctx, repo.RemoteTrunk(), branch); err != nil {
				return err
			}
		}

		v, err := bootstrap.Validator(cfg, logger)
		if err != nil {
			return err
		}
		advice, err := bootstrap.Advisor(cfg, v, logger).Advise(ctx, req)
		if err != nil {
			return err
		}

		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), advice)
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Advice(advice))
		return nil
	},
}
