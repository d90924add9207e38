package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clintrovert/trunkgate/internal/bootstrap"
	"github.com/clintrovert/trunkgate/internal/command"
)

var (
	issueTitle string
	issueBody  string
)

func init() {
	rootCmd.AddCommand(issueCmd)
	issueCmd.AddCommand(issueCreateCmd)

	issueCreateCmd.Flags().StringVarP(&issueTitle, "title", "t", "", "issue title")
	issueCreateCmd.Flags().StringVarP(&issueBody, "body", "b", "-", "issue body, - for stdin")
	_ = issueCreateCmd.MarkFlagRequired("title")
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Work with issues",
}

var issueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "File an issue that already passes the sync gate",
	Long: `File an issue only when its title matches the required format and its
body lists at least one acceptance criterion as a checklist item.

Example:
  trunkgate issue create -t "feat: add login form" -b "- [ ] user can sign in"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		body, err := argOrStdin(cmd, issueBody)
		if err != nil {
			return err
		}
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		v, err := bootstrap.Validator(cfg, logger)
		if err != nil {
			return err
		}
		if res := v.NewIssue(issueTitle, body); !res.Passed {
			return printResult(cmd, res)
		}

		runner := command.NewExecRunner(cfg.Command.Timeout, logger)
		h := bootstrap.Host(cfg, cfg.RepositoryInfo(), runner, logger)
		issue, err := h.CreateIssue(cmd.Context(), issueTitle, body)
		if err != nil {
			return err
		}

		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), issue)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created issue #%d %s\n", issue.Number, issue.URL)
		return nil
	},
}
