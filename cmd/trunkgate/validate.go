package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clintrovert/trunkgate/internal/bootstrap"
	"github.com/clintrovert/trunkgate/internal/report"
	"github.com/clintrovert/trunkgate/internal/validator"
	"github.com/clintrovert/trunkgate/pkg/types"
)

var validateContextFile string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.AddCommand(
		validateSingle("issue-title", "Check an issue title", (*validator.Validator).IssueTitle),
		validateSingle("branch", "Check a branch name", (*validator.Validator).BranchName),
		validateSingle("commit", "Check a commit message", (*validator.Validator).CommitMessage),
		validateSingle("pr-body", "Check a pull request body", (*validator.Validator).PRBody),
		validatePhaseCmd,
	)
	validatePhaseCmd.Flags().StringVarP(&validateContextFile, "context", "f", "-", "gate context JSON file, - for stdin")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check candidate names and messages against the policy",
	Long: `Check a single candidate against the pattern it must match, or evaluate
a whole phase gate over a JSON gate context.

Examples:
  trunkgate validate issue-title "feat: add login form"
  trunkgate validate branch 123-feat-add-login-form
  git log -1 --format=%B | trunkgate validate commit -
  trunkgate validate phase merge -f context.json`,
}

func validateSingle(use, short string, check func(*validator.Validator, string) types.Result) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <value|->",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := argOrStdin(cmd, args[0])
			if err != nil {
				return err
			}

			cfg, logger, err := loadPolicy()
			if err != nil {
				return err
			}
			v, err := bootstrap.Validator(cfg, logger)
			if err != nil {
				return err
			}
			return printResult(cmd, check(v, value))
		},
	}
}

var validatePhaseCmd = &cobra.Command{
	Use:   "phase <phase>",
	Short: "Evaluate the gate of a phase over a gate context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := types.ParsePhase(args[0])
		if err != nil {
			return err
		}

		data, err := readInput(cmd, validateContextFile)
		if err != nil {
			return err
		}
		var gate types.GateContext
		if err := json.Unmarshal(data, &gate); err != nil {
			return fmt.Errorf("failed to parse gate context: %w", err)
		}

		cfg, logger, err := loadPolicy()
		if err != nil {
			return err
		}
		v, err := bootstrap.Validator(cfg, logger)
		if err != nil {
			return err
		}
		return printResult(cmd, v.Check(p, &gate))
	},
}

func printResult(cmd *cobra.Command, res types.Result) error {
	out := cmd.OutOrStdout()
	if outputJSON {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, report.Result(res))
	}
	if !res.Passed {
		return errGateFailed
	}
	return nil
}

func argOrStdin(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
