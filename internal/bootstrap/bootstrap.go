// Package bootstrap assembles trunkgate components from configuration.
package bootstrap

import (
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/advisor"
	"github.com/clintrovert/trunkgate/internal/command"
	"github.com/clintrovert/trunkgate/internal/config"
	"github.com/clintrovert/trunkgate/internal/events"
	"github.com/clintrovert/trunkgate/internal/host"
	"github.com/clintrovert/trunkgate/internal/jira"
	"github.com/clintrovert/trunkgate/internal/metrics"
	"github.com/clintrovert/trunkgate/internal/orchestrator"
	"github.com/clintrovert/trunkgate/internal/rules"
	"github.com/clintrovert/trunkgate/internal/validator"
	"github.com/clintrovert/trunkgate/internal/vcs"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Validator builds the validator over the configured rule set
func Validator(cfg *config.Config, logger *zap.Logger) (*validator.Validator, error) {
	registry, err := rules.Default(cfg.RuleOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to build rules: %w", err)
	}
	return validator.New(registry, logger), nil
}

// Host builds the configured issue host adapter for repo
func Host(cfg *config.Config, repo types.RepositoryInfo, runner command.Runner, logger *zap.Logger) host.IssueHostClient {
	if cfg.Host.Kind == config.HostAPI {
		return host.NewAPI(repo.Owner, repo.Name, cfg.Host.Token, logger)
	}
	return host.NewGH(repo.Owner, repo.Name, repo.Path, runner, logger)
}

// Executor builds a phase executor for repo
func Executor(cfg *config.Config, repo types.RepositoryInfo, logger *zap.Logger) (*orchestrator.Executor, error) {
	v, err := Validator(cfg, logger)
	if err != nil {
		return nil, err
	}

	runner := command.NewExecRunner(cfg.Command.Timeout, logger)
	return orchestrator.NewExecutor(
		vcs.NewClient(repo.Path, repo.Remote, runner, logger),
		Host(cfg, repo, runner, logger),
		v,
		runner,
		cfg.Verifications(),
		logger,
	), nil
}

// Notifiers builds the attempt notifiers. m may be nil. The returned func
// releases notifier connections and must be called once attempts stop.
func Notifiers(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) ([]orchestrator.Notifier, func(), error) {
	notifiers := []orchestrator.Notifier{orchestrator.NewLogNotifier(logger)}
	if m != nil {
		notifiers = append(notifiers, m)
	}

	if cfg.Policy.CommentViolations {
		runner := command.NewExecRunner(cfg.Command.Timeout, logger)
		hostFor := func(repo types.RepositoryInfo) host.IssueHostClient {
			return Host(cfg, repo, runner, logger)
		}
		notifiers = append(notifiers, orchestrator.NewCommentNotifier(hostFor, logger))
	}

	if cfg.Jira.BaseURL != "" {
		client, err := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Username, cfg.Jira.Token, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create jira client: %w", err)
		}
		notifiers = append(notifiers, jira.NewNotifier(client, cfg.JiraStatuses(), logger))
	}

	closer := func() {}
	if cfg.NATS.URL != "" {
		publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, publisher)
		closer = func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close event publisher", zap.Error(err))
			}
		}
	}
	return notifiers, closer, nil
}

// Advisor builds the AI advisor when an API key is configured and the
// heuristic advisor otherwise.
func Advisor(cfg *config.Config, v *validator.Validator, logger *zap.Logger) advisor.Advisor {
	if cfg.OpenAI.APIKey == "" {
		return advisor.Heuristic{}
	}

	oc := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		oc.BaseURL = cfg.OpenAI.BaseURL
	}
	return advisor.NewAIWithConfig(oc, cfg.OpenAI.Model, v, logger)
}
