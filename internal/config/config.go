// Package config holds the trunkgate configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/clintrovert/trunkgate/internal/orchestrator"
	"github.com/clintrovert/trunkgate/internal/rules"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Host kinds
const (
	HostGH  = "gh"
	HostAPI = "api"
)

// Config is the full trunkgate configuration
type Config struct {
	Repository RepositoryConfig `koanf:"repository"`
	Host       HostConfig       `koanf:"host"`
	Policy     PolicyConfig     `koanf:"policy"`
	Verify     []VerifyConfig   `koanf:"verify"`
	Command    CommandConfig    `koanf:"command"`
	Workspace  WorkspaceConfig  `koanf:"workspace"`
	Temporal   TemporalConfig   `koanf:"temporal"`
	Leader     LeaderConfig     `koanf:"leader"`
	Jira       JiraConfig       `koanf:"jira"`
	OpenAI     OpenAIConfig     `koanf:"openai"`
	NATS       NATSConfig       `koanf:"nats"`
	Log        LogConfig        `koanf:"log"`
}

// RepositoryConfig locates the repository and its integration branch
type RepositoryConfig struct {
	Owner  string `koanf:"owner"`
	Name   string `koanf:"name"`
	Path   string `koanf:"path"`
	Remote string `koanf:"remote"`
	Trunk  string `koanf:"trunk"`
}

// HostConfig selects the issue host adapter
type HostConfig struct {
	// Kind is "gh" for the gh CLI or "api" for the REST API.
	Kind  string `koanf:"kind"`
	Token string `koanf:"token"`
}

// PolicyConfig tunes the default rules
type PolicyConfig struct {
	TestFilePatterns  []string `koanf:"test_file_patterns"`
	DocFilePatterns   []string `koanf:"doc_file_patterns"`
	TestRequiredTypes []string `koanf:"test_required_types"`
	CreatePR          bool     `koanf:"create_pr"`

	// CommentViolations posts failed pull request, review and merge gates
	// on the pull request.
	CommentViolations bool `koanf:"comment_violations"`
}

// VerifyConfig is one local verification command
type VerifyConfig struct {
	Name    string        `koanf:"name"`
	Run     string        `koanf:"run"`
	Timeout time.Duration `koanf:"timeout"`
}

// CommandConfig bounds external calls
type CommandConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// WorkspaceConfig places worker clones. An empty Dir makes workers use
// repository.path as is.
type WorkspaceConfig struct {
	Dir       string `koanf:"dir"`
	CloneBase string `koanf:"clone_base"`
}

// TemporalConfig holds Temporal connection settings
type TemporalConfig struct {
	Address         string        `koanf:"address"`
	Namespace       string        `koanf:"namespace"`
	TaskQueue       string        `koanf:"task_queue"`
	RecheckInterval time.Duration `koanf:"recheck_interval"`
	PhaseTimeout    time.Duration `koanf:"phase_timeout"`
}

// LeaderConfig holds leader service settings
type LeaderConfig struct {
	Label        string        `koanf:"label"`
	PollInterval time.Duration `koanf:"poll_interval"`
	HTTPAddr     string        `koanf:"http_addr"`
	GRPCAddr     string        `koanf:"grpc_addr"`
}

// JiraConfig holds Jira settings. Jira is optional.
type JiraConfig struct {
	BaseURL  string `koanf:"base_url"`
	Username string `koanf:"username"`
	Token    string `koanf:"token"`
	// Statuses maps a phase name to the status a ticket moves to once that
	// phase passes.
	Statuses map[string]string `koanf:"statuses"`
}

// OpenAIConfig holds advisor settings. The AI advisor is optional.
type OpenAIConfig struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

// NATSConfig holds event publishing settings. Publishing is off when URL is
// empty.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Repository.Path == "" {
		cfg.Repository.Path = "."
	}
	if cfg.Repository.Remote == "" {
		cfg.Repository.Remote = "origin"
	}
	if cfg.Repository.Trunk == "" {
		cfg.Repository.Trunk = "main"
	}
	if cfg.Host.Kind == "" {
		cfg.Host.Kind = HostGH
	}

	defaults := rules.DefaultOptions()
	if len(cfg.Policy.TestFilePatterns) == 0 {
		cfg.Policy.TestFilePatterns = defaults.TestFilePatterns
	}
	if len(cfg.Policy.DocFilePatterns) == 0 {
		cfg.Policy.DocFilePatterns = defaults.DocFilePatterns
	}
	if cfg.Policy.TestRequiredTypes == nil {
		cfg.Policy.TestRequiredTypes = defaults.TestRequiredTypes
	}

	if cfg.Command.Timeout == 0 {
		cfg.Command.Timeout = 2 * time.Minute
	}

	if cfg.Temporal.Address == "" {
		cfg.Temporal.Address = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "trunkgate-queue"
	}
	if cfg.Temporal.PhaseTimeout == 0 {
		cfg.Temporal.PhaseTimeout = 30 * time.Minute
	}

	if cfg.Leader.Label == "" {
		cfg.Leader.Label = "trunkgate"
	}
	if cfg.Leader.PollInterval == 0 {
		cfg.Leader.PollInterval = time.Minute
	}
	if cfg.Leader.HTTPAddr == "" {
		cfg.Leader.HTTPAddr = ":8080"
	}
	if cfg.Leader.GRPCAddr == "" {
		cfg.Leader.GRPCAddr = ":9090"
	}

	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "trunkgate.attempts"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	if c.Repository.Owner == "" || c.Repository.Name == "" {
		errs = append(errs, errors.New("repository.owner and repository.name are required"))
	}
	switch c.Host.Kind {
	case HostGH:
	case HostAPI:
		if c.Host.Token == "" {
			errs = append(errs, errors.New("host.token is required for the api host"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown host.kind %q", c.Host.Kind))
	}
	for i, v := range c.Verify {
		if v.Name == "" || v.Run == "" {
			errs = append(errs, fmt.Errorf("verify[%d]: name and run are required", i))
		}
		if v.Timeout < 0 {
			errs = append(errs, fmt.Errorf("verify[%d]: timeout must not be negative", i))
		}
	}
	for name := range c.Jira.Statuses {
		if types.Phase(name).Index() < 0 {
			errs = append(errs, fmt.Errorf("jira.statuses: unknown phase %q", name))
		}
	}
	if c.Jira.BaseURL != "" && (c.Jira.Username == "" || c.Jira.Token == "") {
		errs = append(errs, errors.New("jira.username and jira.token are required with jira.base_url"))
	}
	if c.Temporal.RecheckInterval < 0 {
		errs = append(errs, errors.New("temporal.recheck_interval must not be negative"))
	}
	if c.Leader.PollInterval <= 0 {
		errs = append(errs, errors.New("leader.poll_interval must be positive"))
	}

	return errors.Join(errs...)
}

// RepositoryInfo returns the repository the configuration targets
func (c *Config) RepositoryInfo() types.RepositoryInfo {
	return types.RepositoryInfo{
		Owner:  c.Repository.Owner,
		Name:   c.Repository.Name,
		Path:   c.Repository.Path,
		Remote: c.Repository.Remote,
		Trunk:  c.Repository.Trunk,
	}
}

// RuleOptions returns the policy options for the default registry
func (c *Config) RuleOptions() rules.Options {
	return rules.Options{
		TestFilePatterns:  c.Policy.TestFilePatterns,
		DocFilePatterns:   c.Policy.DocFilePatterns,
		TestRequiredTypes: c.Policy.TestRequiredTypes,
	}
}

// Verifications returns the configured verification commands
func (c *Config) Verifications() []orchestrator.Verification {
	out := make([]orchestrator.Verification, 0, len(c.Verify))
	for _, v := range c.Verify {
		ver := orchestrator.ParseVerification(v.Name, v.Run)
		ver.Timeout = v.Timeout
		out = append(out, ver)
	}
	return out
}

// JiraStatuses returns the phase to ticket status mapping
func (c *Config) JiraStatuses() map[types.Phase]string {
	out := make(map[types.Phase]string, len(c.Jira.Statuses))
	for name, status := range c.Jira.Statuses {
		out[types.Phase(name)] = status
	}
	return out
}

// Task builds the task of an issue in the configured repository
func (c *Config) Task(issue int) types.Task {
	return types.Task{
		IssueNumber: issue,
		Repository:  c.RepositoryInfo(),
		CreatePR:    c.Policy.CreatePR,
	}
}
