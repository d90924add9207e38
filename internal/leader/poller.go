package leader

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/jira"
	"github.com/clintrovert/trunkgate/internal/rules"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// IssueLister lists the open issues of a repository
type IssueLister interface {
	ListIssues(ctx context.Context, label string) ([]types.Issue, error)
}

// PollerConfig describes which issues become tasks
type PollerConfig struct {
	Repository types.RepositoryInfo
	Label      string
	Interval   time.Duration
	CreatePR   bool
}

// Poller polls the issue host for labelled issues
type Poller struct {
	host           IssueLister
	cfg            PollerConfig
	logger         *zap.Logger
	processedTasks map[int]bool
	mu             sync.RWMutex
}

// NewPoller creates a new issue poller
func NewPoller(host IssueLister, cfg PollerConfig, logger *zap.Logger) *Poller {
	return &Poller{
		host:           host,
		cfg:            cfg,
		logger:         logger,
		processedTasks: make(map[int]bool),
	}
}

// Start starts the polling loop
func (p *Poller) Start(ctx context.Context, taskChan chan<- types.Task) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.poll(ctx, taskChan)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping issue poller")
			return
		case <-ticker.C:
			p.poll(ctx, taskChan)
		}
	}
}

func (p *Poller) poll(ctx context.Context, taskChan chan<- types.Task) {
	issues, err := p.host.ListIssues(ctx, p.cfg.Label)
	if err != nil {
		p.logger.Error("failed to list issues",
			zap.String("label", p.cfg.Label),
			zap.Error(err),
		)
		return
	}

	for _, issue := range issues {
		if p.isProcessed(issue.Number) {
			continue
		}

		p.markProcessed(issue.Number)
		select {
		case taskChan <- p.taskFor(issue):
			p.logger.Info("found new issue",
				zap.Int("issue", issue.Number),
				zap.String("title", issue.Title),
			)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) taskFor(issue types.Issue) types.Task {
	return types.Task{
		IssueNumber:  issue.Number,
		JiraTicketID: jira.TicketKey(issue.Title + "\n" + issue.Body),
		Repository:   p.cfg.Repository,
		Slug:         rules.Slug(issue.Title),
		CreatePR:     p.cfg.CreatePR,
	}
}

func (p *Poller) isProcessed(issue int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processedTasks[issue]
}

func (p *Poller) markProcessed(issue int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processedTasks[issue] = true
}

// Forget lets an issue be picked up again on the next poll
func (p *Poller) Forget(issue int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.processedTasks, issue)
}
