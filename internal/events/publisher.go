// Package events publishes phase attempts to NATS so other systems can follow
// tasks without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/pkg/types"
)

// DefaultSubjectPrefix prefixes every subject when none is configured
const DefaultSubjectPrefix = "trunkgate.attempts"

// Event is the payload of one published attempt
type Event struct {
	TaskID      string        `json:"task_id"`
	Repository  string        `json:"repository"`
	IssueNumber int           `json:"issue_number"`
	Branch      string        `json:"branch,omitempty"`
	Attempt     types.Attempt `json:"attempt"`
	PublishedAt time.Time     `json:"published_at"`
}

// Publisher sends attempts to NATS. It implements the orchestrator notifier
// interface.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// Connect dials url and returns a publisher over the connection
func Connect(url, prefix string, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("trunkgate"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return NewPublisher(nc, prefix, logger), nil
}

// NewPublisher wraps an existing connection
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: nc, prefix: prefix, logger: logger, now: time.Now}
}

// Subject returns the subject attempts of task in phase are published on:
// <prefix>.<owner>.<name>.<issue>.<phase>
func (p *Publisher) Subject(task types.Task, phase types.Phase) string {
	return strings.Join([]string{
		p.prefix,
		token(task.Repository.Owner),
		token(task.Repository.Name),
		fmt.Sprint(task.IssueNumber),
		string(phase),
	}, ".")
}

// Notify publishes one attempt
func (p *Publisher) Notify(_ context.Context, task types.Task, attempt types.Attempt) error {
	data, err := json.Marshal(Event{
		TaskID:      task.ID(),
		Repository:  task.Repository.Owner + "/" + task.Repository.Name,
		IssueNumber: task.IssueNumber,
		Branch:      task.Branch,
		Attempt:     attempt,
		PublishedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.Subject(task, attempt.Result.Phase)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish attempt: %w", err)
	}

	p.logger.Debug("published attempt",
		zap.String("subject", subject),
		zap.String("attempt_id", attempt.ID),
	)
	return nil
}

// Close drains and closes the connection
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// token keeps subject tokens free of the separators NATS reserves.
func token(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
