package jira

import (
	"fmt"
	"regexp"
	"strings"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"
)

// ticketKeyRe matches Jira issue keys such as PROJ-123.
var ticketKeyRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-[0-9]+\b`)

// Client wraps Jira API client functionality
type Client struct {
	client *jira.Client
	logger *zap.Logger
}

// NewClient creates a new Jira client
func NewClient(baseURL, username, apiToken string, logger *zap.Logger) (*Client, error) {
	tp := jira.BasicAuthTransport{
		Username: username,
		Password: apiToken,
	}

	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// UpdateTaskStatus moves a ticket to status through the first matching
// transition. A ticket already in status is left alone.
func (c *Client) UpdateTaskStatus(ticketID, status string) error {
	issue, _, err := c.client.Issue.Get(ticketID, &jira.GetQueryOptions{Fields: "status"})
	if err != nil {
		return fmt.Errorf("failed to get issue: %w", err)
	}
	if issue.Fields != nil && issue.Fields.Status != nil && strings.EqualFold(issue.Fields.Status.Name, status) {
		return nil
	}

	transitions, _, err := c.client.Issue.GetTransitions(ticketID)
	if err != nil {
		return fmt.Errorf("failed to get transitions: %w", err)
	}

	var transitionID string
	for _, transition := range transitions {
		if strings.EqualFold(transition.To.Name, status) {
			transitionID = transition.ID
			break
		}
	}

	if transitionID == "" {
		return fmt.Errorf("transition to status %s not found", status)
	}

	_, err = c.client.Issue.DoTransition(ticketID, transitionID)
	if err != nil {
		return fmt.Errorf("failed to transition issue: %w", err)
	}

	c.logger.Info("transitioned ticket",
		zap.String("ticket_id", ticketID),
		zap.String("status", status),
	)
	return nil
}

// AddComment adds a comment to a ticket
func (c *Client) AddComment(ticketID, comment string) error {
	_, _, err := c.client.Issue.AddComment(ticketID, &jira.Comment{
		Body: comment,
	})
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	return nil
}

// TicketKey returns the first Jira key mentioned in text, or "".
func TicketKey(text string) string {
	return ticketKeyRe.FindString(text)
}
