package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/validator"
	"github.com/clintrovert/trunkgate/pkg/types"
)

const systemPrompt = "You are a release engineer that keeps a trunk-based repository tidy. " +
	"Propose how to scope work and how to phrase issue titles and commit messages."

// ErrNoResponse is returned when the model produced no choices
var ErrNoResponse = errors.New("no response from AI")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AI asks an OpenAI model for suggestions and checks each one against the
// workflow patterns before returning it.
type AI struct {
	client    chatClient
	validator *validator.Validator
	logger    *zap.Logger
	model     string
}

// NewAI creates a new AI advisor
func NewAI(apiKey, model string, v *validator.Validator, logger *zap.Logger) *AI {
	return newAI(openai.NewClient(apiKey), model, v, logger)
}

// NewAIWithConfig creates an AI advisor against a custom endpoint
func NewAIWithConfig(cfg openai.ClientConfig, model string, v *validator.Validator, logger *zap.Logger) *AI {
	return newAI(openai.NewClientWithConfig(cfg), model, v, logger)
}

func newAI(client chatClient, model string, v *validator.Validator, logger *zap.Logger) *AI {
	if model == "" {
		model = openai.GPT4TurboPreview
	}
	return &AI{client: client, validator: v, logger: logger, model: model}
}

// Advise implements Advisor. The heuristic recommendation is always included;
// the model may only add reasons and suggestions.
func (a *AI) Advise(ctx context.Context, req Request) (*Advice, error) {
	advice, _ := Heuristic{}.Advise(ctx, req)
	advice.Source = "ai"

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoResponse
	}

	a.parseResponse(resp.Choices[0].Message.Content, advice)

	a.logger.Info("generated advice",
		zap.Bool("split", advice.Recommendation.Split),
		zap.Int("suggestions", len(advice.Suggestions)),
	)
	return advice, nil
}

func buildPrompt(req Request) string {
	var sb strings.Builder

	if req.Issue != nil {
		sb.WriteString(fmt.Sprintf("Issue #%d: %s\n\n", req.Issue.Number, req.Issue.Title))
		if req.Issue.Body != "" {
			sb.WriteString("Description:\n")
			sb.WriteString(req.Issue.Body)
			sb.WriteString("\n\n")
		}
	}
	if len(req.Commits) > 0 {
		sb.WriteString("Commits:\n")
		for _, c := range req.Commits {
			sb.WriteString(fmt.Sprintf("- %s\n", strings.SplitN(c.Message, "\n", 2)[0]))
		}
		sb.WriteString("\n")
	}
	if len(req.ChangedFiles) > 0 {
		sb.WriteString("Changed files:\n")
		for _, f := range req.ChangedFiles {
			sb.WriteString(fmt.Sprintf("- %s\n", f))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Issue titles look like 'feat: short summary' with a type of feat, fix, chore, refactor or docs.\n")
	sb.WriteString("Commit messages look like 'feat(scope): short summary' with a type of feat, fix, docs, style, refactor, test or chore.\n\n")
	sb.WriteString("Respond in this format:\n")
	sb.WriteString("SPLIT: yes or no\n")
	sb.WriteString("REASON: one line per reason\n")
	sb.WriteString("ISSUE: one proposed issue title per line\n")
	sb.WriteString("COMMIT: one proposed commit message per line\n")

	return sb.String()
}

func (a *AI) parseResponse(content string, advice *Advice) {
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "SPLIT":
			if strings.EqualFold(value, "yes") {
				advice.Recommendation.Split = true
			}
		case "REASON":
			advice.Recommendation.Reasons = append(advice.Recommendation.Reasons, value)
		case "ISSUE":
			advice.Suggestions = append(advice.Suggestions, suggestion(SuggestIssueTitle, value, a.validator.IssueTitle(value)))
		case "COMMIT":
			advice.Suggestions = append(advice.Suggestions, suggestion(SuggestCommitMessage, value, a.validator.CommitMessage(value)))
		}
	}
}

func suggestion(kind SuggestionKind, text string, res types.Result) Suggestion {
	return Suggestion{
		Kind:       kind,
		Text:       text,
		Compliant:  res.Passed,
		Violations: res.Violations,
	}
}
