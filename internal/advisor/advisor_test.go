package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/rules"
	"github.com/clintrovert/trunkgate/internal/validator"
	"github.com/clintrovert/trunkgate/pkg/types"
)

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	registry, err := rules.Default(rules.DefaultOptions())
	require.NoError(t, err)
	return validator.New(registry, zap.NewNop())
}

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "Issue #123: feat: add login form")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAI(t *testing.T, srv *httptest.Server) *AI {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewAIWithConfig(cfg, "", newValidator(t), zap.NewNop())
}

var loginRequest = Request{
	Issue: &types.Issue{Number: 123, Title: "feat: add login form"},
	Commits: []types.Commit{
		{Hash: "a1", Message: "feat(auth): add login form"},
	},
	ChangedFiles: []string{"web/login.go"},
}

func TestHeuristic_Advise(t *testing.T) {
	advice, err := Heuristic{}.Advise(context.Background(), Request{
		Commits: []types.Commit{
			{Message: "feat(auth): add login form"},
			{Message: "fix(db): handle nil rows"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "heuristic", advice.Source)
	assert.True(t, advice.Recommendation.Split)
	assert.Empty(t, advice.Suggestions)
}

func TestAI_ValidatesSuggestions(t *testing.T) {
	srv := completionServer(t, `SPLIT: yes
REASON: login and session handling are separate concerns
ISSUE: feat: add login form validation
ISSUE: add sessions
COMMIT: feat(auth): add login form handler
COMMIT: added session stuff
`)
	advice, err := newTestAI(t, srv).Advise(context.Background(), loginRequest)
	require.NoError(t, err)

	assert.Equal(t, "ai", advice.Source)
	assert.True(t, advice.Recommendation.Split)
	assert.Equal(t, []string{"login and session handling are separate concerns"}, advice.Recommendation.Reasons)

	require.Len(t, advice.Suggestions, 4)
	assert.Equal(t, SuggestIssueTitle, advice.Suggestions[0].Kind)
	assert.True(t, advice.Suggestions[0].Compliant)
	assert.False(t, advice.Suggestions[1].Compliant)
	assert.NotEmpty(t, advice.Suggestions[1].Violations)
	assert.Equal(t, SuggestCommitMessage, advice.Suggestions[2].Kind)
	assert.True(t, advice.Suggestions[2].Compliant)
	assert.False(t, advice.Suggestions[3].Compliant)
}

func TestAI_KeepsHeuristicRecommendation(t *testing.T) {
	srv := completionServer(t, "SPLIT: no\n")
	req := loginRequest
	req.ChangedFiles = []string{"a/x.go", "b/x.go", "c/x.go", "d/x.go"}

	advice, err := newTestAI(t, srv).Advise(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, advice.Recommendation.Split)
	assert.NotEmpty(t, advice.Recommendation.Reasons)
}

func TestAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestAI(t, srv).Advise(context.Background(), loginRequest)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestAI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestAI(t, srv).Advise(context.Background(), loginRequest)
	assert.Error(t, err)
}
