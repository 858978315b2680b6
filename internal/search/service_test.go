package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gembot/internal/ai"
)

func newServiceTestClient(t *testing.T, handler http.HandlerFunc) (*SerperClient, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client, err := NewSerperClient(fastTestConfig("test-key", server.URL))
	require.NoError(t, err)
	return client, server.Close
}

func TestService_Run_SummarizesResults(t *testing.T) {
	client, closeServer := newServiceTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mockSerperResponse))
	})
	defer closeServer()

	provider := ai.NewMockProvider("mock")
	provider.AddResponse("• Go is a programming language\n• It has a tour\n• Packages are indexed")

	svc := NewService(client, provider)
	result, err := svc.Run(context.Background(), "golang")
	require.NoError(t, err)

	assert.Contains(t, result.Summary, "programming language")
	assert.Equal(t, []string{"https://go.dev", "https://go.dev/tour", "https://pkg.go.dev"}, result.Links)

	// Summarization prompt carries the query and the serialized results
	last := provider.LastCall()
	require.NotNil(t, last)
	assert.Equal(t, "generate_text", last.Method)
	assert.Contains(t, last.Prompt, "Summarize these search results about golang")
	assert.Contains(t, last.Prompt, "go.dev")
}

func TestService_Run_NoResults(t *testing.T) {
	client, closeServer := newServiceTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organic": []}`))
	})
	defer closeServer()

	provider := ai.NewMockProvider("mock")
	svc := NewService(client, provider)

	result, err := svc.Run(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.Equal(t, "No results found for 'xyzzy'", result.Summary)
	assert.Empty(t, result.Links)
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestService_Run_SearchFailureYieldsUserMessage(t *testing.T) {
	client, closeServer := newServiceTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer closeServer()

	provider := ai.NewMockProvider("mock")
	svc := NewService(client, provider)

	result, err := svc.Run(context.Background(), "query")
	assert.ErrorIs(t, err, ErrAPIKeyInvalid)
	assert.Equal(t, "⚠️ Search failed: Invalid API key", result.Summary)
}

func TestService_Run_SummarizerFailureDegrades(t *testing.T) {
	client, closeServer := newServiceTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mockSerperResponse))
	})
	defer closeServer()

	provider := ai.NewMockProvider("mock")
	provider.AddErrorResponse(errors.New("model overloaded"))

	svc := NewService(client, provider)
	result, err := svc.Run(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, "⚠️ Error analyzing results", result.Summary)
}

func TestService_Run_TruncatesSummaryInput(t *testing.T) {
	// Pad snippets so the serialized results exceed the summarizer input cap
	var results []string
	for i := 0; i < 20; i++ {
		results = append(results, fmt.Sprintf(
			`{"title": "Result %d", "link": "https://example.com/%d", "snippet": "%s"}`,
			i, i, strings.Repeat("x", 300)))
	}
	payload := `{"organic": [` + strings.Join(results, ",") + `]}`

	client, closeServer := newServiceTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})
	defer closeServer()

	provider := ai.NewMockProvider("mock")
	provider.AddResponse("summary")

	svc := NewService(client, provider)
	_, err := svc.Run(context.Background(), "query")
	require.NoError(t, err)

	last := provider.LastCall()
	require.NotNil(t, last)
	prefix := "Summarize these search results about query in 3 bullet points: "
	assert.Equal(t, len(prefix)+summaryInputLimit, len(last.Prompt))
}

func TestTopLinks_SkipsEmpty(t *testing.T) {
	organic := []OrganicResult{
		{Link: "https://a.example"},
		{Link: ""},
		{Link: "https://b.example"},
		{Link: "https://c.example"},
		{Link: "https://d.example"},
	}
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, topLinks(organic))
}
