package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gembot/internal/ai"
)

// Maximum serialized result text fed into the summarizer, and how many
// links a reply carries.
const (
	summaryInputLimit = 2500
	maxLinks          = 3
)

// Result is the user-deliverable outcome of a web search. A Result is
// always present, even on failure; Summary then carries the user-facing
// error string.
type Result struct {
	Summary string   `json:"summary"`
	Links   []string `json:"links"`
}

// Service runs searches and shapes their results for chat delivery
type Service struct {
	client     *SerperClient
	summarizer ai.Provider
}

// NewService creates a search service backed by the given client and
// summarizing provider
func NewService(client *SerperClient, summarizer ai.Provider) *Service {
	return &Service{
		client:     client,
		summarizer: summarizer,
	}
}

// Run executes a search and summarizes the results. The returned Result is
// always usable for a reply; err is non-nil only for logging.
func (s *Service) Run(ctx context.Context, query string) (Result, error) {
	resp, err := s.client.Search(ctx, query)
	if err != nil {
		return Result{Summary: UserMessage(err)}, err
	}

	if len(resp.Organic) == 0 {
		return Result{Summary: fmt.Sprintf("No results found for '%s'", query)}, nil
	}

	return s.summarize(ctx, query, resp.Organic), nil
}

// summarize condenses the organic results via the AI provider. Summarizer
// failure degrades to an error summary; the search itself still succeeded.
func (s *Service) summarize(ctx context.Context, query string, organic []OrganicResult) Result {
	serialized, err := json.Marshal(organic)
	if err != nil {
		log.Printf("[Search] Failed to serialize results: %v", err)
		return Result{Summary: "⚠️ Error analyzing results"}
	}

	raw := string(serialized)
	if len(raw) > summaryInputLimit {
		raw = raw[:summaryInputLimit]
	}

	prompt := fmt.Sprintf("Summarize these search results about %s in 3 bullet points: %s", query, raw)
	summary, err := s.summarizer.GenerateText(ctx, prompt)
	if err != nil {
		log.Printf("[Search] Summarization failed: %v", err)
		return Result{Summary: "⚠️ Error analyzing results"}
	}

	return Result{
		Summary: summary,
		Links:   topLinks(organic),
	}
}

// topLinks returns up to maxLinks non-empty result links, in rank order
func topLinks(organic []OrganicResult) []string {
	var links []string
	for _, r := range organic {
		if r.Link == "" {
			continue
		}
		links = append(links, r.Link)
		if len(links) == maxLinks {
			break
		}
	}
	return links
}
