// Package search integrates the Serper web-search API and summarizes its
// results through the AI provider.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"gembot/internal/version"
)

// SerperConfig configures the Serper search client
type SerperConfig struct {
	APIKey        string        `json:"api_key"`
	Endpoint      string        `json:"endpoint"`
	Timeout       time.Duration `json:"timeout"`
	MaxAttempts   int           `json:"max_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Locale        string        `json:"locale"`
	Language      string        `json:"language"`
	ResultCount   int           `json:"result_count"`
}

// DefaultSerperConfig returns the default Serper configuration
func DefaultSerperConfig() SerperConfig {
	return SerperConfig{
		Endpoint:      "https://google.serper.dev/search",
		Timeout:       10 * time.Second,
		MaxAttempts:   3,
		RetryDelay:    1500 * time.Millisecond,
		BackoffFactor: 1.5,
		Locale:        "in",
		Language:      "en",
		ResultCount:   5,
	}
}

// OrganicResult is a single organic search hit
type OrganicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Response holds the parsed Serper API response
type Response struct {
	Organic []OrganicResult `json:"organic"`
}

type serperRequest struct {
	Query    string `json:"q"`
	Locale   string `json:"gl"`
	Language string `json:"hl"`
	Num      int    `json:"num"`
}

// SerperClient calls the Serper search API with retry handling
type SerperClient struct {
	config     SerperConfig
	httpClient *http.Client
}

// NewSerperClient creates a Serper client, applying defaults for unset fields
func NewSerperClient(config SerperConfig) (*SerperClient, error) {
	if config.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}

	defaults := DefaultSerperConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Locale == "" {
		config.Locale = defaults.Locale
	}
	if config.Language == "" {
		config.Language = defaults.Language
	}
	if config.ResultCount == 0 {
		config.ResultCount = defaults.ResultCount
	}

	return &SerperClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Search performs a search, retrying rate limits with exponential backoff
// and network failures with a fixed delay. Non-retryable API errors (bad
// key, forbidden, server error) fail immediately.
func (c *SerperClient) Search(ctx context.Context, query string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.waitBeforeRetry(ctx, lastErr, attempt); err != nil {
				return nil, err
			}
		}

		resp, err := c.performSearch(ctx, query)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return nil, err
		}
		log.Printf("[Serper] Attempt %d/%d failed: %v", attempt+1, c.config.MaxAttempts, err)
	}

	return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
}

// waitBeforeRetry sleeps according to the failure class: exponential
// backoff for rate limits, fixed delay for network errors.
func (c *SerperClient) waitBeforeRetry(ctx context.Context, lastErr error, attempt int) error {
	delay := c.config.RetryDelay
	if errors.Is(lastErr, ErrAPIRateLimit) {
		// Rate limited: back off harder on each attempt
		delay = time.Duration(float64(c.config.RetryDelay) * math.Pow(c.config.BackoffFactor, float64(attempt-1)))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// performSearch executes a single API request
func (c *SerperClient) performSearch(ctx context.Context, query string) (*Response, error) {
	body, err := json.Marshal(serperRequest{
		Query:    query,
		Locale:   c.config.Locale,
		Language: c.config.Language,
		Num:      c.config.ResultCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return nil, err
	}

	return parseResponse(resp)
}

// checkHTTPStatus maps HTTP status codes to the error taxonomy
func checkHTTPStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrAPIKeyInvalid
	case http.StatusForbidden:
		return ErrAPIForbidden
	case http.StatusTooManyRequests:
		return ErrAPIRateLimit
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return ErrAPIServerError
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// parseResponse decodes the Serper response body
func parseResponse(resp *http.Response) (*Response, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return &parsed, nil
}
