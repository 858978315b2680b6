package ai

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a test provider that records calls and returns
// configurable responses
type MockProvider struct {
	name      string
	responses []MockResponse
	calls     []MockCall
	respIndex int
	mu        sync.Mutex
}

// MockResponse represents a pre-configured response for the mock provider
type MockResponse struct {
	Content string
	Error   error
	Delay   time.Duration // simulated provider latency
}

// MockCall records a call to GenerateText or AnalyzeImage
type MockCall struct {
	Method string // "generate_text" or "analyze_image"
	Prompt string
	Bytes  int // image payload size for analyze_image calls
}

// NewMockProvider creates a new mock provider for testing
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	return m.name
}

// GenerateText records the call and returns the next configured response
func (m *MockProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.record(MockCall{Method: "generate_text", Prompt: prompt})
	return m.respond(ctx)
}

// AnalyzeImage records the call and returns the next configured response
func (m *MockProvider) AnalyzeImage(ctx context.Context, data []byte, prompt string) (string, error) {
	m.record(MockCall{Method: "analyze_image", Prompt: prompt, Bytes: len(data)})
	return m.respond(ctx)
}

func (m *MockProvider) record(call MockCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockProvider) respond(ctx context.Context) (string, error) {
	m.mu.Lock()
	var resp MockResponse
	if m.respIndex < len(m.responses) {
		resp = m.responses[m.respIndex]
		m.respIndex++
	} else {
		resp = MockResponse{Content: "Mock response"}
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(resp.Delay):
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	return resp.Content, nil
}

// AddResponse queues a successful response
func (m *MockProvider) AddResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Content: content})
}

// AddErrorResponse queues an error response
func (m *MockProvider) AddErrorResponse(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Error: err})
}

// AddDelayedResponse queues a response that takes delay to arrive
func (m *MockProvider) AddDelayedResponse(content string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Content: content, Delay: delay})
}

// GetCalls returns all recorded calls
func (m *MockProvider) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.calls...)
}

// GetCallCount returns the number of recorded calls
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent call, or nil if none have been made
func (m *MockProvider) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls and responses
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.responses = nil
	m.respIndex = 0
}
