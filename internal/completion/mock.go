package completion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is a Client for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ResponseText string
	Truncate     bool
	Err          error // returned verbatim when set
	FailAfter    int   // fail requests after the first N (0 = never)

	// Responses, when set, are consumed in request order before
	// falling back to ResponseText. Useful for multi-phase tests.
	Responses []string

	// ResponseFn, when set, computes the response per request.
	ResponseFn func(req *Request) (string, error)

	RPM int

	mu           sync.Mutex
	requestCount atomic.Int64
	requests     []*Request
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "mock response",
		RPM:          6000,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// RequestsPerMinute returns the RPM limit for rate limiting.
func (c *MockClient) RequestsPerMinute() int {
	return c.RPM
}

// Complete sends a mock completion request.
func (c *MockClient) Complete(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return nil, &APIError{
			Type:     ErrorTypeAPI,
			Provider: MockClientName,
			Message:  fmt.Sprintf("mock client failed after %d requests", c.FailAfter),
		}
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	text := c.ResponseText
	c.mu.Lock()
	if len(c.Responses) > 0 {
		text = c.Responses[0]
		c.Responses = c.Responses[1:]
	}
	c.mu.Unlock()

	if c.ResponseFn != nil {
		var err error
		text, err = c.ResponseFn(req)
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Text:             text,
		Truncated:        c.Truncate,
		PromptTokens:     len(req.UserText) / 4,
		CompletionTokens: len(text) / 4,
		TotalTokens:      (len(req.UserText) + len(text)) / 4,
		Provider:         MockClientName,
		Model:            req.Model,
		RequestID:        fmt.Sprintf("mock-%d", count),
		Duration:         time.Since(start),
	}, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns a copy of all requests seen so far.
func (c *MockClient) Requests() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Reset clears the request log and counter.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount.Store(0)
	c.requests = nil
}

// Verify interface
var _ Client = (*MockClient)(nil)
