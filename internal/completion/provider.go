package completion

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies completion-service failures so callers can react
// without inspecting provider-specific status codes.
type ErrorType string

const (
	// ErrorTypeUnauthorized means the credential was rejected. The worker
	// stops this user's jobs and flags the credential invalid.
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	// ErrorTypeRateLimited means the provider throttled the request.
	ErrorTypeRateLimited ErrorType = "rate_limited"
	// ErrorTypeOverloaded means the provider is shedding load.
	ErrorTypeOverloaded ErrorType = "overloaded"
	// ErrorTypeAPI covers everything else the provider reported.
	ErrorTypeAPI ErrorType = "api_error"
)

// APIError is a classified error from a completion provider.
type APIError struct {
	Type     ErrorType
	Status   int
	Provider string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Type, e.Status, e.Message)
}

// Classify returns the error type for err, or ErrorTypeAPI if err is not
// a provider APIError.
func Classify(err error) ErrorType {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeAPI
}

// classifyStatus maps an HTTP status code to an error type.
func classifyStatus(status int) ErrorType {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeUnauthorized
	case status == 429:
		return ErrorTypeRateLimited
	case status == 529 || status == 503:
		return ErrorTypeOverloaded
	default:
		return ErrorTypeAPI
	}
}

// DocumentBlock is one binary document attached to a request
// (typically a PDF, possibly a page-range slice of a larger one).
type DocumentBlock struct {
	Name      string
	MediaType string // e.g. "application/pdf", "text/plain"
	Data      []byte
}

// Paginated reports whether the block is page-addressable.
func (d DocumentBlock) Paginated() bool {
	return d.MediaType == "application/pdf"
}

// Request is a single completion-service call.
type Request struct {
	// System is the system prompt.
	System string
	// UserText is the textual part of the user content.
	UserText string
	// Documents are embedded alongside UserText as binary blocks.
	Documents []DocumentBlock

	// Model selection (provider default if empty).
	Model string
	// MaxTokens is the output token budget for this call.
	MaxTokens   int
	Temperature float64

	// RequestID is generated if empty.
	RequestID string

	// Attribution for call logging.
	JobID string
	Phase string
}

// Result is the response from a completion call.
type Result struct {
	// Text is the generated text.
	Text string
	// Truncated is set when generation stopped on the token budget
	// rather than a natural stop.
	Truncated bool

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	Provider  string
	Model     string
	RequestID string
	Duration  time.Duration
}

// Client is implemented by each completion provider.
type Client interface {
	// Complete sends one completion request. It should respect context
	// cancellation and return a classified *APIError on provider failure.
	Complete(ctx context.Context, req *Request) (*Result, error)

	// Name returns the provider identifier (e.g. "anthropic").
	Name() string

	// RequestsPerMinute returns the provider's rate limit.
	RequestsPerMinute() int
}
