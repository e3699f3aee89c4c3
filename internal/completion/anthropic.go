package completion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	AnthropicName    = "anthropic"
	AnthropicBaseURL = "https://api.anthropic.com/v1"

	anthropicVersion = "2023-06-01"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	// Rate limiting
	RPM        int           // Requests per minute (default: 60)
	MaxRetries int           // Max retry attempts for transient failures (default: 3)
	RetryDelay time.Duration // Base delay between retries (default: 1s)
}

// AnthropicClient implements Client using the Anthropic Messages API.
type AnthropicClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client

	rpm        int
	maxRetries int
	retryDelay time.Duration
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = AnthropicBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.RPM == 0 {
		cfg.RPM = 60
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	return &AnthropicClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rpm:        cfg.RPM,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Name returns the client identifier.
func (c *AnthropicClient) Name() string {
	return AnthropicName
}

// RequestsPerMinute returns the RPM limit for rate limiting.
func (c *AnthropicClient) RequestsPerMinute() int {
	return c.rpm
}

// anthropicContentBlock is one entry in a user message's content array.
type anthropicContentBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
	Title  string           `json:"title,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	// Documents go first so the trailing text instruction refers to them.
	content := make([]anthropicContentBlock, 0, len(req.Documents)+1)
	for _, doc := range req.Documents {
		content = append(content, anthropicContentBlock{
			Type:  "document",
			Title: doc.Name,
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: doc.MediaType,
				Data:      base64.StdEncoding.EncodeToString(doc.Data),
			},
		})
	}
	content = append(content, anthropicContentBlock{Type: "text", Text: req.UserText})

	body := &anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: content}},
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	resp, err := c.doRequest(ctx, "/messages", body)
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Result{
		Text:             text,
		Truncated:        resp.StopReason == "max_tokens",
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Provider:         AnthropicName,
		Model:            resp.Model,
		RequestID:        requestID,
		Duration:         time.Since(start),
	}, nil
}

// doRequest makes an HTTP request to the Messages API with bounded retries
// for transient failures. Non-retryable statuses surface as *APIError.
func (c *AnthropicClient) doRequest(ctx context.Context, path string, body *anthropicRequest) (*anthropicResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		// Back off before retries only, never after the final attempt.
		if attempt > 0 {
			c.sleepWithBackoff(ctx, attempt-1)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := c.apiError(resp.StatusCode, respBody)
			if c.shouldRetry(resp.StatusCode) {
				lastErr = apiErr
				continue
			}
			return nil, apiErr
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if parsed.Error != nil {
			return nil, &APIError{
				Type:     ErrorTypeAPI,
				Status:   resp.StatusCode,
				Provider: AnthropicName,
				Message:  parsed.Error.Message,
			}
		}

		return &parsed, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// apiError builds a classified error from an error response body.
func (c *AnthropicClient) apiError(status int, body []byte) *APIError {
	message := string(body)
	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		message = parsed.Error.Message
	}
	return &APIError{
		Type:     classifyStatus(status),
		Status:   status,
		Provider: AnthropicName,
		Message:  message,
	}
}

// shouldRetry returns true for statuses worth a bounded in-client retry.
// 401/403 are not retried; the caller must handle invalid credentials.
func (c *AnthropicClient) shouldRetry(statusCode int) bool {
	switch statusCode {
	case 429, 529:
		return true
	default:
		return statusCode >= 500
	}
}

// sleepWithBackoff sleeps with exponential backoff, respecting context cancellation.
func (c *AnthropicClient) sleepWithBackoff(ctx context.Context, attempt int) {
	delay := c.retryDelay * time.Duration(1<<attempt)
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// Verify interface
var _ Client = (*AnthropicClient)(nil)
