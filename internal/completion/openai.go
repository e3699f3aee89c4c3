package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/google/uuid"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = openai.ChatModelGPT4o
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	RPM          int
	MaxRetries   int
	BaseURL      string       // Optional (tests)
	HTTPClient   *http.Client // Optional (tests)
}

// OpenAIClient implements Client using the official OpenAI SDK.
//
// It is a text-only provider: plain-text document blocks are inlined into
// the user content, binary documents are rejected. Jobs that attach PDFs
// must route through a provider with native document support.
type OpenAIClient struct {
	defaultModel string
	rpm          int
	client       openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.RPM == 0 {
		cfg.RPM = 500
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		defaultModel: cfg.DefaultModel,
		rpm:          cfg.RPM,
		client:       openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// RequestsPerMinute returns the RPM limit for rate limiting.
func (c *OpenAIClient) RequestsPerMinute() int {
	return c.rpm
}

// Complete sends a completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Result, error) {
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

	userText, err := inlineTextDocuments(req)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(userText),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &APIError{
			Type:     ErrorTypeAPI,
			Provider: OpenAIName,
			Message:  fmt.Sprintf("empty choices in response (id=%s)", resp.ID),
		}
	}

	choice := resp.Choices[0]

	return &Result{
		Text:             choice.Message.Content,
		Truncated:        choice.FinishReason == "length",
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		Provider:         OpenAIName,
		Model:            resp.Model,
		RequestID:        requestID,
		Duration:         time.Since(start),
	}, nil
}

// inlineTextDocuments folds text documents into the user content.
func inlineTextDocuments(req *Request) (string, error) {
	if len(req.Documents) == 0 {
		return req.UserText, nil
	}

	var sb strings.Builder
	for _, doc := range req.Documents {
		if !strings.HasPrefix(doc.MediaType, "text/") {
			return "", fmt.Errorf("openai provider does not support %s documents (%s)", doc.MediaType, doc.Name)
		}
		fmt.Fprintf(&sb, "<document name=%q>\n%s\n</document>\n\n", doc.Name, string(doc.Data))
	}
	sb.WriteString(req.UserText)
	return sb.String(), nil
}

// mapOpenAIError converts SDK errors into classified APIErrors.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			Type:     classifyStatus(apiErr.StatusCode),
			Status:   apiErr.StatusCode,
			Provider: OpenAIName,
			Message:  apiErr.Message,
		}
	}
	return err
}

// Verify interface
var _ Client = (*OpenAIClient)(nil)
