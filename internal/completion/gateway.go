package completion

import (
	"context"
	"log/slog"
	"time"
)

// CallRecord is the audit record of one completion call.
type CallRecord struct {
	RequestID        string
	JobID            string
	Phase            string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Truncated        bool
	Duration         time.Duration
	ErrorType        string
	ErrorMessage     string
	CreatedAt        time.Time
}

// Recorder persists call records. Implementations must not block the
// calling goroutine on slow storage.
type Recorder interface {
	Record(ctx context.Context, rec *CallRecord)
}

// Gateway is the uniform call surface over one completion provider.
// It enforces the provider's rate limit, classifies errors, and records
// every call through the optional Recorder.
type Gateway struct {
	client   Client
	limiter  *RateLimiter
	recorder Recorder
	logger   *slog.Logger
}

// GatewayConfig configures a new Gateway.
type GatewayConfig struct {
	Client   Client
	Recorder Recorder // optional
	Logger   *slog.Logger
}

// NewGateway creates a gateway around the given client.
func NewGateway(cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:   cfg.Client,
		limiter:  NewRateLimiter(cfg.Client.RequestsPerMinute()),
		recorder: cfg.Recorder,
		logger:   logger.With("provider", cfg.Client.Name()),
	}
}

// Provider returns the underlying provider name.
func (g *Gateway) Provider() string {
	return g.client.Name()
}

// LimiterStatus returns the current rate limiter status.
func (g *Gateway) LimiterStatus() RateLimiterStatus {
	return g.limiter.Status()
}

// Complete sends one completion request through the rate limiter.
func (g *Gateway) Complete(ctx context.Context, req *Request) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := g.client.Complete(ctx, req)

	rec := &CallRecord{
		RequestID: req.RequestID,
		JobID:     req.JobID,
		Phase:     req.Phase,
		Provider:  g.client.Name(),
		Model:     req.Model,
		Duration:  time.Since(start),
		CreatedAt: time.Now().UTC(),
	}

	if err != nil {
		errType := Classify(err)
		if errType == ErrorTypeRateLimited {
			g.limiter.Record429()
		}
		rec.ErrorType = string(errType)
		rec.ErrorMessage = err.Error()
		g.record(ctx, rec)
		g.logger.Warn("completion call failed",
			"job_id", req.JobID, "phase", req.Phase, "error_type", errType, "error", err)
		return nil, err
	}

	rec.RequestID = result.RequestID
	rec.Model = result.Model
	rec.PromptTokens = result.PromptTokens
	rec.CompletionTokens = result.CompletionTokens
	rec.TotalTokens = result.TotalTokens
	rec.Truncated = result.Truncated
	g.record(ctx, rec)

	g.logger.Debug("completion call ok",
		"job_id", req.JobID, "phase", req.Phase,
		"tokens", result.TotalTokens, "truncated", result.Truncated)
	return result, nil
}

func (g *Gateway) record(ctx context.Context, rec *CallRecord) {
	if g.recorder == nil {
		return
	}
	g.recorder.Record(ctx, rec)
}
