package completion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})

	result, err := c.Complete(context.Background(), &Request{UserText: "hi"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if result.Text != "hello" {
		t.Errorf("Text = %q, want %q", result.Text, "hello")
	}
	if result.Truncated {
		t.Error("end_turn stop should not report truncation")
	}
	if result.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", result.TotalTokens)
	}
}

func TestAnthropicDoesNotRetryUnauthorized(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"type": "authentication_error", "message": "invalid key"}}`))
	}))
	defer server.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "bad", BaseURL: server.URL, MaxRetries: 3})

	_, err := c.Complete(context.Background(), &Request{UserText: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Type != ErrorTypeUnauthorized {
		t.Fatalf("error = %v, want unauthorized APIError", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("made %d requests, want 1 (401 is not retryable)", n)
	}
}

func TestAnthropicNoBackoffAfterFinalAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewAnthropicClient(AnthropicConfig{
		APIKey:     "k",
		BaseURL:    server.URL,
		MaxRetries: 2,
		RetryDelay: 300 * time.Millisecond,
	})

	start := time.Now()
	_, err := c.Complete(context.Background(), &Request{UserText: "hi"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error")
	}
	// Exactly one backoff (before the second attempt). Sleeping again
	// after the final failure would push this past 900ms.
	if elapsed >= 600*time.Millisecond {
		t.Errorf("elapsed %v, want a single ~300ms backoff", elapsed)
	}
}
