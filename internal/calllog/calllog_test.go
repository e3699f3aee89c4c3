package calllog

import (
	"context"
	"testing"
	"time"

	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/store"
)

func TestSinkPersistsRecords(t *testing.T) {
	mem := store.NewMemory()
	sink := NewSink(mem, nil)

	sink.Record(context.Background(), &completion.CallRecord{
		RequestID:        "req-1",
		JobID:            "job-1",
		Phase:            "company_profile",
		Provider:         "anthropic",
		Model:            "claude-sonnet-4-20250514",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      1500,
		Duration:         2 * time.Second,
		CreatedAt:        time.Now().UTC(),
	})
	sink.Record(context.Background(), &completion.CallRecord{
		RequestID: "req-2",
		Provider:  "anthropic",
		ErrorType: "rate_limited",
	})
	sink.Close()

	calls := mem.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 records, got %d", len(calls))
	}
	if calls[0].RequestID != "req-1" || calls[0].Phase != "company_profile" {
		t.Errorf("record = %+v", calls[0])
	}
	if calls[1].ErrorType != "rate_limited" {
		t.Errorf("error type = %q", calls[1].ErrorType)
	}
}

func TestSinkCloseIsIdempotent(t *testing.T) {
	sink := NewSink(store.NewMemory(), nil)
	sink.Close()
	sink.Close()
}
