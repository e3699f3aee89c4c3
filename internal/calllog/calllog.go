// Package calllog persists one audit row per completion call. Writes are
// fire-and-forget through a buffered channel so slow storage never blocks
// an in-flight completion.
package calllog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/store"
)

const defaultBuffer = 256

// Sink records completion calls into the store.
type Sink struct {
	store  store.Store
	logger *slog.Logger

	ch   chan *store.CallRecord
	wg   sync.WaitGroup
	once sync.Once
}

// NewSink creates and starts a sink writing to st.
func NewSink(st store.Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		store:  st,
		logger: logger.With("component", "calllog"),
		ch:     make(chan *store.CallRecord, defaultBuffer),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Record queues one call record. Drops the record with a warning if the
// buffer is full; the audit log is best-effort, the call itself is not.
func (s *Sink) Record(ctx context.Context, rec *completion.CallRecord) {
	row := &store.CallRecord{
		RequestID:        rec.RequestID,
		JobID:            rec.JobID,
		Phase:            rec.Phase,
		Provider:         rec.Provider,
		Model:            rec.Model,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		TotalTokens:      rec.TotalTokens,
		Truncated:        rec.Truncated,
		Duration:         rec.Duration,
		ErrorType:        rec.ErrorType,
		ErrorMessage:     rec.ErrorMessage,
		CreatedAt:        rec.CreatedAt,
	}

	select {
	case s.ch <- row:
	default:
		s.logger.Warn("call log buffer full, dropping record",
			"request_id", rec.RequestID)
	}
}

// Close flushes pending records and stops the sink.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.ch) })
	s.wg.Wait()
}

func (s *Sink) drain() {
	defer s.wg.Done()
	for row := range s.ch {
		if err := s.store.RecordCall(context.Background(), row); err != nil {
			s.logger.Warn("failed to persist call record",
				"request_id", row.RequestID,
				"error", err)
		}
	}
}

// Verify interface
var _ completion.Recorder = (*Sink)(nil)
