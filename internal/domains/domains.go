// Package domains wires the four job types onto the pipeline core: credit
// panel generation, multi-pass document extraction, debate simulation, and
// portfolio screening. Each domain contributes a queue descriptor whose
// phases are pure orchestration over the completion gateway; prompt text
// is deliberately thin.
package domains

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/fanout"
	"github.com/crestline-labs/duework/internal/pipeline"
	"github.com/crestline-labs/duework/internal/store"
	"github.com/crestline-labs/duework/internal/worker"
)

// Defaults for completion calls across all domains.
const (
	defaultMaxTokens  = 8192
	defaultPageBudget = 100
)

// Queues returns the queue descriptors for every registered domain.
func Queues() []worker.QueueDescriptor {
	return []worker.QueueDescriptor{
		{Queue: PanelQueue, Phases: panelPhases},
		{Queue: ExtractionQueue, Phases: extractionPhases},
		{Queue: DebateQueue, Phases: debatePhases},
		{Queue: ScreeningQueue, Phases: screeningPhases},
	}
}

func runLogger(run *pipeline.Run) *slog.Logger {
	if run.Logger != nil {
		return run.Logger
	}
	return slog.Default()
}

// profileString reads a string field from the job's domain profile.
func profileString(job *store.Job, key, fallback string) string {
	if v, ok := job.Profile[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// complete issues one direct completion call for a phase.
func complete(ctx context.Context, run *pipeline.Run, phase, system, user string) (string, error) {
	result, err := run.Gateway.Complete(ctx, &completion.Request{
		System:    system,
		UserText:  user,
		MaxTokens: defaultMaxTokens,
		JobID:     run.Job.ID,
		Phase:     phase,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// completeOverDocuments issues a chunked call over the job's documents
// and returns the per-group results.
func completeOverDocuments(ctx context.Context, run *pipeline.Run, phase, system, user string) ([]fanout.GroupResult, error) {
	if len(run.Documents) == 0 {
		return nil, fmt.Errorf("phase %s requires source documents, none uploaded", phase)
	}
	return run.Fanout.Call(ctx, fanout.CallSpec{
		System:     system,
		UserText:   user,
		Documents:  run.Documents,
		PageBudget: defaultPageBudget,
		MaxTokens:  defaultMaxTokens,
		JobID:      run.Job.ID,
		Phase:      phase,
	})
}

// joinLabeled renders per-group results as one raw document, each slice
// under its group label.
func joinLabeled(results []fanout.GroupResult) string {
	if len(results) == 1 {
		return results[0].Result.Text
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", r.Label, r.Result.Text)
	}
	return b.String()
}
