// Package fanout coordinates completion calls over document sets that may
// exceed a single call's page budget. It chunks the documents, fans one
// call out per chunk group in parallel, and returns per-group results for
// the merge engine to fold.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crestline-labs/duework/internal/chunker"
	"github.com/crestline-labs/duework/internal/completion"
)

// Completer is the completion surface the coordinator calls. Satisfied by
// *completion.Gateway.
type Completer interface {
	Complete(ctx context.Context, req *completion.Request) (*completion.Result, error)
}

// CallSpec describes one logical completion call over a document set.
type CallSpec struct {
	System    string
	UserText  string
	Documents []completion.DocumentBlock

	// PageBudget caps the paginated page count per underlying call.
	PageBudget int
	// MaxTokens is the per-call output token budget.
	MaxTokens int

	JobID string
	Phase string
}

// GroupResult is one chunk group's completion result tagged with the
// group's label.
type GroupResult struct {
	Label  string
	Result *completion.Result
}

// Coordinator fans a logical call out across chunk groups.
type Coordinator struct {
	completer Completer
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator over the given completion surface.
func NewCoordinator(completer Completer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		completer: completer,
		logger:    logger.With("component", "fanout"),
	}
}

// Call chunks the documents and issues one completion call per group. A
// single group makes a direct call with no labeling overhead. Multiple
// groups run in parallel, each with its label prefixed into the user text
// so the model knows it is seeing a partial slice.
//
// Partial success returns the successful results only; it is valid input
// to the merge engine, not a failure. If every call fails, the first
// error is returned.
func (c *Coordinator) Call(ctx context.Context, spec CallSpec) ([]GroupResult, error) {
	groups, err := chunker.Chunk(spec.Documents, spec.PageBudget)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk documents: %w", err)
	}
	return c.dispatch(ctx, spec, groups)
}

func (c *Coordinator) dispatch(ctx context.Context, spec CallSpec, groups []chunker.Group) ([]GroupResult, error) {
	if len(groups) == 1 {
		result, err := c.completer.Complete(ctx, &completion.Request{
			System:    spec.System,
			UserText:  spec.UserText,
			Documents: groups[0].Docs,
			MaxTokens: spec.MaxTokens,
			JobID:     spec.JobID,
			Phase:     spec.Phase,
		})
		if err != nil {
			return nil, err
		}
		return []GroupResult{{Label: groups[0].Label, Result: result}}, nil
	}

	c.logger.Info("fanning out chunked call",
		"phase", spec.Phase,
		"groups", len(groups),
		"page_budget", spec.PageBudget)

	results := make([]*completion.Result, len(groups))
	errs := make([]error, len(groups))

	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		go func(i int, group chunker.Group) {
			defer wg.Done()
			results[i], errs[i] = c.completer.Complete(ctx, &completion.Request{
				System:    spec.System,
				UserText:  partialViewNote(group.Label) + spec.UserText,
				Documents: group.Docs,
				MaxTokens: spec.MaxTokens,
				JobID:     spec.JobID,
				Phase:     spec.Phase,
			})
		}(i, group)
	}
	wg.Wait()

	var out []GroupResult
	var firstErr error
	for i, group := range groups {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			c.logger.Warn("chunk call failed",
				"phase", spec.Phase,
				"group", group.Label,
				"error", errs[i])
			continue
		}
		out = append(out, GroupResult{Label: group.Label, Result: results[i]})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("all %d chunk calls failed: %w", len(groups), firstErr)
	}
	if firstErr != nil {
		c.logger.Info("proceeding with partial chunk results",
			"phase", spec.Phase,
			"succeeded", len(out),
			"failed", len(groups)-len(out))
	}
	return out, nil
}

func partialViewNote(label string) string {
	return fmt.Sprintf("NOTE: You are seeing a partial view of the source documents (%s). Extract what is visible in this slice only.\n\n", label)
}
