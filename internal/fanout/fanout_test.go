package fanout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/crestline-labs/duework/internal/chunker"
	"github.com/crestline-labs/duework/internal/completion"
)

// fakeCompleter routes responses by the group label found in user text.
type fakeCompleter struct {
	mu       sync.Mutex
	requests []*completion.Request
	respond  func(req *completion.Request) (*completion.Result, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req *completion.Request) (*completion.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	return &completion.Result{Text: "ok"}, nil
}

func textGroup(label string, docs ...completion.DocumentBlock) chunker.Group {
	return chunker.Group{Label: label, Docs: docs}
}

func TestCallSingleTextDocumentIsDirect(t *testing.T) {
	fake := &fakeCompleter{}
	c := NewCoordinator(fake, nil)

	results, err := c.Call(context.Background(), CallSpec{
		System:   "system",
		UserText: "analyze this",
		Documents: []completion.DocumentBlock{
			{Name: "notes.txt", MediaType: "text/plain", Data: []byte("hello")},
		},
		PageBudget: 100,
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Label != chunker.AllPagesLabel {
		t.Errorf("label = %q, want %q", results[0].Label, chunker.AllPagesLabel)
	}
	// Single group: no partial-view note prepended.
	if fake.requests[0].UserText != "analyze this" {
		t.Errorf("user text modified for single group: %q", fake.requests[0].UserText)
	}
}

func TestDispatchMultipleGroupsLabelsRequests(t *testing.T) {
	fake := &fakeCompleter{
		respond: func(req *completion.Request) (*completion.Result, error) {
			return &completion.Result{Text: "chunk result"}, nil
		},
	}
	c := NewCoordinator(fake, nil)

	groups := []chunker.Group{
		textGroup("report.pdf p.1-100"),
		textGroup("report.pdf p.101-200"),
		textGroup("report.pdf p.201-250"),
	}
	results, err := c.dispatch(context.Background(), CallSpec{UserText: "extract"}, groups)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Order preserved.
	for i, want := range []string{"report.pdf p.1-100", "report.pdf p.101-200", "report.pdf p.201-250"} {
		if results[i].Label != want {
			t.Errorf("result %d label = %q, want %q", i, results[i].Label, want)
		}
	}
	for _, req := range fake.requests {
		if !strings.Contains(req.UserText, "partial view") {
			t.Errorf("multi-group request missing partial-view note: %q", req.UserText)
		}
		if !strings.HasSuffix(req.UserText, "extract") {
			t.Errorf("original user text not preserved: %q", req.UserText)
		}
	}
}

func TestDispatchPartialFailureReturnsSuccesses(t *testing.T) {
	fake := &fakeCompleter{
		respond: func(req *completion.Request) (*completion.Result, error) {
			if strings.Contains(req.UserText, "p.101-200") {
				return nil, errors.New("overloaded")
			}
			return &completion.Result{Text: "ok"}, nil
		},
	}
	c := NewCoordinator(fake, nil)

	groups := []chunker.Group{
		textGroup("report.pdf p.1-100"),
		textGroup("report.pdf p.101-200"),
		textGroup("report.pdf p.201-250"),
	}
	results, err := c.dispatch(context.Background(), CallSpec{UserText: "extract"}, groups)
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 successful results, got %d", len(results))
	}
	for _, r := range results {
		if r.Label == "report.pdf p.101-200" {
			t.Error("failed group present in results")
		}
	}
}

func TestDispatchTotalFailurePropagatesFirstError(t *testing.T) {
	sentinel := errors.New("provider down")
	fake := &fakeCompleter{
		respond: func(req *completion.Request) (*completion.Result, error) {
			return nil, sentinel
		},
	}
	c := NewCoordinator(fake, nil)

	groups := []chunker.Group{
		textGroup("report.pdf p.1-100"),
		textGroup("report.pdf p.101-200"),
	}
	_, err := c.dispatch(context.Background(), CallSpec{}, groups)
	if err == nil {
		t.Fatal("expected error when all chunk calls fail")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected first error wrapped, got %v", err)
	}
}
