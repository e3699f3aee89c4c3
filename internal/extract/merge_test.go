package extract

import (
	"reflect"
	"testing"
)

func TestMergeNilDeltaIsNoOp(t *testing.T) {
	base := map[string]any{"revenue": 100.0, "name": "Acme"}
	delta := map[string]any{"revenue": nil}

	got := Merge(base, delta, "")
	if got["revenue"] != 100.0 {
		t.Errorf("expected base revenue kept, got %v", got["revenue"])
	}
	if got["name"] != "Acme" {
		t.Errorf("expected base name kept, got %v", got["name"])
	}
}

func TestMergeScalarDeltaWins(t *testing.T) {
	base := map[string]any{"revenue": 100.0}
	delta := map[string]any{"revenue": 250.0}

	got := Merge(base, delta, "")
	if got["revenue"] != 250.0 {
		t.Errorf("expected delta to override scalar, got %v", got["revenue"])
	}
}

func TestMergeSequencesDeduplicate(t *testing.T) {
	base := map[string]any{
		"risks": []any{"liquidity", map[string]any{"name": "fx", "severity": "high"}},
	}
	delta := map[string]any{
		"risks": []any{
			"liquidity", // literal duplicate
			map[string]any{"name": "fx", "severity": "high"}, // structural duplicate
			"concentration",
		},
	}

	got := Merge(base, delta, "")
	want := []any{
		"liquidity",
		map[string]any{"name": "fx", "severity": "high"},
		"concentration",
	}
	if !reflect.DeepEqual(got["risks"], want) {
		t.Errorf("risks = %v, want %v", got["risks"], want)
	}
}

func TestMergeRecursiveMaps(t *testing.T) {
	base := map[string]any{
		"financials": map[string]any{
			"revenue": 100.0,
			"ebitda":  20.0,
		},
	}
	delta := map[string]any{
		"financials": map[string]any{
			"revenue": 120.0, // correction
			"debt":    40.0,  // new key
		},
	}

	got := Merge(base, delta, "")
	fin, ok := got["financials"].(map[string]any)
	if !ok {
		t.Fatalf("financials is %T, want map", got["financials"])
	}
	if fin["revenue"] != 120.0 {
		t.Errorf("revenue = %v, want 120 (delta wins)", fin["revenue"])
	}
	if fin["ebitda"] != 20.0 {
		t.Errorf("ebitda = %v, want 20 (base kept)", fin["ebitda"])
	}
	if fin["debt"] != 40.0 {
		t.Errorf("debt = %v, want 40 (delta added)", fin["debt"])
	}
}

func TestMergeNarrativeFieldConcatenates(t *testing.T) {
	base := map[string]any{"notes": "First pass found revenue figures."}
	delta := map[string]any{"notes": "Second pass found covenant details."}

	got := Merge(base, delta, "notes")
	want := "First pass found revenue figures.\n\nSecond pass found covenant details."
	if got["notes"] != want {
		t.Errorf("notes = %q, want %q", got["notes"], want)
	}
}

func TestMergeNarrativeFieldEmptyBase(t *testing.T) {
	base := map[string]any{}
	delta := map[string]any{"notes": "Only entry."}

	got := Merge(base, delta, "notes")
	if got["notes"] != "Only entry." {
		t.Errorf("notes = %q, want %q", got["notes"], "Only entry.")
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"a": 1.0}
	delta := map[string]any{"b": 2.0}

	_ = Merge(base, delta, "")
	if len(base) != 1 || len(delta) != 1 {
		t.Errorf("inputs mutated: base=%v delta=%v", base, delta)
	}
}

func TestMergeAllFoldsLeftToRight(t *testing.T) {
	results := []map[string]any{
		{"revenue": 100.0, "notes": "pass one"},
		{"revenue": 110.0, "risks": []any{"fx"}},
		{"risks": []any{"fx", "liquidity"}, "notes": "pass three"},
	}

	got := MergeAll(results, "notes")
	if got["revenue"] != 110.0 {
		t.Errorf("revenue = %v, want 110", got["revenue"])
	}
	if !reflect.DeepEqual(got["risks"], []any{"fx", "liquidity"}) {
		t.Errorf("risks = %v", got["risks"])
	}
	if got["notes"] != "pass one\n\npass three" {
		t.Errorf("notes = %q", got["notes"])
	}
}

// The identical fold serves chunk results of a single pass: only the
// sequence being folded differs.
func TestMergeAllChunkResults(t *testing.T) {
	chunks := []map[string]any{
		{"line_items": []any{"item-a", "item-b"}},
		{"line_items": []any{"item-b", "item-c"}},
		{"line_items": []any{"item-d"}},
	}

	got := MergeAll(chunks, "")
	want := []any{"item-a", "item-b", "item-c", "item-d"}
	if !reflect.DeepEqual(got["line_items"], want) {
		t.Errorf("line_items = %v, want %v", got["line_items"], want)
	}
}
