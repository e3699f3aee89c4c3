package domains

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crestline-labs/duework/internal/extract"
	"github.com/crestline-labs/duework/internal/pipeline"
	"github.com/crestline-labs/duework/internal/store"
)

// ExtractionQueue is the multi-pass document extraction queue.
const ExtractionQueue = "extraction"

// narrativeField is the free-text accumulator every extraction shape
// shares; the merge engine concatenates it rather than overriding.
const narrativeField = "notes"

// unparsedFlag marks a pass whose output could not be coerced into its
// declared shape. Downstream phases treat an unparsed primary pass as
// terminal.
const unparsedFlag = "unparsed"

var financialsShape = &extract.Shape{
	Name:           "financials",
	Primary:        true,
	NarrativeField: narrativeField,
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"company": {"type": "string"},
			"period": {"type": "string"},
			"financials": {"type": "object"},
			"line_items": {"type": "array"},
			"notes": {"type": "string"},
			"overflow": {"type": "array"}
		},
		"required": ["financials"]
	}`),
}

var debtScheduleShape = &extract.Shape{
	Name:           "debt_schedule",
	NarrativeField: narrativeField,
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"facilities": {"type": "array"},
			"maturities": {"type": "array"},
			"notes": {"type": "string"},
			"overflow": {"type": "array"}
		},
		"required": ["facilities"]
	}`),
}

var covenantsShape = &extract.Shape{
	Name:           "covenants",
	NarrativeField: narrativeField,
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"covenants": {"type": "array"},
			"notes": {"type": "string"},
			"overflow": {"type": "array"}
		},
		"required": ["covenants"]
	}`),
}

func extractionPhases(job *store.Job) ([]pipeline.Phase, error) {
	return []pipeline.Phase{
		&extractionPass{
			shape:  financialsShape,
			system: "You extract structured financial data from documents. Respond with JSON matching the requested shape; put anything the shape cannot express into the overflow list.",
			user:   "Extract the company's financial statements: revenue, EBITDA, assets, liabilities, cash flow line items.",
		},
		&extractionPass{
			shape:  debtScheduleShape,
			system: "You extract debt structure data from documents. Respond with JSON matching the requested shape; put anything the shape cannot express into the overflow list.",
			user:   "Extract the debt schedule: facilities, amounts, rates, maturities.",
		},
		&extractionPass{
			shape:  covenantsShape,
			system: "You extract covenant terms from documents. Respond with JSON matching the requested shape; put anything the shape cannot express into the overflow list.",
			user:   "Extract financial covenants: ratios, thresholds, test dates.",
		},
		&finalizePhase{passes: []string{"financials", "debt_schedule", "covenants"}},
	}, nil
}

// chunkOutput is one chunk call's raw text, stored inside the phase's
// raw_files entry so the parse step stays pure on resume.
type chunkOutput struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

func encodeChunks(outputs []chunkOutput) (string, error) {
	b, err := json.Marshal(outputs)
	if err != nil {
		return "", fmt.Errorf("failed to encode chunk outputs: %w", err)
	}
	return string(b), nil
}

func decodeChunks(raw string) ([]chunkOutput, error) {
	var outputs []chunkOutput
	if err := json.Unmarshal([]byte(raw), &outputs); err != nil {
		return nil, fmt.Errorf("failed to decode chunk outputs: %w", err)
	}
	return outputs, nil
}

// extractionPass runs one extraction pass over the job's documents:
// chunked completion calls, per-chunk shape validation, chunk-level merge.
// The phase name is the shape name, so parsed_data carries one entry per
// pass for the finalize phase to fold.
type extractionPass struct {
	shape  *extract.Shape
	system string
	user   string
}

func (p *extractionPass) Name() string { return p.shape.Name }

func (p *extractionPass) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	results, err := completeOverDocuments(ctx, run, p.Name(), p.system, p.user)
	if err != nil {
		if !p.shape.Primary {
			// Secondary pass: absorbed, contribution dropped.
			runLogger(run).Warn("secondary extraction pass failed",
				"pass", p.Name(), "error", err)
			return encodeChunks([]chunkOutput{})
		}
		return "", err
	}

	outputs := make([]chunkOutput, len(results))
	for i, r := range results {
		outputs[i] = chunkOutput{Label: r.Label, Text: r.Result.Text}
	}
	return encodeChunks(outputs)
}

// Parse folds the pass's chunk outputs into one structured object and
// routes overflow entries to durable storage. Pure except for the
// overflow writes, which de-duplicate so a resume re-parse cannot drop
// or double entries.
func (p *extractionPass) Parse(ctx context.Context, run *pipeline.Run, raw string) (any, error) {
	chunks, err := decodeChunks(raw)
	if err != nil {
		return nil, err
	}

	var fields []map[string]any
	var overflow []extract.OverflowItem
	unparsed := 0
	for _, chunk := range chunks {
		// Chunk failures inside a primary pass are dropped like secondary
		// failures; the pass as a whole only goes unparsed when no chunk
		// survives.
		result, err := p.shape.Parse(chunk.Text)
		if err != nil || result.Unparsed {
			unparsed++
			continue
		}
		fields = append(fields, result.Fields)
		overflow = append(overflow, result.Overflow...)
	}

	if len(chunks) > 0 && len(fields) == 0 {
		if p.shape.Primary {
			// Unparsed primary pass: keep the raw text under the
			// sentinel and flag it terminal for downstream phases.
			return map[string]any{
				extract.UnparsedField: raw,
				unparsedFlag:          true,
			}, nil
		}
		return map[string]any{}, nil
	}
	if unparsed > 0 {
		runLogger(run).Warn("dropped unparsed chunks",
			"pass", p.Name(), "dropped", unparsed, "kept", len(fields))
	}

	if err := persistOverflow(ctx, run, p.Name(), overflow); err != nil {
		return nil, err
	}
	return extract.MergeAll(fields, p.shape.NarrativeField), nil
}

// persistOverflow appends overflow entries for the pass, skipping entries
// already stored so resume re-parses stay idempotent.
func persistOverflow(ctx context.Context, run *pipeline.Run, pass string, items []extract.OverflowItem) error {
	if len(items) == 0 {
		return nil
	}
	existing, err := run.Store.ListOverflow(ctx, run.Job.ID)
	if err != nil {
		return fmt.Errorf("failed to list overflow entries: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.Pass+"\x00"+e.Label+"\x00"+e.Content] = true
	}

	for _, item := range items {
		if seen[pass+"\x00"+item.Label+"\x00"+item.Content] {
			continue
		}
		if err := run.Store.AddOverflow(ctx, &store.OverflowEntry{
			JobID:   run.Job.ID,
			Pass:    pass,
			Label:   item.Label,
			Content: item.Content,
		}); err != nil {
			return fmt.Errorf("failed to persist overflow entry: %w", err)
		}
	}
	return nil
}

// finalizePhase folds all pass results into the final extraction object.
// No network calls: it re-derives entirely from parsed_data.
type finalizePhase struct {
	passes []string
}

func (p *finalizePhase) Name() string { return "extraction_final" }

func (p *finalizePhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	var results []map[string]any
	for _, pass := range p.passes {
		value, ok := run.Parsed(pass).(map[string]any)
		if !ok {
			continue
		}
		if pass == p.passes[0] {
			if flagged, _ := value[unparsedFlag].(bool); flagged {
				return "", fmt.Errorf("primary pass %s output could not be parsed, refusing to finalize with empty data", pass)
			}
		}
		results = append(results, value)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no parsed pass results to finalize")
	}

	merged := extract.MergeAll(results, narrativeField)
	b, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("failed to encode merged extraction: %w", err)
	}
	return string(b), nil
}

func (p *finalizePhase) Parse(ctx context.Context, run *pipeline.Run, raw string) (any, error) {
	var merged map[string]any
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		return nil, fmt.Errorf("failed to decode merged extraction: %w", err)
	}
	return merged, nil
}
