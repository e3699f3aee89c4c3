package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// UnparsedField is the sentinel key under which a primary pass's raw output
// is stored verbatim when it cannot be coerced into its declared shape.
const UnparsedField = "raw_unparsed"

// OverflowField is the catch-all key every declared shape carries for data
// the typed fields cannot express.
const OverflowField = "overflow"

// OverflowItem is one (label, content) pair pulled out of a pass result's
// overflow bucket.
type OverflowItem struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// Shape declares the expected structure of one extraction pass's output.
type Shape struct {
	// Name identifies the pass, used when tagging overflow entries.
	Name string
	// Schema is a JSON Schema document the parsed payload must satisfy.
	Schema json.RawMessage
	// NarrativeField names the free-text accumulator field, if any. The
	// merge engine concatenates it instead of overriding.
	NarrativeField string
	// Primary marks the pass whose failure is pipeline-fatal downstream.
	// Secondary passes that fail validation are simply dropped.
	Primary bool

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// PassResult is the outcome of parsing one pass's raw output.
type PassResult struct {
	Shape    string
	Fields   map[string]any
	Overflow []OverflowItem
	// Unparsed is set when a primary pass's output failed parsing or
	// validation and Fields holds only the raw-text sentinel. Downstream
	// phases that need structured fields must treat this as terminal.
	Unparsed bool
}

// Parse coerces raw model output into the declared shape. The payload is
// located by scanning for the outermost balanced bracketed span, which
// tolerates surrounding explanatory text and markdown fences.
//
// For a primary shape, parse or validation failure returns a sentinel
// result with Unparsed set and the raw text preserved, never an error.
// For a secondary shape the error is returned and the caller drops the
// pass's contribution.
func (s *Shape) Parse(raw string) (*PassResult, error) {
	fields, err := s.parse(raw)
	if err != nil {
		if s.Primary {
			return &PassResult{
				Shape:    s.Name,
				Fields:   map[string]any{UnparsedField: raw},
				Unparsed: true,
			}, nil
		}
		return nil, fmt.Errorf("pass %s: %w", s.Name, err)
	}

	overflow := takeOverflow(fields)
	return &PassResult{
		Shape:    s.Name,
		Fields:   fields,
		Overflow: overflow,
	}, nil
}

func (s *Shape) parse(raw string) (map[string]any, error) {
	candidate := extractPayload(raw)
	if candidate == "" {
		return nil, fmt.Errorf("no structured payload found in output")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse structured payload: %w", err)
	}

	if err := s.validate(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *Shape) validate(doc map[string]any) error {
	if len(s.Schema) == 0 {
		return nil
	}

	s.compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("shape.json", bytes.NewReader(s.Schema)); err != nil {
			s.compileErr = fmt.Errorf("failed to load shape schema: %w", err)
			return
		}
		s.compiled, s.compileErr = compiler.Compile("shape.json")
	})
	if s.compileErr != nil {
		return s.compileErr
	}

	// Round-trip through json so numbers and nested types match what the
	// validator expects from a decoded document.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to normalize payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(normalized, &generic); err != nil {
		return fmt.Errorf("failed to decode payload for validation: %w", err)
	}

	if err := s.compiled.Validate(generic); err != nil {
		return fmt.Errorf("output does not match declared shape: %w", err)
	}
	return nil
}

// takeOverflow removes the overflow bucket from fields and returns its
// entries. Items with unexpected structure are kept as best-effort labels
// rather than discarded.
func takeOverflow(fields map[string]any) []OverflowItem {
	rawItems, ok := fields[OverflowField].([]any)
	if !ok {
		delete(fields, OverflowField)
		return nil
	}
	delete(fields, OverflowField)

	var items []OverflowItem
	for _, ri := range rawItems {
		m, ok := ri.(map[string]any)
		if !ok {
			items = append(items, OverflowItem{Content: stringify(ri)})
			continue
		}
		items = append(items, OverflowItem{
			Label:   stringify(m["label"]),
			Content: stringify(m["content"]),
		})
	}
	return items
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// extractPayload locates the outermost balanced JSON object or array span,
// stripping markdown code fences first if present.
func extractPayload(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	if stripped := stripCodeFences(trimmed); stripped != "" {
		trimmed = stripped
	}

	objectStart := strings.Index(trimmed, "{")
	arrayStart := strings.Index(trimmed, "[")

	start := -1
	closeChar := ""
	switch {
	case objectStart >= 0 && (arrayStart < 0 || objectStart < arrayStart):
		start = objectStart
		closeChar = "}"
	case arrayStart >= 0:
		start = arrayStart
		closeChar = "]"
	default:
		return ""
	}

	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
