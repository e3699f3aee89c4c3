package extract

import (
	"reflect"
	"strings"
)

// Merge folds delta into base and returns the merged map. Neither input is
// mutated. Rules, per field:
//
//   - delta value nil or absent: base wins.
//   - both values are slices: concatenate then de-duplicate by structural
//     equality, preserving first-seen order.
//   - both values are maps: recursive merge, delta's scalar values win.
//   - the narrative field (both values strings): concatenate with a blank
//     line, it accumulates rather than corrects.
//   - anything else: delta overrides base.
//
// Later passes are corrections of earlier ones, so scalar conflicts always
// resolve in delta's favor.
func Merge(base, delta map[string]any, narrativeField string) map[string]any {
	out := make(map[string]any, len(base)+len(delta))
	for k, v := range base {
		out[k] = v
	}

	for key, dv := range delta {
		if dv == nil {
			continue
		}
		bv, present := out[key]
		if !present || bv == nil {
			out[key] = dv
			continue
		}

		if key == narrativeField {
			bs, bok := bv.(string)
			ds, dok := dv.(string)
			if bok && dok {
				out[key] = appendNarrative(bs, ds)
				continue
			}
		}

		switch b := bv.(type) {
		case []any:
			if d, ok := dv.([]any); ok {
				out[key] = mergeSequences(b, d)
				continue
			}
		case map[string]any:
			if d, ok := dv.(map[string]any); ok {
				out[key] = Merge(b, d, narrativeField)
				continue
			}
		}

		out[key] = dv
	}

	return out
}

// MergeAll folds an ordered sequence of pass or chunk results left-to-right.
// The same fold serves both consumers: multiple passes over one document set,
// and multiple chunks of one pass.
func MergeAll(results []map[string]any, narrativeField string) map[string]any {
	merged := map[string]any{}
	for _, r := range results {
		merged = Merge(merged, r, narrativeField)
	}
	return merged
}

// mergeSequences concatenates then de-duplicates by value equality,
// keeping first-seen order.
func mergeSequences(base, delta []any) []any {
	out := make([]any, 0, len(base)+len(delta))
	for _, v := range base {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	for _, v := range delta {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsValue(haystack []any, needle any) bool {
	for _, v := range haystack {
		if reflect.DeepEqual(v, needle) {
			return true
		}
	}
	return false
}

func appendNarrative(base, delta string) string {
	base = strings.TrimSpace(base)
	delta = strings.TrimSpace(delta)
	switch {
	case base == "":
		return delta
	case delta == "":
		return base
	default:
		return base + "\n\n" + delta
	}
}
