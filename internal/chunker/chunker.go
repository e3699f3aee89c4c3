// Package chunker partitions oversized document sets into call-sized groups.
//
// Two explicitly distinct strategies live here: Chunk is the lossless
// packer (every input page appears in exactly one group), TruncateToFit is
// the lossy single-call variant for callers that must guarantee one-call
// delivery and accept dropped trailing pages. They are not interchangeable.
package chunker

import (
	"fmt"
	"strings"

	"github.com/crestline-labs/duework/internal/completion"
)

// AllPagesLabel is the group label when nothing had to be split.
const AllPagesLabel = "all pages"

// Group is one page-budget-bounded call's worth of documents.
type Group struct {
	// Label summarizes which documents/page ranges this group covers,
	// e.g. "filings.pdf p.101-200" or "all pages".
	Label string
	// Docs are the documents for this call. Paginated documents may be
	// page-range slices of the originals; non-paginated documents are
	// replicated into every group.
	Docs []completion.DocumentBlock
	// Pages is the group's total page count.
	Pages int
}

// docInfo describes one paginated input document.
type docInfo struct {
	index int // position in the input slice
	name  string
	pages int
}

// span is a contiguous page range of one document. Pages are 1-indexed
// and inclusive.
type span struct {
	index int
	name  string
	start int
	end   int
}

func (s span) pages() int {
	return s.end - s.start + 1
}

func (s span) label() string {
	return fmt.Sprintf("%s p.%d-%d", s.name, s.start, s.end)
}

// Chunk partitions documents into groups whose paginated page totals do
// not exceed pageBudget. If everything fits in one call, a single group
// labeled "all pages" is returned with the inputs unchanged. Documents
// larger than the budget are split into sequential sub-ranges before
// packing; nothing is dropped.
func Chunk(docs []completion.DocumentBlock, pageBudget int) ([]Group, error) {
	if pageBudget <= 0 {
		return nil, fmt.Errorf("page budget must be positive, got %d", pageBudget)
	}

	var infos []docInfo
	var flat []completion.DocumentBlock
	total := 0
	for i, doc := range docs {
		if !doc.Paginated() {
			flat = append(flat, doc)
			continue
		}
		n, err := PageCount(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to get page count for %s: %w", doc.Name, err)
		}
		infos = append(infos, docInfo{index: i, name: doc.Name, pages: n})
		total += n
	}

	if total <= pageBudget {
		return []Group{{Label: AllPagesLabel, Docs: docs, Pages: total}}, nil
	}

	plan := planGroups(infos, pageBudget)

	groups := make([]Group, 0, len(plan))
	for _, spans := range plan {
		g := Group{Label: groupLabel(spans)}
		for _, s := range spans {
			src := docs[s.index]
			g.Pages += s.pages()

			// Whole-document spans keep the original bytes.
			if s.start == 1 && s.pages() == docPages(infos, s.index) {
				g.Docs = append(g.Docs, src)
				continue
			}

			sliced, err := SlicePages(src.Data, s.start, s.end)
			if err != nil {
				return nil, fmt.Errorf("failed to slice %s pages %d-%d: %w", s.name, s.start, s.end, err)
			}
			g.Docs = append(g.Docs, completion.DocumentBlock{
				Name:      src.Name,
				MediaType: src.MediaType,
				Data:      sliced,
			})
		}
		// Non-paginated inputs ride along with every group.
		g.Docs = append(g.Docs, flat...)
		groups = append(groups, g)
	}

	return groups, nil
}

// planGroups splits oversized documents into budget-sized spans, then
// greedily packs spans into groups. Input order is preserved, so group
// coverage is the inputs exactly once, in order.
func planGroups(infos []docInfo, budget int) [][]span {
	var units []span
	for _, info := range infos {
		if info.pages <= budget {
			units = append(units, span{index: info.index, name: info.name, start: 1, end: info.pages})
			continue
		}
		// Split a document that exceeds the budget on its own.
		for start := 1; start <= info.pages; start += budget {
			end := start + budget - 1
			if end > info.pages {
				end = info.pages
			}
			units = append(units, span{index: info.index, name: info.name, start: start, end: end})
		}
	}

	var groups [][]span
	var cur []span
	curPages := 0
	for _, u := range units {
		if curPages+u.pages() > budget && len(cur) > 0 {
			groups = append(groups, cur)
			cur = nil
			curPages = 0
		}
		cur = append(cur, u)
		curPages += u.pages()
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	return groups
}

func groupLabel(spans []span) string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = s.label()
	}
	return strings.Join(parts, ", ")
}

func docPages(infos []docInfo, index int) int {
	for _, info := range infos {
		if info.index == index {
			return info.pages
		}
	}
	return 0
}
