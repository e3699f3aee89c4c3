package chunker

import (
	"fmt"

	"github.com/crestline-labs/duework/internal/completion"
)

// TruncateToFit builds a single group that fits pageBudget by dropping
// trailing pages. This is the lossy variant for callers that must make
// exactly one call; use Chunk when every page must be delivered.
//
// Documents are taken in input order. A document that does not fit
// completely is cut to its leading pages; everything after it is dropped.
// The second return value reports whether anything was dropped.
func TruncateToFit(docs []completion.DocumentBlock, pageBudget int) (Group, bool, error) {
	if pageBudget <= 0 {
		return Group{}, false, fmt.Errorf("page budget must be positive, got %d", pageBudget)
	}

	g := Group{Label: AllPagesLabel}
	truncated := false
	remaining := pageBudget

	for _, doc := range docs {
		if !doc.Paginated() {
			g.Docs = append(g.Docs, doc)
			continue
		}
		if truncated {
			// Budget already exhausted by an earlier document.
			continue
		}

		n, err := PageCount(doc.Data)
		if err != nil {
			return Group{}, false, fmt.Errorf("failed to get page count for %s: %w", doc.Name, err)
		}

		if n <= remaining {
			g.Docs = append(g.Docs, doc)
			g.Pages += n
			remaining -= n
			continue
		}

		truncated = true
		if remaining == 0 {
			continue
		}

		sliced, err := SlicePages(doc.Data, 1, remaining)
		if err != nil {
			return Group{}, false, fmt.Errorf("failed to truncate %s to %d pages: %w", doc.Name, remaining, err)
		}
		g.Docs = append(g.Docs, completion.DocumentBlock{
			Name:      doc.Name,
			MediaType: doc.MediaType,
			Data:      sliced,
		})
		g.Pages += remaining
		remaining = 0
	}

	if truncated {
		g.Label = fmt.Sprintf("first %d pages", g.Pages)
	}

	return g, truncated, nil
}
