package chunker

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount returns the number of pages in a PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SlicePages returns a new PDF containing only pages start..end
// (1-indexed, inclusive) of the input.
func SlicePages(data []byte, start, end int) ([]byte, error) {
	if start < 1 || end < start {
		return nil, fmt.Errorf("invalid page range %d-%d", start, end)
	}

	var buf bytes.Buffer
	selected := []string{fmt.Sprintf("%d-%d", start, end)}
	if err := api.Trim(bytes.NewReader(data), &buf, selected, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
