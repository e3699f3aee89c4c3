package home

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/store"
)

// mediaTypes maps upload extensions to the media types the completion
// service understands. Unknown extensions are skipped with no error.
var mediaTypes = map[string]string{
	".pdf": "application/pdf",
	".txt": "text/plain",
	".md":  "text/markdown",
	".csv": "text/csv",
}

// Documents loads a job's uploaded source documents from its home
// directory, sorted by filename for a stable call order.
func (d *Dir) Documents(jobID string) ([]completion.DocumentBlock, error) {
	dir := d.JobDocumentsDir(jobID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job documents: %w", err)
	}

	var docs []completion.DocumentBlock
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mediaType, ok := mediaTypes[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read document %s: %w", entry.Name(), err)
		}
		docs = append(docs, completion.DocumentBlock{
			Name:      entry.Name(),
			MediaType: mediaType,
			Data:      data,
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// Loader adapts Dir to the worker's document loader.
type Loader struct {
	dir *Dir
}

// NewLoader creates a document loader over the home directory.
func NewLoader(dir *Dir) *Loader {
	return &Loader{dir: dir}
}

// Load returns the job's uploaded documents.
func (l *Loader) Load(ctx context.Context, job *store.Job) ([]completion.DocumentBlock, error) {
	return l.dir.Documents(job.ID)
}
