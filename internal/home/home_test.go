package home

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crestline-labs/duework/internal/store"
)

func TestNewDefaultsToUserHome(t *testing.T) {
	d, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if filepath.Base(d.Path()) != DefaultDirName {
		t.Errorf("path = %q", d.Path())
	}
}

func TestEnsureExistsCreatesTree(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "duework-home"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.Exists() {
		t.Fatal("directory should not exist yet")
	}
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	if !d.Exists() {
		t.Error("directory not created")
	}
	if _, err := os.Stat(d.PostgresDataPath()); err != nil {
		t.Errorf("postgres dir missing: %v", err)
	}
}

func TestDocumentsLoadsKnownTypes(t *testing.T) {
	d, _ := New(t.TempDir())
	if err := d.EnsureJobDocumentsDir("job-1"); err != nil {
		t.Fatalf("EnsureJobDocumentsDir: %v", err)
	}

	dir := d.JobDocumentsDir("job-1")
	files := map[string]string{
		"b-notes.txt":  "some notes",
		"a-filing.pdf": "%PDF-1.4 fake",
		"ignore.xlsx":  "binary",
		"summary.md":   "# summary",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	docs, err := d.Documents("job-1")
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	// Sorted by name, unknown extension skipped.
	if docs[0].Name != "a-filing.pdf" || docs[0].MediaType != "application/pdf" {
		t.Errorf("doc 0 = %s (%s)", docs[0].Name, docs[0].MediaType)
	}
	if docs[1].Name != "b-notes.txt" || docs[1].MediaType != "text/plain" {
		t.Errorf("doc 1 = %s (%s)", docs[1].Name, docs[1].MediaType)
	}
}

func TestDocumentsMissingDirIsEmpty(t *testing.T) {
	d, _ := New(t.TempDir())
	docs, err := d.Documents("no-such-job")
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
}

func TestLoaderLoadsJobDocuments(t *testing.T) {
	d, _ := New(t.TempDir())
	_ = d.EnsureJobDocumentsDir("job-2")
	_ = os.WriteFile(filepath.Join(d.JobDocumentsDir("job-2"), "doc.txt"), []byte("x"), 0o644)

	loader := NewLoader(d)
	docs, err := loader.Load(context.Background(), &store.Job{ID: "job-2"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 || docs[0].Name != "doc.txt" {
		t.Errorf("docs = %v", docs)
	}
}
