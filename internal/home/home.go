// Package home manages the duework home directory (~/.duework): config
// file, local Postgres data, and uploaded job documents.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the duework home directory.
	DefaultDirName = ".duework"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// PostgresDirName is the subdirectory for the local Postgres data.
	PostgresDirName = "postgres"

	// JobsDirName is the subdirectory holding per-job document uploads.
	JobsDirName = "jobs"
)

// Dir represents the duework home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.duework).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// PostgresDataPath returns the local Postgres data directory.
func (d *Dir) PostgresDataPath() string {
	return filepath.Join(d.path, PostgresDirName)
}

// JobDocumentsDir returns the directory holding one job's uploaded
// source documents.
func (d *Dir) JobDocumentsDir(jobID string) string {
	return filepath.Join(d.path, JobsDirName, jobID)
}

// EnsureExists creates the home directory tree if it doesn't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{
		d.PostgresDataPath(),
		filepath.Join(d.path, JobsDirName),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// EnsureJobDocumentsDir creates the document directory for a job.
func (d *Dir) EnsureJobDocumentsDir(jobID string) error {
	return os.MkdirAll(d.JobDocumentsDir(jobID), 0o755)
}
