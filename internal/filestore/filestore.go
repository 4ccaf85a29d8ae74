// Package filestore persists files emitted by template graders (plots,
// reports, reference outputs) and hands back the URL under which the
// feedback HTML can reference them.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Store is a directory-backed file store. The directory is expected to be
// served statically under BaseURL by the surrounding deployment.
type Store struct {
	dir     string
	baseURL string
}

func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create file store directory: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store writes data under a sanitized version of suggestedName and returns
// its URL. Callers keep concurrent jobs apart by prefixing names with a
// per-job namespace, so same-named files from one job overwrite each other
// deliberately.
func (s *Store) Store(data []byte, suggestedName string) (string, error) {
	name := sanitizeName(suggestedName)
	if name == "" {
		return "", fmt.Errorf("unusable file name %q", suggestedName)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to store file %s: %w", name, err)
	}
	return s.baseURL + "/" + name, nil
}

// Fetch reads back a stored file by the name part of its URL.
func (s *Store) Fetch(name string) ([]byte, error) {
	clean := sanitizeName(name)
	if clean == "" || clean != name {
		return nil, fmt.Errorf("no such stored file %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, clean))
	if err != nil {
		return nil, fmt.Errorf("failed to read stored file %s: %w", clean, err)
	}
	return data, nil
}

// sanitizeName flattens a suggested file name to a single safe path
// component. Grader output is author-controlled, not trusted.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	return name
}
