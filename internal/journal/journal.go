// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package journal persists failed note conversions durably so a later
// run can target exactly the failures.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/make0x0/enex2md/pkg/types"
)

// Key identifies a journal entry; the journal never holds two entries
// with the same key after a write.
type Key struct {
	Source string
	Title  string
}

// Journal is a process-wide failure journal backed by a JSON array file.
// Writes are serialized read-merge-write operations, so the merge-by-key
// design stays safe if concurrent writers are ever introduced.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New creates a journal at path. The file is created lazily on first
// append.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append merges entries into the journal file, deduplicating by
// (Source, Title) with later entries replacing earlier ones. Existing
// entries keep their position; new keys append in order.
func (j *Journal) Append(entries ...types.FailureEntry) error {
	if len(entries) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	existing, err := j.load()
	if err != nil {
		return err
	}

	index := make(map[Key]int, len(existing))
	for i, e := range existing {
		index[Key{e.Source, e.Title}] = i
	}
	for _, e := range entries {
		if e.RecordedAt.IsZero() {
			e.RecordedAt = time.Now().UTC()
		}
		k := Key{e.Source, e.Title}
		if i, ok := index[k]; ok {
			existing[i] = e
			continue
		}
		index[k] = len(existing)
		existing = append(existing, e)
	}
	return j.write(existing)
}

// Load returns all journal entries; a missing file is an empty journal.
func (j *Journal) Load() ([]types.FailureEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.load()
}

func (j *Journal) load() ([]types.FailureEntry, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	var entries []types.FailureEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing journal %s: %w", j.path, err)
	}
	return entries, nil
}

// write replaces the journal file atomically.
func (j *Journal) write(entries []types.FailureEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding journal: %w", err)
	}
	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".journal-*")
	if err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing journal: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing journal: %w", err)
	}
	return nil
}

// LoadRetrySet reads a retry-set file restricting a run to specific
// notes. Both the journal's own JSON format and a YAML list of
// {source, title} pairs are accepted, so --retry-from can point straight
// at a failure journal.
func LoadRetrySet(path string) (map[Key]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading retry set: %w", err)
	}
	var entries []types.FailureEntry
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		err = yaml.Unmarshal(data, &entries)
	} else {
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing retry set %s: %w", path, err)
	}
	set := make(map[Key]struct{}, len(entries))
	for _, e := range entries {
		set[Key{e.Source, e.Title}] = struct{}{}
	}
	return set, nil
}
