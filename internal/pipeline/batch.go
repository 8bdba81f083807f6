// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/make0x0/enex2md/internal/enex"
	"github.com/make0x0/enex2md/pkg/types"
)

// archiveExt is the export archive file extension.
const archiveExt = ".enex"

// Discover resolves the input path into the archives to process. A file
// is taken as-is; a directory is searched for archives, recursively
// when asked. The returned root anchors relative output paths.
func Discover(path string, recursive bool) (root string, archives []string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, fmt.Errorf("input path: %w", err)
	}
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(path), archiveExt) {
			return "", nil, fmt.Errorf("input %s is not an %s archive", path, archiveExt)
		}
		return filepath.Dir(path), []string{path}, nil
	}

	pattern := "*" + archiveExt
	if recursive {
		pattern = "**/*" + archiveExt
	}
	matches, err := doublestar.Glob(os.DirFS(path), pattern)
	if err != nil {
		return "", nil, fmt.Errorf("searching for archives: %w", err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		archives = append(archives, filepath.Join(path, filepath.FromSlash(m)))
	}
	return path, archives, nil
}

// Controller iterates archives, preserving the input directory
// hierarchy in the output and aggregating per-archive counts.
type Controller struct {
	Orchestrator *Orchestrator

	// Root anchors each archive's relative path; OutputRoot receives
	// the mirrored hierarchy.
	Root       string
	OutputRoot string

	Log io.Writer
}

// RunArchive converts every note in one archive. A mid-archive parse
// failure is terminal for that archive: the notes parsed so far keep
// their outcomes, the unrecoverable remainder is journaled as a single
// synthetic failure, and the batch moves on.
func (c *Controller) RunArchive(ctx context.Context, path string) (types.BatchResult, error) {
	source := c.sourceIdentity(path)
	stem := filepath.FromSlash(source)
	if strings.EqualFold(filepath.Ext(stem), archiveExt) {
		stem = stem[:len(stem)-len(archiveExt)]
	}
	outRoot := filepath.Join(c.OutputRoot, stem)

	var result types.BatchResult

	if total, err := enex.CountNotes(path); err != nil {
		c.logf("warning: %s: note count is partial (%d): %v\n", source, total, err)
	} else {
		c.logf("processing %s: %d notes\n", source, total)
	}

	r, err := enex.NewReader(path, c.Log)
	if err != nil {
		return result, err
	}
	defer r.Close()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		note, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Which notes remain is unknowable after a parse failure;
			// record one unresolved failure for the remainder.
			c.logf("failed:  %s (%v)\n", source, err)
			result.Failed++
			c.journalParseFailure(source, err)
			break
		}
		switch c.Orchestrator.ProcessNote(ctx, source, outRoot, note) {
		case types.OutcomeConverted:
			result.Converted++
		case types.OutcomeSkipped:
			result.Skipped++
		case types.OutcomeFailed:
			result.Failed++
		}
	}

	c.logf("finished %s: %d converted, %d skipped, %d failed\n",
		source, result.Converted, result.Skipped, result.Failed)
	return result, nil
}

// Run converts every discovered archive sequentially and returns the
// aggregate counts. Individual note failures never abort the batch; a
// per-archive parse failure stops that archive only.
func (c *Controller) Run(ctx context.Context, archives []string) (types.BatchResult, error) {
	var total types.BatchResult
	for _, path := range archives {
		result, err := c.RunArchive(ctx, path)
		total.Add(result)
		if err != nil {
			if ctx.Err() != nil {
				return total, err
			}
			c.logf("warning: skipping archive %s: %v\n", path, err)
		}
	}
	c.logf("\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		total.Converted, total.Skipped, total.Failed, total.Total())
	return total, nil
}

// journalParseFailure records the unrecoverable remainder of an archive
// as one journal entry under a synthetic title.
func (c *Controller) journalParseFailure(source string, parseErr error) {
	j := c.Orchestrator.Journal
	if j == nil {
		return
	}
	entry := types.FailureEntry{
		Source: source,
		Title:  "(remaining notes)",
		Reason: parseErr.Error(),
	}
	if err := j.Append(entry); err != nil {
		c.logf("warning: journaling parse failure for %s: %v\n", source, err)
	}
}

// sourceIdentity is the archive's slash-separated path relative to the
// input root; it keys failure journal entries and retry sets.
func (c *Controller) sourceIdentity(path string) string {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func (c *Controller) logf(format string, args ...any) {
	if c.Log != nil {
		fmt.Fprintf(c.Log, format, args...)
	}
}
