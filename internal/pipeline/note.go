// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives note conversion: the per-note execution
// engine (resume, retry targeting, timeout protection, failure
// journaling) and the archive batch loop around it.
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/make0x0/enex2md/internal/index"
	"github.com/make0x0/enex2md/internal/journal"
	"github.com/make0x0/enex2md/internal/resource"
	"github.com/make0x0/enex2md/internal/transform"
	"github.com/make0x0/enex2md/pkg/types"
)

// noDate substitutes for the creation date in directory names when the
// note has no parseable timestamp.
const noDate = "NoDate"

// Orchestrator converts one note at a time. Note-level work is
// sequential by design: at least one renderer is not safe to invoke
// concurrently across notes. OCR parallelism lives inside the resource
// processor, scoped to a single note.
type Orchestrator struct {
	Output    types.OutputConfig
	Resources *resource.Processor
	Renderers map[types.Format]Renderer
	Journal   *journal.Journal

	// Index receives converted notes when non-nil.
	Index *index.Index

	// Retry, when non-nil, restricts processing to exactly these
	// (source, title) pairs; everything else is skipped uninspected.
	Retry map[journal.Key]struct{}

	// Timeout bounds one note's full pipeline.
	Timeout time.Duration

	Log io.Writer

	// seen counts identity directory names handed out during this run,
	// so distinct notes sharing (date, sanitized title) get separate
	// directories instead of the later one hitting the earlier one's
	// artifact in the resume check.
	seen map[string]int
}

// ProcessNote runs one note through resume check, retry filtering and
// the timeout-bounded pipeline, returning its outcome. Failures are
// journaled here; they never propagate to the caller.
func (o *Orchestrator) ProcessNote(ctx context.Context, source, outRoot string, note *types.NoteRecord) types.Outcome {
	title := note.Title
	if title == "" {
		title = "Untitled"
	}

	// The identity claim precedes retry filtering so duplicate
	// disambiguation follows archive order whether or not a retry set
	// narrows the run.
	sanitized := resource.Sanitize(norm.NFC.String(title), o.sanitizeChar())
	identity := o.claimIdentity(outRoot, o.dirName(note, sanitized), title)

	if o.Retry != nil {
		if _, ok := o.Retry[journal.Key{Source: source, Title: title}]; !ok {
			return types.OutcomeSkipped
		}
	}

	// Resume check: when the primary artifact already exists for this
	// identity, skip before any resource extraction, OCR, or render.
	if o.artifactExists(outRoot, identity, sanitized) {
		o.logf("skipped: %s (already converted)\n", title)
		return types.OutcomeSkipped
	}

	// The pipeline runs on an independently joinable worker with a
	// hard deadline. On expiry its result is discarded; partially
	// written artifacts may remain on disk and can fool a later
	// resume check.
	nctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- o.runNote(nctx, source, filepath.Join(outRoot, identity), title, sanitized, note)
	}()

	select {
	case err := <-done:
		if err != nil {
			o.fail(source, title, err.Error())
			return types.OutcomeFailed
		}
		o.logf("converted: %s\n", title)
		return types.OutcomeConverted
	case <-nctx.Done():
		elapsed := time.Since(start).Round(time.Millisecond)
		reason := fmt.Sprintf("timed out after %s (limit %s)", elapsed, o.timeout())
		if ctx.Err() != nil {
			reason = fmt.Sprintf("cancelled after %s", elapsed)
		}
		o.fail(source, title, reason)
		return types.OutcomeFailed
	}
}

// runNote is the per-note pipeline body: resources, recognition,
// transformation, then every requested render.
func (o *Orchestrator) runNote(ctx context.Context, source, dir, title, sanitized string, note *types.NoteRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating note directory: %w", err)
	}

	resources, err := o.Resources.Process(ctx, note, filepath.Join(dir, transform.ResourceFolder))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	content, err := transform.Transform(note.Content, resources)
	if err != nil {
		return err
	}

	in := RenderInput{
		Dir:            dir,
		Content:        content,
		Title:          title,
		SanitizedTitle: sanitized,
		Note:           note,
		Resources:      resources,
		LayoutFit:      o.Output.LayoutFit,
	}
	for _, format := range o.Output.Formats {
		r := o.selectRenderer(format, in)
		if r == nil {
			o.logf("warning: no renderer for format %q, skipping\n", format)
			continue
		}
		if err := r.Render(ctx, in); err != nil {
			return fmt.Errorf("rendering %s: %w", format, err)
		}
	}

	o.indexNote(ctx, source, dir, in)
	return nil
}

// selectRenderer applies the renderer-selection rule: a paginated
// output for a note that is essentially a single document attachment is
// produced by copying the attachment rather than re-rendering it.
func (o *Orchestrator) selectRenderer(format types.Format, in RenderInput) Renderer {
	if format == types.FormatPDF {
		if doc := documentShortcut(in); doc != nil {
			return &copyRenderer{doc: doc}
		}
	}
	return o.Renderers[format]
}

// indexNote records a converted note in the search index. Index
// failures are warnings; the outcome is already decided.
func (o *Orchestrator) indexNote(ctx context.Context, source, dir string, in RenderInput) {
	if o.Index == nil {
		return
	}
	var body strings.Builder
	body.WriteString(plainText(in.Content))
	for _, res := range in.Resources {
		if text := res.Text(); text != "" {
			body.WriteString("\n")
			body.WriteString(text)
		}
	}
	if err := o.Index.Add(ctx, source, in.Title, dir, body.String()); err != nil {
		o.logf("warning: %v\n", err)
	}
}

// fail journals a failed note. Journal write errors are logged and do
// not alter the already-computed outcome.
func (o *Orchestrator) fail(source, title, reason string) {
	o.logf("failed:  %s (%s)\n", title, reason)
	if o.Journal == nil {
		return
	}
	err := o.Journal.Append(types.FailureEntry{Source: source, Title: title, Reason: reason})
	if err != nil {
		o.logf("warning: journaling failure for %q: %v\n", title, err)
	}
}

// claimIdentity reserves a directory name for one note. The first note
// with a given (date, sanitized title) keeps the plain name; later
// distinct notes get a title-digest suffix, then an ordinal, so they
// are converted into their own directories and their resume checks
// never match another note's artifact. Claims are scoped to the
// archive's output root and follow archive order, which keeps the
// assignment stable across reruns.
func (o *Orchestrator) claimIdentity(outRoot, base, title string) string {
	if o.seen == nil {
		o.seen = make(map[string]int)
	}
	key := filepath.Join(outRoot, base)
	n := o.seen[key]
	o.seen[key]++
	if n == 0 {
		return base
	}
	sum := md5.Sum([]byte(title))
	identity := fmt.Sprintf("%s_%s", base, hex.EncodeToString(sum[:])[:4])
	if n > 1 {
		identity = fmt.Sprintf("%s_%d", identity, n)
	}
	return identity
}

// dirName computes the note's output directory name: date plus
// sanitized title.
func (o *Orchestrator) dirName(note *types.NoteRecord, sanitized string) string {
	dateStr := noDate
	if note.Created != nil {
		layout := o.Output.DateFormat
		if layout == "" {
			layout = "2006-01-02"
		}
		dateStr = note.Created.Format(layout)
	}
	return dateStr + "_" + sanitized
}

// artifactExists checks the date-prefixed directory and the plain-title
// variant for the first selected format's primary artifact.
func (o *Orchestrator) artifactExists(outRoot, identity, sanitized string) bool {
	format := types.FormatHTML
	if len(o.Output.Formats) > 0 {
		format = o.Output.Formats[0]
	}
	artifact := types.ArtifactName(format, sanitized)
	for _, dir := range []string{identity, sanitized} {
		if _, err := os.Stat(filepath.Join(outRoot, dir, artifact)); err == nil {
			return true
		}
	}
	return false
}

func (o *Orchestrator) sanitizeChar() string {
	if o.Output.SanitizeChar == "" {
		return "_"
	}
	return o.Output.SanitizeChar
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 5 * time.Minute
	}
	return o.Timeout
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Log != nil {
		fmt.Fprintf(o.Log, format, args...)
	}
}
