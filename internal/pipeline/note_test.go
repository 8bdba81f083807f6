// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/make0x0/enex2md/internal/index"
	"github.com/make0x0/enex2md/internal/journal"
	"github.com/make0x0/enex2md/internal/resource"
	"github.com/make0x0/enex2md/internal/transform"
	"github.com/make0x0/enex2md/pkg/types"
)

// fakeRenderer records its inputs and writes the format's primary
// artifact, like a real renderer would.
type fakeRenderer struct {
	format types.Format
	err    error

	// block, when non-nil, stalls the first Render until the channel is
	// closed; later calls proceed normally.
	block   chan struct{}
	blocked atomic.Bool

	calls []RenderInput
}

func (r *fakeRenderer) Render(ctx context.Context, in RenderInput) error {
	if r.block != nil && r.blocked.CompareAndSwap(false, true) {
		<-r.block
		return nil
	}
	r.calls = append(r.calls, in)
	if r.err != nil {
		return r.err
	}
	name := types.ArtifactName(r.format, in.SanitizedTitle)
	return os.WriteFile(filepath.Join(in.Dir, name), []byte("rendered"), 0o644)
}

func testOrchestrator(t *testing.T, formats ...types.Format) (*Orchestrator, *fakeRenderer) {
	t.Helper()
	if len(formats) == 0 {
		formats = []types.Format{types.FormatHTML}
	}
	r := &fakeRenderer{format: formats[0]}
	o := &Orchestrator{
		Output:    types.OutputConfig{Formats: formats},
		Resources: &resource.Processor{SanitizeChar: "_"},
		Renderers: map[types.Format]Renderer{formats[0]: r},
		Journal:   journal.New(filepath.Join(t.TempDir(), "failures.json")),
		Timeout:   30 * time.Second,
	}
	return o, r
}

func sampleNote(title string) *types.NoteRecord {
	created := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	return &types.NoteRecord{
		Title:   title,
		Created: &created,
		Content: `<en-note><div>Body text</div></en-note>`,
	}
}

func TestProcessNoteConverted(t *testing.T) {
	o, r := testOrchestrator(t)
	outRoot := t.TempDir()

	got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Trip Notes"))
	if got != types.OutcomeConverted {
		t.Fatalf("outcome = %q, want converted", got)
	}

	dir := filepath.Join(outRoot, "2024-01-15_Trip Notes")
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("renderer called %d times, want 1", len(r.calls))
	}
	if r.calls[0].Content != "<div>Body text</div>" {
		t.Errorf("Content = %q", r.calls[0].Content)
	}
}

func TestProcessNoteNoDate(t *testing.T) {
	o, _ := testOrchestrator(t)
	outRoot := t.TempDir()
	note := sampleNote("Undated")
	note.Created = nil

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, note); got != types.OutcomeConverted {
		t.Fatalf("outcome = %q", got)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "NoDate_Undated", "index.html")); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestProcessNoteUntitled(t *testing.T) {
	o, _ := testOrchestrator(t)
	outRoot := t.TempDir()
	note := sampleNote("")

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, note); got != types.OutcomeConverted {
		t.Fatalf("outcome = %q", got)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "2024-01-15_Untitled", "index.html")); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestProcessNoteDuplicateIdentity(t *testing.T) {
	o, r := testOrchestrator(t)
	outRoot := t.TempDir()

	bodies := []string{"January planning", "Budget review", "Retrospective"}
	notes := make([]*types.NoteRecord, len(bodies))
	for i, body := range bodies {
		notes[i] = sampleNote("Meeting")
		notes[i].Content = `<en-note><div>` + body + `</div></en-note>`
	}

	for i, note := range notes {
		if got := o.ProcessNote(context.Background(), "a.enex", outRoot, note); got != types.OutcomeConverted {
			t.Fatalf("note %d outcome = %q, want converted", i, got)
		}
	}
	if len(r.calls) != 3 {
		t.Fatalf("renderer called %d times, want 3", len(r.calls))
	}

	// Three separate directories, the first keeping the plain name.
	dirs := map[string]bool{}
	for i, call := range r.calls {
		if !strings.Contains(call.Content, bodies[i]) {
			t.Errorf("note %d rendered %q", i, call.Content)
		}
		if dirs[call.Dir] {
			t.Errorf("directory %q reused", call.Dir)
		}
		dirs[call.Dir] = true
		if _, err := os.Stat(filepath.Join(call.Dir, "index.html")); err != nil {
			t.Errorf("note %d artifact: %v", i, err)
		}
	}
	if !dirs[filepath.Join(outRoot, "2024-01-15_Meeting")] {
		t.Errorf("first note lost the plain directory name: %v", dirs)
	}

	// A rerun resolves the same directories and skips every note.
	o2, r2 := testOrchestrator(t)
	for i, note := range notes {
		if got := o2.ProcessNote(context.Background(), "a.enex", outRoot, note); got != types.OutcomeSkipped {
			t.Errorf("rerun note %d outcome = %q, want skipped", i, got)
		}
	}
	if len(r2.calls) != 0 {
		t.Errorf("rerun invoked the renderer")
	}
}

func TestProcessNoteResumeSkip(t *testing.T) {
	o, r := testOrchestrator(t)
	outRoot := t.TempDir()

	// Artifact from a previous run; nothing else needs to exist for the
	// resume check to fire, not even the resource folder.
	dir := filepath.Join(outRoot, "2024-01-15_Trip Notes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Trip Notes")); got != types.OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", got)
	}
	if len(r.calls) != 0 {
		t.Errorf("renderer invoked on skipped note")
	}
	data, _ := os.ReadFile(filepath.Join(dir, "index.html"))
	if string(data) != "old" {
		t.Errorf("existing artifact overwritten")
	}
}

func TestProcessNoteResumeSkipPlainTitleDir(t *testing.T) {
	o, r := testOrchestrator(t)
	outRoot := t.TempDir()

	// Output from an older layout without the date prefix.
	dir := filepath.Join(outRoot, "Trip Notes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Trip Notes")); got != types.OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", got)
	}
	if len(r.calls) != 0 {
		t.Errorf("renderer invoked on skipped note")
	}
}

func TestProcessNoteRetryFilter(t *testing.T) {
	o, r := testOrchestrator(t)
	o.Retry = map[journal.Key]struct{}{
		{Source: "a.enex", Title: "Wanted"}: {},
	}
	outRoot := t.TempDir()

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Other")); got != types.OutcomeSkipped {
		t.Errorf("outcome for unlisted note = %q, want skipped", got)
	}
	if got := o.ProcessNote(context.Background(), "b.enex", outRoot, sampleNote("Wanted")); got != types.OutcomeSkipped {
		t.Errorf("outcome for unlisted source = %q, want skipped", got)
	}
	if len(r.calls) != 0 {
		t.Fatalf("renderer invoked for filtered notes")
	}

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Wanted")); got != types.OutcomeConverted {
		t.Errorf("outcome for listed note = %q, want converted", got)
	}
}

func TestProcessNoteTransformFailure(t *testing.T) {
	o, _ := testOrchestrator(t)
	outRoot := t.TempDir()
	note := sampleNote("Broken")
	note.Content = `<en-note><div>unclosed`

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, note); got != types.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", got)
	}

	entries, err := o.Journal.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("journal has %d entries, want 1", len(entries))
	}
	if entries[0].Source != "a.enex" || entries[0].Title != "Broken" {
		t.Errorf("journal entry = %+v", entries[0])
	}
	if !strings.Contains(entries[0].Reason, "transforming content") {
		t.Errorf("Reason = %q", entries[0].Reason)
	}
}

func TestProcessNoteRenderError(t *testing.T) {
	o, r := testOrchestrator(t)
	r.err = errors.New("disk full")
	outRoot := t.TempDir()

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Doomed")); got != types.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", got)
	}
	entries, _ := o.Journal.Load()
	if len(entries) != 1 || !strings.Contains(entries[0].Reason, "disk full") {
		t.Errorf("journal = %+v", entries)
	}
}

func TestProcessNoteTimeout(t *testing.T) {
	o, r := testOrchestrator(t)
	r.block = make(chan struct{})
	t.Cleanup(func() { close(r.block) })
	o.Timeout = 50 * time.Millisecond
	outRoot := t.TempDir()

	start := time.Now()
	got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Slow"))
	if got != types.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("ProcessNote blocked for %s past its deadline", elapsed)
	}

	entries, _ := o.Journal.Load()
	if len(entries) != 1 || !strings.Contains(entries[0].Reason, "timed out") {
		t.Errorf("journal = %+v", entries)
	}

	// The timed-out worker must not poison the run; the next note gets
	// its own budget and completes.
	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Quick")); got != types.OutcomeConverted {
		t.Errorf("outcome after timeout = %q, want converted", got)
	}
}

func TestProcessNoteMissingRendererWarns(t *testing.T) {
	o, _ := testOrchestrator(t)
	o.Output.Formats = []types.Format{types.FormatHTML, types.FormatMarkdown}
	var log bytes.Buffer
	o.Log = &log
	outRoot := t.TempDir()

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, sampleNote("Partial")); got != types.OutcomeConverted {
		t.Fatalf("outcome = %q, want converted", got)
	}
	if !strings.Contains(log.String(), "no renderer") {
		t.Errorf("log = %q", log.String())
	}
}

func pdfResource(data, name string) types.ResourceRecord {
	sum := md5.Sum([]byte(data))
	return types.ResourceRecord{
		Data:     []byte(data),
		Mime:     "application/pdf",
		FileName: name,
		Hash:     hex.EncodeToString(sum[:]),
	}
}

func TestProcessNotePDFCopiesSingleDocument(t *testing.T) {
	o, _ := testOrchestrator(t, types.FormatPDF)
	o.Renderers = nil
	outRoot := t.TempDir()

	note := sampleNote("Scanned Contract")
	rec := pdfResource("%PDF-1.4 fake body", "contract.pdf")
	note.Resources = []types.ResourceRecord{rec}
	note.Content = `<en-note><en-media hash="` + rec.Hash + `" type="application/pdf"/></en-note>`

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, note); got != types.OutcomeConverted {
		t.Fatalf("outcome = %q, want converted", got)
	}

	artifact := filepath.Join(outRoot, "2024-01-15_Scanned Contract", "Scanned Contract.pdf")
	data, err := os.ReadFile(artifact)
	if err != nil {
		t.Fatalf("copied artifact: %v", err)
	}
	if string(data) != "%PDF-1.4 fake body" {
		t.Errorf("artifact bytes differ from attachment")
	}
}

func TestProcessNoteIndexes(t *testing.T) {
	o, _ := testOrchestrator(t)
	ix, err := index.Open(filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	o.Index = ix
	outRoot := t.TempDir()

	note := sampleNote("Receipt")
	rec := pdfResource("%PDF-1.4", "receipt.pdf")
	rec.Recognition = "hardware store total 42.50"
	note.Resources = []types.ResourceRecord{rec}

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, note); got != types.OutcomeConverted {
		t.Fatalf("outcome = %q", got)
	}

	for _, query := range []string{"Body", "hardware"} {
		hits, err := ix.Search(context.Background(), query, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 || hits[0].Title != "Receipt" {
			t.Errorf("Search(%q) = %+v", query, hits)
		}
	}
}

func TestDocumentShortcut(t *testing.T) {
	pdf := &types.ProcessedResource{
		ResourceRecord: types.ResourceRecord{Mime: "application/pdf", Hash: "d0c"},
		FileName:       "doc.pdf",
	}
	img := &types.ProcessedResource{
		ResourceRecord: types.ResourceRecord{Mime: "image/png", Hash: "1a2b"},
		FileName:       "pic.png",
	}

	tests := []struct {
		name      string
		content   string
		resources map[string]*types.ProcessedResource
		want      bool
	}{
		{"single document, minimal text", "<div>see attached</div>", map[string]*types.ProcessedResource{"d0c": pdf}, true},
		{"document plus image", "<div>see attached</div>", map[string]*types.ProcessedResource{"d0c": pdf, "1a2b": img}, true},
		{"two documents", "", map[string]*types.ProcessedResource{"d0c": pdf, "e0e": {ResourceRecord: types.ResourceRecord{Mime: "application/pdf", Hash: "e0e"}, FileName: "other.pdf"}}, false},
		{"no document", "<div>text</div>", map[string]*types.ProcessedResource{"1a2b": img}, false},
		{"substantial text", "<div>" + strings.Repeat("words and more words ", 20) + "</div>", map[string]*types.ProcessedResource{"d0c": pdf}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := documentShortcut(RenderInput{Content: tt.content, Resources: tt.resources})
			if (got != nil) != tt.want {
				t.Errorf("documentShortcut = %v, want shortcut=%v", got, tt.want)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	got := plainText(`<div>Milk <b>and</b> eggs</div>`)
	if !strings.Contains(got, "Milk") || !strings.Contains(got, "and") || strings.Contains(got, "<") {
		t.Errorf("plainText = %q", got)
	}
}

func TestProcessNoteWritesResources(t *testing.T) {
	o, _ := testOrchestrator(t)
	outRoot := t.TempDir()

	note := sampleNote("With Attachment")
	rec := pdfResource("attachment payload", "notes.pdf")
	note.Resources = []types.ResourceRecord{rec}

	if got := o.ProcessNote(context.Background(), "a.enex", outRoot, note); got != types.OutcomeConverted {
		t.Fatalf("outcome = %q", got)
	}
	extracted := filepath.Join(outRoot, "2024-01-15_With Attachment", transform.ResourceFolder, "notes.pdf")
	if _, err := os.Stat(extracted); err != nil {
		t.Errorf("resource not extracted: %v", err)
	}
}
