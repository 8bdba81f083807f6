// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/make0x0/enex2md/internal/transform"
	"github.com/make0x0/enex2md/pkg/types"
)

// RenderInput is everything a renderer needs to produce one note's
// primary artifact. Resources are already extracted on disk under the
// note's resource folder; recognition text and word positions, when
// present, ride along on the processed resources.
type RenderInput struct {
	// Dir is the note's output directory.
	Dir string

	// Content is the transformed intermediate markup.
	Content string

	// Title is the note title; SanitizedTitle is safe for file names.
	Title          string
	SanitizedTitle string

	// Note is the full parsed record, for metadata (tags, dates,
	// source URL, location).
	Note *types.NoteRecord

	// Resources maps content hash to processed resource.
	Resources map[string]*types.ProcessedResource

	// LayoutFit asks paginated renderers to fit content to the page.
	LayoutFit bool
}

// Renderer produces one output format's primary artifact for a note.
// The artifact must be named per types.ArtifactName so the resume check
// finds it. Renderers are not required to be safe for concurrent use
// across notes; the orchestrator invokes them sequentially.
type Renderer interface {
	Render(ctx context.Context, in RenderInput) error
}

// shortcutTextLimit is the most visible text a note may carry and still
// count as minimal for the single-document shortcut.
const shortcutTextLimit = 200

// documentShortcut reports whether the paginated output for a note
// should be produced by copying its sole document attachment instead of
// re-rendering: the note carries exactly one displayable document and
// next to no text of its own.
func documentShortcut(in RenderInput) *types.ProcessedResource {
	var doc *types.ProcessedResource
	for _, res := range in.Resources {
		if res.Mime != "application/pdf" {
			continue
		}
		if doc != nil {
			return nil
		}
		doc = res
	}
	if doc == nil {
		return nil
	}
	if len([]rune(strings.TrimSpace(plainText(in.Content)))) > shortcutTextLimit {
		return nil
	}
	return doc
}

// copyRenderer produces the paginated artifact by copying the note's
// single document attachment, already extracted to the resource folder.
type copyRenderer struct {
	doc *types.ProcessedResource
}

func (r *copyRenderer) Render(ctx context.Context, in RenderInput) error {
	src := filepath.Join(in.Dir, transform.ResourceFolder, r.doc.FileName)
	dst := filepath.Join(in.Dir, types.ArtifactName(types.FormatPDF, in.SanitizedTitle))
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading document attachment: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("copying document attachment: %w", err)
	}
	return nil
}

// plainText strips markup from intermediate content, approximating the
// user-visible text.
func plainText(content string) string {
	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
