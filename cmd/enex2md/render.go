// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/make0x0/enex2md/internal/pipeline"
	"github.com/make0x0/enex2md/pkg/types"
)

// htmlRenderer is the built-in full-page renderer. It wraps the already
// transformed intermediate markup in a minimal standalone page; the
// resources it references are on disk next to the artifact.
type htmlRenderer struct{}

func (r *htmlRenderer) Render(ctx context.Context, in pipeline.RenderInput) error {
	var b strings.Builder
	title := html.EscapeString(in.Title)

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", title)
	b.WriteString(`<style>
  body { font-family: sans-serif; max-width: 800px; margin: 2em auto; padding: 0 1em; }
  img { max-width: 100%; }
  .en-crypt-container { border: 1px solid #ccc; padding: 1em; background: #f9f9f9; margin: 1em 0; }
</style>
`)
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", title)

	b.WriteString("<div class=\"note-meta\">\n")
	if in.Note.Created != nil {
		fmt.Fprintf(&b, "<p>Created: %s</p>\n", in.Note.Created.Format("2006-01-02 15:04"))
	}
	if len(in.Note.Tags) > 0 {
		fmt.Fprintf(&b, "<p>Tags: %s</p>\n", html.EscapeString(strings.Join(in.Note.Tags, ", ")))
	}
	if in.Note.SourceURL != "" {
		fmt.Fprintf(&b, "<p><a href=\"%s\">Source</a></p>\n", html.EscapeString(in.Note.SourceURL))
	}
	b.WriteString("</div>\n<hr>\n<div class=\"note-content\">\n")
	b.WriteString(in.Content)
	b.WriteString("\n</div>\n</body>\n</html>\n")

	out := filepath.Join(in.Dir, types.ArtifactName(types.FormatHTML, in.SanitizedTitle))
	if err := os.WriteFile(out, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing page: %w", err)
	}
	return nil
}
