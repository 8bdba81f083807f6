// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resource extracts note attachments to disk: content-addressed
// naming, collision resolution within a note, recognition sidecars.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/make0x0/enex2md/internal/ocr"
	"github.com/make0x0/enex2md/pkg/types"
)

// Processor writes one note's resources into its resource folder and
// obtains recognition text for eligible images.
type Processor struct {
	// SanitizeChar substitutes illegal characters in file names.
	SanitizeChar string

	// OCR drives recognition; nil disables it.
	OCR *ocr.Runner

	// Log receives per-resource warnings.
	Log io.Writer
}

// Process writes the note's resources into dir in archive order, then
// runs recognition, then writes sidecar artifacts. It returns the
// resource map keyed by content hash; content transformation must not
// start before Process returns, so it never observes a partially
// populated map.
func (p *Processor) Process(ctx context.Context, note *types.NoteRecord, dir string) (map[string]*types.ProcessedResource, error) {
	if len(note.Resources) == 0 {
		return map[string]*types.ProcessedResource{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating resource directory: %w", err)
	}

	sub := p.SanitizeChar
	if sub == "" {
		sub = "_"
	}

	// Name and persist in parser-encountered order before any OCR
	// dispatch; the first resource to claim a name keeps it unmodified.
	names := newNamer()
	byHash := make(map[string]*types.ProcessedResource, len(note.Resources))
	ordered := make([]*types.ProcessedResource, 0, len(note.Resources))
	for i := range note.Resources {
		rec := &note.Resources[i]
		if _, ok := byHash[rec.Hash]; ok {
			continue // identical content already extracted
		}
		name := rec.FileName
		if name != "" {
			name = Sanitize(name, sub)
		}
		if name == "" {
			name = rec.Hash + extForMime(rec.Mime)
		}
		name = names.claim(name)

		if err := os.WriteFile(filepath.Join(dir, name), rec.Data, 0o644); err != nil {
			return nil, fmt.Errorf("writing resource %s: %w", name, err)
		}

		proc := &types.ProcessedResource{ResourceRecord: *rec, FileName: name}
		byHash[rec.Hash] = proc
		ordered = append(ordered, proc)
	}

	if p.OCR != nil {
		p.OCR.Run(ctx, ordered)
	}

	for _, proc := range ordered {
		if err := p.writeSidecars(dir, proc); err != nil && p.Log != nil {
			fmt.Fprintf(p.Log, "warning: sidecar for %s: %v\n", proc.FileName, err)
		}
	}
	return byHash, nil
}

// writeSidecars persists recognition text and word positions alongside
// the resource file.
func (p *Processor) writeSidecars(dir string, res *types.ProcessedResource) error {
	text := res.Text()
	if text == "" {
		return nil
	}
	txtPath := filepath.Join(dir, res.FileName+".txt")
	if err := os.WriteFile(txtPath, []byte(text), 0o644); err != nil {
		return err
	}
	if len(res.Words) == 0 {
		return nil
	}
	positions := struct {
		ImageWidth  int                    `json:"image_width"`
		ImageHeight int                    `json:"image_height"`
		Words       []types.RecognizedWord `json:"words"`
	}{res.ImageWidth, res.ImageHeight, res.Words}

	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, res.FileName+".words.json"), data, 0o644)
}
