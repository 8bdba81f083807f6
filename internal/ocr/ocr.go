// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ocr recognizes text in image attachments. Recognition runs
// through a pluggable Engine; the bundled engine shells out to the
// tesseract binary. Within one note, eligible resources are recognized
// concurrently by a bounded worker pool.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/make0x0/enex2md/pkg/types"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Engine recognizes text in a prepared image. Implementations must be
// safe for concurrent use.
type Engine interface {
	// Recognize returns word-level results for the PNG-encoded image.
	Recognize(ctx context.Context, png []byte, lang string) ([]types.RecognizedWord, error)
}

// Runner drives recognition for one note's resources.
type Runner struct {
	Engine       Engine
	Language     string
	Workers      int
	MinDimension int
	MaxDimension int

	// Log receives per-resource warnings. A single resource's failure
	// is logged and leaves its recognition text absent; it is never a
	// note-level failure.
	Log io.Writer
}

// Eligible reports whether a resource should be submitted for
// recognition, recording the decoded image dimensions on it as a side
// effect. Resources with pre-supplied recognition text, non-image or
// vector MIME types, undecodable payloads, and images below the minimum
// dimension are excluded.
func (r *Runner) Eligible(res *types.ProcessedResource) bool {
	if res.Recognition != "" {
		return false
	}
	if !strings.HasPrefix(res.Mime, "image/") || res.Mime == "image/svg+xml" {
		return false
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
	if err != nil {
		return false
	}
	res.ImageWidth, res.ImageHeight = cfg.Width, cfg.Height
	min := r.MinDimension
	if min <= 0 {
		min = 50
	}
	return cfg.Width >= min && cfg.Height >= min
}

// Run recognizes all eligible resources, one task per resource, with at
// most Workers tasks in flight. Completion order is unconstrained; each
// task writes only its own resource, so the map the resources came from
// is fully populated before Run returns. Run never returns an error for
// individual recognition failures.
func (r *Runner) Run(ctx context.Context, resources []*types.ProcessedResource) {
	if r.Engine == nil {
		return
	}
	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, res := range resources {
		if !r.Eligible(res) {
			continue
		}
		res := res
		g.Go(func() error {
			if err := r.recognize(ctx, res); err != nil && r.Log != nil {
				fmt.Fprintf(r.Log, "warning: recognition failed for %s: %v\n", res.FileName, err)
			}
			return nil
		})
	}
	g.Wait()
}

func (r *Runner) recognize(ctx context.Context, res *types.ProcessedResource) error {
	img, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}
	png, scale, err := Prepare(img, r.MaxDimension)
	if err != nil {
		return fmt.Errorf("preparing image: %w", err)
	}
	words, err := r.Engine.Recognize(ctx, png, r.Language)
	if err != nil {
		return err
	}
	words = filterWords(words, scale)
	if len(words) == 0 {
		return nil
	}
	res.Words = words
	res.OCRText = JoinWords(words)
	return nil
}

// filterWords drops words with empty text or non-positive confidence and
// maps box coordinates from prepared-image space back to source pixels.
func filterWords(words []types.RecognizedWord, scale float64) []types.RecognizedWord {
	if scale <= 0 {
		scale = 1
	}
	kept := words[:0]
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" || w.Confidence <= 0 {
			continue
		}
		w.X = int(float64(w.X) / scale)
		w.Y = int(float64(w.Y) / scale)
		w.Width = int(float64(w.Width) / scale)
		w.Height = int(float64(w.Height) / scale)
		kept = append(kept, w)
	}
	return kept
}
