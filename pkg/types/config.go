// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// InputConfig holds settings for archive discovery.
type InputConfig struct {
	// Path is the archive file or directory to process.
	Path string `json:"path" yaml:"path"`

	// Recursive searches directories recursively for archives.
	Recursive bool `json:"recursive" yaml:"recursive"`
}

// OutputConfig holds settings for output naming and layout.
type OutputConfig struct {
	// RootDir is the root directory for converted notes.
	RootDir string `json:"root_dir" yaml:"root_dir"`

	// DateFormat is the Go reference layout used in note directory
	// names (default "2006-01-02").
	DateFormat string `json:"date_format" yaml:"date_format"`

	// SanitizeChar substitutes filesystem-illegal characters in file
	// and directory names (default "_").
	SanitizeChar string `json:"sanitize_char" yaml:"sanitize_char"`

	// Formats selects the output documents to produce per note.
	// Must be a non-empty subset of {html, markdown, pdf}.
	Formats []Format `json:"formats" yaml:"formats"`

	// LayoutFit asks paginated renderers to fit content to the page.
	LayoutFit bool `json:"layout_fit" yaml:"layout_fit"`
}

// OCRConfig holds settings for text recognition of image attachments.
type OCRConfig struct {
	// Enabled turns recognition on. Without it, image attachments are
	// extracted but never recognized.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Language is the recognition language code (default "eng").
	Language string `json:"language" yaml:"language"`

	// Workers bounds concurrent recognition tasks within one note
	// (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// MinDimension excludes images whose width or height is below this
	// many pixels, filtering out icons and tracking pixels (default 50).
	MinDimension int `json:"min_dimension" yaml:"min_dimension"`
}

// ProcessingConfig holds settings for the per-note execution engine.
type ProcessingConfig struct {
	// TimeoutSeconds bounds one note's full pipeline, including OCR
	// and all requested renders (default 300).
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// RetryFrom is an optional path to a retry-set file; when set,
	// only the listed (source, title) pairs are processed.
	RetryFrom string `json:"retry_from" yaml:"retry_from"`

	// FailureLog is the path of the failure journal
	// (default "<root_dir>/failures.json").
	FailureLog string `json:"failure_log" yaml:"failure_log"`
}

// IndexConfig holds settings for the recognition-text search index.
type IndexConfig struct {
	// Enabled turns on indexing of converted notes.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path (default "<root_dir>/index/notes.db").
	Path string `json:"path" yaml:"path"`
}

// Config groups all settings for a conversion run.
type Config struct {
	Input      InputConfig      `json:"input" yaml:"input"`
	Output     OutputConfig     `json:"output" yaml:"output"`
	OCR        OCRConfig        `json:"ocr" yaml:"ocr"`
	Processing ProcessingConfig `json:"processing" yaml:"processing"`
	Index      IndexConfig      `json:"index" yaml:"index"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Input.Path == "" {
		c.Input.Path = "."
	}
	if c.Output.RootDir == "" {
		c.Output.RootDir = "Converted_Notes"
	}
	if c.Output.DateFormat == "" {
		c.Output.DateFormat = "2006-01-02"
	}
	if c.Output.SanitizeChar == "" {
		c.Output.SanitizeChar = "_"
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = []Format{FormatHTML}
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.OCR.Workers <= 0 {
		c.OCR.Workers = 4
	}
	if c.OCR.MinDimension <= 0 {
		c.OCR.MinDimension = 50
	}
	if c.Processing.TimeoutSeconds <= 0 {
		c.Processing.TimeoutSeconds = 300
	}
}

// Validate checks settings that cannot be defaulted away.
func (c *Config) Validate() error {
	for _, f := range c.Output.Formats {
		switch f {
		case FormatHTML, FormatMarkdown, FormatPDF:
		default:
			return fmt.Errorf("unknown output format %q (want html, markdown, or pdf)", f)
		}
	}
	return nil
}

// NoteTimeout returns the per-note timeout as a duration.
func (c *Config) NoteTimeout() time.Duration {
	return time.Duration(c.Processing.TimeoutSeconds) * time.Second
}
