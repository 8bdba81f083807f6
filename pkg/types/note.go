// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Outcome indicates the final state of a single note's conversion.
type Outcome string

const (
	OutcomeConverted Outcome = "converted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Format selects an output document format for a note.
type Format string

const (
	// FormatHTML produces a full standalone HTML page per note.
	FormatHTML Format = "html"
	// FormatMarkdown produces a portable Markdown document per note.
	FormatMarkdown Format = "markdown"
	// FormatPDF produces a paginated PDF document per note.
	FormatPDF Format = "pdf"
)

// LatLon is a geographic position attached to a note.
type LatLon struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// NoteRecord holds one parsed note from an export archive. Records are
// produced one at a time by the streaming parser and must be consumed and
// discarded immediately; holding many of them defeats the bounded-memory
// design, since Resources carries the decoded attachment bytes.
type NoteRecord struct {
	// Title is the note title as stored in the archive.
	Title string

	// Created and Updated are nil when the archive omits the timestamp
	// or it cannot be parsed.
	Created *time.Time
	Updated *time.Time

	// Tags lists the note's tags in archive order.
	Tags []string

	// SourceURL is the optional URL the note was clipped from.
	SourceURL string

	// Location is the optional geographic position of the note.
	Location *LatLon

	// Content is the note body in its native markup dialect.
	Content string

	// Resources lists the note's attachments in archive order.
	Resources []ResourceRecord
}

// ResourceRecord holds one decoded attachment of a note.
type ResourceRecord struct {
	// Data is the decoded attachment payload.
	Data []byte

	// Mime is the attachment MIME type (e.g. "image/png").
	Mime string

	// FileName is the original file name from the archive, if any.
	FileName string

	// Recognition is pre-supplied recognition text from the archive,
	// if any. When present, OCR is never attempted for this resource.
	Recognition string

	// Hash is the hex digest of Data. In-content media references use
	// it as their cross-reference key; it is independent of the file
	// name assigned on disk.
	Hash string
}

// RecognizedWord is one word of OCR output with its position in the
// source image. Coordinates are in source-image pixels.
type RecognizedWord struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Block      int     `json:"block"`
	Paragraph  int     `json:"paragraph"`
	Line       int     `json:"line"`
}

// ProcessedResource is a ResourceRecord after filename assignment and,
// for eligible images, text recognition.
type ProcessedResource struct {
	ResourceRecord

	// FileName is the collision-free name assigned within the note's
	// resource folder. Unlike ResourceRecord.FileName it is always set.
	FileName string

	// OCRText is the joined recognition text produced by OCR, empty
	// when OCR was skipped or failed.
	OCRText string

	// Words holds word-level position metadata from OCR.
	Words []RecognizedWord

	// ImageWidth and ImageHeight are the source image dimensions,
	// populated for decodable images only.
	ImageWidth  int
	ImageHeight int
}

// Text returns the searchable text for the resource: pre-supplied
// recognition text when present, OCR output otherwise.
func (p *ProcessedResource) Text() string {
	if p.Recognition != "" {
		return p.Recognition
	}
	return p.OCRText
}

// FailureEntry is one durable record of a failed note conversion.
// Entries are deduplicated by (Source, Title); a later entry for the
// same key replaces the earlier one.
type FailureEntry struct {
	// Source identifies the archive, as a slash-separated path
	// relative to the input root.
	Source string `json:"source" yaml:"source"`

	// Title is the note title, or a synthetic marker for failures
	// that cannot be attributed to a single note.
	Title string `json:"title" yaml:"title"`

	// Reason describes why the note failed.
	Reason string `json:"reason" yaml:"reason"`

	// RecordedAt is when the failure was journaled.
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// BatchResult holds conversion counts for one archive or a whole run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the total number of notes accounted for.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any notes failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Add accumulates another result into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Converted += other.Converted
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// ArtifactName returns the primary artifact file name a format's
// renderer produces inside a note's output directory. The resume check
// and the renderers must agree on these names.
func ArtifactName(f Format, sanitizedTitle string) string {
	switch f {
	case FormatMarkdown:
		return "content.md"
	case FormatPDF:
		return sanitizedTitle + ".pdf"
	default:
		return "index.html"
	}
}
