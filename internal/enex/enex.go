// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enex streams notes out of Evernote export archives. Archives
// embed attachment payloads as inline base64, so a whole-document parse
// is memory-prohibitive at scale; the reader decodes one note element at
// a time and lets the caller discard it before the next is produced.
package enex

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/make0x0/enex2md/pkg/types"
)

// ParseError reports malformed archive input. It is terminal: notes
// after the failure point cannot be recovered, and the caller must treat
// the remainder of the archive as a single unresolved failure.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader yields notes from one archive incrementally. The sequence is
// finite and non-restartable; re-open the archive to re-parse it.
type Reader struct {
	source  string
	f       *os.File
	dec     *xml.Decoder
	warn    io.Writer
	done    bool
	skipped int
}

// NewReader opens the archive at path for streaming. Warnings about
// dropped resources are written to warn when non-nil.
func NewReader(path string, warn io.Writer) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	dec := xml.NewDecoder(f)
	dec.Entity = xml.HTMLEntity
	return &Reader{source: path, f: f, dec: dec, warn: warn}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// SkippedResources reports how many resources were dropped because
// their payload failed to decode.
func (r *Reader) SkippedResources() int { return r.skipped }

// Next returns the next note, io.EOF at the end of the archive, or a
// *ParseError on malformed input. After an error the reader is spent.
func (r *Reader) Next() (*types.NoteRecord, error) {
	if r.done {
		return nil, io.EOF
	}
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			r.done = true
			return nil, io.EOF
		}
		if err != nil {
			r.done = true
			return nil, &ParseError{Source: r.source, Err: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "note" {
			continue
		}
		var raw xmlNote
		if err := r.dec.DecodeElement(&raw, &start); err != nil {
			r.done = true
			return nil, &ParseError{Source: r.source, Err: err}
		}
		return r.toRecord(&raw), nil
	}
}

type xmlNote struct {
	Title      string        `xml:"title"`
	Content    string        `xml:"content"`
	Created    string        `xml:"created"`
	Updated    string        `xml:"updated"`
	Tags       []string      `xml:"tag"`
	Attributes *xmlNoteAttrs `xml:"note-attributes"`
	Resources  []xmlResource `xml:"resource"`
}

type xmlNoteAttrs struct {
	SourceURL string   `xml:"source-url"`
	Latitude  *float64 `xml:"latitude"`
	Longitude *float64 `xml:"longitude"`
}

type xmlResource struct {
	Data        string        `xml:"data"`
	Mime        string        `xml:"mime"`
	Recognition string        `xml:"recognition"`
	Attributes  *xmlResAttrs  `xml:"resource-attributes"`
}

type xmlResAttrs struct {
	FileName string `xml:"file-name"`
}

func (r *Reader) toRecord(raw *xmlNote) *types.NoteRecord {
	note := &types.NoteRecord{
		Title:     raw.Title,
		Created:   ParseTime(raw.Created),
		Updated:   ParseTime(raw.Updated),
		Tags:      raw.Tags,
		Content:   raw.Content,
	}
	if raw.Attributes != nil {
		note.SourceURL = raw.Attributes.SourceURL
		if raw.Attributes.Latitude != nil && raw.Attributes.Longitude != nil {
			note.Location = &types.LatLon{
				Latitude:  *raw.Attributes.Latitude,
				Longitude: *raw.Attributes.Longitude,
			}
		}
	}
	for _, res := range raw.Resources {
		rec, err := decodeResource(&res)
		if err != nil {
			r.skipped++
			if r.warn != nil {
				fmt.Fprintf(r.warn, "warning: dropping resource in note %q: %v\n", raw.Title, err)
			}
			continue
		}
		note.Resources = append(note.Resources, *rec)
	}
	return note
}

// decodeResource decodes one attachment payload. A resource without a
// payload, or with an undecodable one, is dropped; that is never a
// note-level failure.
func decodeResource(res *xmlResource) (*types.ResourceRecord, error) {
	payload := strings.Map(dropSpace, res.Data)
	if payload == "" {
		return nil, fmt.Errorf("empty payload")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	sum := md5.Sum(data)
	mime := res.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	rec := &types.ResourceRecord{
		Data:        data,
		Mime:        mime,
		Recognition: strings.TrimSpace(res.Recognition),
		Hash:        hex.EncodeToString(sum[:]),
	}
	if res.Attributes != nil {
		rec.FileName = res.Attributes.FileName
	}
	return rec, nil
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\t', '\n', '\r':
		return -1
	}
	return r
}

// timeLayouts are tried in order when parsing archive timestamps. The
// native layout is compact ISO 8601 ("20230501T100000Z"); exports edited
// by other tools show up with the friendlier variants.
var timeLayouts = []string{
	"20060102T150405Z",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a timestamp in any accepted layout. Absent or
// unparseable input yields nil, never an error; downstream naming
// substitutes a sentinel.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// CountNotes counts note boundaries in the archive without materializing
// resource payloads, for progress estimation. Malformed input returns
// the partial count together with the error; callers should log it as a
// warning rather than abort.
func CountNotes(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	dec.Entity = xml.HTMLEntity
	count := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, &ParseError{Source: path, Err: err}
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "note" {
			count++
		}
	}
}
