// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enex

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleArchive = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE en-export SYSTEM "http://xml.evernote.com/pub/evernote-export4.dtd">
<en-export export-date="20230501T100000Z" application="Evernote" version="10.0">
<note>
<title>Shopping List</title>
<content><![CDATA[<?xml version="1.0"?><en-note><div>Milk</div></en-note>]]></content>
<created>20230501T100000Z</created>
<updated>20230502T090000Z</updated>
<tag>errands</tag>
<tag>home</tag>
<note-attributes>
<source-url>https://example.com/list</source-url>
<latitude>35.6</latitude>
<longitude>139.7</longitude>
</note-attributes>
<resource>
<data encoding="base64">aGVs
bG8=</data>
<mime>text/plain</mime>
<resource-attributes>
<file-name>greeting.txt</file-name>
</resource-attributes>
</resource>
</note>
<note>
<title>Empty Note</title>
<content><![CDATA[<en-note/>]]></content>
</note>
</en-export>
`

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.enex")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReaderParsesNotes(t *testing.T) {
	path := writeArchive(t, sampleArchive)
	r, err := NewReader(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	note, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if note.Title != "Shopping List" {
		t.Errorf("title = %q, want %q", note.Title, "Shopping List")
	}
	want := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	if note.Created == nil || !note.Created.Equal(want) {
		t.Errorf("created = %v, want %v", note.Created, want)
	}
	if note.Updated == nil {
		t.Error("updated = nil, want a timestamp")
	}
	if len(note.Tags) != 2 || note.Tags[0] != "errands" {
		t.Errorf("tags = %v", note.Tags)
	}
	if note.SourceURL != "https://example.com/list" {
		t.Errorf("sourceURL = %q", note.SourceURL)
	}
	if note.Location == nil || note.Location.Latitude != 35.6 {
		t.Errorf("location = %+v", note.Location)
	}
	if !strings.Contains(note.Content, "<div>Milk</div>") {
		t.Errorf("content = %q", note.Content)
	}

	if len(note.Resources) != 1 {
		t.Fatalf("resources = %d, want 1", len(note.Resources))
	}
	res := note.Resources[0]
	if string(res.Data) != "hello" {
		t.Errorf("data = %q, want %q", res.Data, "hello")
	}
	if res.Hash != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("hash = %q", res.Hash)
	}
	if res.FileName != "greeting.txt" {
		t.Errorf("filename = %q", res.FileName)
	}
	if res.Mime != "text/plain" {
		t.Errorf("mime = %q", res.Mime)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.Title != "Empty Note" {
		t.Errorf("second title = %q", second.Title)
	}
	if second.Created != nil {
		t.Errorf("second created = %v, want nil", second.Created)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
	// A spent reader keeps returning io.EOF.
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("err after EOF = %v, want io.EOF", err)
	}
}

func TestReaderMalformedIsTerminal(t *testing.T) {
	truncated := strings.SplitAfter(sampleArchive, "</note>")[0] + "<note><title>Broken"
	path := writeArchive(t, truncated)

	r, err := NewReader(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	// The note before the failure point is still yielded.
	note, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if note.Title != "Shopping List" {
		t.Errorf("title = %q", note.Title)
	}

	_, err = r.Next()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("err after parse failure = %v, want io.EOF", err)
	}
}

func TestReaderDropsUndecodableResource(t *testing.T) {
	archive := `<en-export>
<note><title>Bad Resource</title>
<resource><data encoding="base64">!!!not-base64!!!</data><mime>image/png</mime></resource>
<resource><data encoding="base64">aGVsbG8=</data><mime>text/plain</mime></resource>
</note>
</en-export>`
	path := writeArchive(t, archive)

	var warnings strings.Builder
	r, err := NewReader(path, &warnings)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	note, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(note.Resources) != 1 {
		t.Fatalf("resources = %d, want 1 (bad one dropped)", len(note.Resources))
	}
	if r.SkippedResources() != 1 {
		t.Errorf("skipped = %d, want 1", r.SkippedResources())
	}
	if !strings.Contains(warnings.String(), "dropping resource") {
		t.Errorf("warnings = %q", warnings.String())
	}
}

func TestCountNotesMatchesReader(t *testing.T) {
	path := writeArchive(t, sampleArchive)

	count, err := CountNotes(path)
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	yielded := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		yielded++
	}
	if count != yielded {
		t.Errorf("count = %d, reader yielded %d", count, yielded)
	}
}

func TestCountNotesPartialOnMalformed(t *testing.T) {
	truncated := strings.SplitAfter(sampleArchive, "</note>")[0] + "<note><title>Broken"
	path := writeArchive(t, truncated)

	count, err := CountNotes(path)
	if err == nil {
		t.Fatal("want error for malformed archive")
	}
	if count != 2 {
		t.Errorf("partial count = %d, want 2", count)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string // RFC3339, or "" for nil
	}{
		{"20230501T100000Z", "2023-05-01T10:00:00Z"},
		{"2023-05-01T10:00:00Z", "2023-05-01T10:00:00Z"},
		{"2023-05-01 10:00:00", "2023-05-01T10:00:00Z"},
		{"2023-05-01", "2023-05-01T00:00:00Z"},
		{"", ""},
		{"yesterday-ish", ""},
	}
	for _, tt := range tests {
		got := ParseTime(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("ParseTime(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil || got.Format(time.RFC3339) != tt.want {
			t.Errorf("ParseTime(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}
