// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resource

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode/utf8"
)

// maxNameLen caps assigned file names, leaving headroom for collision
// suffixes under common filesystem limits.
const maxNameLen = 120

// Sanitize strips filesystem-illegal characters from name, substituting
// sub, and caps the length while preserving the extension.
func Sanitize(name, sub string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f:
			b.WriteString(sub)
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteString(sub)
		default:
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), " .")
	if len(s) > maxNameLen {
		ext := path.Ext(s)
		if len(ext) > 16 {
			ext = ""
		}
		cut := maxNameLen - len(ext)
		// Back off to a rune boundary so multi-byte names stay valid.
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], " .") + ext
	}
	return s
}

// preferredExts overrides mime.ExtensionsByType where it returns several
// candidates or an unconventional first choice.
var preferredExts = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
	"audio/mpeg":      ".mp3",
}

// extForMime guesses a file extension for a MIME type, falling back to
// ".bin" for unknown types.
func extForMime(mimeType string) string {
	if ext, ok := preferredExts[mimeType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// namer assigns collision-free file names within one note's resource
// set. It is scoped to a single note and never used concurrently.
type namer struct {
	used map[string]bool
}

func newNamer() *namer {
	return &namer{used: make(map[string]bool)}
}

// claim returns name if still free, otherwise the first free variant
// with "_<n>" inserted before the extension. The first resource to claim
// a name keeps it unmodified.
func (n *namer) claim(name string) string {
	if !n.used[name] {
		n.used[name] = true
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !n.used[candidate] {
			n.used[candidate] = true
			return candidate
		}
	}
}
