// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"strings"
	"unicode"

	"github.com/make0x0/enex2md/pkg/types"
)

// JoinWords joins word-level results into recognition text, one line of
// output per recognized line, then applies a script-aware fix: the OCR
// engine emits a space between every pair of adjacent words, which is
// wrong for scripts that do not separate words with whitespace.
func JoinWords(words []types.RecognizedWord) string {
	var b strings.Builder
	prevLine := -1
	prevBlock := -1
	for i, w := range words {
		if i > 0 {
			if w.Block != prevBlock || w.Line != prevLine {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w.Text)
		prevLine = w.Line
		prevBlock = w.Block
	}
	return CollapseScriptSpaces(b.String())
}

// CollapseScriptSpaces removes whitespace inserted between adjacent
// characters of scripts lacking word-boundary spacing (CJK).
func CollapseScriptSpaces(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		if r == ' ' && i > 0 && i < len(runes)-1 &&
			noSpaceScript(runes[i-1]) && noSpaceScript(runes[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// noSpaceScript reports whether the rune belongs to a script that does
// not use spaces between words.
func noSpaceScript(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Thai, r)
}
