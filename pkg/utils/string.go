package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LineBreaks matches any newline sequence.
var LineBreaks = regexp.MustCompile(`\r\n|\r|\n`)

// ChunkString splits s into pieces of at most size runes. An empty string yields no chunks.
func ChunkString(s string, size int) []string {
	if s == "" || size <= 0 {
		return nil
	}

	chunks := make([]string, 0, utf8.RuneCountInString(s)/size+1)

	for s != "" {
		end, count := 0, 0
		for end < len(s) && count < size {
			_, width := utf8.DecodeRuneInString(s[end:])
			end += width
			count++
		}

		chunks = append(chunks, s[:end])
		s = s[end:]
	}

	return chunks
}

// Truncate shortens s to at most size runes, marking the cut with an ellipsis.
func Truncate(s string, size int) string {
	if utf8.RuneCountInString(s) <= size {
		return s
	}

	runes := []rune(s)
	if size <= 1 {
		return string(runes[:max(size, 0)])
	}

	return string(runes[:size-1]) + "…"
}

// SingleLine flattens s onto one line so it can be listed in a plain-text report.
func SingleLine(s string) string {
	return LineBreaks.ReplaceAllString(strings.TrimSpace(s), `\n `)
}

// CleanFilename composes s into NFC form and drops control characters.
// Returns s unchanged if the transformation fails.
func CleanFilename(s string) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.In(unicode.Cc)))

	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}

	return result
}
