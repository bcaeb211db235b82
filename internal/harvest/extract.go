package harvest

import (
	"strings"

	"github.com/harvestlab/harvest/internal/domain"
)

// SplitLines splits source text into lines without a trailing empty
// element, so "a\nb\n" counts as two lines, matching how line numbers
// are assigned by the extractors.
func SplitLines(src string) []string {
	if src == "" {
		return nil
	}
	lines := strings.Split(src, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// LineCount returns the number of lines in src per SplitLines.
func LineCount(src string) int {
	return len(SplitLines(src))
}

// ExtractLines returns the inclusive 1-based line range [start, end] of
// src joined with "\n". Out-of-range bounds are clamped; an empty or
// inverted range yields "".
func ExtractLines(src string, start, end int) string {
	if src == "" {
		return ""
	}
	lines := SplitLines(src)
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// WholeFileChunk builds the single fallback chunk used when a file has no
// detected symbols or an unrecognized language. The span always covers at
// least line 1, so empty content still yields a valid 1..1 range.
func WholeFileChunk(path, language, src string) domain.ChunkEntry {
	loc := LineCount(src)
	if loc < 1 {
		loc = 1
	}
	text := ExtractLines(src, 1, loc)
	chunk := domain.ChunkEntry{
		ID:        ChunkID(path, 1, loc),
		FilePath:  path,
		Language:  language,
		Kind:      domain.KindFile,
		Symbol:    Stem(path),
		StartLine: 1,
		EndLine:   loc,
		Public:    false,
	}
	if text != "" {
		chunk.Hash = HashText(text)
	}
	return chunk
}
