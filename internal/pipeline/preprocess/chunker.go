package preprocess

import (
	"strings"

	"github.com/rowanlight/dramatis/internal/store"
)

const (
	// DefaultChunkSize is the per-chunk character budget.
	DefaultChunkSize = 8000
	// DefaultChunkOverlap is how many characters consecutive chunks share.
	DefaultChunkOverlap = 200
)

// sentence terminators recognized when looking for a cut point.
const sentenceEnders = ".!?؟。\n"

// SplitChunks splits cleaned text into ordered chunks of roughly size runes,
// cutting at sentence boundaries where one falls in the trailing part of the
// window. Offsets are rune positions into the cleaned text. Consecutive
// chunks overlap so sentences near a cut appear in both.
func SplitChunks(text string, size, overlap int) []store.Chunk {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []store.Chunk
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := sentenceCut(runes, start, end); cut > start {
			end = cut
		}

		seg := string(runes[start:end])
		if trimmed := strings.TrimSpace(seg); trimmed != "" {
			chunks = append(chunks, store.Chunk{
				Number:      len(chunks),
				Text:        trimmed,
				StartOffset: start,
				EndOffset:   end,
				WordCount:   len(strings.Fields(trimmed)),
			})
		}

		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// sentenceCut scans backward from end for a sentence terminator in the
// trailing half of the window, returning the position just past it. Returns
// start when none is found, which keeps the hard cut.
func sentenceCut(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	for i := end - 1; i > floor; i-- {
		if strings.ContainsRune(sentenceEnders, runes[i]) {
			return i + 1
		}
	}
	return start
}
