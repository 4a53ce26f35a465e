package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 150
)

// CharChunker splits text into overlapping windows of at most size runes,
// preferring to cut at whitespace so words stay whole.
type CharChunker struct {
	size    int
	overlap int
}

func NewCharChunker(size, overlap int) (*CharChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &CharChunker{size: size, overlap: overlap}, nil
}

func (c *CharChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	chunks := make([]string, 0, n/(c.size-c.overlap)+1)

	start := 0
	for start < n {
		end := start + c.size
		if end > n {
			end = n
		}

		if end < n && !isBoundary(runes[end]) {
			if cut := lastSpace(runes[start:end]); cut > c.size/2 {
				end = start + cut
			}
		}

		if segment := strings.TrimSpace(string(runes[start:end])); segment != "" {
			chunks = append(chunks, segment)
		}

		if end == n {
			break
		}

		next := end - c.overlap
		// a word cut can pull end back inside the overlap region
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// isBoundary reports whether a window may end right before r without
// splitting a word.
func isBoundary(r rune) bool {
	return strings.ContainsRune(" \n.,!?", r)
}

// lastSpace returns the offset of the last whitespace rune in window, or -1.
func lastSpace(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}
	return -1
}
