package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RecursiveChunker splits text into overlapping windows that prefer to end
// on natural boundaries (paragraphs, lines, sentences, clauses, words).
// Output is a pure function of the input and the two sizes.
type RecursiveChunker struct {
	size    int
	overlap int
}

// NewRecursiveChunker validates size and overlap: size > 0 and
// 0 <= overlap < size.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", size, overlap)
	}
	return &RecursiveChunker{size: size, overlap: overlap}, nil
}

// Split is a convenience wrapper around NewRecursiveChunker and Chunk.
func Split(text string, size, overlap int) ([]Chunk, error) {
	c, err := NewRecursiveChunker(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunk(text), nil
}

// Size returns the configured window size.
func (c *RecursiveChunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Chunk splits text. Empty text yields no chunks. The chunks cover
// [0, len(text)) without gaps and every chunk is non-empty.
func (c *RecursiveChunker) Chunk(text string) []Chunk {
	n := len(text)
	if n == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, n/c.size+1)
	start := 0
	for start < n {
		end := start + c.size
		if end >= n {
			chunks = append(chunks, Chunk{Text: text[start:], StartChar: start, EndChar: n})
			break
		}

		chunkEnd := c.breakPoint(text, start, end)
		chunks = append(chunks, Chunk{Text: text[start:chunkEnd], StartChar: start, EndChar: chunkEnd})

		// Step back by the overlap, but always move forward.
		next := runeStart(text, chunkEnd-c.overlap)
		if next <= start {
			next = chunkEnd
		}
		start = next
	}

	return chunks
}

// breakPoint returns the end offset for the chunk starting at start whose
// window ends at end (end < len(text)). The result is always > start.
func (c *RecursiveChunker) breakPoint(text string, start, end int) int {
	searchStart := end - BreakLookback
	if searchStart < start {
		searchStart = start
	}
	window := text[searchStart:end]

	for _, sep := range Separators {
		pos := strings.LastIndex(window, sep)
		if pos >= 0 && searchStart+pos > start {
			return searchStart + pos + len(sep)
		}
	}

	// Hard cut, kept on a rune boundary.
	cut := runeStart(text, end)
	if cut > start {
		return cut
	}
	cut = start + 1
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	return cut
}

// runeStart moves i back to the start of the UTF-8 sequence containing it.
func runeStart(text string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(text) {
		return len(text)
	}
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
