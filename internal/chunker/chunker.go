// Package chunker splits normalized text into overlapping windows.
package chunker

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// break candidates, strongest first
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("? "),
	[]rune("! "),
	[]rune(" "),
}

// Split cuts text into pieces of at most chunkSize runes. Consecutive pieces
// share about overlap runes. Cuts land on paragraph, line, sentence or word
// boundaries when one exists in the back half of the window, otherwise the
// window is cut hard.
func Split(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < n {
		end := min(start+chunkSize, n)
		if end < n {
			// never cut before start+overlap so the next window still moves forward
			lo := start + max(chunkSize/2, overlap+1)
			if lo < end {
				end = breakPoint(runes, end, lo)
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end >= n {
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

// breakPoint returns the position just after the strongest separator found in runes[lo:end]
func breakPoint(runes []rune, end, lo int) int {
	for _, sep := range separators {
		for i := end - len(sep); i >= lo; i-- {
			if hasSeparatorAt(runes, i, sep) {
				return i + len(sep)
			}
		}
	}
	return end
}

func hasSeparatorAt(runes []rune, i int, sep []rune) bool {
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}

// Chunker carries the configured window and strategy
type Chunker struct {
	size      int
	overlap   int
	recursive bool
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithRecursiveSplitter delegates splitting to langchaingo's recursive character splitter.
func WithRecursiveSplitter() Option {
	return func(c *Chunker) {
		c.recursive = true
	}
}

// New creates a Chunker. Non-positive sizes fall back to defaults and an
// overlap that does not fit the window is reduced to a quarter of it.
func New(size, overlap int, opts ...Option) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}

	c := &Chunker{size: size, overlap: overlap}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForStrategy builds a Chunker from the configured splitter name
func ForStrategy(name string, size, overlap int) *Chunker {
	if name == "recursive" {
		return New(size, overlap, WithRecursiveSplitter())
	}
	return New(size, overlap)
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split applies the configured strategy to text
func (c *Chunker) Split(text string) []string {
	if !c.recursive {
		return Split(text, c.size, c.overlap)
	}

	if strings.TrimSpace(text) == "" {
		return nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.size),
		textsplitter.WithChunkOverlap(c.overlap),
	)
	pieces, err := splitter.SplitText(text)
	if err != nil {
		return Split(text, c.size, c.overlap)
	}

	out := pieces[:0]
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
