// Package chunk splits page text into overlapping fixed-size windows.
package chunk

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain/document"
)

// Defaults match the embedding model's sweet spot for statement tables.
const (
	DefaultSize    = 500
	DefaultOverlap = 100
)

// Chunker slides a window of Size characters over each page, advancing by Size-Overlap.
// Sizes count runes, not bytes.
type Chunker struct {
	size    int
	overlap int
}

// Option configures the Chunker.
type Option func(*Chunker)

// WithSize sets the window size in characters.
func WithSize(size int) Option {
	return func(c *Chunker) { c.size = size }
}

// WithOverlap sets the number of characters shared by adjacent windows.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) { c.overlap = overlap }
}

// New creates a Chunker. Requires size > overlap >= 0.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{size: DefaultSize, overlap: DefaultOverlap}
	for _, o := range opts {
		o(c)
	}
	if c.size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", c.size)
	}
	if c.overlap < 0 || c.overlap >= c.size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.size, c.overlap)
	}
	return c, nil
}

// Size returns the window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the window overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits every page independently. Windows are trimmed; a window that trims to
// nothing is dropped and does not consume a chunk index. Output is deterministic.
func (c *Chunker) Chunk(pages []document.Page) []document.Chunk {
	var out []document.Chunk
	for _, p := range pages {
		out = append(out, c.chunkPage(p)...)
	}
	return out
}

func (c *Chunker) chunkPage(p document.Page) []document.Chunk {
	text := []rune(p.Text)
	n := len(text)
	step := c.size - c.overlap

	var chunks []document.Chunk
	idx := 0
	for start := 0; start < n; start += step {
		end := min(start+c.size, n)

		if s := strings.TrimSpace(string(text[start:end])); s != "" {
			chunks = append(chunks, document.Chunk{Page: p.Number, Index: idx, Text: s})
			idx++
		}
		if end == n {
			break
		}
	}
	return chunks
}
