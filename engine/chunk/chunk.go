// Package chunk splits normalized document text into overlapping
// fixed-size windows for retrieval.
package chunk

import (
	"strings"

	"github.com/aiist007/24life/engine/domain"
)

const (
	// DefaultSize is the maximum number of runes per chunk.
	DefaultSize = 800
	// DefaultOverlap is the number of runes shared by consecutive chunks.
	DefaultOverlap = 200
)

// Chunker cuts text into rune windows of Size with Overlap runes repeated
// between neighbours. The zero value uses the defaults.
type Chunker struct {
	Size    int
	Overlap int
}

// New returns a Chunker, falling back to the defaults when size and
// overlap do not describe a forward-moving window.
func New(size, overlap int) Chunker {
	if size <= 0 || overlap < 0 || overlap >= size {
		return Chunker{Size: DefaultSize, Overlap: DefaultOverlap}
	}
	return Chunker{Size: size, Overlap: overlap}
}

func (c Chunker) params() (int, int) {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return DefaultSize, DefaultOverlap
	}
	return c.Size, c.Overlap
}

// Normalize collapses every whitespace run to a single space and trims.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split returns the windows of the normalized text. Empty input yields nil.
func (c Chunker) Split(text string) []string {
	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil
	}
	size, overlap := c.params()
	step := size - overlap

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// Chunks splits text and tags each window with the document title and path.
func (c Chunker) Chunks(title, path, text string) []domain.Chunk {
	parts := c.Split(text)
	if len(parts) == 0 {
		return nil
	}
	chunks := make([]domain.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.Chunk{Title: title, Content: p, SourcePath: path}
	}
	return chunks
}
