package embedding

import (
	"context"
	"crypto/md5"
	"encoding/binary"
)

// HashEmbedder derives a deterministic pseudo-embedding from the md5 digest of the text.
// Identical text always yields the identical vector; it carries no semantic similarity.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder producing vectors of dimension floats
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Dimension() int { return h.dimension }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return HashVector(text, h.dimension), nil
}

// HashVector splits md5(text) into four big-endian uint32 words scaled to [0,1) and repeats them up to dimension
func HashVector(text string, dimension int) []float32 {
	sum := md5.Sum([]byte(text))

	words := make([]float32, 0, len(sum)/4)
	for i := 0; i+4 <= len(sum); i += 4 {
		words = append(words, float32(float64(binary.BigEndian.Uint32(sum[i:i+4]))/(1<<32)))
	}

	vector := make([]float32, dimension)
	for i := range vector {
		vector[i] = words[i%len(words)]
	}
	return vector
}
