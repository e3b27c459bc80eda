package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline embedder that hashes lowercase word unigrams and
// bigrams into a fixed number of signed buckets. It is deterministic, needs no
// server, and is used when no embedding endpoint is configured.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of size dims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector size.
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

// Embed returns one L2-normalised vector per text.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	add := func(feature string, weight float32) {
		hs := fnv.New64a()
		_, _ = hs.Write([]byte(feature))
		sum := hs.Sum64()
		bucket := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vec[bucket] += weight
	}

	for i, w := range words {
		add(w, 1)
		if i > 0 {
			add(words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
