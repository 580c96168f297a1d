package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashingDimensions = 256

// Hashing is a deterministic bag-of-words embedder that needs no model server.
// Tokens are hashed into buckets; the last dimension is a constant bias so no
// vector is ever zero.
type Hashing struct {
	dims int
}

func NewHashing(dims int) *Hashing {
	if dims < 2 {
		dims = defaultHashingDimensions
	}
	return &Hashing{dims: dims}
}

func (h *Hashing) Dimensions() int { return h.dims }

func (h *Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	buckets := uint32(h.dims - 1)

	for _, tok := range tokenize(text) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		vec[f.Sum32()%buckets]++
	}
	vec[h.dims-1] = 0.5

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
