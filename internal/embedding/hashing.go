package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// DefaultHashingDimensions is the vector size used by Hashing when none is given.
const DefaultHashingDimensions = 256

// Hashing is a deterministic, offline embedder. Each lower-cased word is hashed
// into one of a fixed number of buckets and the resulting counts are L2-normalized,
// so texts sharing vocabulary score high under cosine similarity.
type Hashing struct {
	dimensions int
}

// NewHashing creates a hashing embedder. A non-positive dimension selects
// DefaultHashingDimensions.
func NewHashing(dimensions int) *Hashing {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &Hashing{dimensions: dimensions}
}

// Model returns a name that records the bucket count.
func (h *Hashing) Model() string {
	return "hashing-" + strconv.Itoa(h.dimensions)
}

// Dimensions returns the vector size.
func (h *Hashing) Dimensions() int {
	return h.dimensions
}

// Embed returns one vector per text. It only fails when ctx is done.
func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	v := make([]float32, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		hf := fnv.New32a()
		hf.Write([]byte(w))
		v[hf.Sum32()%uint32(h.dimensions)]++
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}
