// Package index provides the similarity index behind each document: an in-memory
// flat cosine index and its SQLite file representation.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Entry is one (vector, chunk text) pair held by an index.
type Entry struct {
	ID       string    // UUID
	Position int       // Insertion order within the index (0, 1, 2...)
	Text     string    // Source chunk text
	Vector   []float32 // Embedding of Text
}

// Hit is a search result with its cosine similarity to the query.
type Hit struct {
	Entry Entry
	Score float64
}

// Searcher answers nearest-neighbour queries for one document.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
}

// Flat is a brute-force cosine similarity index.
// It is not safe for concurrent mutation.
type Flat struct {
	dimension int
	entries   []Entry
	norms     []float64
}

var _ Searcher = (*Flat)(nil)

// NewFlat creates an empty index. A dimension of 0 is fixed by the first added vector.
func NewFlat(dimension int) *Flat {
	return &Flat{dimension: dimension}
}

// Dimension returns the vector size, or 0 if nothing has been added to a dimensionless index.
func (f *Flat) Dimension() int {
	return f.dimension
}

// Len returns the number of entries.
func (f *Flat) Len() int {
	return len(f.entries)
}

// Entries returns the entries in insertion order.
func (f *Flat) Entries() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Add appends entries. Either all entries are added or none.
func (f *Flat) Add(entries ...Entry) error {
	dim := f.dimension
	for i, e := range entries {
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) == 0 || len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), dim)
		}
	}

	f.dimension = dim
	for _, e := range entries {
		f.entries = append(f.entries, e)
		f.norms = append(f.norms, norm(e.Vector))
	}
	return nil
}

// Search returns up to k entries ordered by descending cosine similarity.
// Ties keep insertion order.
func (f *Flat) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(f.entries) == 0 {
		return []Hit{}, nil
	}
	if len(query) != f.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), f.dimension)
	}

	qn := norm(query)
	hits := make([]Hit, len(f.entries))
	for i, e := range f.entries {
		hits[i] = Hit{Entry: e, Score: cosine(query, e.Vector, qn, f.norms[i])}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
