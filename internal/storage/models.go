// Package storage maps document identifiers to persisted similarity indexes and
// keeps the raw uploads they were built from.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/bull/pdfchat-server/internal/index"
)

// Embedder converts chunk text into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// DocumentStore owns the identifier → index mapping.
// Callers serialize writers per identifier; see package lock.
type DocumentStore interface {
	// CreateOrAppend embeds chunks and adds them to the document's index,
	// creating the index if needed. All chunks are committed or none are.
	CreateOrAppend(ctx context.Context, id string, chunks []string) (*WriteResult, error)
	// Load returns a searchable handle read from storage. ErrNotFound if absent.
	Load(ctx context.Context, id string) (index.Searcher, error)
	// Delete removes the document's index. ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
	// List returns every identifier that has an index. Order is unspecified.
	List(ctx context.Context) ([]string, error)
	// ClearAll removes every staged upload and every index.
	ClearAll(ctx context.Context) (ClearResult, error)
	// StageUpload keeps the raw uploaded bytes under the file's base name.
	StageUpload(ctx context.Context, filename string, data []byte) error
	Health(ctx context.Context) error
	Close() error
}

// WriteResult reports what CreateOrAppend did.
type WriteResult struct {
	Created bool // A new index was built (always true for the replace policy)
	Added   int  // Entries written
	Skipped int  // Chunks dropped as duplicates (dedupe policy)
	Total   int  // Entries in the index afterwards
}

// ClearResult counts what ClearAll removed.
type ClearResult struct {
	DeletedFiles   int
	DeletedIndexes int
}

// Policy decides how an upload for an existing identifier is applied.
type Policy string

const (
	// PolicyAppend grows the existing index; duplicate chunks accumulate.
	PolicyAppend Policy = "append"
	// PolicyDedupe appends only chunks whose text is not already indexed.
	PolicyDedupe Policy = "dedupe"
	// PolicyReplace swaps in an index built from the new chunks alone.
	PolicyReplace Policy = "replace"
)

// ParsePolicy validates a policy name. Empty selects PolicyAppend.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAppend, nil
	case PolicyAppend, PolicyDedupe, PolicyReplace:
		return p, nil
	default:
		return "", fmt.Errorf("unknown upload policy %q (want append, dedupe or replace)", s)
	}
}

// ValidateID rejects identifiers that would escape or hide inside the index area.
func ValidateID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidIdentifier, id)
	case strings.ContainsAny(id, `/\`), strings.ContainsRune(id, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentifier, id)
	}
	return nil
}

// uniqueChunks drops repeated texts within one upload, keeping first occurrences.
func uniqueChunks(chunks []string, seen map[string]struct{}) (kept []string, skipped int) {
	if seen == nil {
		seen = make(map[string]struct{}, len(chunks))
	}
	for _, c := range chunks {
		if _, dup := seen[c]; dup {
			skipped++
			continue
		}
		seen[c] = struct{}{}
		kept = append(kept, c)
	}
	return kept, skipped
}

// embedAll embeds chunks in a single call and checks the result shape.
func embedAll(ctx context.Context, embedder Embedder, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	vectors, err := embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrEmbeddingCount, len(chunks), len(vectors))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return vectors, nil
}
