package storage

import (
	"errors"

	"github.com/bull/pdfchat-server/internal/index"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrInvalidIdentifier = errors.New("invalid document identifier")
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrEmbeddingCount    = errors.New("embedder returned wrong number of vectors")
	ErrDimensionMismatch = index.ErrDimensionMismatch
)
