package service

import (
	"errors"

	"github.com/bull/pdfchat-server/internal/ingest"
	"github.com/bull/pdfchat-server/internal/storage"
)

var (
	ErrUnsupportedFile = errors.New("only PDF files are supported")
	ErrInvalidInput    = errors.New("invalid input")

	// Re-exported so callers only need this package to classify failures.
	ErrNotFound          = storage.ErrNotFound
	ErrInvalidIdentifier = storage.ErrInvalidIdentifier
	ErrNoExtractableText = ingest.ErrNoExtractableText
	ErrInvalidPDF        = ingest.ErrInvalidPDF
)
