// Package service implements the document operations exposed by the HTTP,
// MCP and CLI surfaces.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bull/pdfchat-server/internal/ingest"
	"github.com/bull/pdfchat-server/internal/lock"
	"github.com/bull/pdfchat-server/internal/query"
	"github.com/bull/pdfchat-server/internal/storage"
)

const (
	MessageUploaded = "Document uploaded and processed successfully"
	MessageCleared  = "All uploaded data cleared successfully"
)

// UploadResult describes a processed upload.
type UploadResult struct {
	DocumentID string
	Message    string
	Pages      int
	Chunks     int // Chunks produced from this upload
	Added      int // Entries written to the index
	Total      int // Entries in the index afterwards
}

// AskResult is an answer to one question.
type AskResult struct {
	Answer     string
	DocumentID string
}

// ClearResult reports what ClearAll removed.
type ClearResult struct {
	Message        string
	DeletedFiles   int
	DeletedIndexes int
}

// Service orchestrates ingestion, storage and querying.
type Service struct {
	store  storage.DocumentStore
	ingest *ingest.Pipeline
	query  *query.Pipeline
	locker lock.Locker
	logger *slog.Logger
}

// New creates a service from its components. A nil locker uses an in-process
// keyed locker and a nil logger uses slog.Default().
func New(
	store storage.DocumentStore,
	ingestion *ingest.Pipeline,
	querying *query.Pipeline,
	locker lock.Locker,
	logger *slog.Logger,
) *Service {
	if locker == nil {
		locker = lock.NewKeyed()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		ingest: ingestion,
		query:  querying,
		locker: locker,
		logger: logger,
	}
}

// DocumentID derives the identifier for an uploaded file name: its base name
// without the .pdf extension.
func DocumentID(filename string) (string, error) {
	base := baseName(filename)
	if !strings.EqualFold(path.Ext(base), ".pdf") {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, filename)
	}
	id := base[:len(base)-len(".pdf")]
	if err := storage.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

// baseName strips any client-side directory, including Windows-style paths.
func baseName(filename string) string {
	return path.Base(strings.ReplaceAll(filename, `\`, "/"))
}

// Upload stages the raw file, converts it to chunks and adds them to the
// document's index. A failure before the index write leaves the index untouched.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	start := time.Now()

	id, err := DocumentID(filename)
	if err != nil {
		return nil, err
	}

	if err := s.store.StageUpload(ctx, baseName(filename), data); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	doc, err := s.ingest.Process(ctx, data)
	if err != nil {
		s.logger.Warn("Failed to process document", "document_id", id, "error", err)
		return nil, err
	}
	s.logger.Debug("Chunked document", "document_id", id, "pages", doc.Pages, "chunks", len(doc.Chunks))

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", id, err)
	}
	defer unlock()

	written, err := s.store.CreateOrAppend(ctx, id, doc.Chunks)
	if err != nil {
		s.logger.Warn("Failed to index document", "document_id", id, "error", err)
		return nil, err
	}

	s.logger.Info("Document indexed",
		"document_id", id,
		"pages", doc.Pages,
		"created", written.Created,
		"added", written.Added,
		"skipped", written.Skipped,
		"total", written.Total,
		"duration", time.Since(start),
	)

	return &UploadResult{
		DocumentID: id,
		Message:    MessageUploaded,
		Pages:      doc.Pages,
		Chunks:     len(doc.Chunks),
		Added:      written.Added,
		Total:      written.Total,
	}, nil
}

// Ask answers question from the document's index.
func (s *Service) Ask(ctx context.Context, id, question string) (*AskResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: document_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if err := storage.ValidateID(id); err != nil {
		return nil, err
	}

	unlock, err := s.locker.RLock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", id, err)
	}
	defer unlock()

	idx, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	answer, err := s.query.Ask(ctx, idx, question)
	if err != nil {
		s.logger.Warn("Failed to answer question", "document_id", id, "error", err)
		return nil, err
	}

	s.logger.Info("Question answered", "document_id", id, "answer_chars", len(answer))
	return &AskResult{Answer: answer, DocumentID: id}, nil
}

// List returns every document identifier, sorted.
func (s *Service) List(ctx context.Context) ([]string, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the document's index. The staged raw file is kept.
func (s *Service) Delete(ctx context.Context, id string) (string, error) {
	if err := storage.ValidateID(id); err != nil {
		return "", err
	}

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", id, err)
	}
	defer unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		return "", err
	}

	s.logger.Info("Document deleted", "document_id", id)
	return fmt.Sprintf("Document '%s' deleted successfully", id), nil
}

// ClearAll removes every staged upload and every index. Each listed document
// is locked, in sorted order, for the duration of the clear.
func (s *Service) ClearAll(ctx context.Context) (*ClearResult, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	unlocks := make([]lock.Unlock, 0, len(ids))
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()
	for _, id := range ids {
		unlock, err := s.locker.Lock(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", id, err)
		}
		unlocks = append(unlocks, unlock)
	}

	res, err := s.store.ClearAll(ctx)
	if err != nil {
		s.logger.Warn("Failed to clear data",
			"deleted_files", res.DeletedFiles,
			"deleted_indexes", res.DeletedIndexes,
			"error", err)
		return nil, err
	}

	s.logger.Info("All data cleared", "deleted_files", res.DeletedFiles, "deleted_indexes", res.DeletedIndexes)
	return &ClearResult{
		Message:        MessageCleared,
		DeletedFiles:   res.DeletedFiles,
		DeletedIndexes: res.DeletedIndexes,
	}, nil
}

// Health reports storage health.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}
