package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bull/pdfchat-server/internal/index"
)

// LocalConfig locates the two data areas of a LocalStore.
type LocalConfig struct {
	UploadDir string // Raw uploads
	IndexDir  string // One subdirectory per document identifier
	Policy    Policy
}

// LocalStore keeps each document's index as an SQLite file under IndexDir.
type LocalStore struct {
	indexDir string
	staging  *Staging
	embedder Embedder
	policy   Policy
}

var _ DocumentStore = (*LocalStore)(nil)

// NewLocalStore creates both data directories if they are missing.
func NewLocalStore(cfg LocalConfig, embedder Embedder) (*LocalStore, error) {
	staging, err := NewStaging(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAppend
	}
	return &LocalStore{
		indexDir: cfg.IndexDir,
		staging:  staging,
		embedder: embedder,
		policy:   cfg.Policy,
	}, nil
}

func (s *LocalStore) dir(id string) string {
	return filepath.Join(s.indexDir, id)
}

func (s *LocalStore) exists(id string) bool {
	info, err := os.Stat(filepath.Join(s.dir(id), index.FileName))
	return err == nil && info.Mode().IsRegular()
}

// CreateOrAppend embeds every chunk before anything is written.
func (s *LocalStore) CreateOrAppend(ctx context.Context, id string, chunks []string) (*WriteResult, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	existing := s.exists(id)
	if s.policy == PolicyReplace || !existing {
		return s.build(ctx, id, chunks, existing)
	}

	f, err := index.Open(s.dir(id))
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", id, err)
	}
	defer f.Close()

	if model := f.Meta().Model; model != "" && model != s.embedder.Model() {
		slog.Warn("appending with a different embedding model",
			"document_id", id,
			"index_model", model,
			"embedder_model", s.embedder.Model())
	}

	result := &WriteResult{}
	if s.policy == PolicyDedupe {
		seen, err := f.Texts(ctx)
		if err != nil {
			return nil, err
		}
		chunks, result.Skipped = uniqueChunks(chunks, seen)
	}

	entries, err := s.entries(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := f.Append(ctx, entries); err != nil {
		return nil, fmt.Errorf("appending to index %s: %w", id, err)
	}

	result.Added = len(entries)
	if result.Total, err = f.Len(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// build writes a fresh index in a hidden directory and renames it into place,
// swapping out any index already there.
func (s *LocalStore) build(ctx context.Context, id string, chunks []string, existing bool) (*WriteResult, error) {
	result := &WriteResult{Created: true}
	if s.policy == PolicyDedupe {
		chunks, result.Skipped = uniqueChunks(chunks, nil)
	}

	entries, err := s.entries(ctx, chunks)
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp(s.indexDir, ".build-")
	if err != nil {
		return nil, fmt.Errorf("creating build directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	meta := index.Meta{Model: s.embedder.Model()}
	if len(entries) > 0 {
		meta.Dimension = len(entries[0].Vector)
	}
	f, err := index.Create(tmp, meta)
	if err != nil {
		return nil, err
	}
	if err := f.Append(ctx, entries); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing index %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing index %s: %w", id, err)
	}

	target := s.dir(id)
	if existing {
		// Move the old index aside so the rename below cannot fail on a non-empty target.
		old := tmp + ".old"
		if err := os.Rename(target, old); err != nil {
			return nil, fmt.Errorf("replacing index %s: %w", id, err)
		}
		defer os.RemoveAll(old)
	} else if err := os.RemoveAll(target); err != nil {
		// Leftover directory without an index file.
		return nil, fmt.Errorf("clearing %s: %w", id, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return nil, fmt.Errorf("installing index %s: %w", id, err)
	}

	result.Added = len(entries)
	result.Total = len(entries)
	return result, nil
}

func (s *LocalStore) entries(ctx context.Context, chunks []string) ([]index.Entry, error) {
	vectors, err := embedAll(ctx, s.embedder, chunks)
	if err != nil {
		return nil, err
	}
	entries := make([]index.Entry, len(chunks))
	for i, text := range chunks {
		entries[i] = index.Entry{
			ID:     uuid.NewString(),
			Text:   text,
			Vector: vectors[i],
		}
	}
	return entries, nil
}

// Load reads the index from disk on every call.
func (s *LocalStore) Load(ctx context.Context, id string) (index.Searcher, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	f, err := index.Open(s.dir(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.Load(ctx)
}

// Delete removes the document's index subtree.
func (s *LocalStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	dir := s.dir(id)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting index %s: %w", id, err)
	}
	return nil
}

// List enumerates index subdirectories, skipping hidden build directories.
func (s *LocalStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.indexDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading index directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ClearAll empties the upload directory of files and removes every index.
func (s *LocalStore) ClearAll(ctx context.Context) (ClearResult, error) {
	var result ClearResult

	files, err := s.staging.Clear(ctx)
	result.DeletedFiles = files
	if err != nil {
		return result, err
	}

	ids, err := s.List(ctx)
	if err != nil {
		return result, err
	}
	for _, id := range ids {
		if err := os.RemoveAll(s.dir(id)); err != nil {
			return result, fmt.Errorf("deleting index %s: %w", id, err)
		}
		result.DeletedIndexes++
	}

	// Leftovers of interrupted builds are removed but not counted.
	entries, err := os.ReadDir(s.indexDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return result, fmt.Errorf("reading index directory: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			if err := os.RemoveAll(filepath.Join(s.indexDir, e.Name())); err != nil {
				return result, fmt.Errorf("deleting %s: %w", e.Name(), err)
			}
		}
	}
	return result, nil
}

// StageUpload writes the raw file into the upload directory.
func (s *LocalStore) StageUpload(ctx context.Context, filename string, data []byte) error {
	return s.staging.Stage(ctx, filename, data)
}

// Health checks that both data directories exist.
func (s *LocalStore) Health(_ context.Context) error {
	if err := s.staging.Health(); err != nil {
		return fmt.Errorf("upload directory: %w", err)
	}
	if err := checkDir(s.indexDir); err != nil {
		return fmt.Errorf("index directory: %w", err)
	}
	return nil
}

// Close is a no-op; index files are opened per operation.
func (s *LocalStore) Close() error {
	return nil
}
