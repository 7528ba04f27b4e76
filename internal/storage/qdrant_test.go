//go:build integration

package storage

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/pdfchat-server/internal/embedding"
)

// setupTestStore creates a store on a throwaway collection.
// Skips test if Qdrant is not running.
func setupTestStore(t *testing.T, policy Policy) *QdrantStore {
	t.Helper()
	emb := embedding.NewHashing(64)
	store, err := NewQdrantStore(context.Background(), QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "pdfchat_test_" + uuid.NewString()[:8],
		Dimension:  emb.Dimensions(),
		UploadDir:  filepath.Join(t.TempDir(), "uploads"),
		Policy:     policy,
	}, emb)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() {
		_ = store.client.DeleteCollection(context.Background(), store.collection)
		store.Close()
	})
	return store
}

func qdrantSearch(t *testing.T, s *QdrantStore, id, query string, k int) []string {
	t.Helper()
	idx, err := s.Load(context.Background(), id)
	require.NoError(t, err)
	q, err := embedding.NewHashing(64).Embed(context.Background(), []string{query})
	require.NoError(t, err)
	hits, err := idx.Search(context.Background(), q[0], k)
	require.NoError(t, err)

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Entry.Text
	}
	return texts
}

func TestQdrant_CreateAppendSearch(t *testing.T) {
	s := setupTestStore(t, PolicyAppend)
	ctx := context.Background()

	res, err := s.CreateOrAppend(ctx, "report", []string{"solar panels", "wind turbines"})
	require.NoError(t, err)
	assert.Equal(t, &WriteResult{Created: true, Added: 2, Total: 2}, res)

	res, err = s.CreateOrAppend(ctx, "report", []string{"tidal energy"})
	require.NoError(t, err)
	assert.Equal(t, &WriteResult{Added: 1, Total: 3}, res)

	assert.Equal(t, []string{"tidal energy"}, qdrantSearch(t, s, "report", "tidal energy", 1))
	assert.Len(t, qdrantSearch(t, s, "report", "anything", 10), 3)
}

func TestQdrant_ReplaceAndDedupe(t *testing.T) {
	s := setupTestStore(t, PolicyReplace)
	ctx := context.Background()

	_, err := s.CreateOrAppend(ctx, "doc", []string{"old one", "old two"})
	require.NoError(t, err)
	_, err = s.CreateOrAppend(ctx, "doc", []string{"new"})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, qdrantSearch(t, s, "doc", "old", 10))

	s.policy = PolicyDedupe
	res, err := s.CreateOrAppend(ctx, "doc", []string{"new", "newer"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Total)
}

func TestQdrant_EmptyIndex(t *testing.T) {
	s := setupTestStore(t, PolicyAppend)

	_, err := s.CreateOrAppend(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Empty(t, qdrantSearch(t, s, "empty", "anything", 3))
}

func TestQdrant_NotFound(t *testing.T) {
	s := setupTestStore(t, PolicyAppend)
	ctx := context.Background()

	_, err := s.Load(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "ghost"), ErrNotFound)
}

func TestQdrant_ListDeleteClear(t *testing.T) {
	s := setupTestStore(t, PolicyAppend)
	ctx := context.Background()

	require.NoError(t, s.StageUpload(ctx, "a.pdf", []byte("a")))
	require.NoError(t, s.StageUpload(ctx, "b.pdf", []byte("b")))
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.CreateOrAppend(ctx, id, []string{"text " + id})
		require.NoError(t, err)
	}

	ids, err := s.List(ctx)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, s.Delete(ctx, "c"))
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	res, err := s.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ClearResult{DeletedFiles: 2, DeletedIndexes: 2}, res)

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestQdrant_DimensionValidation(t *testing.T) {
	s := setupTestStore(t, PolicyAppend)
	s.embedder = embedding.NewHashing(32)

	_, err := s.CreateOrAppend(context.Background(), "doc", []string{"text"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
