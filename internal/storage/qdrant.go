package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/pdfchat-server/internal/index"
)

const (
	// DefaultCollection is the single Qdrant collection holding every document.
	DefaultCollection = "pdfchat"

	vectorName = "content"
	batchSize  = 100
)

// parentNamespace derives stable parent point ids from document identifiers.
var parentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pdfchat://documents"))

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  int    // Vector size of the embedder
	UploadDir  string // Raw uploads stay on the local filesystem
	Policy     Policy
}

// QdrantStore keeps every document's chunks in one Qdrant collection. Each
// document has a vectorless parent point marking that its index exists, plus
// one point per chunk, all tagged with document_id.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	staging    *Staging
	embedder   Embedder
	policy     Policy
}

var _ DocumentStore = (*QdrantStore)(nil)

// NewQdrantStore connects to Qdrant and ensures the collection exists.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, embedder Embedder) (*QdrantStore, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant store needs a positive vector dimension, got %d", cfg.Dimension)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAppend
	}

	staging, err := NewStaging(cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	// Create Qdrant client using gRPC
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		staging:    staging,
		embedder:   embedder,
		policy:     cfg.Policy,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	if err := s.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with a named cosine vector and
// keyword payload indexes. Idempotent.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	// Named vectors allow vectorless parent points in the same collection
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for _, field := range []string{"type", "document_id", "upload_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

func parentID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(parentNamespace, []byte(id)).String())
}

func chunkFilter(id string, extra ...*qdrant.Condition) *qdrant.Filter {
	must := append([]*qdrant.Condition{
		qdrant.NewMatch("type", "chunk"),
		qdrant.NewMatch("document_id", id),
	}, extra...)
	return &qdrant.Filter{Must: must}
}

func (s *QdrantStore) exists(ctx context.Context, id string) (bool, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{parentID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return false, fmt.Errorf("failed to get document: %w", err)
	}
	return len(points) > 0 && points[0].Payload["type"].GetStringValue() == "parent", nil
}

// CreateOrAppend embeds every chunk before writing. Chunk points carry the id of
// the upload that wrote them; a failed upsert deletes that upload's points again.
// Qdrant has no multi-point transactions, so a crash between the two can leave
// an upload partially visible.
func (s *QdrantStore) CreateOrAppend(ctx context.Context, id string, chunks []string) (*WriteResult, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	existing, err := s.exists(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &WriteResult{Created: !existing || s.policy == PolicyReplace}
	if s.policy == PolicyDedupe {
		var seen map[string]struct{}
		if existing {
			if seen, err = s.texts(ctx, id); err != nil {
				return nil, err
			}
		}
		chunks, result.Skipped = uniqueChunks(chunks, seen)
	}

	vectors, err := embedAll(ctx, s.embedder, chunks)
	if err != nil {
		return nil, err
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), s.dimension)
		}
	}

	next := 0
	if existing && s.policy != PolicyReplace {
		n, err := s.count(ctx, chunkFilter(id))
		if err != nil {
			return nil, err
		}
		next = int(n)
	}

	uploadID := uuid.NewString()
	points := make([]*qdrant.PointStruct, len(chunks))
	for i, text := range chunks {
		points[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorName: qdrant.NewVector(vectors[i]...),
			}),
			Payload: qdrant.NewValueMap(map[string]any{
				"type":        "chunk",
				"document_id": id,
				"upload_id":   uploadID,
				"chunk_index": next + i,
				"text":        text,
			}),
		}
	}

	if err := s.upsert(ctx, points); err != nil {
		s.compensate(id, uploadID)
		return nil, err
	}
	if err := s.upsertParent(ctx, id); err != nil {
		s.compensate(id, uploadID)
		return nil, err
	}

	if existing && s.policy == PolicyReplace {
		// Drop every chunk not written by this upload
		err := s.deletePoints(ctx, &qdrant.Filter{
			Must:    chunkFilter(id).Must,
			MustNot: []*qdrant.Condition{qdrant.NewMatch("upload_id", uploadID)},
		})
		if err != nil {
			return nil, fmt.Errorf("removing replaced chunks: %w", err)
		}
	}

	result.Added = len(points)
	total, err := s.count(ctx, chunkFilter(id))
	if err != nil {
		return nil, err
	}
	result.Total = int(total)
	return result, nil
}

// compensate removes the points of a failed upload. It runs on a fresh
// context because the request context may be the reason the upload failed.
func (s *QdrantStore) compensate(id, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.deletePoints(ctx, chunkFilter(id, qdrant.NewMatch("upload_id", uploadID)))
	if err != nil {
		slog.Error("failed to remove partial upload",
			"document_id", id,
			"upload_id", uploadID,
			"error", err)
	}
}

func (s *QdrantStore) upsertParent(ctx context.Context, id string) error {
	point := &qdrant.PointStruct{
		Id:      parentID(id),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":        "parent",
			"document_id": id,
			"model":       s.embedder.Model(),
			"updated_at":  time.Now().UTC().Format(time.RFC3339),
		}),
	}
	return s.upsert(ctx, []*qdrant.PointStruct{point})
}

// upsert writes points in batches of 100.
func (s *QdrantStore) upsert(ctx context.Context, points []*qdrant.PointStruct) error {
	for i := 0; i < len(points); i += batchSize {
		end := min(i+batchSize, len(points))
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points[i:end],
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (s *QdrantStore) deletePoints(ctx context.Context, filter *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (s *QdrantStore) count(ctx context.Context, filter *qdrant.Filter) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

// scroll visits every point matching filter, one page at a time.
func (s *QdrantStore) scroll(ctx context.Context, filter *qdrant.Filter, payload *qdrant.WithPayloadSelector, fn func(*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	seen := make(map[string]struct{})

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(batchSize)),
			Offset:         offset,
			WithPayload:    payload,
		})
		if err != nil {
			return fmt.Errorf("failed to scroll points: %w", err)
		}

		// The offset point is returned again at the start of the next page
		for _, p := range results {
			key := p.Id.GetUuid()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			fn(p)
		}

		if len(results) < batchSize {
			return nil
		}
		offset = results[len(results)-1].Id
	}
}

func (s *QdrantStore) texts(ctx context.Context, id string) (map[string]struct{}, error) {
	texts := make(map[string]struct{})
	err := s.scroll(ctx, chunkFilter(id), qdrant.NewWithPayloadInclude("text"), func(p *qdrant.RetrievedPoint) {
		texts[p.Payload["text"].GetStringValue()] = struct{}{}
	})
	return texts, err
}

// Load returns a handle that searches the document's chunks server-side.
func (s *QdrantStore) Load(ctx context.Context, id string) (index.Searcher, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	ok, err := s.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &qdrantSearcher{store: s, id: id}, nil
}

type qdrantSearcher struct {
	store *QdrantStore
	id    string
}

func (q *qdrantSearcher) Search(ctx context.Context, query []float32, k int) ([]index.Hit, error) {
	if k <= 0 {
		return []index.Hit{}, nil
	}
	if len(query) != q.store.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), q.store.dimension)
	}

	using := vectorName
	results, err := q.store.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.store.collection,
		Query:          qdrant.NewQuery(query...),
		Using:          &using,
		Filter:         chunkFilter(q.id),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]index.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, index.Hit{
			Entry: index.Entry{
				ID:       r.Id.GetUuid(),
				Position: int(r.Payload["chunk_index"].GetIntegerValue()),
				Text:     r.Payload["text"].GetStringValue(),
			},
			Score: float64(r.Score),
		})
	}
	return hits, nil
}

// Delete removes the parent point and every chunk of the document.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	ok, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.deletePoints(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("document_id", id)},
	})
}

// List returns the identifier of every parent point.
func (s *QdrantStore) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("type", "parent")}}
	err := s.scroll(ctx, filter, qdrant.NewWithPayloadInclude("document_id"), func(p *qdrant.RetrievedPoint) {
		if id := p.Payload["document_id"].GetStringValue(); id != "" {
			ids = append(ids, id)
		}
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ClearAll empties the upload directory and recreates the collection.
func (s *QdrantStore) ClearAll(ctx context.Context) (ClearResult, error) {
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
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return result, fmt.Errorf("failed to delete collection: %w", err)
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return result, err
	}
	result.DeletedIndexes = len(ids)
	return result, nil
}

// StageUpload writes the raw file into the upload directory.
func (s *QdrantStore) StageUpload(ctx context.Context, filename string, data []byte) error {
	return s.staging.Stage(ctx, filename, data)
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
