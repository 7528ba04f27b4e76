// Package app wires configuration into a ready-to-use document service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bull/pdfchat-server/internal/config"
	"github.com/bull/pdfchat-server/internal/embedding"
	"github.com/bull/pdfchat-server/internal/ingest"
	"github.com/bull/pdfchat-server/internal/lock"
	"github.com/bull/pdfchat-server/internal/query"
	"github.com/bull/pdfchat-server/internal/service"
	"github.com/bull/pdfchat-server/internal/storage"
	"github.com/bull/pdfchat-server/internal/synthesis"
)

// App holds the service and the resources it owns.
type App struct {
	Service *service.Service
	Store   storage.DocumentStore

	closers []func() error
}

type dimensionedEmbedder interface {
	query.Embedder
	storage.Embedder
	Dimensions() int
}

// Build constructs embedder, synthesizer, store and locker from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	var client *embedding.Client
	if cfg.NeedsOpenAI() {
		var err error
		client, err = embedding.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
	}

	var embedder dimensionedEmbedder
	switch cfg.EmbeddingProvider {
	case "hash":
		embedder = embedding.NewHashing(cfg.EmbeddingDimensions)
	default:
		embedder = embedding.NewEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingBatchSize).
			WithDimensions(cfg.EmbeddingDimensions)
	}

	var synth query.Synthesizer
	switch cfg.SynthesisProvider {
	case "extractive":
		synth = synthesis.Extractive{}
	default:
		synth = synthesis.NewOpenAI(client.Client(), cfg.ChatModel, cfg.ChatTemperature)
	}

	policy, err := storage.ParsePolicy(cfg.UploadPolicy)
	if err != nil {
		return nil, err
	}

	switch cfg.VectorBackend {
	case "qdrant":
		logger.Info("Connecting to Qdrant", "host", cfg.QdrantHost, "port", cfg.QdrantPort)
		a.Store, err = storage.NewQdrantStore(ctx, storage.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.QdrantCollection,
			Dimension:  embedder.Dimensions(),
			UploadDir:  cfg.UploadDir,
			Policy:     policy,
		}, embedder)
	default:
		a.Store, err = storage.NewLocalStore(storage.LocalConfig{
			UploadDir: cfg.UploadDir,
			IndexDir:  cfg.VectorDBDir,
			Policy:    policy,
		}, embedder)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.VectorBackend, err)
	}
	a.closers = append(a.closers, a.Store.Close)

	var locker lock.Locker
	if cfg.LockBackend == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)

		redisLock := lock.NewRedis(rdb, cfg.LockTTL)
		if err := redisLock.Ping(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		locker = redisLock
	}

	splitter := ingest.NewSplitter(
		ingest.WithChunkSize(cfg.ChunkSize),
		ingest.WithChunkOverlap(cfg.ChunkOverlap),
	)
	a.Service = service.New(
		a.Store,
		ingest.NewPipeline(ingest.PDFExtractor{}, splitter),
		query.NewPipeline(embedder, synth, cfg.TopK),
		locker,
		logger,
	)

	logger.Info("Service ready",
		"vector_backend", cfg.VectorBackend,
		"lock_backend", cfg.LockBackend,
		"embedding_model", embedder.Model(),
		"policy", policy,
	)
	return a, nil
}

// DataDirs lists the directories whose paths are hidden from clients.
func DataDirs(cfg *config.Config) []string {
	return []string{cfg.UploadDir, cfg.VectorDBDir}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
