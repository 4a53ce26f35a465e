package cli

import (
	"fmt"
	"log/slog"

	"docrag/config"
	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/extractor"
	"docrag/internal/adapter/fs"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/metrics"
	"docrag/internal/adapter/oracle"
	"docrag/internal/adapter/retriever"
	"docrag/internal/adapter/store"
	"docrag/internal/logging"
	"docrag/internal/port"
	"docrag/internal/usecase"
)

// maxSourceBytes caps the size of a single source file.
const maxSourceBytes = 64 << 20

// App wires every component for one index directory.
type App struct {
	Store    port.DocumentStore
	Cache    *cache.MetadataCache
	Access   *metrics.AccessUpdater
	Index    *usecase.IndexUseCase
	Retrieve *usecase.RetrieveUseCase
}

// OpenApp builds the composition root from cfg for the index under dir.
// Close must be called to flush pending access updates and release the
// store.
func OpenApp(cfg *config.Config, dir string, logger *slog.Logger) (*App, error) {
	logger = logging.OrDefault(logger)

	emb, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	st, err := openStore(cfg, dir, emb, logger)
	if err != nil {
		return nil, err
	}

	chk, err := chunker.NewCharChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		st.Close()
		return nil, err
	}

	metadata := cache.NewMetadataCache(st, cfg.Cache.MetadataTTL, cache.WithLogger(logger))

	indexUC := usecase.NewIndexUseCase(
		fs.NewBlobReader(maxSourceBytes),
		extractor.New(),
		chk,
		emb,
		st,
		fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes),
		metadata,
		usecase.IndexOptions{
			EmbedBatchSize:     cfg.Embedding.BatchSize,
			InterDocumentDelay: cfg.Index.InterDocumentDelay,
		},
		logger,
	)

	// queries repeat; cache their embeddings
	queryEmb := embedding.NewCachedEmbedder(emb, cfg.Embedding.QueryCacheSize)
	searcher := retriever.NewVectorSearcher(queryEmb, st, metadata, cfg.Retrieve.Parallelism, logger)

	var reranker usecase.ResultReranker
	if cfg.Rerank.Enabled {
		orc, err := newOracle(cfg.Rerank)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create relevance oracle: %w", err)
		}
		reranker = retriever.NewReranker(orc, retriever.RerankOptions{
			Candidates:       cfg.Rerank.Candidates,
			TopN:             cfg.Rerank.TopN,
			SimilarityWeight: cfg.Rerank.SimilarityWeight,
			OracleWeight:     cfg.Rerank.OracleWeight,
			MinOracleScore:   cfg.Rerank.MinOracleScore,
			Timeout:          cfg.Rerank.Timeout,
		}, logger)
	}

	app := &App{Store: st, Cache: metadata}

	var recorder usecase.AccessRecorder
	if cfg.Metrics.Enabled {
		app.Access = metrics.NewAccessUpdater(st, cfg.Metrics.MaxUpdates, cfg.Metrics.Timeout, logger)
		recorder = app.Access
	}

	app.Index = indexUC
	app.Retrieve = usecase.NewRetrieveUseCase(searcher, reranker, recorder, metadata, usecase.RetrieveOptions{
		TopK:            cfg.Retrieve.TopK,
		Threshold:       cfg.Retrieve.Threshold,
		MaxContextChars: cfg.Retrieve.MaxContextChars,
	}, logger)
	return app, nil
}

func (a *App) Close() error {
	if a.Access != nil {
		a.Access.Wait()
	}
	return a.Store.Close()
}

func openStore(cfg *config.Config, dir string, emb port.Embedder, logger *slog.Logger) (port.DocumentStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memstore.NewMemoryStore(), nil
	case "bolt":
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	path := cfg.Store.Path
	if path == "" {
		if err := config.EnsureRAGDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create .rag directory: %w", err)
		}
		path = config.IndexDBPath(dir)
	}

	st, err := store.NewBoltStore(path, cfg.Store.WriteBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	migration, err := st.CheckMigration(emb.ModelName(), emb.Dimension())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to check migration: %w", err)
	}
	if migration.Incompatible {
		st.Close()
		return nil, fmt.Errorf("index at %s cannot be used: %s", path, migration.Reason)
	}
	if migration.NeedsMigration {
		logger.Info("initialising index schema", "reason", migration.Reason, "path", path)
		if err := st.Migrate(emb.ModelName()); err != nil {
			st.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return st, nil
}

func newEmbedder(c config.EmbeddingConfig) (port.Embedder, error) {
	opts := embedding.Options{
		Dimension:         c.Dimension,
		BatchSize:         c.BatchSize,
		RequestsPerSecond: c.RequestsPerSecond,
		Timeout:           c.Timeout,
	}

	switch c.Provider {
	case "openai":
		if c.BaseURL != "" {
			return embedding.NewOpenAICompatibleEmbedder(c.APIKeyEnv, c.Model, c.BaseURL, opts)
		}
		return embedding.NewOpenAIEmbedder(c.APIKeyEnv, c.Model, opts)
	case "deepseek":
		return embedding.NewDeepSeekEmbedder(c.APIKeyEnv, c.Model, opts)
	case "jina":
		return embedding.NewJinaEmbedder(c.APIKeyEnv, c.Model, opts)
	case "ollama":
		return embedding.NewOllamaEmbedder(c.Model, c.BaseURL, opts)
	case "mock":
		return embedding.NewMockEmbedder(c.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", c.Provider)
	}
}

func newOracle(c config.RerankConfig) (port.RelevanceOracle, error) {
	switch c.Provider {
	case "llm":
		return oracle.NewLLMOracle(c.APIKeyEnv, c.Model, c.BaseURL, c.Timeout)
	case "overlap":
		return oracle.NewOverlapOracle(), nil
	default:
		return nil, fmt.Errorf("unsupported rerank provider: %s", c.Provider)
	}
}
