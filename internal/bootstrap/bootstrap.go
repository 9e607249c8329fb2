package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/regulatory-assistant/internal/config"
	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
	"github.com/kirillkom/regulatory-assistant/internal/core/session"
	"github.com/kirillkom/regulatory-assistant/internal/core/usecase"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/extractor/document"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/source/httpagent"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/vector/flat"
	"github.com/kirillkom/regulatory-assistant/internal/observability/metrics"
)

type App struct {
	Config config.Config

	RetrievalUC *usecase.RetrievalUseCase
	QueryUC     *usecase.QueryUseCase
	StatusUC    *usecase.StatusUseCase
	Catalog     ports.DocumentCatalog
	Metrics     *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load source catalog: %w", err)
	}

	executor := resilience.NewExecutor(cfg.Resilience)
	httpClient := &http.Client{}

	agents := make([]ports.SourceAgent, 0, len(sources))
	for _, src := range sources {
		agent, err := httpagent.New(httpagent.Settings{
			Name:          src.Name,
			SearchURL:     src.SearchURL,
			LinkPattern:   src.LinkPattern,
			TitleKeywords: src.TitleKeywords,
			MaxCandidates: src.MaxCandidates,
			RateLimitRPS:  cfg.SourceRateLimitRPS,
			UserAgent:     cfg.SourceUserAgent,
		}, httpClient, executor, logger)
		if err != nil {
			return nil, fmt.Errorf("init source agent %s: %w", src.Name, err)
		}
		agents = append(agents, agent)
	}

	storage, err := localfs.New(cfg.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("init document storage: %w", err)
	}

	chunker, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaIntentModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	intents := ollama.NewIntentExtractor(ollamaClient)

	index := flat.Open(embedder, flat.Options{
		IndexPath:     cfg.IndexPath,
		MetadataPath:  cfg.IndexMetadataPath,
		Dimension:     cfg.EmbedDimension,
		MaxEmbedChars: cfg.EmbedMaxChars,
		Logger:        logger,
	})

	closers := make([]func(), 0, 2)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		audit   ports.AuditLog
		catalog ports.DocumentCatalog
		events  ports.EventPublisher
	)
	if cfg.PostgresDSN != "" {
		db, repo, err := openAudit(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		audit, catalog = repo, repo
	}
	if cfg.NATSURL != "" {
		publisher, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		closers = append(closers, publisher.Close)
		events = publisher
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	retrievalMetrics := metrics.NewRetrievalMetrics(service, httpMetrics.Registry())

	retrievalUC := usecase.NewRetrievalUseCase(usecase.RetrievalConfig{
		Agents:           agents,
		Storage:          storage,
		Processor:        usecase.NewDocumentProcessor(document.NewExtractor(storage), chunker),
		Index:            index,
		Audit:            audit,
		Events:           events,
		Observer:         retrievalMetrics,
		MaxDocsPerSource: cfg.MaxDocsPerSource,
		Logger:           logger,
	})

	queryUC := usecase.NewQueryUseCase(usecase.QueryConfig{
		Sessions:         session.NewStore(config.SourceNames(sources)),
		Intents:          intents,
		Retriever:        retrievalUC,
		Index:            index,
		Generator:        generator,
		Aggregator:       usecase.NewAggregator(config.ProvenanceTable(sources), cfg.ComparativePerSource, cfg.ComparativeSnippetChars),
		Audit:            audit,
		TopK:             cfg.RAGTopK,
		ComparativeTopK:  cfg.ComparativeTopK,
		MaxDocsPerSource: cfg.MaxDocsPerSource,
		Searches:         retrievalMetrics,
		Logger:           logger,
	})

	statusUC := usecase.NewStatusUseCase(index, retrievalUC,
		domain.ModelSet{Embedding: embedder.Model(), Chat: generator.DefaultModel()},
		map[string]bool{
			"audit_log":        audit != nil,
			"retrieval_events": events != nil,
		},
	)

	logger.Info("bootstrap_ready",
		"sources", config.SourceNames(sources),
		"index_fragments", index.Stats().TotalFragments,
		"audit", audit != nil,
		"events", events != nil,
	)

	return &App{
		Config: cfg,

		RetrievalUC: retrievalUC,
		QueryUC:     queryUC,
		StatusUC:    statusUC,
		Catalog:     catalog,
		Metrics:     httpMetrics,

		closeFn: closeAll,
	}, nil
}

func openAudit(ctx context.Context, dsn string) (*sql.DB, *postgres.AuditRepository, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewAuditRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, repo, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
