// Package app initializes and holds the long-lived services, acting as a
// dependency injection container. It is built once at startup and handed
// to the commands that need it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/archive"
	"github.com/dia-upm/muia-rag/internal/clock/system"
	"github.com/dia-upm/muia-rag/internal/config"
	"github.com/dia-upm/muia-rag/internal/corpus"
	"github.com/dia-upm/muia-rag/internal/crawler"
	"github.com/dia-upm/muia-rag/internal/decoder"
	"github.com/dia-upm/muia-rag/internal/email"
	"github.com/dia-upm/muia-rag/internal/encode"
	"github.com/dia-upm/muia-rag/internal/index"
	"github.com/dia-upm/muia-rag/internal/logging"
	"github.com/dia-upm/muia-rag/internal/pipeline"
	"github.com/dia-upm/muia-rag/internal/refine"
	"github.com/dia-upm/muia-rag/internal/tokenizer"
)

// App holds the shared services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *corpus.Store
	index    index.Store
	archiver archive.Provider
	decoder  decoder.Client
	embedder encode.Embedder
	upserter *encode.Upserter
	runner   *pipeline.Runner
}

// NewApp builds every service from the loaded configuration, failing
// fast on any unknown provider or unreachable dependency.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Logging.Development); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := logging.L
	logger.Info("initializing services")

	embModel, err := encode.Get(cfg.Encode.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	decTok := tokenizer.Load(cfg.Decoder.ModelPath)
	encTok := tokenizer.Load(embModel.ModelName)

	store := corpus.NewStore(cfg.Pipeline.DataDir, cfg.Pipeline.FileStart, logger)

	var idx index.Store
	switch cfg.Index.Provider {
	case "qdrant":
		logger.Info("using qdrant index",
			zap.String("host", cfg.Index.QdrantHost),
			zap.Int("port", cfg.Index.QdrantPort))
		idx, err = index.NewQdrantStore(cfg.Index.QdrantHost, cfg.Index.QdrantPort, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing index: %w", err)
		}
	case "memory":
		logger.Info("using in-memory index, points are lost on exit")
		idx = index.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown index provider: %s", cfg.Index.Provider)
	}

	var archiver archive.Provider
	switch cfg.Archive.Provider {
	case "gcs":
		if cfg.Archive.GCSBucket == "" {
			return nil, fmt.Errorf("archive provider is 'gcs' but archive.gcs_bucket is not set")
		}
		logger.Info("archiving snapshots to GCS", zap.String("bucket", cfg.Archive.GCSBucket))
		archiver, err = archive.NewGCSProvider(ctx, cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("initializing archive: %w", err)
		}
	case "noop":
		logger.Info("snapshot archival disabled")
		archiver = archive.NoOpProvider{}
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}

	var dec decoder.Client
	switch cfg.Decoder.Provider {
	case "http":
		dec = decoder.NewHTTPClient(cfg.Decoder.URL, cfg.Decoder.ModelPath, cfg.Decoder.Timeout, logger)
	case "fake":
		logger.Info("using fake decoder, responses are echoed prompt excerpts")
		dec = decoder.FakeClient{}
	default:
		return nil, fmt.Errorf("unknown decoder provider: %s", cfg.Decoder.Provider)
	}

	var embedder encode.Embedder
	switch cfg.Encoder.Provider {
	case "http":
		embedder = encode.NewHTTPEmbedder(cfg.Encoder.CPUURL, cfg.Encoder.GPUURL)
	case "fake":
		logger.Info("using fake embedder, vectors are content hashes")
		embedder = encode.FakeEmbedder{}
	default:
		return nil, fmt.Errorf("unknown encoder provider: %s", cfg.Encoder.Provider)
	}

	fetcher, err := crawler.NewReaderFetcher(cfg.Crawler.ReaderBaseURL,
		cfg.Crawler.FetchTimeout, cfg.Crawler.MinDelay, cfg.Crawler.RandomDelay, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing fetcher: %w", err)
	}
	engine := crawler.NewEngine(fetcher, crawler.NewScopeFilter(cfg.Crawler), cfg.Crawler, logger)

	clk := system.New()
	refiner, err := refine.New(refine.Options{
		Client:            dec,
		DecoderTokenizer:  decTok,
		EncoderTokenizer:  encTok,
		ChunkOverlap:      cfg.Pipeline.ChunkOverlap,
		RequestsPerSecond: cfg.Pipeline.DecoderRPS,
		PageConcurrency:   cfg.Pipeline.PageConcurrency,
		Clock:             clk,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing refiner: %w", err)
	}

	upserter := encode.NewUpserter(store, embedder, idx, logger)
	runner := pipeline.NewRunner(pipeline.Options{
		Crawler:       engine,
		Refiner:       refiner,
		PostProcessor: encode.NewPostProcessor(store, decTok, encTok, logger),
		Dispatcher: encode.NewDispatcher(upserter, idx, encode.BatchSizes{
			Default: cfg.Encode.BatchSize,
			ByName:  cfg.Encode.BatchSizes,
		}, cfg.Encode.Workers, logger),
		Archiver:         archive.NewArchiver(archiver, store, logger),
		Store:            store,
		DecoderTokenizer: decTok,
		EncoderTokenizer: encTok,
		EmbeddingBudget:  encode.SmallestInputBudget(),
		ChunkOverlap:     cfg.Pipeline.ChunkOverlap,
		Clock:            clk,
		Reuse: corpus.ReusePolicy{
			Enabled:       cfg.Pipeline.Reuse.Enabled,
			AllowPastYear: cfg.Pipeline.Reuse.AllowPastYear,
			Timestamp:     cfg.Pipeline.Reuse.Timestamp,
		},
		Logger: logger,
	})

	logger.Info("services initialized")
	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		index:    idx,
		archiver: archiver,
		decoder:  dec,
		embedder: embedder,
		upserter: upserter,
		runner:   runner,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the corpus snapshot store.
func (a *App) Store() *corpus.Store {
	return a.store
}

// Index returns the vector store.
func (a *App) Index() index.Store {
	return a.index
}

// Runner returns the pipeline runner.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// Upserter returns the encode upserter, which also serves retrieval.
func (a *App) Upserter() *encode.Upserter {
	return a.upserter
}

// NewEmailAgent connects to the mailbox and builds the reply agent. The
// returned close function logs out of IMAP.
func (a *App) NewEmailAgent() (*email.Agent, func(), error) {
	cfg := a.cfg.Email
	if cfg.Password == "" {
		return nil, nil, fmt.Errorf("email password not set, export MUIA_EMAIL_PASSWORD")
	}

	mailbox, err := email.NewIMAPReader(cfg.IMAPServer, cfg.IMAPPort, cfg.IMAPAddress, cfg.Password, a.logger)
	if err != nil {
		return nil, nil, err
	}
	sender := email.NewSMTPSender(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPAddress, cfg.Password)

	agent, err := email.NewAgent(email.AgentOptions{
		Mailbox:   mailbox,
		Sender:    sender,
		Client:    a.decoder,
		Retriever: a.upserter,
		Config:    cfg,
		Variant:   corpus.LMQAndAValidChunks,
		Encoder:   a.cfg.Encode.EmbeddingModel,
		Logger:    a.logger,
	})
	if err != nil {
		if closeErr := mailbox.Close(); closeErr != nil {
			a.logger.Warn("closing mailbox after failed agent init", zap.Error(closeErr))
		}
		return nil, nil, err
	}

	closeFn := func() {
		if err := mailbox.Close(); err != nil {
			a.logger.Warn("closing mailbox", zap.Error(err))
		}
	}
	return agent, closeFn, nil
}

// Close shuts the shared services down.
func (a *App) Close() {
	a.logger.Info("shutting down services")
	if err := a.index.Close(); err != nil {
		a.logger.Warn("closing index", zap.Error(err))
	}
	if closer, ok := a.archiver.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("closing archive", zap.Error(err))
		}
	}
	// Sync fails on stderr in some environments; nothing to do about it.
	_ = a.logger.Sync()
}
