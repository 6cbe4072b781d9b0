package app

import (
	"fmt"
	"log/slog"

	"aidigest/internal/config"
	"aidigest/internal/infrastructure/llm"
	"aidigest/internal/infrastructure/telegram"
	"aidigest/internal/logging"
	"aidigest/internal/store"
	"aidigest/internal/usecase"
)

// App wires configuration, storage, adapters and pipeline stages.
type App struct {
	Config config.Config
	Logger *slog.Logger
	Store  *store.Store

	Pipeline  *usecase.Pipeline
	Scheduler *usecase.Scheduler
}

// New builds the full dependency graph from configuration.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Logging.Level)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	source := telegram.NewPreviewScraper(cfg.Telegram.PreviewBaseURL, nil, logger)
	publisher := telegram.NewBotPublisher(cfg.Telegram.BotToken, "", nil, logger)
	llmClient := llm.NewClient(cfg.LLM, nil, logger)
	embedClient := llm.NewEmbedClient(llmClient, cfg.LLM.EmbedDim)

	ingester := usecase.NewIngester(source, st.Channels(), st.Posts(), logger)
	summarizer := usecase.NewSummarizer(llmClient, st.Posts(), st.Summaries(), logger)
	embedder := usecase.NewEmbedder(embedClient, st.Posts(), st.Summaries(), cfg.LLM.BatchSize, logger)
	deduper := usecase.NewDeduper(st.Posts(), st.Clusters(), cfg.Dedup.Threshold, cfg.Dedup.TopK, logger)
	builder := usecase.NewDigestBuilder(st.Posts(), st.Clusters(),
		cfg.Digest.TopNGlobal, cfg.Digest.TopKPerChannel,
		cfg.Digest.MinImportanceGlobal, cfg.Digest.MinImportanceChannel, logger)

	pipeline := usecase.NewPipeline(ingester, summarizer, embedder, deduper, builder,
		publisher, st.Windows(), st.Digests(), cfg.Telegram.DigestChannelID, logger)
	scheduler := usecase.NewScheduler(pipeline, cfg.Window.Location(),
		cfg.Window.StartHour, cfg.Scheduler.RunAtHour, cfg.Scheduler.RunAtMinute, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Pipeline:  pipeline,
		Scheduler: scheduler,
	}, nil
}

// Close releases held resources.
func (a *App) Close() error {
	return a.Store.Close()
}
