package app

import (
	"context"
	"fmt"
	"log/slog"

	"FeedDigest/internal/config"
	"FeedDigest/internal/infrastructure/feed"
	"FeedDigest/internal/infrastructure/llm"
	"FeedDigest/internal/infrastructure/source"
	"FeedDigest/internal/infrastructure/storage"
	"FeedDigest/internal/infrastructure/telegram"
	"FeedDigest/internal/logging"
	"FeedDigest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	pipeline *usecase.Pipeline
	closers  []func() error
	logger   *slog.Logger
}

// New builds a runnable application instance. The configuration must already be validated.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	generator, err := llm.New(cfg.LLM, baseLogger.With("component", "llm"))
	if err != nil {
		return nil, err
	}

	application := &Application{cfg: cfg, logger: baseLogger}

	deps := usecase.PipelineDeps{
		Source:    source.NewOPMLSource(cfg.Feeds.SourceDir, baseLogger.With("component", "source")),
		Fetcher:   feed.NewFetcher(nil, cfg.Feeds.FetchTimeout, baseLogger.With("component", "fetcher")),
		Generator: generator,
		Store:     storage.NewFileStore(cfg.Reports.Dir),
		Settings: usecase.CollectSettings{
			WorkBackground: cfg.WorkBackground,
			MaxFeeds:       cfg.Feeds.MaxFeeds,
			PerFeedItems:   cfg.Feeds.PerFeedItems,
			RecentDays:     cfg.Feeds.RecentDays,
			SummaryLimit:   cfg.Feeds.SummaryLimit,
		},
		Logger: baseLogger.With("component", "pipeline"),
	}

	if cfg.History.Path != "" {
		history, err := storage.OpenSQLiteHistory(ctx, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		deps.History = history
		application.closers = append(application.closers, history.Close)
	}

	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		deps.Notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	application.pipeline = usecase.NewPipeline(deps)
	return application, nil
}

// Run performs a single report run and releases held resources.
func (a *Application) Run(ctx context.Context) (usecase.RunResult, error) {
	defer a.close()
	return a.pipeline.Run(ctx)
}

func (a *Application) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("release resource", "error", err)
		}
	}
	a.closers = nil
}
