package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"FeedDigest/internal/domain"
	"FeedDigest/internal/observability"
	"FeedDigest/internal/ports"
	"FeedDigest/internal/report"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.FeedSource
	Fetcher   ports.FeedFetcher
	Generator ports.Generator
	Store     ports.ReportStore
	History   ports.RunHistory
	Notifier  ports.Notifier
	Settings  CollectSettings
	Logger    *slog.Logger
	Now       func() time.Time
}

// Pipeline implements one report run.
type Pipeline struct {
	source    ports.FeedSource
	fetcher   ports.FeedFetcher
	generator ports.Generator
	store     ports.ReportStore
	history   ports.RunHistory
	notifier  ports.Notifier
	settings  CollectSettings
	logger    *slog.Logger
	now       func() time.Time
}

// RunResult describes the persisted outcome of a run.
type RunResult struct {
	Report         domain.Report
	NarrativePath  string
	StructuredPath string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		source:    deps.Source,
		fetcher:   deps.Fetcher,
		generator: deps.Generator,
		store:     deps.Store,
		history:   deps.History,
		notifier:  deps.Notifier,
		settings:  deps.Settings,
		logger:    logger,
		now:       now,
	}
}

// Run loads feeds, lets the model triage them through the fetch tool,
// enforces the report contract, compares with the previous report and
// persists both artifacts. Only a missing feed corpus, generation transport
// failures and persistence failures are returned.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	if p.source == nil || p.fetcher == nil || p.generator == nil || p.store == nil {
		return RunResult{}, fmt.Errorf("pipeline is not fully configured")
	}

	corpus, err := p.source.Load(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("load feed sources: %w", err)
	}

	now := p.now()
	stamp := report.Stamp(now)
	p.logger.Info("run started", "stamp", stamp, "feeds", len(corpus.Feeds), "opml_files", corpus.OPMLFileCount)

	previousName, previous, hasPrevious, err := p.store.Latest(ctx)
	if err != nil {
		p.logger.Warn("previous report unavailable", "error", err)
		hasPrevious = false
	}
	if !hasPrevious {
		previousName, previous = "", ""
	}

	coll := newCollector(corpus, p.fetcher, p.settings, now)
	tools := []ports.Tool{coll.tool()}
	contract := report.NewContractGenerator(func(ctx context.Context, prompt string) (string, error) {
		return p.generator.GenerateWithTools(ctx, prompt, tools)
	}, p.logger)

	prompt := report.BuildPrompt(p.settings.WorkBackground, report.PromptOptions{
		ToolName:   FetchToolName,
		RecentDays: p.settings.RecentDays,
		MaxFeeds:   p.settings.MaxFeeds,
	})
	generated, err := contract.Generate(ctx, prompt)
	if err != nil {
		return RunResult{}, err
	}

	obs := coll.observability()
	if obs == nil {
		p.logger.Warn("model did not request feed data", "tool", FetchToolName)
	}

	trends := report.NewTrendComparator(p.generator, p.logger).
		Compare(ctx, previous, generated.Text, p.settings.WorkBackground)

	rep := domain.Report{
		RunID:                   uuid.NewString(),
		Stamp:                   stamp,
		Body:                    generated.Text,
		GeneratedAt:             now,
		WorkBackground:          p.settings.WorkBackground,
		SourceDir:               corpus.SourceDir,
		ComparedWith:            previousName,
		FormatValidationRetried: generated.Retried,
		FormatValidationPassed:  generated.Valid,
		Trends:                  trends,
		Observability:           obs,
	}

	narrative := report.RenderNarrative(rep)
	narrativePath, structuredPath := p.store.Paths(stamp)
	structured, err := report.BuildStructured(rep, narrative, narrativePath, structuredPath).Marshal()
	if err != nil {
		return RunResult{}, err
	}

	if err := p.store.Save(ctx, narrativePath, structuredPath, []byte(narrative), structured); err != nil {
		return RunResult{}, fmt.Errorf("persist report: %w", err)
	}

	p.logger.Info("report written",
		"narrative", narrativePath,
		"structured", structuredPath,
		"retried", rep.FormatValidationRetried,
		"valid", rep.FormatValidationPassed,
	)

	p.recordHistory(ctx, rep, narrativePath, structuredPath)
	p.notify(ctx, rep, narrativePath)

	return RunResult{Report: rep, NarrativePath: narrativePath, StructuredPath: structuredPath}, nil
}

func (p *Pipeline) recordHistory(ctx context.Context, rep domain.Report, narrativePath, structuredPath string) {
	if p.history == nil {
		return
	}

	record := domain.RunRecord{
		RunID:                   rep.RunID,
		Stamp:                   rep.Stamp,
		GeneratedAt:             rep.GeneratedAt,
		SourceDir:               rep.SourceDir,
		FormatValidationRetried: rep.FormatValidationRetried,
		FormatValidationPassed:  rep.FormatValidationPassed,
		NarrativePath:           narrativePath,
		StructuredPath:          structuredPath,
	}
	if rep.Observability != nil {
		record.SelectedFeedCount = rep.Observability.SelectedFeedCount
		record.FailedFeedCount = rep.Observability.FailedFeedCount
		record.FailedRate = rep.Observability.FailedRate
	}

	if last, ok, err := p.history.LastRun(ctx); err != nil {
		p.logger.Warn("read run history", "error", err)
	} else if ok {
		p.logger.Info("failure rate vs previous run",
			"previous", observability.FailurePercent(last.FailedRate),
			"current", observability.FailurePercent(record.FailedRate),
		)
	}

	if err := p.history.RecordRun(ctx, record); err != nil {
		p.logger.Warn("record run history", "error", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, rep domain.Report, narrativePath string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyReport(ctx, rep, narrativePath); err != nil {
		p.logger.Warn("publish notice", "error", err)
	}
}
