package ports

import (
	"context"
	"encoding/json"

	"FeedDigest/internal/domain"
)

// FeedSource loads the deduplicated feed corpus from its configured location.
type FeedSource interface {
	Load(ctx context.Context) (domain.FeedCorpus, error)
}

// FeedFetcher downloads the selected feeds, isolating per-feed failures.
type FeedFetcher interface {
	FetchAll(ctx context.Context, feeds []domain.RankedFeed, opts domain.FetchOptions) domain.FetchBatch
}

// Tool is a capability the model may call during tool-augmented generation.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON schema object describing the call arguments.
	Parameters map[string]any
	Invoke     func(ctx context.Context, args json.RawMessage) (string, error)
}

// Generator produces text from a prompt (OpenAI-compatible, Anthropic, stubs).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateWithTools(ctx context.Context, prompt string, tools []Tool) (string, error)
}

// ReportStore persists narrative and structured report artifacts.
type ReportStore interface {
	// Latest returns the newest narrative report name and content, ok=false when none exists.
	Latest(ctx context.Context) (name string, content string, ok bool, err error)
	// Paths returns the first unused artifact locations for stamp.
	Paths(stamp string) (narrativePath, structuredPath string)
	// Save writes both artifacts without replacing existing files.
	Save(ctx context.Context, narrativePath, structuredPath string, narrative, structured []byte) error
}

// RunHistory keeps an audit trail of finished runs.
type RunHistory interface {
	RecordRun(ctx context.Context, run domain.RunRecord) error
	LastRun(ctx context.Context) (domain.RunRecord, bool, error)
}

// Notifier announces a persisted report on a chat channel.
type Notifier interface {
	NotifyReport(ctx context.Context, rep domain.Report, narrativePath string) error
}
