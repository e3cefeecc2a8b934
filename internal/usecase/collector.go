package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"FeedDigest/internal/domain"
	"FeedDigest/internal/observability"
	"FeedDigest/internal/ports"
	"FeedDigest/internal/ranking"
)

// FetchToolName is the tool the model calls to obtain the news items.
const FetchToolName = "fetch_recent_news"

// CollectSettings bound what one collection may fetch.
type CollectSettings struct {
	WorkBackground string
	MaxFeeds       int
	PerFeedItems   int
	RecentDays     int
	SummaryLimit   int
}

type collectArgs struct {
	RecentDays int `json:"recentDays"`
	MaxFeeds   int `json:"maxFeeds"`
}

type collection struct {
	GeneratedAt   time.Time                `json:"generatedAt"`
	RecentDays    int                      `json:"recentDays"`
	SelectedFeeds []domain.RankedFeed      `json:"selectedFeeds"`
	Items         []domain.NewsItem        `json:"items"`
	Observability domain.FeedObservability `json:"observability"`
}

// collector ranks, fetches and records observability for one run. Results
// are memoized per argument set so a regeneration does not refetch.
type collector struct {
	corpus   domain.FeedCorpus
	fetcher  ports.FeedFetcher
	settings CollectSettings
	now      time.Time

	mu     sync.Mutex
	cache  map[collectArgs]string
	latest *domain.FeedObservability
}

func newCollector(corpus domain.FeedCorpus, fetcher ports.FeedFetcher, settings CollectSettings, now time.Time) *collector {
	return &collector{
		corpus:   corpus,
		fetcher:  fetcher,
		settings: settings,
		now:      now,
		cache:    map[collectArgs]string{},
	}
}

func (c *collector) tool() ports.Tool {
	return ports.Tool{
		Name: FetchToolName,
		Description: "Fetch recent entries from the feeds most relevant to the reader's work background. " +
			"Returns JSON with items (title, link, summary, publishedAt) and fetch observability. " +
			"Items titled [feed unavailable] mark feeds that could not be fetched.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"recentDays": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Only include entries from the last N days (max %d).", c.settings.RecentDays),
				},
				"maxFeeds": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of feeds to fetch (max %d).", c.settings.MaxFeeds),
				},
			},
		},
		Invoke: c.invoke,
	}
}

func (c *collector) invoke(ctx context.Context, raw json.RawMessage) (string, error) {
	var args collectArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("decode %s arguments: %w", FetchToolName, err)
		}
	}
	args = c.clamp(args)

	c.mu.Lock()
	defer c.mu.Unlock()

	if out, ok := c.cache[args]; ok {
		return out, nil
	}

	result := c.collect(ctx, args)
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", FetchToolName, err)
	}

	c.cache[args] = string(out)
	obs := result.Observability
	c.latest = &obs
	return string(out), nil
}

func (c *collector) clamp(args collectArgs) collectArgs {
	if args.RecentDays <= 0 || args.RecentDays > c.settings.RecentDays {
		args.RecentDays = c.settings.RecentDays
	}
	if args.MaxFeeds <= 0 || args.MaxFeeds > c.settings.MaxFeeds {
		args.MaxFeeds = c.settings.MaxFeeds
	}
	return args
}

func (c *collector) collect(ctx context.Context, args collectArgs) collection {
	selected := ranking.Rank(c.settings.WorkBackground, c.corpus.Feeds, args.MaxFeeds)

	batch := c.fetcher.FetchAll(ctx, selected, domain.FetchOptions{
		PerFeedItems: c.settings.PerFeedItems,
		Cutoff:       c.now.Add(-time.Duration(args.RecentDays) * 24 * time.Hour),
		SummaryLimit: c.settings.SummaryLimit,
	})

	items := batch.Items
	if items == nil {
		items = []domain.NewsItem{}
	}
	return collection{
		GeneratedAt:   c.now,
		RecentDays:    args.RecentDays,
		SelectedFeeds: selected,
		Items:         items,
		Observability: observability.Record(c.corpus, batch.Selected, batch.Failures),
	}
}

// observability returns the record of the latest collection, nil when the
// model never called the tool.
func (c *collector) observability() *domain.FeedObservability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}
