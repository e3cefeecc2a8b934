package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"FeedDigest/internal/domain"
	"FeedDigest/internal/ports"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultSummaryLimit = 700
	userAgent           = "FeedDigest/1.0"
)

var timeoutMarkers = []string{"timeout", "timed out", "deadline exceeded"}

// Fetcher downloads and normalizes RSS/Atom feeds.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; timeout bounds each feed independently and defaults to 10s.
func NewFetcher(client *http.Client, timeout time.Duration, log *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{client: client, timeout: timeout, logger: log}
}

// FetchAll fetches every feed concurrently. A failing feed contributes one
// placeholder item and one FeedFailure; it never fails the batch.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []domain.RankedFeed, opts domain.FetchOptions) domain.FetchBatch {
	type outcome struct {
		items   []domain.NewsItem
		failure *domain.FeedFailure
	}
	outcomes := make([]outcome, len(feeds))

	var g errgroup.Group
	for i, rf := range feeds {
		i, rf := i, rf
		g.Go(func() error {
			items, err := f.Fetch(ctx, rf.FeedDescriptor, opts)
			if err != nil {
				failure := domain.FeedFailure{
					FeedTitle: rf.Title,
					FeedURL:   rf.FeedURL,
					Reason:    err.Error(),
					ErrorType: Classify(err),
				}
				f.warn("feed fetch failed", "feed", rf.FeedURL, "type", failure.ErrorType, "error", err)
				outcomes[i] = outcome{
					items:   []domain.NewsItem{placeholder(rf.FeedDescriptor, failure.Reason, opts.SummaryLimit)},
					failure: &failure,
				}
				return nil
			}
			outcomes[i] = outcome{items: items}
			return nil
		})
	}
	_ = g.Wait()

	batch := domain.FetchBatch{Selected: len(feeds)}
	for _, o := range outcomes {
		batch.Items = append(batch.Items, o.items...)
		if o.failure != nil {
			batch.Failures = append(batch.Failures, *o.failure)
		}
	}
	sort.SliceStable(batch.Items, func(i, j int) bool {
		return batch.Items[i].SortKey() > batch.Items[j].SortKey()
	})

	f.debug("fetch batch done", "selected", batch.Selected, "items", len(batch.Items), "failed", len(batch.Failures))
	return batch
}

// Fetch downloads one feed within the fetcher timeout and returns its recent entries.
func (f *Fetcher) Fetch(ctx context.Context, desc domain.FeedDescriptor, opts domain.FetchOptions) ([]domain.NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := parsed.Items
	if opts.PerFeedItems > 0 && len(entries) > opts.PerFeedItems {
		entries = entries[:opts.PerFeedItems]
	}

	items := make([]domain.NewsItem, 0, len(entries))
	for _, entry := range entries {
		item := normalize(desc, entry, opts.SummaryLimit)
		if published, ok := item.Published(); ok && !opts.Cutoff.IsZero() && published.Before(opts.Cutoff) {
			continue
		}
		items = append(items, item)
	}

	f.debug("feed fetched", "feed", desc.FeedURL, "entries", len(parsed.Items), "kept", len(items))
	return items, nil
}

// Classify reports whether a fetch error was a timeout.
func Classify(err error) domain.ErrorType {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorTypeTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range timeoutMarkers {
		if strings.Contains(msg, marker) {
			return domain.ErrorTypeTimeout
		}
	}
	return domain.ErrorTypeOther
}

func normalize(desc domain.FeedDescriptor, entry *gofeed.Item, limit int) domain.NewsItem {
	item := domain.NewsItem{
		FeedTitle:   desc.Title,
		FeedURL:     desc.FeedURL,
		Title:       strings.TrimSpace(entry.Title),
		Link:        extractLink(entry),
		PublishedAt: entry.Published,
		Summary:     Truncate(summaryOf(entry), limit),
	}
	if item.PublishedAt == "" {
		item.PublishedAt = entry.Updated
	}

	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}
	if published != nil {
		ms := published.UnixMilli()
		item.PublishedTimestamp = &ms
	}

	return item
}

func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

// summaryOf prefers full content, then the description, as plain text.
func summaryOf(entry *gofeed.Item) string {
	if text := plainText(entry.Content); text != "" {
		return text
	}
	return plainText(entry.Description)
}

func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Truncate cuts s to at most limit characters; limit <= 0 uses the 700 default.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		limit = defaultSummaryLimit
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func placeholder(desc domain.FeedDescriptor, reason string, limit int) domain.NewsItem {
	link := desc.SiteURL
	if link == "" {
		link = desc.FeedURL
	}
	return domain.NewsItem{
		FeedTitle: desc.Title,
		FeedURL:   desc.FeedURL,
		Title:     domain.UnavailableTitle,
		Link:      link,
		Summary:   Truncate("fetch failed: "+reason, limit),
	}
}

func (f *Fetcher) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func (f *Fetcher) warn(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
