package domain

import "time"

// UnavailableTitle marks the placeholder item standing in for a failed feed.
const UnavailableTitle = "[feed unavailable]"

// FeedDescriptor is one subscription discovered in an OPML outline. FeedURL is its identity.
type FeedDescriptor struct {
	Title   string `json:"title"`
	FeedURL string `json:"feedUrl"`
	SiteURL string `json:"siteUrl,omitempty"`
}

// Label renders the feed the way reports list it.
func (f FeedDescriptor) Label() string {
	if f.Title == "" || f.Title == f.FeedURL {
		return f.FeedURL
	}
	return f.Title + " (" + f.FeedURL + ")"
}

// RankedFeed is a descriptor with its per-run relevance score.
type RankedFeed struct {
	FeedDescriptor
	Score int `json:"score"`
}

// FeedCorpus is the deduplicated feed set of one source directory.
type FeedCorpus struct {
	SourceDir        string
	Feeds            []FeedDescriptor
	OPMLFileCount    int
	TotalFeedEntries int
}

// NewsItem is a normalized feed entry handed to the model.
type NewsItem struct {
	FeedTitle          string `json:"feedTitle"`
	FeedURL            string `json:"feedUrl"`
	Title              string `json:"title"`
	Link               string `json:"link"`
	PublishedAt        string `json:"publishedAt"`
	PublishedTimestamp *int64 `json:"publishedTimestamp,omitempty"`
	Summary            string `json:"summary"`
}

// SortKey returns the timestamp used for recency ordering; undated items sort as oldest.
func (n NewsItem) SortKey() int64 {
	if n.PublishedTimestamp == nil {
		return 0
	}
	return *n.PublishedTimestamp
}

// Published returns the parsed publication time when one is known.
func (n NewsItem) Published() (time.Time, bool) {
	if n.PublishedTimestamp == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*n.PublishedTimestamp), true
}

// ErrorType classifies why a feed fetch failed.
type ErrorType string

const (
	ErrorTypeTimeout ErrorType = "timeout"
	ErrorTypeOther   ErrorType = "other"
)

// FeedFailure records one failed feed fetch.
type FeedFailure struct {
	FeedTitle string    `json:"feedTitle"`
	FeedURL   string    `json:"feedUrl"`
	Reason    string    `json:"reason"`
	ErrorType ErrorType `json:"errorType"`
}

// FailureSample is the diagnostic excerpt kept in observability output.
type FailureSample struct {
	FeedTitle string `json:"feedTitle"`
	Reason    string `json:"reason"`
}

// FeedObservability aggregates fetch health for one run.
type FeedObservability struct {
	SourceDir         string          `json:"sourceDir"`
	OPMLFileCount     int             `json:"opmlFileCount"`
	TotalFeedEntries  int             `json:"totalFeedEntries"`
	SelectedFeedCount int             `json:"selectedFeedCount"`
	FailedFeedCount   int             `json:"failedFeedCount"`
	FailedRate        float64         `json:"failedRate"`
	TimeoutFeeds      []string        `json:"timeoutFeeds"`
	FailureSamples    []FailureSample `json:"failureSamples"`
}

// Report is the validated triage text plus the metadata of the run that produced it.
type Report struct {
	RunID                   string
	Stamp                   string
	Body                    string
	GeneratedAt             time.Time
	WorkBackground          string
	SourceDir               string
	ComparedWith            string
	FormatValidationRetried bool
	FormatValidationPassed  bool
	Trends                  string
	Observability           *FeedObservability
}

// RunRecord is the audit row written to the run history ledger.
type RunRecord struct {
	RunID                   string
	Stamp                   string
	GeneratedAt             time.Time
	SourceDir               string
	SelectedFeedCount       int
	FailedFeedCount         int
	FailedRate              float64
	FormatValidationRetried bool
	FormatValidationPassed  bool
	NarrativePath           string
	StructuredPath          string
}

// FetchOptions bound a single fetch pass.
type FetchOptions struct {
	PerFeedItems int
	Cutoff       time.Time
	SummaryLimit int
}

// FetchBatch is the merged outcome of fetching every selected feed.
type FetchBatch struct {
	Items    []NewsItem
	Failures []FeedFailure
	Selected int
}
