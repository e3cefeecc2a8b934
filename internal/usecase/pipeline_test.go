package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedDigest/internal/domain"
	"FeedDigest/internal/infrastructure/feed"
	"FeedDigest/internal/infrastructure/source"
	"FeedDigest/internal/infrastructure/storage"
	"FeedDigest/internal/ports"
	"FeedDigest/internal/report"
)

func validReport(extra string) string {
	return strings.Join([]string{
		report.HeadingShipped, "- shipped " + extra,
		report.HeadingRelevant, "- relevant " + extra,
		report.HeadingToTest, "- test " + extra,
		report.HeadingIgnore, "- ignore " + extra,
	}, "\n")
}

// stubGenerator calls every offered tool once per report draft and replies from a script.
type stubGenerator struct {
	mu          sync.Mutex
	drafts      []string
	trend       string
	toolOutputs []string
	prompts     []string
	skipTools   bool
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.trend, nil
}

func (s *stubGenerator) GenerateWithTools(ctx context.Context, prompt string, tools []ports.Tool) (string, error) {
	if !s.skipTools {
		for _, tool := range tools {
			out, err := tool.Invoke(ctx, json.RawMessage(`{}`))
			if err != nil {
				return "", err
			}
			s.mu.Lock()
			s.toolOutputs = append(s.toolOutputs, out)
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	draft := s.drafts[0]
	if len(s.drafts) > 1 {
		s.drafts = s.drafts[1:]
	}
	return draft, nil
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
}

func (c *countingFetcher) FetchAll(_ context.Context, feeds []domain.RankedFeed, _ domain.FetchOptions) domain.FetchBatch {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	batch := domain.FetchBatch{Selected: len(feeds)}
	for _, f := range feeds {
		batch.Items = append(batch.Items, domain.NewsItem{FeedTitle: f.Title, FeedURL: f.FeedURL, Title: "item of " + f.Title})
	}
	return batch
}

type memoryHistory struct {
	runs []domain.RunRecord
}

func (m *memoryHistory) RecordRun(_ context.Context, run domain.RunRecord) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryHistory) LastRun(context.Context) (domain.RunRecord, bool, error) {
	if len(m.runs) == 0 {
		return domain.RunRecord{}, false, nil
	}
	return m.runs[len(m.runs)-1], true, nil
}

type recordingNotifier struct {
	messages []string
	err      error
}

func (r *recordingNotifier) NotifyReport(_ context.Context, rep domain.Report, narrativePath string) error {
	r.messages = append(r.messages, rep.Stamp+" "+narrativePath)
	return r.err
}

func writeOPML(t *testing.T, dir, name string, feeds map[string]string) {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<opml version="2.0"><body><outline text="folder">`)
	for title, url := range feeds {
		fmt.Fprintf(&b, `<outline text=%q xmlUrl=%q/>`, title, url)
	}
	b.WriteString(`</outline></body></opml>`)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}

func settings() CollectSettings {
	return CollectSettings{
		WorkBackground: "golang kubernetes",
		MaxFeeds:       10,
		PerFeedItems:   5,
		RecentDays:     7,
		SummaryLimit:   700,
	}
}

func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := current
		current = current.Add(time.Hour)
		return t
	}
}

func TestRunEndToEndWithTimeout(t *testing.T) {
	t.Parallel()

	now := time.Now()
	mux := http.NewServeMux()
	rss := fmt.Sprintf(`<rss version="2.0"><channel><title>x</title>
	  <item><title>Go 1.26</title><link>https://go.dev/1.26</link><pubDate>%s</pubDate><description>release</description></item>
	</channel></rss>`, now.Add(-2*time.Hour).Format(time.RFC1123Z))
	mux.HandleFunc("/go", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(rss)) })
	mux.HandleFunc("/k8s", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(rss)) })
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	root := t.TempDir()
	sourceDir := filepath.Join(root, "feeds")
	reportsDir := filepath.Join(root, "reports")
	writeOPML(t, sourceDir, "subs.opml", map[string]string{
		"Go Blog":     server.URL + "/go",
		"Kubernetes":  server.URL + "/k8s",
		"Slow Source": server.URL + "/slow",
	})

	gen := &stubGenerator{drafts: []string{validReport("a")}, trend: "- unused"}
	history := &memoryHistory{}
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	pipeline := NewPipeline(PipelineDeps{
		Source:    source.NewOPMLSource(sourceDir, nil),
		Fetcher:   feed.NewFetcher(server.Client(), 200*time.Millisecond, nil),
		Generator: gen,
		Store:     storage.NewFileStore(reportsDir),
		History:   history,
		Notifier:  notifier,
		Settings:  settings(),
		Now:       func() time.Time { return now },
	})

	res, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	obs := res.Report.Observability
	require.NotNil(t, obs)
	assert.Equal(t, 1, obs.OPMLFileCount)
	assert.Equal(t, 3, obs.TotalFeedEntries)
	assert.Equal(t, 3, obs.SelectedFeedCount)
	assert.Equal(t, 1, obs.FailedFeedCount)
	assert.InDelta(t, 0.333, obs.FailedRate, 0.001)
	assert.Equal(t, []string{"Slow Source (" + server.URL + "/slow)"}, obs.TimeoutFeeds)

	assert.False(t, res.Report.FormatValidationRetried)
	assert.True(t, res.Report.FormatValidationPassed)
	assert.Equal(t, report.FirstRunTrend, res.Report.Trends)

	narrative, err := os.ReadFile(res.NarrativePath)
	require.NoError(t, err)
	assert.Contains(t, string(narrative), "失败率: 33.33%")
	assert.Contains(t, string(narrative), report.FirstRunTrend)
	assert.Equal(t, report.Stamp(now)+".md", filepath.Base(res.NarrativePath))

	raw, err := os.ReadFile(res.StructuredPath)
	require.NoError(t, err)
	var structured report.StructuredReport
	require.NoError(t, json.Unmarshal(raw, &structured))
	assert.Nil(t, structured.ComparedWith)
	assert.Equal(t, []string{"shipped a"}, structured.Sections.Shipped)
	assert.Equal(t, []string{report.FirstRunTrend}, structured.Trends)
	require.NotNil(t, structured.Observability)
	assert.Equal(t, 1, structured.Observability.FailedFeedCount)

	require.Len(t, gen.toolOutputs, 1)
	assert.Contains(t, gen.toolOutputs[0], domain.UnavailableTitle)
	assert.Contains(t, gen.toolOutputs[0], "Go 1.26")

	require.Len(t, history.runs, 1)
	assert.Equal(t, 3, history.runs[0].SelectedFeedCount)
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, report.Stamp(now)+" "+res.NarrativePath, notifier.messages[0])
}

func TestRunWithoutOPMLFilesIsFatal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	reportsDir := filepath.Join(root, "reports")
	gen := &stubGenerator{drafts: []string{validReport("a")}}

	pipeline := NewPipeline(PipelineDeps{
		Source:    source.NewOPMLSource(filepath.Join(root, "empty"), nil),
		Fetcher:   &countingFetcher{},
		Generator: gen,
		Store:     storage.NewFileStore(reportsDir),
		Settings:  settings(),
	})

	_, err := pipeline.Run(context.Background())
	var noSource *domain.NoFeedSourceError
	require.True(t, errors.As(err, &noSource))
	assert.Empty(t, gen.prompts)

	entries, _ := os.ReadDir(reportsDir)
	assert.Empty(t, entries)
}

func TestRunRetriesAndPersistsDegradedReport(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sourceDir := filepath.Join(root, "feeds")
	writeOPML(t, sourceDir, "a.opml", map[string]string{"Go": "https://go.example.com/rss"})

	fetcher := &countingFetcher{}
	gen := &stubGenerator{drafts: []string{"no headings here"}}
	pipeline := NewPipeline(PipelineDeps{
		Source:    source.NewOPMLSource(sourceDir, nil),
		Fetcher:   fetcher,
		Generator: gen,
		Store:     storage.NewFileStore(filepath.Join(root, "reports")),
		Settings:  settings(),
	})

	res, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Report.FormatValidationRetried)
	assert.False(t, res.Report.FormatValidationPassed)
	assert.Equal(t, 1, fetcher.calls, "regeneration reuses the first fetch")
	require.Len(t, gen.toolOutputs, 2)
	assert.Equal(t, gen.toolOutputs[0], gen.toolOutputs[1])

	raw, err := os.ReadFile(res.StructuredPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"formatValidationRetried": true`)

	narrative, err := os.ReadFile(res.NarrativePath)
	require.NoError(t, err)
	assert.Contains(t, string(narrative), "- 格式校验重试: 是")
}

func TestRunComparesWithPreviousReport(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sourceDir := filepath.Join(root, "feeds")
	writeOPML(t, sourceDir, "a.opml", map[string]string{"Go": "https://go.example.com/rss"})

	gen := &stubGenerator{drafts: []string{validReport("first"), validReport("second")}, trend: "- agents: CI impact"}
	store := storage.NewFileStore(filepath.Join(root, "reports"))
	pipeline := NewPipeline(PipelineDeps{
		Source:    source.NewOPMLSource(sourceDir, nil),
		Fetcher:   &countingFetcher{},
		Generator: gen,
		Store:     store,
		Settings:  settings(),
		Now:       fixedClock(time.Date(2026, 10, 17, 9, 0, 0, 0, time.Local)),
	})

	first, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.FirstRunTrend, first.Report.Trends)

	second, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(first.NarrativePath), second.Report.ComparedWith)
	assert.Equal(t, "- agents: CI impact", second.Report.Trends)

	last := gen.prompts[len(gen.prompts)-1]
	assert.Contains(t, last, "shipped first")
	assert.Contains(t, last, "shipped second")

	raw, err := os.ReadFile(second.StructuredPath)
	require.NoError(t, err)
	var structured report.StructuredReport
	require.NoError(t, json.Unmarshal(raw, &structured))
	require.NotNil(t, structured.ComparedWith)
	assert.Equal(t, []string{"agents: CI impact"}, structured.Trends)
}

func TestRunWithoutToolCallHasNoObservability(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sourceDir := filepath.Join(root, "feeds")
	writeOPML(t, sourceDir, "a.opml", map[string]string{"Go": "https://go.example.com/rss"})

	pipeline := NewPipeline(PipelineDeps{
		Source:    source.NewOPMLSource(sourceDir, nil),
		Fetcher:   &countingFetcher{},
		Generator: &stubGenerator{drafts: []string{validReport("x")}, skipTools: true},
		Store:     storage.NewFileStore(filepath.Join(root, "reports")),
		Settings:  settings(),
	})

	res, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Report.Observability)

	raw, err := os.ReadFile(res.StructuredPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"observability": null`)
}
