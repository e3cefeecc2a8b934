package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedDigest/internal/domain"
)

func validBody() string {
	return strings.Join([]string{
		HeadingShipped,
		"- Go 1.26 released https://go.dev/blog",
		"2. Kubernetes 1.35 beta",
		"",
		HeadingRelevant,
		"1) Go 1.26: new GC affects our services",
		HeadingToTest,
		"* run benchmarks on the new GC",
		"some prose that is not an item",
		HeadingIgnore,
		"- everything else",
	}, "\n")
}

type scriptedGenerator struct {
	replies []string
	prompts []string
	err     error
}

func (s *scriptedGenerator) generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

func (s *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return s.generate(ctx, prompt)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.True(t, Validate(validBody()).Valid())

	missing := Validate(strings.Replace(validBody(), HeadingToTest, "## what to test", 1))
	assert.False(t, missing.Valid())
	assert.Equal(t, []string{HeadingToTest}, missing.Missing)
}

func TestGenerateAcceptsFirstValidDraft(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{validBody()}}
	res, err := NewContractGenerator(gen.generate, nil).Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.False(t, res.Retried)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, gen.prompts, 1)
}

func TestGenerateRetriesOnce(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"no headings at all", validBody()}}
	res, err := NewContractGenerator(gen.generate, nil).Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.True(t, res.Retried)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, gen.prompts, 2)
	assert.True(t, strings.HasPrefix(gen.prompts[1], "prompt"))
	assert.Contains(t, gen.prompts[1], "上一次输出没有遵守标题格式要求")
}

func TestGenerateAcceptsInvalidAfterRetry(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"still wrong"}}
	res, err := NewContractGenerator(gen.generate, nil).Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.True(t, res.Retried)
	assert.Equal(t, "still wrong", res.Text)
	assert.Len(t, res.Missing, 4)
	assert.Len(t, gen.prompts, 2)
}

func TestGeneratePropagatesTransportError(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{err: errors.New("connection refused")}
	_, err := NewContractGenerator(gen.generate, nil).Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Len(t, gen.prompts, 1)
}

func TestCompareFirstRun(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"- should not be used"}}
	got := NewTrendComparator(gen, nil).Compare(context.Background(), "", "current", "bg")
	assert.Equal(t, FirstRunTrend, got)
	assert.Empty(t, gen.prompts)
}

func TestCompareTruncatesAndFallsBack(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"   "}}
	previous := strings.Repeat("旧", 9000)
	got := NewTrendComparator(gen, nil).Compare(context.Background(), previous, "current", "bg")
	assert.Equal(t, NoTrendFound, got)

	require.Len(t, gen.prompts, 1)
	assert.Equal(t, 7000, strings.Count(gen.prompts[0], "旧"))
}

func TestCompareReturnsModelBullets(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"- agents everywhere: affects CI"}}
	got := NewTrendComparator(gen, nil).Compare(context.Background(), "prev", "cur", "bg")
	assert.Equal(t, "- agents everywhere: affects CI", got)
}

func TestCompareSoftFailsOnError(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{err: errors.New("boom")}
	assert.Equal(t, NoTrendFound, NewTrendComparator(gen, nil).Compare(context.Background(), "prev", "cur", "bg"))
}

func TestExtractSections(t *testing.T) {
	t.Parallel()

	s := ExtractSections(validBody())
	assert.Equal(t, []string{"Go 1.26 released https://go.dev/blog", "Kubernetes 1.35 beta"}, s.Shipped)
	assert.Equal(t, []string{"Go 1.26: new GC affects our services"}, s.Relevant)
	assert.Equal(t, []string{"run benchmarks on the new GC"}, s.ToTest)
	assert.Equal(t, []string{"everything else"}, s.Ignore)
}

func TestExtractTrends(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, ExtractTrends("- a\n- b\n"))
	assert.Equal(t, []string{FirstRunTrend}, ExtractTrends(FirstRunTrend))
}

func TestNarrativeRoundTripsSections(t *testing.T) {
	t.Parallel()

	obs := domain.FeedObservability{SourceDir: "feeds", SelectedFeedCount: 3, FailedFeedCount: 1, FailedRate: 1.0 / 3}
	r := domain.Report{
		RunID:                  "run-1",
		Stamp:                  "20261017-093000",
		Body:                   validBody(),
		GeneratedAt:            time.Date(2026, 10, 17, 9, 30, 0, 0, time.Local),
		WorkBackground:         "Go backend",
		SourceDir:              "feeds",
		FormatValidationPassed: true,
		Trends:                 "- agents: affects CI",
		Observability:          &obs,
	}

	narrative := RenderNarrative(r)
	assert.True(t, strings.HasPrefix(narrative, "# 工作资讯简报 20261017-093000\n"))
	assert.Contains(t, narrative, "- 对比基准: 无\n")
	assert.Contains(t, narrative, "- 格式校验重试: 否\n")
	assert.Contains(t, narrative, TrendHeading+"\n\n- agents: affects CI")
	assert.Contains(t, narrative, "失败率: 33.33%")

	structured := BuildStructured(r, narrative, "reports/a.md", "reports/a.json")
	assert.Nil(t, structured.ComparedWith)
	assert.Equal(t, []string{"everything else"}, structured.Sections.Ignore)
	assert.Equal(t, []string{"agents: affects CI"}, structured.Trends)

	raw, err := structured.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["comparedWith"])
	assert.Equal(t, "20261017-093000", decoded["timestamp"])
	assert.Contains(t, decoded, "observability")
}

func TestBuildPromptListsHeadings(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt("Go backend", PromptOptions{ToolName: "fetch_recent_news", RecentDays: 7, MaxFeeds: 30})
	for _, h := range RequiredHeadings {
		assert.Contains(t, prompt, h)
	}
	assert.Contains(t, prompt, "fetch_recent_news")
}

func TestHeadingContractIsPinned(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"## 本周发布了什么（最多 3–5 条简述）",
		"## 与我的工作直接相关的（1–2 条，附理由）",
		"## 本周我应该测试什么（具体行动）",
		"## 我可以完全忽略的（其余全部）",
	}, RequiredHeadings)
}
