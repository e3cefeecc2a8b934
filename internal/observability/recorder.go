// Package observability summarizes feed fetch health for a run.
package observability

import (
	"fmt"
	"strings"

	"FeedDigest/internal/domain"
)

// MaxFailureSamples caps the verbatim failures kept for diagnostics.
const MaxFailureSamples = 10

// Record aggregates the aggregator counts and the fetch failures of one run.
func Record(corpus domain.FeedCorpus, selected int, failures []domain.FeedFailure) domain.FeedObservability {
	obs := domain.FeedObservability{
		SourceDir:         corpus.SourceDir,
		OPMLFileCount:     corpus.OPMLFileCount,
		TotalFeedEntries:  corpus.TotalFeedEntries,
		SelectedFeedCount: selected,
		FailedFeedCount:   len(failures),
		TimeoutFeeds:      []string{},
		FailureSamples:    []domain.FailureSample{},
	}
	if obs.FailedFeedCount > obs.SelectedFeedCount {
		obs.FailedFeedCount = obs.SelectedFeedCount
	}
	if obs.SelectedFeedCount > 0 {
		obs.FailedRate = float64(obs.FailedFeedCount) / float64(obs.SelectedFeedCount)
	}

	for _, f := range failures {
		if f.ErrorType == domain.ErrorTypeTimeout {
			label := domain.FeedDescriptor{Title: f.FeedTitle, FeedURL: f.FeedURL}.Label()
			obs.TimeoutFeeds = append(obs.TimeoutFeeds, label)
		}
		if len(obs.FailureSamples) < MaxFailureSamples {
			obs.FailureSamples = append(obs.FailureSamples, domain.FailureSample{
				FeedTitle: f.FeedTitle,
				Reason:    f.Reason,
			})
		}
	}

	return obs
}

// FailurePercent formats a failure rate as a percentage with two decimals.
func FailurePercent(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}

// Section headings and labels of the rendered observability block.
const (
	Heading     = "## 订阅源抓取可观测性"
	Placeholder = "无"
)

// Render formats the observability record for the narrative report.
func Render(obs *domain.FeedObservability) string {
	var b strings.Builder
	b.WriteString(Heading)
	b.WriteString("\n\n")

	if obs == nil {
		b.WriteString(Placeholder)
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "- 订阅源目录: %s\n", obs.SourceDir)
	fmt.Fprintf(&b, "- OPML 文件数: %d\n", obs.OPMLFileCount)
	fmt.Fprintf(&b, "- 订阅源总数（去重前）: %d\n", obs.TotalFeedEntries)
	fmt.Fprintf(&b, "- 入选订阅源: %d\n", obs.SelectedFeedCount)
	fmt.Fprintf(&b, "- 失败订阅源: %d\n", obs.FailedFeedCount)
	fmt.Fprintf(&b, "- 失败率: %s\n", FailurePercent(obs.FailedRate))

	b.WriteString("\n### 超时订阅源\n\n")
	if len(obs.TimeoutFeeds) == 0 {
		b.WriteString("- " + Placeholder + "\n")
	}
	for _, label := range obs.TimeoutFeeds {
		fmt.Fprintf(&b, "- %s\n", label)
	}

	b.WriteString("\n### 失败样例\n\n")
	if len(obs.FailureSamples) == 0 {
		b.WriteString("- " + Placeholder + "\n")
	}
	for _, s := range obs.FailureSamples {
		fmt.Fprintf(&b, "- %s: %s\n", s.FeedTitle, oneLine(s.Reason))
	}

	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
