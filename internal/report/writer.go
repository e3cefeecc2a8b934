package report

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"FeedDigest/internal/domain"
	"FeedDigest/internal/observability"
)

// StampLayout names report artifacts (local time).
const StampLayout = "20060102-150405"

// TrendHeading introduces the comparison with the previous run.
const TrendHeading = "## 相比上次的新趋势"

var (
	itemExpr    = regexp.MustCompile(`^(?:[-*•+]\s+|\d+[.)、]\s*)(.+)$`)
	headingExpr = regexp.MustCompile(`^#{1,2}\s`)
)

// Stamp formats the run time used in file names and titles.
func Stamp(t time.Time) string {
	return t.Format(StampLayout)
}

func yesNo(v bool) string {
	if v {
		return "是"
	}
	return "否"
}

// RenderNarrative assembles the Markdown report persisted for humans and
// read back by the next run's comparison.
func RenderNarrative(r domain.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 工作资讯简报 %s\n\n", r.Stamp)

	compared := r.ComparedWith
	if compared == "" {
		compared = observability.Placeholder
	}
	fmt.Fprintf(&b, "- 生成时间: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- 运行 ID: %s\n", r.RunID)
	fmt.Fprintf(&b, "- 工作背景: %s\n", r.WorkBackground)
	fmt.Fprintf(&b, "- 订阅源目录: %s\n", r.SourceDir)
	fmt.Fprintf(&b, "- 格式校验重试: %s\n", yesNo(r.FormatValidationRetried))
	fmt.Fprintf(&b, "- 格式校验通过: %s\n", yesNo(r.FormatValidationPassed))
	fmt.Fprintf(&b, "- 对比基准: %s\n\n", compared)

	b.WriteString(strings.TrimSpace(r.Body))
	b.WriteString("\n\n")

	b.WriteString(TrendHeading)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(r.Trends))
	b.WriteString("\n\n")

	b.WriteString(observability.Render(r.Observability))
	return b.String()
}

// Sections holds the itemized body of each required heading.
type Sections struct {
	Shipped  []string `json:"shipped"`
	Relevant []string `json:"relevant"`
	ToTest   []string `json:"toTest"`
	Ignore   []string `json:"ignore"`
}

// ExtractSections re-parses the four contract sections out of report text.
// Missing sections come back as empty lists.
func ExtractSections(text string) Sections {
	lines := strings.Split(text, "\n")
	return Sections{
		Shipped:  ExtractItems(sectionBody(lines, HeadingShipped)),
		Relevant: ExtractItems(sectionBody(lines, HeadingRelevant)),
		ToTest:   ExtractItems(sectionBody(lines, HeadingToTest)),
		Ignore:   ExtractItems(sectionBody(lines, HeadingIgnore)),
	}
}

func sectionBody(lines []string, heading string) []string {
	start := -1
	for i, line := range lines {
		if strings.Contains(line, heading) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if headingExpr.MatchString(strings.TrimSpace(lines[i])) {
			end = i
			break
		}
	}
	return lines[start:end]
}

// ExtractItems keeps bullet and numbered lines with their marker stripped.
func ExtractItems(lines []string) []string {
	items := []string{}
	for _, line := range lines {
		m := itemExpr.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ExtractTrends returns the trend bullets, or the non-empty lines when the
// text carries no bullet (the fixed placeholder texts).
func ExtractTrends(text string) []string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if items := ExtractItems(lines); len(items) > 0 {
		return items
	}

	out := []string{}
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// StructuredReport is the machine-readable twin of the narrative report.
type StructuredReport struct {
	RunID                   string                    `json:"runId"`
	Timestamp               string                    `json:"timestamp"`
	GeneratedAt             time.Time                 `json:"generatedAt"`
	WorkBackground          string                    `json:"workBackground"`
	SourceDir               string                    `json:"sourceDir"`
	ComparedWith            *string                   `json:"comparedWith"`
	NarrativePath           string                    `json:"narrativePath"`
	StructuredPath          string                    `json:"structuredPath"`
	FormatValidationRetried bool                      `json:"formatValidationRetried"`
	FormatValidationPassed  bool                      `json:"formatValidationPassed"`
	Sections                Sections                  `json:"sections"`
	Trends                  []string                  `json:"trends"`
	Observability           *domain.FeedObservability `json:"observability"`
}

// BuildStructured derives the structured record from the rendered narrative.
func BuildStructured(r domain.Report, narrative, narrativePath, structuredPath string) StructuredReport {
	var compared *string
	if r.ComparedWith != "" {
		c := r.ComparedWith
		compared = &c
	}

	return StructuredReport{
		RunID:                   r.RunID,
		Timestamp:               r.Stamp,
		GeneratedAt:             r.GeneratedAt,
		WorkBackground:          r.WorkBackground,
		SourceDir:               r.SourceDir,
		ComparedWith:            compared,
		NarrativePath:           narrativePath,
		StructuredPath:          structuredPath,
		FormatValidationRetried: r.FormatValidationRetried,
		FormatValidationPassed:  r.FormatValidationPassed,
		Sections:                ExtractSections(narrative),
		Trends:                  ExtractTrends(r.Trends),
		Observability:           r.Observability,
	}
}

// Marshal encodes the structured report as indented JSON.
func (s StructuredReport) Marshal() ([]byte, error) {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal structured report: %w", err)
	}
	return append(raw, '\n'), nil
}
