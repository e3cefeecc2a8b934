package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Fixed trend texts for the soft-empty cases.
const (
	FirstRunTrend = "首次运行，暂无可对比的历史报告。"
	NoTrendFound  = "未识别到明显的新趋势。"
)

const defaultCompareLimit = 7000

// TextGenerator is the plain generation capability used for comparisons.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TrendComparator summarizes what is new compared to the previous report.
type TrendComparator struct {
	gen    TextGenerator
	limit  int
	logger *slog.Logger
}

// NewTrendComparator wires a generator; both reports are cut to 7000 characters.
func NewTrendComparator(gen TextGenerator, log *slog.Logger) *TrendComparator {
	return &TrendComparator{gen: gen, limit: defaultCompareLimit, logger: log}
}

// Compare returns 1-3 bullet lines, or one of the fixed placeholder texts.
// previous is empty on the first run.
func (c *TrendComparator) Compare(ctx context.Context, previous, current, background string) string {
	if strings.TrimSpace(previous) == "" {
		return FirstRunTrend
	}
	if c.gen == nil {
		return NoTrendFound
	}

	prompt := comparePrompt(truncateRunes(previous, c.limit), truncateRunes(current, c.limit), background)
	text, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("trend comparison failed", "error", err)
		}
		return NoTrendFound
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return NoTrendFound
	}
	return text
}

func comparePrompt(previous, current, background string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "我的工作背景：%s\n\n", background)
	b.WriteString("下面是上一期和本期的简报。请只输出 1–3 行，每行以 \"- \" 开头，")
	b.WriteString("指出本期相对上一期出现的一个新趋势，以及它与我工作流程的关系。不要输出其他内容。\n\n")
	b.WriteString("### 上一期\n\n")
	b.WriteString(previous)
	b.WriteString("\n\n### 本期\n\n")
	b.WriteString(current)
	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
