package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// maxAttempts is the first draft plus one regeneration.
const maxAttempts = 2

// GenerateFunc produces one candidate report for a prompt.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Result describes the accepted report text and how it was obtained.
type Result struct {
	Text     string
	Attempts int
	Retried  bool
	Valid    bool
	Missing  []string
}

// ContractGenerator drives generation until the heading contract holds or
// the retry budget is spent. A still-invalid second draft is accepted and
// flagged rather than dropped.
type ContractGenerator struct {
	generate GenerateFunc
	logger   *slog.Logger
}

// NewContractGenerator wraps a generation capability.
func NewContractGenerator(generate GenerateFunc, log *slog.Logger) *ContractGenerator {
	return &ContractGenerator{generate: generate, logger: log}
}

// Generate runs the draft/validate/retry loop. Only transport errors from the
// generation capability are returned.
func (g *ContractGenerator) Generate(ctx context.Context, prompt string) (Result, error) {
	var res Result
	current := prompt

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := g.generate(ctx, current)
		if err != nil {
			return res, fmt.Errorf("generate report (attempt %d): %w", attempt, err)
		}

		validation := Validate(text)
		res = Result{
			Text:     strings.TrimSpace(text),
			Attempts: attempt,
			Retried:  attempt > 1,
			Valid:    validation.Valid(),
			Missing:  validation.Missing,
		}
		if res.Valid {
			return res, nil
		}

		g.warn("report violates heading contract", "attempt", attempt, "missing", len(validation.Missing))
		current = RetryPrompt(prompt, validation.Missing)
	}

	g.warn("accepting report that still violates heading contract", "missing", res.Missing)
	return res, nil
}

// RetryPrompt appends a notice that the previous draft broke the heading contract.
func RetryPrompt(prompt string, missing []string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n注意：上一次输出没有遵守标题格式要求。")
	if len(missing) > 0 {
		b.WriteString("缺少以下标题：\n")
		for _, h := range missing {
			b.WriteString(h)
			b.WriteString("\n")
		}
	}
	b.WriteString("请重新生成，必须逐字包含以下四个标题并保持顺序：\n")
	b.WriteString(strings.Join(RequiredHeadings, "\n"))
	return b.String()
}

func (g *ContractGenerator) warn(msg string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
