// Package report enforces the triage report format and renders run artifacts.
package report

import "strings"

// HeadingMarker introduces every required section.
const HeadingMarker = "## "

// Section headings in the order the report must present them. The Chinese
// strings are the persisted contract: they are read back from earlier reports
// and by downstream tooling, so do not translate or edit them.
const (
	// What shipped this week (3-5 short items at most).
	HeadingShipped = HeadingMarker + "本周发布了什么（最多 3–5 条简述）"
	// Directly relevant to my work (1-2 items, with reasons).
	HeadingRelevant = HeadingMarker + "与我的工作直接相关的（1–2 条，附理由）"
	// What I should test this week (concrete actions).
	HeadingToTest = HeadingMarker + "本周我应该测试什么（具体行动）"
	// What I can fully ignore (everything else).
	HeadingIgnore = HeadingMarker + "我可以完全忽略的（其余全部）"
)

// RequiredHeadings lists the contract headings in order.
var RequiredHeadings = []string{HeadingShipped, HeadingRelevant, HeadingToTest, HeadingIgnore}

// Validation is the outcome of checking a candidate report.
type Validation struct {
	Missing []string
}

// Valid reports whether every required heading is present.
func (v Validation) Valid() bool {
	return len(v.Missing) == 0
}

// Validate checks that all required headings occur verbatim. Relative order
// is left to the prompt.
func Validate(text string) Validation {
	var v Validation
	for _, heading := range RequiredHeadings {
		if !strings.Contains(text, heading) {
			v.Missing = append(v.Missing, heading)
		}
	}
	return v
}
