package report

import (
	"fmt"
	"strings"
)

// PromptOptions carry the run parameters mentioned to the model.
type PromptOptions struct {
	ToolName   string
	RecentDays int
	MaxFeeds   int
}

// BuildPrompt asks the model to fetch news through the tool and triage it into the four sections.
func BuildPrompt(background string, opts PromptOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "我的工作背景：%s\n\n", background)
	fmt.Fprintf(&b, "请先调用工具 %s 获取最近 %d 天、最多 %d 个相关订阅源的新闻条目，", opts.ToolName, opts.RecentDays, opts.MaxFeeds)
	b.WriteString("然后根据我的工作背景筛选并输出一份简报。\n\n")
	b.WriteString("输出必须且只能包含以下四个二级标题，逐字照抄、顺序固定：\n")
	for i, h := range RequiredHeadings {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h)
	}
	b.WriteString("\n每个标题下用 \"- \" 开头的条目列出内容，附上原文链接。")
	b.WriteString("标记为 [feed unavailable] 的条目表示该订阅源抓取失败，不要当作新闻。")
	return b.String()
}
