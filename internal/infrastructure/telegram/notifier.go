package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FeedDigest/internal/domain"
	"FeedDigest/internal/observability"
	"FeedDigest/internal/ports"
	"FeedDigest/internal/report"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// Telegram rejects messages longer than 4096 characters.
	maxMessageRunes = 4000
	maxNoticeTrends = 3
)

// Notifier posts "report ready" notices to a Telegram chat via bot API.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		apiBase:  defaultAPIBase,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyReport announces a persisted report with its health and trend lines.
func (n *Notifier) NotifyReport(ctx context.Context, rep domain.Report, narrativePath string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	return n.send(ctx, Notice(rep, narrativePath))
}

// Notice renders the plain-text message for a report.
func Notice(rep domain.Report, narrativePath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "工作资讯简报 %s 已生成\n%s\n", rep.Stamp, narrativePath)

	if rep.Observability != nil {
		obs := rep.Observability
		fmt.Fprintf(&b, "订阅源: %d/%d 抓取失败 (%s)",
			obs.FailedFeedCount, obs.SelectedFeedCount, observability.FailurePercent(obs.FailedRate))
		if len(obs.TimeoutFeeds) > 0 {
			fmt.Fprintf(&b, ", 超时 %d", len(obs.TimeoutFeeds))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("订阅源: 未抓取\n")
	}

	if !rep.FormatValidationPassed {
		b.WriteString("格式校验未通过，请人工检查\n")
	}

	trends := report.ExtractTrends(rep.Trends)
	if len(trends) > maxNoticeTrends {
		trends = trends[:maxNoticeTrends]
	}
	if len(trends) > 0 {
		b.WriteString("\n相比上次的新趋势:\n")
		for _, trend := range trends {
			fmt.Fprintf(&b, "- %s\n", trend)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if runes := []rune(text); len(runes) > maxMessageRunes {
		text = string(runes[:maxMessageRunes])
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(n.apiBase, "/"), n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	if resp.StatusCode != http.StatusOK {
		if body.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, body.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	if len(raw) > 0 && !body.OK && body.Description != "" {
		return fmt.Errorf("telegram rejected message: %s", body.Description)
	}

	return nil
}
