// Package notify は新着記事イベントの通知シンクを提供する。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/rssd/internal/model"
)

// Notifier は新着記事イベントの通知インターフェース。
type Notifier interface {
	// Notify はイベントを1件通知する。失敗してもデーモンは
	// 停止せず、イベントは再送されない。
	Notify(ctx context.Context, event model.Event) error
}

// embedColor は通知メッセージのアクセントカラー。
const embedColor = 4963212

// 欠落フィールドのプレースホルダ。
const (
	placeholderTitle = "<title not specified>"
	placeholderLink  = "<link not specified>"
)

// descriptionLimit は通知本文の最大文字数。超過分は切り詰める。
const descriptionLimit = 2048

// webhookPayload はDiscord互換のWebhookペイロード。
type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Author      *webhookAuthor `json:"author,omitempty"`
	Footer      *webhookFooter `json:"footer,omitempty"`
}

type webhookAuthor struct {
	Name string `json:"name"`
}

type webhookFooter struct {
	Text string `json:"text"`
}

// WebhookNotifier はWebhook URLへ記事をPOSTするNotifier。
type WebhookNotifier struct {
	client     *http.Client
	webhookURL string
	logger     *slog.Logger
}

// NewWebhookNotifier はWebhookNotifierの新しいインスタンスを生成する。
func NewWebhookNotifier(webhookURL string, timeout time.Duration, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client:     &http.Client{Timeout: timeout},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// Notify は記事をembed形式でWebhookへPOSTする。
// 2xx以外の応答はエラーとして返す。
func (n *WebhookNotifier) Notify(ctx context.Context, event model.Event) error {
	payload := buildPayload(event)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ペイロードの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("Webhookへの送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhookが異常応答を返しました: HTTP %d", resp.StatusCode)
	}

	n.logger.Debug("記事を通知しました",
		slog.String("feed", event.Source),
		slog.String("title", event.Item.Title),
	)
	return nil
}

// buildPayload はイベントからWebhookペイロードを組み立てる。
func buildPayload(event model.Event) webhookPayload {
	item := event.Item

	title := item.Title
	if title == "" {
		title = placeholderTitle
	}

	link := item.Link
	if link == "" {
		link = placeholderLink
	}

	description := item.Description
	if runes := []rune(description); len(runes) > descriptionLimit {
		description = string(runes[:descriptionLimit])
	}

	embed := webhookEmbed{
		Title:       title,
		Description: description,
		Color:       embedColor,
		Footer: &webhookFooter{
			Text: event.Source,
		},
	}

	// プレースホルダはURLフィールドには載せない
	if link != placeholderLink {
		embed.URL = link
	}
	if !item.PubDate.IsZero() {
		embed.Timestamp = item.PubDate.UTC().Format(time.RFC3339)
	}
	if item.SourceTitle != "" {
		embed.Author = &webhookAuthor{Name: item.SourceTitle}
	}

	return webhookPayload{Embeds: []webhookEmbed{embed}}
}

// LogNotifier は新着記事をログに記録するだけのNotifier。
// WEBHOOK_URLが未設定の場合に使用される。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierの新しいインスタンスを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify は記事をログに記録する。常に成功する。
func (n *LogNotifier) Notify(ctx context.Context, event model.Event) error {
	n.logger.Info("新着記事",
		slog.String("feed", event.Source),
		slog.String("title", event.Item.Title),
		slog.String("link", event.Item.Link),
	)
	return nil
}

// compile-time interface checks
var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
