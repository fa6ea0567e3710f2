package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/rssd/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testEvent() model.Event {
	return model.Event{
		Source: "https://example.com/feed",
		Item: model.FeedItem{
			Title:       "新機能のお知らせ",
			Link:        "https://example.com/posts/1",
			Description: "本文の要約",
			SourceTitle: "Example Blog",
			PubDate:     time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC),
		},
	}
}

func capturePayload(t *testing.T, status int) (*WebhookNotifier, func() *webhookPayload) {
	t.Helper()

	var mu sync.Mutex
	var captured *webhookPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Typeが不正: got %q", r.Header.Get("Content-Type"))
		}
		var payload webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("ペイロードのデコードに失敗: %v", err)
		}
		mu.Lock()
		captured = &payload
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	n := NewWebhookNotifier(server.URL, 5*time.Second, testLogger())
	return n, func() *webhookPayload {
		mu.Lock()
		defer mu.Unlock()
		return captured
	}
}

func TestWebhookNotifier_SendsEmbed(t *testing.T) {
	n, payload := capturePayload(t, http.StatusNoContent)

	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notifyに失敗: %v", err)
	}

	got := payload()
	if got == nil || len(got.Embeds) != 1 {
		t.Fatalf("embedが1件送信されるべき: %+v", got)
	}

	embed := got.Embeds[0]
	if embed.Title != "新機能のお知らせ" {
		t.Errorf("Titleが不正: got %q", embed.Title)
	}
	if embed.URL != "https://example.com/posts/1" {
		t.Errorf("URLが不正: got %q", embed.URL)
	}
	if embed.Color != 4963212 {
		t.Errorf("Colorが不正: got %d", embed.Color)
	}
	if embed.Timestamp != "2026-07-15T09:30:00Z" {
		t.Errorf("Timestampが不正: got %q", embed.Timestamp)
	}
	if embed.Author == nil || embed.Author.Name != "Example Blog" {
		t.Errorf("Authorが不正: got %+v", embed.Author)
	}
	if embed.Footer == nil || embed.Footer.Text != "https://example.com/feed" {
		t.Errorf("Footerが不正: got %+v", embed.Footer)
	}
}

func TestWebhookNotifier_PlaceholderForMissingTitle(t *testing.T) {
	n, payload := capturePayload(t, http.StatusNoContent)

	ev := testEvent()
	ev.Item.Title = ""
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notifyに失敗: %v", err)
	}

	if got := payload().Embeds[0].Title; got != "<title not specified>" {
		t.Errorf("タイトル欠落時はプレースホルダを使用すべき: got %q", got)
	}
}

func TestWebhookNotifier_OmitsEmptyLink(t *testing.T) {
	n, payload := capturePayload(t, http.StatusNoContent)

	ev := testEvent()
	ev.Item.Link = ""
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notifyに失敗: %v", err)
	}

	if got := payload().Embeds[0].URL; got != "" {
		t.Errorf("リンク欠落時はURLフィールドを省略すべき: got %q", got)
	}
}

func TestWebhookNotifier_TruncatesLongDescription(t *testing.T) {
	n, payload := capturePayload(t, http.StatusNoContent)

	ev := testEvent()
	ev.Item.Description = strings.Repeat("あ", descriptionLimit+100)
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notifyに失敗: %v", err)
	}

	if got := len([]rune(payload().Embeds[0].Description)); got != descriptionLimit {
		t.Errorf("本文は上限で切り詰められるべき: got %d文字", got)
	}
}

func TestWebhookNotifier_ErrorOnNon2xx(t *testing.T) {
	n, _ := capturePayload(t, http.StatusTooManyRequests)

	if err := n.Notify(context.Background(), testEvent()); err == nil {
		t.Error("2xx以外の応答はエラーを返すべき")
	}
}

func TestWebhookNotifier_ErrorOnConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, testLogger())
	if err := n.Notify(context.Background(), testEvent()); err == nil {
		t.Error("接続失敗はエラーを返すべき")
	}
}

func TestLogNotifier_AlwaysSucceeds(t *testing.T) {
	n := NewLogNotifier(testLogger())

	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Errorf("LogNotifierは常に成功すべき: %v", err)
	}
}
