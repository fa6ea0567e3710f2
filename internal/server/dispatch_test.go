package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/rssd/internal/metrics"
	"github.com/hitoshi/rssd/internal/model"
	"github.com/hitoshi/rssd/internal/version"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeController はテスト用のFeedController。
type fakeController struct {
	feeds   map[string]bool
	addErr  error
	removed []string
}

func newFakeController(feeds ...string) *fakeController {
	c := &fakeController{feeds: make(map[string]bool)}
	for _, f := range feeds {
		c.feeds[f] = true
	}
	return c
}

func (c *fakeController) AddFeed(ctx context.Context, rawURL string) (bool, error) {
	if c.addErr != nil {
		return false, c.addErr
	}
	if c.feeds[rawURL] {
		return false, nil
	}
	c.feeds[rawURL] = true
	return true, nil
}

func (c *fakeController) RemoveFeed(ctx context.Context, rawURL string) (bool, error) {
	if !c.feeds[rawURL] {
		return false, nil
	}
	delete(c.feeds, rawURL)
	c.removed = append(c.removed, rawURL)
	return true, nil
}

func (c *fakeController) Feeds() []string {
	urls := make([]string, 0, len(c.feeds))
	for u := range c.feeds {
		urls = append(urls, u)
	}
	return urls
}

// recordingNotifier は通知されたイベントを記録するNotifier。
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, event model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestDispatcher(controller *fakeController) (*Dispatcher, *recordingNotifier) {
	notifier := &recordingNotifier{}
	return NewDispatcher(controller, notifier, testLogger(), metrics.NopRecorder{}), notifier
}

func TestHandle_Ping(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController())

	if got := d.handle(context.Background(), Command{Kind: CmdPing}); got != "ACK Pong" {
		t.Errorf("pingの応答が不正: got %q", got)
	}
}

func TestHandle_Version(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController())

	want := "ACK " + version.Version
	if got := d.handle(context.Background(), Command{Kind: CmdVersion}); got != want {
		t.Errorf("versionの応答が不正: got %q, want %q", got, want)
	}
}

func TestHandle_FeedAdd(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController())

	got := d.handle(context.Background(), Command{Kind: CmdFeedAdd, URL: "https://example.com/feed"})
	if got != "ACK Added feed: https://example.com/feed" {
		t.Errorf("feed addの応答が不正: got %q", got)
	}
}

func TestHandle_FeedAddAlreadyTracked(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController("https://example.com/feed"))

	got := d.handle(context.Background(), Command{Kind: CmdFeedAdd, URL: "https://example.com/feed"})
	if got != "ACK Feed already tracked: https://example.com/feed" {
		t.Errorf("追加済みフィードはソフトACKを返すべき: got %q", got)
	}
}

func TestHandle_FeedAddFailure(t *testing.T) {
	controller := newFakeController()
	controller.addErr = fmt.Errorf("resolve failed")
	d, _ := newTestDispatcher(controller)

	got := d.handle(context.Background(), Command{Kind: CmdFeedAdd, URL: "https://bad.example.com/feed"})
	if got != "ERR Could not add feed: resolve failed" {
		t.Errorf("追加失敗はERRを返すべき: got %q", got)
	}
}

func TestHandle_FeedRemove(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController("https://example.com/feed"))

	got := d.handle(context.Background(), Command{Kind: CmdFeedRemove, URL: "https://example.com/feed"})
	if got != "ACK Removed https://example.com/feed feed" {
		t.Errorf("feed removeの応答が不正: got %q", got)
	}
}

func TestHandle_FeedRemoveUnknown(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController())

	got := d.handle(context.Background(), Command{Kind: CmdFeedRemove, URL: "https://unknown.example.com/feed"})
	if got != "ACK Feed was not being followed: https://unknown.example.com/feed" {
		t.Errorf("未知フィードの削除はソフトACKを返すべき: got %q", got)
	}
}

func TestHandle_FeedList(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController("https://a.example.com/feed"))

	got := d.handle(context.Background(), Command{Kind: CmdFeedList})
	if got != "ACK Tracking feeds: https://a.example.com/feed" {
		t.Errorf("feed listの応答が不正: got %q", got)
	}
}

func TestRun_NotifiesEvents(t *testing.T) {
	d, notifier := newTestDispatcher(newFakeController())

	events := make(chan model.Event, 4)
	requests := make(chan Request)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background(), events, requests)
	}()

	events <- model.Event{Source: "https://example.com/feed", Item: model.FeedItem{Title: "記事"}}
	close(events)
	close(requests)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("両チャネルのクローズ後にRunは戻るべき")
	}

	if notifier.count() != 1 {
		t.Errorf("イベントは通知されるべき: %d件", notifier.count())
	}
}

func TestRun_RepliesRequests(t *testing.T) {
	d, _ := newTestDispatcher(newFakeController())

	events := make(chan model.Event)
	requests := make(chan Request, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background(), events, requests)
	}()

	req := Request{ID: "test", Command: Command{Kind: CmdPing}, Reply: make(chan string, 1)}
	requests <- req

	select {
	case reply := <-req.Reply:
		if reply != "ACK Pong" {
			t.Errorf("応答が不正: got %q", reply)
		}
	case <-time.After(time.Second):
		t.Fatal("リクエストには応答が返るべき")
	}

	close(events)
	close(requests)
	<-done
}

func TestRun_NotificationFailureDoesNotStopLoop(t *testing.T) {
	controller := newFakeController()
	notifier := &recordingNotifier{err: fmt.Errorf("webhook down")}
	d := NewDispatcher(controller, notifier, testLogger(), metrics.NopRecorder{})

	events := make(chan model.Event, 4)
	requests := make(chan Request, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background(), events, requests)
	}()

	events <- model.Event{Source: "https://example.com/feed"}

	// 通知失敗後もコマンドは処理されるはず
	req := Request{ID: "test", Command: Command{Kind: CmdPing}, Reply: make(chan string, 1)}
	requests <- req

	select {
	case reply := <-req.Reply:
		if reply != "ACK Pong" {
			t.Errorf("応答が不正: got %q", reply)
		}
	case <-time.After(time.Second):
		t.Fatal("通知失敗後もループは継続すべき")
	}

	close(events)
	close(requests)
	<-done
}

func TestRun_DrainsRemainingEventsAfterClose(t *testing.T) {
	d, notifier := newTestDispatcher(newFakeController())

	events := make(chan model.Event, 4)
	for i := 0; i < 3; i++ {
		events <- model.Event{Source: "https://example.com/feed"}
	}
	close(events)

	requests := make(chan Request)
	close(requests)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background(), events, requests)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Runは戻るべき")
	}

	if notifier.count() != 3 {
		t.Errorf("クローズ後も残イベントを送り切るべき: %d件", notifier.count())
	}
}
