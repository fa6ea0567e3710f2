package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// fakeResolver はテスト用のResolver。URLに"bad"を含むものを失敗させる。
type fakeResolver struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, rawURL)
	r.mu.Unlock()

	if strings.Contains(rawURL, "bad") {
		return "", fmt.Errorf("resolve failed: %s", rawURL)
	}
	// ページURLはフィードURLに正規化される想定
	return strings.Replace(rawURL, "/page", "/feed.xml", 1), nil
}

func TestResolveAll_SeparatesSuccessAndFailure(t *testing.T) {
	r := &fakeResolver{}

	resolved, failed := ResolveAll(context.Background(), r, testLogger(), []string{
		"https://a.example.com/feed",
		"https://bad.example.com/feed",
		"https://c.example.com/feed",
	})

	if len(resolved) != 2 {
		t.Fatalf("成功URLは2件であるべき: got %v", resolved)
	}
	if len(failed) != 1 || failed[0] != "https://bad.example.com/feed" {
		t.Errorf("失敗URLが不正: got %v", failed)
	}
}

func TestResolveAll_PreservesInputOrder(t *testing.T) {
	r := &fakeResolver{}

	urls := []string{
		"https://z.example.com/feed",
		"https://a.example.com/feed",
		"https://m.example.com/feed",
	}
	resolved, _ := ResolveAll(context.Background(), r, testLogger(), urls)

	for i, u := range urls {
		if resolved[i] != u {
			t.Errorf("入力順が保持されるべき: got %v", resolved)
			break
		}
	}
}

func TestResolveAll_DeduplicatesResolvedURLs(t *testing.T) {
	r := &fakeResolver{}

	// 異なるページURLが同一のフィードURLに正規化されるケース
	resolved, failed := ResolveAll(context.Background(), r, testLogger(), []string{
		"https://example.com/page",
		"https://example.com/feed.xml",
	})

	if len(failed) != 0 {
		t.Fatalf("失敗は0件であるべき: got %v", failed)
	}
	if len(resolved) != 1 || resolved[0] != "https://example.com/feed.xml" {
		t.Errorf("正規化後の重複は排除されるべき: got %v", resolved)
	}
}

func TestResolveAll_EmptyInput(t *testing.T) {
	r := &fakeResolver{}

	resolved, failed := ResolveAll(context.Background(), r, testLogger(), nil)
	if len(resolved) != 0 || len(failed) != 0 {
		t.Errorf("空入力には空の結果を返すべき: resolved=%v failed=%v", resolved, failed)
	}
}

func TestResolveAll_AllURLsAttempted(t *testing.T) {
	r := &fakeResolver{}

	urls := []string{
		"https://bad1.example.com/feed",
		"https://ok.example.com/feed",
		"https://bad2.example.com/feed",
	}
	ResolveAll(context.Background(), r, testLogger(), urls)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) != 3 {
		t.Errorf("失敗があっても全URLを試行すべき: %d回呼び出し", len(r.calls))
	}
}
