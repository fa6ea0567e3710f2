package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/rssd/internal/model"
)

// Resolver はフィードURLの検証・正規化のインターフェース。
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Fetcher はフィード取得のインターフェース。
// Pollerとヘルスチェックコマンドで使用される。
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]model.FeedItem, error)
}

// resolveConcurrency はResolveAllの同時実行数。
const resolveConcurrency = 5

// ResolveAll は複数のフィードURLを並行して検証・正規化する。
// 成功したURLは入力順を保って重複排除されたリストで返し、
// 失敗したURLは理由をログに記録した上でfailedに積む。
// 一部の失敗が他のURLの処理を妨げることはない。
func ResolveAll(ctx context.Context, r Resolver, logger *slog.Logger, urls []string) (resolved []string, failed []string) {
	type result struct {
		resolvedURL string
		err         error
	}

	results := make([]result, len(urls))

	var wg sync.WaitGroup
	sem := make(chan struct{}, resolveConcurrency)

	for i, rawURL := range urls {
		wg.Add(1)
		go func(i int, rawURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			resolvedURL, err := r.Resolve(ctx, rawURL)
			results[i] = result{resolvedURL: resolvedURL, err: err}
		}(i, rawURL)
	}

	wg.Wait()

	seen := make(map[string]bool, len(urls))
	for i, rawURL := range urls {
		if results[i].err != nil {
			logger.Warn("フィードURLの検証に失敗しました",
				slog.String("url", rawURL),
				slog.String("error", results[i].err.Error()),
			)
			failed = append(failed, rawURL)
			continue
		}
		if seen[results[i].resolvedURL] {
			continue
		}
		seen[results[i].resolvedURL] = true
		resolved = append(resolved, results[i].resolvedURL)
	}

	return resolved, failed
}

// compile-time interface checks
var (
	_ Resolver = (*Client)(nil)
	_ Fetcher  = (*Client)(nil)
)
