package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/rssd/internal/feed"
	"github.com/hitoshi/rssd/internal/metrics"
	"github.com/hitoshi/rssd/internal/model"
	"github.com/hitoshi/rssd/internal/repository"
)

// Options はEngineの依存と設定をまとめる。
type Options struct {
	Resolver    feed.Resolver
	Fetcher     feed.Fetcher
	Roster      repository.RosterRepository
	Seen        repository.SeenRepository
	Logger      *slog.Logger
	Metrics     metrics.Recorder
	QueueSize   int
	CacheSize   int
	Interval    time.Duration
	FailBackoff time.Duration

	// InitialFeeds は設定由来のフィードURL。起動時に台帳の
	// 永続ロスターとマージされる。
	InitialFeeds []string
}

// Engine はフィード監視の全体を統括する。フィードごとにPollerの
// ゴルーチンを起動し、追加・削除に応じて増減させる。
//
// AddFeed/RemoveFeed/Feedsはゴルーチンセーフではない。デーモンでは
// Dispatcherの単一ゴルーチンが全ての変更を直列化する。
type Engine struct {
	resolver    feed.Resolver
	fetcher     feed.Fetcher
	roster      repository.RosterRepository
	seen        repository.SeenRepository
	logger      *slog.Logger
	metrics     metrics.Recorder
	cacheSize   int
	interval    time.Duration
	failBackoff time.Duration

	events  chan model.Event
	pollers map[string]context.CancelFunc
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine はEngineを生成して監視を開始する。
// 台帳の永続ロスターと設定のフィードリストをマージし、全URLを
// 並行検証した上で、検証を通過したフィードごとにPollerを起動する。
// 検証に失敗したURLは監視対象から外し、failedとして返す。
// 起動自体は一部のフィードが失敗しても継続する。
func NewEngine(ctx context.Context, opts Options) (engine *Engine, failed []string, err error) {
	stored, err := opts.Roster.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("永続ロスターの読み込みに失敗しました: %w", err)
	}

	merged := mergeURLs(stored, opts.InitialFeeds)

	resolved, failed := feed.ResolveAll(ctx, opts.Resolver, opts.Logger, merged)

	// 検証を通過したフィードを台帳に永続化する（冪等）
	if _, err := opts.Roster.Add(ctx, resolved); err != nil {
		return nil, nil, fmt.Errorf("永続ロスターの保存に失敗しました: %w", err)
	}

	engineCtx, cancel := context.WithCancel(context.Background())
	engine = &Engine{
		resolver:    opts.Resolver,
		fetcher:     opts.Fetcher,
		roster:      opts.Roster,
		seen:        opts.Seen,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		cacheSize:   opts.CacheSize,
		interval:    opts.Interval,
		failBackoff: opts.FailBackoff,
		events:      make(chan model.Event, opts.QueueSize),
		pollers:     make(map[string]context.CancelFunc),
		ctx:         engineCtx,
		cancel:      cancel,
	}

	for _, feedURL := range resolved {
		engine.spawn(feedURL)
	}
	engine.metrics.SetFeedsTracked(len(engine.pollers))

	return engine, failed, nil
}

// Events は新着記事イベントのチャネルを返す。
// Closeの完了後にクローズされる。
func (e *Engine) Events() <-chan model.Event {
	return e.events
}

// Feeds は現在監視中のフィードURLをソート済みで返す。
func (e *Engine) Feeds() []string {
	urls := make([]string, 0, len(e.pollers))
	for feedURL := range e.pollers {
		urls = append(urls, feedURL)
	}
	sort.Strings(urls)
	return urls
}

// AddFeed はフィードを検証して監視対象に追加する。
// 追加した場合はtrue、既に監視中のURLは何もせずfalseを返す（冪等）。
// 検証失敗時はフィードを追加せずエラーを返す。
func (e *Engine) AddFeed(ctx context.Context, rawURL string) (bool, error) {
	if _, ok := e.pollers[rawURL]; ok {
		return false, nil
	}

	resolved, err := e.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return false, fmt.Errorf("フィードの検証に失敗しました: %w", err)
	}

	if _, ok := e.pollers[resolved]; ok {
		return false, nil
	}

	if _, err := e.roster.Add(ctx, []string{resolved}); err != nil {
		return false, fmt.Errorf("永続ロスターへの追加に失敗しました: %w", err)
	}

	e.spawn(resolved)
	e.metrics.SetFeedsTracked(len(e.pollers))

	e.logger.Info("フィードを追加しました", slog.String("feed", resolved))
	return true, nil
}

// RemoveFeed はフィードを監視対象と永続ロスターから削除する。
// 削除した場合はtrue、監視されていないURLの場合はfalseを返す（冪等）。
func (e *Engine) RemoveFeed(ctx context.Context, rawURL string) (bool, error) {
	cancel, tracked := e.pollers[rawURL]
	if tracked {
		cancel()
		delete(e.pollers, rawURL)
		e.metrics.SetFeedsTracked(len(e.pollers))
		e.logger.Info("フィードを削除しました", slog.String("feed", rawURL))
	}

	if _, err := e.roster.Remove(ctx, []string{rawURL}); err != nil {
		return tracked, fmt.Errorf("永続ロスターからの削除に失敗しました: %w", err)
	}

	return tracked, nil
}

// Close は全Pollerを停止し、終了を待ってからイベントチャネルを
// クローズする。Dispatcherはチャネルのクローズで残イベントの
// 処理完了を検知できる。
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
	close(e.events)
}

// spawn はフィードのPollerゴルーチンを起動する。
func (e *Engine) spawn(feedURL string) {
	ctx, cancel := context.WithCancel(e.ctx)
	e.pollers[feedURL] = cancel

	p := NewPoller(
		feedURL,
		e.fetcher,
		e.seen,
		e.events,
		e.cacheSize,
		e.interval,
		e.failBackoff,
		e.logger,
		e.metrics,
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		p.Run(ctx)
	}()
}

// mergeURLs は2つのURLリストを順序を保ってマージし重複を除く。
func mergeURLs(first, second []string) []string {
	seen := make(map[string]bool, len(first)+len(second))
	merged := make([]string, 0, len(first)+len(second))
	for _, u := range first {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		merged = append(merged, u)
	}
	for _, u := range second {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		merged = append(merged, u)
	}
	return merged
}
