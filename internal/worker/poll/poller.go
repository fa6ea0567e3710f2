package poll

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/rssd/internal/feed"
	"github.com/hitoshi/rssd/internal/metrics"
	"github.com/hitoshi/rssd/internal/model"
	"github.com/hitoshi/rssd/internal/repository"
)

// Poller は1つのフィードを定期巡回するワーカー。
// フィードごとに専用のゴルーチンでRunが実行される。
type Poller struct {
	feedURL     string
	fetcher     feed.Fetcher
	seen        repository.SeenRepository
	events      chan<- model.Event
	cache       *recentCache
	interval    time.Duration
	failBackoff time.Duration
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// NewPoller はPollerの新しいインスタンスを生成する。
func NewPoller(
	feedURL string,
	fetcher feed.Fetcher,
	seen repository.SeenRepository,
	events chan<- model.Event,
	cacheSize int,
	interval time.Duration,
	failBackoff time.Duration,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *Poller {
	return &Poller{
		feedURL:     feedURL,
		fetcher:     fetcher,
		seen:        seen,
		events:      events,
		cache:       newRecentCache(cacheSize),
		interval:    interval,
		failBackoff: failBackoff,
		logger:      logger,
		metrics:     recorder,
	}
}

// Run は巡回ループを実行する。ctxのキャンセルで終了する。
// キャンセルはサイクルの合間でのみ観測される。実行中のフェッチは
// 中断せず、HTTPクライアントのタイムアウトが上限となる。
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("フィードの監視を開始します",
		slog.String("feed", p.feedURL),
		slog.Duration("interval", p.interval),
	)

	for {
		if ctx.Err() != nil {
			p.logger.Info("フィードの監視を終了します", slog.String("feed", p.feedURL))
			return
		}

		start := time.Now()

		if err := p.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("フィードの監視を終了します", slog.String("feed", p.feedURL))
				return
			}

			p.metrics.FetchFailed(p.feedURL)
			p.logger.Warn("フィードの巡回に失敗しました",
				slog.String("feed", p.feedURL),
				slog.String("error", err.Error()),
				slog.Duration("backoff", p.failBackoff),
			)

			// 失敗時は長めのバックオフを置いてから再試行する
			if !sleepContext(ctx, p.failBackoff) {
				p.logger.Info("フィードの監視を終了します", slog.String("feed", p.feedURL))
				return
			}
			continue
		}

		p.metrics.FetchSucceeded(p.feedURL)

		// サイクルの実行時間を差し引いた残りを待機する
		remaining := p.interval - time.Since(start)
		if !sleepContext(ctx, remaining) {
			p.logger.Info("フィードの監視を終了します", slog.String("feed", p.feedURL))
			return
		}
	}
}

// cycle は1回の巡回を実行する。取得・重複判定・台帳記録・イベント発行を行う。
// フェッチ自体はctxのキャンセルに影響されない（context.WithoutCancel）。
func (p *Poller) cycle(ctx context.Context) error {
	fetchCtx := context.WithoutCancel(ctx)

	items, err := p.fetcher.Fetch(fetchCtx, p.feedURL)
	if err != nil {
		return err
	}

	for _, item := range items {
		fingerprint := model.Fingerprint(item)

		if p.cache.Contains(fingerprint) {
			continue
		}

		already, err := p.seen.IsSeen(fetchCtx, fingerprint)
		if err != nil {
			p.logger.Warn("既読判定に失敗しました",
				slog.String("feed", p.feedURL),
				slog.String("fingerprint", fingerprint),
				slog.String("error", err.Error()),
			)
			continue
		}
		if already {
			p.cache.Insert(fingerprint)
			continue
		}

		newly, err := p.seen.MarkSeenAndArchive(fetchCtx, &item, fingerprint, p.feedURL)
		if err != nil {
			p.logger.Warn("台帳への記録に失敗しました",
				slog.String("feed", p.feedURL),
				slog.String("fingerprint", fingerprint),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.cache.Insert(fingerprint)

		// 別のフィードが同一記事を先に記録していた場合は発行しない
		if !newly {
			continue
		}

		p.metrics.ItemDiscovered(p.feedURL)
		p.logger.Info("新着記事を発見しました",
			slog.String("feed", p.feedURL),
			slog.String("title", item.Title),
			slog.String("link", item.Link),
		)

		// キューが満杯の場合はここでブロックする（バックプレッシャー）
		select {
		case p.events <- model.Event{Source: p.feedURL, Item: item}:
			p.metrics.SetQueueDepth(len(p.events))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// sleepContext はd経過またはctxキャンセルまで待機する。
// 経過した場合はtrue、キャンセルされた場合はfalseを返す。
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
