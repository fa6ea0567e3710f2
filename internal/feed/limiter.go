package feed

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterCleanupInterval は未使用リミッターの掃除間隔。
	limiterCleanupInterval = 5 * time.Minute
	// limiterIdleTimeout はこの期間アクセスのないホストのリミッターを破棄する。
	limiterIdleTimeout = 10 * time.Minute
)

// hostEntry はホストごとのリミッターと最終アクセス時刻を保持する。
type hostEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// HostLimiter はフィード取得のホスト別レート制限を行う。
// 同一ホストに複数のフィードがある場合でも、ホスト単位で
// リクエストレートを制限し、配信元への礼儀を守る。
type HostLimiter struct {
	mu      sync.Mutex
	entries map[string]*hostEntry
	rate    rate.Limit
	burst   int
	done    chan struct{}
	once    sync.Once
}

// NewHostLimiter はHostLimiterの新しいインスタンスを生成する。
// perSecondはホストごとの秒間リクエスト数、burstはバーストの許容数。
// 未使用エントリを回収するバックグラウンドループを開始する。
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	l := &HostLimiter{
		entries: make(map[string]*hostEntry),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		done:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Wait はrawURLのホストのレート制限トークンが利用可能になるまで待機する。
// コンテキストがキャンセルされた場合はそのエラーを返す。
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	return l.limiterFor(rawURL).Wait(ctx)
}

// Stop はクリーンアップループを停止する。
func (l *HostLimiter) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

// limiterFor はホストに対応するリミッターを取得する。
// 存在しない場合は新規作成する。URLが不正な場合は文字列全体をキーとする。
func (l *HostLimiter) limiterFor(rawURL string) *rate.Limiter {
	key := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Hostname() != "" {
		key = parsed.Hostname()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &hostEntry{
			limiter: rate.NewLimiter(l.rate, l.burst),
		}
		l.entries[key] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

// cleanupLoop は定期的に未使用のホストエントリを削除する。
func (l *HostLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// cleanup はlimiterIdleTimeoutを超えてアクセスのないエントリを削除する。
func (l *HostLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-limiterIdleTimeout)
	for key, entry := range l.entries {
		if entry.lastAccess.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
