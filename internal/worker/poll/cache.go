// Package poll はフィード監視の中核となるPollerとEngineを提供する。
package poll

// recentCache はフィンガープリントのFIFOキャッシュ。
// 直近の巡回で見た記事のDB照会を省略するための純粋な最適化であり、
// 正しさはデータベースの台帳が保証する。
//
// 容量到達時は最も古い挿入を追い出す。既存エントリの再挿入は
// 順序を変えない（no-op）。単一のPollerゴルーチンからのみ
// アクセスされるため同期は不要。
type recentCache struct {
	capacity int
	order    []string
	index    map[string]struct{}
}

// newRecentCache は容量capacityのrecentCacheを生成する。
func newRecentCache(capacity int) *recentCache {
	return &recentCache{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		index:    make(map[string]struct{}, capacity),
	}
}

// Contains はフィンガープリントがキャッシュに存在するかを返す。
func (c *recentCache) Contains(fingerprint string) bool {
	_, ok := c.index[fingerprint]
	return ok
}

// Insert はフィンガープリントをキャッシュに追加する。
// 既存の場合は何もしない。容量に達している場合は最古のエントリを追い出す。
func (c *recentCache) Insert(fingerprint string) {
	if c.capacity <= 0 {
		return
	}
	if _, ok := c.index[fingerprint]; ok {
		return
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.index, oldest)
	}

	c.order = append(c.order, fingerprint)
	c.index[fingerprint] = struct{}{}
}

// Len は現在のエントリ数を返す。
func (c *recentCache) Len() int {
	return len(c.order)
}
