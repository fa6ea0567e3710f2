// Package metrics はデーモンの稼働状況を計測するメトリクスを提供する。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder はメトリクス記録のインターフェース。
// PollerとDispatcherから呼び出される。テストではNopRecorderを使用する。
type Recorder interface {
	// FetchSucceeded はフィード取得の成功を記録する。
	FetchSucceeded(feedURL string)
	// FetchFailed はフィード取得の失敗を記録する。
	FetchFailed(feedURL string)
	// ItemDiscovered は新着記事の発見を記録する。
	ItemDiscovered(feedURL string)
	// NotificationSent は通知送信の成功を記録する。
	NotificationSent()
	// NotificationFailed は通知送信の失敗を記録する。
	NotificationFailed()
	// CommandHandled は制御コマンドの処理結果を記録する。
	CommandHandled(keyword string, ok bool)
	// SetFeedsTracked は監視中のフィード数を記録する。
	SetFeedsTracked(n int)
	// SetQueueDepth はイベントキューの滞留数を記録する。
	SetQueueDepth(n int)
}

// Collector はPrometheusベースのRecorder実装。
type Collector struct {
	fetchTotal         *prometheus.CounterVec
	itemsDiscovered    *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	commandsTotal      *prometheus.CounterVec
	feedsTracked       prometheus.Gauge
	queueDepth         prometheus.Gauge
}

// NewCollector はCollectorを生成してregistryに登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssd_fetch_total",
			Help: "フィード取得の試行回数（結果別・フィード別）",
		}, []string{"feed", "result"}),
		itemsDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssd_items_discovered_total",
			Help: "新規に発見された記事数（フィード別）",
		}, []string{"feed"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssd_notifications_total",
			Help: "Webhook通知の送信回数（結果別）",
		}, []string{"result"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssd_commands_total",
			Help: "制御コマンドの処理回数（キーワード別・結果別）",
		}, []string{"keyword", "result"}),
		feedsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rssd_feeds_tracked",
			Help: "現在監視中のフィード数",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rssd_event_queue_depth",
			Help: "イベントキューの滞留数",
		}),
	}

	reg.MustRegister(
		c.fetchTotal,
		c.itemsDiscovered,
		c.notificationsTotal,
		c.commandsTotal,
		c.feedsTracked,
		c.queueDepth,
	)
	return c
}

func (c *Collector) FetchSucceeded(feedURL string) {
	c.fetchTotal.WithLabelValues(feedURL, "success").Inc()
}

func (c *Collector) FetchFailed(feedURL string) {
	c.fetchTotal.WithLabelValues(feedURL, "failure").Inc()
}

func (c *Collector) ItemDiscovered(feedURL string) {
	c.itemsDiscovered.WithLabelValues(feedURL).Inc()
}

func (c *Collector) NotificationSent() {
	c.notificationsTotal.WithLabelValues("success").Inc()
}

func (c *Collector) NotificationFailed() {
	c.notificationsTotal.WithLabelValues("failure").Inc()
}

func (c *Collector) CommandHandled(keyword string, ok bool) {
	result := "ack"
	if !ok {
		result = "err"
	}
	c.commandsTotal.WithLabelValues(keyword, result).Inc()
}

func (c *Collector) SetFeedsTracked(n int) {
	c.feedsTracked.Set(float64(n))
}

func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// NopRecorder は何も記録しないRecorder。テストおよび
// メトリクス無効時に使用する。
type NopRecorder struct{}

func (NopRecorder) FetchSucceeded(feedURL string)        {}
func (NopRecorder) FetchFailed(feedURL string)           {}
func (NopRecorder) ItemDiscovered(feedURL string)        {}
func (NopRecorder) NotificationSent()                    {}
func (NopRecorder) NotificationFailed()                  {}
func (NopRecorder) CommandHandled(keyword string, ok bool) {}
func (NopRecorder) SetFeedsTracked(n int)                {}
func (NopRecorder) SetQueueDepth(n int)                  {}

// compile-time interface checks
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = NopRecorder{}
)
