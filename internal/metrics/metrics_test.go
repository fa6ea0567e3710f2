package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gatherに失敗: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func TestCollector_RegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.FetchSucceeded("https://example.com/feed")
	c.FetchFailed("https://example.com/feed")
	c.ItemDiscovered("https://example.com/feed")
	c.NotificationSent()
	c.NotificationFailed()
	c.CommandHandled("feed", true)
	c.SetFeedsTracked(3)
	c.SetQueueDepth(1)

	byName := gatherNames(t, reg)
	for _, name := range []string{
		"rssd_fetch_total",
		"rssd_items_discovered_total",
		"rssd_notifications_total",
		"rssd_commands_total",
		"rssd_feeds_tracked",
		"rssd_event_queue_depth",
	} {
		if _, ok := byName[name]; !ok {
			t.Errorf("メトリクス %s が登録されているべき", name)
		}
	}
}

func TestCollector_FetchCounterLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.FetchSucceeded("https://a.example.com/feed")
	c.FetchSucceeded("https://a.example.com/feed")
	c.FetchFailed("https://a.example.com/feed")

	family := gatherNames(t, reg)["rssd_fetch_total"]
	if family == nil {
		t.Fatal("rssd_fetch_totalが存在すべき")
	}

	counts := make(map[string]float64)
	for _, m := range family.GetMetric() {
		var result string
		for _, label := range m.GetLabel() {
			if label.GetName() == "result" {
				result = label.GetValue()
			}
		}
		counts[result] = m.GetCounter().GetValue()
	}

	if counts["success"] != 2 {
		t.Errorf("successカウントが不正: got %v", counts["success"])
	}
	if counts["failure"] != 1 {
		t.Errorf("failureカウントが不正: got %v", counts["failure"])
	}
}

func TestCollector_GaugesReflectLatestValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetFeedsTracked(5)
	c.SetFeedsTracked(2)

	family := gatherNames(t, reg)["rssd_feeds_tracked"]
	if family == nil {
		t.Fatal("rssd_feeds_trackedが存在すべき")
	}
	if got := family.GetMetric()[0].GetGauge().GetValue(); got != 2 {
		t.Errorf("ゲージは最新値を反映すべき: got %v", got)
	}
}

func TestCommandHandled_ResultLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.CommandHandled("feed", true)
	c.CommandHandled("feed", false)

	family := gatherNames(t, reg)["rssd_commands_total"]
	var results []string
	for _, m := range family.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "result" {
				results = append(results, label.GetValue())
			}
		}
	}
	joined := strings.Join(results, ",")
	if !strings.Contains(joined, "ack") || !strings.Contains(joined, "err") {
		t.Errorf("ack/errの両ラベルが記録されるべき: got %v", results)
	}
}

func TestNopRecorder_DoesNothing(t *testing.T) {
	var r Recorder = NopRecorder{}

	// パニックせず呼び出せることのみ確認
	r.FetchSucceeded("x")
	r.FetchFailed("x")
	r.ItemDiscovered("x")
	r.NotificationSent()
	r.NotificationFailed()
	r.CommandHandled("ping", true)
	r.SetFeedsTracked(0)
	r.SetQueueDepth(0)
}
