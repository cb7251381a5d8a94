// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// Collector はゲート・モデレーション・配信のメトリクスを収集する。
// gate.Recorderとmoderation.Recorderを実装する。
type Collector struct {
	gateDecisions        *prometheus.CounterVec
	activityWriteFail    prometheus.Counter
	moderationTransition *prometheus.CounterVec
	statusSubscribers    prometheus.Gauge
	statusEventsSent     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldtalk_gate_decisions_total",
			Help: "ゲート判定の合計数（結果・理由別）",
		}, []string{"outcome", "reason"}),
		activityWriteFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldtalk_activity_write_failures_total",
			Help: "アクティビティログ書き込み失敗の合計数",
		}),
		moderationTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldtalk_moderation_transitions_total",
			Help: "モデレーション状態遷移の合計数（種別・判定別）",
		}, []string{"kind", "verdict"}),
		statusSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldtalk_status_subscribers",
			Help: "状態配信の現在の購読者数",
		}),
		statusEventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldtalk_status_events_sent_total",
			Help: "購読者へ送信した状態イベントの合計数",
		}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.activityWriteFail,
		c.moderationTransition,
		c.statusSubscribers,
		c.statusEventsSent,
	)

	return c
}

// GateDecision はゲート判定を記録する。
func (c *Collector) GateDecision(outcome, reason string) {
	c.gateDecisions.WithLabelValues(outcome, reason).Inc()
}

// ActivityWriteFailure はアクティビティログ書き込み失敗を記録する。
func (c *Collector) ActivityWriteFailure() {
	c.activityWriteFail.Inc()
}

// ModerationTransition はモデレーション状態遷移を記録する。
func (c *Collector) ModerationTransition(kind model.ContentKind, verdict string) {
	c.moderationTransition.WithLabelValues(string(kind), verdict).Inc()
}

// SubscriberConnected は配信購読の開始を記録する。
func (c *Collector) SubscriberConnected() {
	c.statusSubscribers.Inc()
}

// SubscriberDisconnected は配信購読の終了を記録する。
func (c *Collector) SubscriberDisconnected() {
	c.statusSubscribers.Dec()
}

// StatusEventSent は購読者への状態イベント送信を記録する。
func (c *Collector) StatusEventSent() {
	c.statusEventsSent.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
