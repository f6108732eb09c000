// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhookイベントの処理結果ラベル。
const (
	WebhookAccepted     = "accepted"
	WebhookIgnored      = "ignored"
	WebhookUnauthorized = "unauthorized"
	WebhookFailed       = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordWebhookEvent(disposition string)
	RecordVerificationStart(sessionStatus string)
	RecordVerificationOutcome(status string)
	RecordLogin(isNewUser bool)
	RecordProviderLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	webhookEvents        *prometheus.CounterVec
	verificationStarts   *prometheus.CounterVec
	verificationOutcomes *prometheus.CounterVec
	logins               *prometheus.CounterVec
	providerLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idman_webhook_events_total",
			Help: "処理結果別のWebhookイベント数",
		}, []string{"disposition"}),
		verificationStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idman_verification_starts_total",
			Help: "セッション状態別の本人確認開始リクエスト数",
		}, []string{"session_status"}),
		verificationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idman_verification_outcomes_total",
			Help: "確定ステータス別の本人確認結果数",
		}, []string{"status"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idman_logins_total",
			Help: "新規/既存ユーザー別のログイン数",
		}, []string{"user_type"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "idman_provider_latency_seconds",
			Help:    "本人確認プロバイダーAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.webhookEvents,
		c.verificationStarts,
		c.verificationOutcomes,
		c.logins,
		c.providerLatency,
	)

	return c
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(disposition string) {
	c.webhookEvents.WithLabelValues(disposition).Inc()
}

// RecordVerificationStart は本人確認開始リクエストを記録する。
func (c *Collector) RecordVerificationStart(sessionStatus string) {
	c.verificationStarts.WithLabelValues(sessionStatus).Inc()
}

// RecordVerificationOutcome は本人確認の確定結果を記録する。
func (c *Collector) RecordVerificationOutcome(status string) {
	c.verificationOutcomes.WithLabelValues(status).Inc()
}

// RecordLogin はログインを記録する。
func (c *Collector) RecordLogin(isNewUser bool) {
	userType := "existing"
	if isNewUser {
		userType = "new"
	}
	c.logins.WithLabelValues(userType).Inc()
}

// RecordProviderLatency はプロバイダーAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
