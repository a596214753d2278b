// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordTokenIssued()
	RecordRegistration()
	RecordUpload(contentType string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordPurgedRecords(kind string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess   prometheus.Counter
	loginFail      *prometheus.CounterVec
	tokensIssued   prometheus.Counter
	registrations  prometheus.Counter
	uploads        *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	purgedRecords  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keijiban_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keijiban_login_fail_total",
			Help: "理由別のログイン失敗数",
		}, []string{"reason"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keijiban_tokens_issued_total",
			Help: "発行されたトークンの合計数",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keijiban_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keijiban_uploads_total",
			Help: "MIMEタイプ別のアップロード数",
		}, []string{"content_type"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keijiban_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "keijiban_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		purgedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keijiban_purged_records_total",
			Help: "クリーンアップワーカーが物理削除したレコード数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.tokensIssued,
		c.registrations,
		c.uploads,
		c.httpStatus,
		c.requestLatency,
		c.purgedRecords,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を理由付きで記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFail.WithLabelValues(reason).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordUpload はアップロード成功をMIMEタイプ付きで記録する。
func (c *Collector) RecordUpload(contentType string) {
	c.uploads.WithLabelValues(contentType).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordPurgedRecords はクリーンアップワーカーの物理削除件数を記録する。
func (c *Collector) RecordPurgedRecords(kind string, count int64) {
	c.purgedRecords.WithLabelValues(kind).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
