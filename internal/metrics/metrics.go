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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordSubmission(txType string, outcome string)
	RecordSnapshotRefresh()
	RecordSnapshotRefreshFailure()
	RecordHTTPStatus(statusCode int)
	RecordSubmitLatency(duration time.Duration)
	RecordPDFExport()
	RecordActiveLedgers(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submissions   *prometheus.CounterVec
	refreshOK     prometheus.Counter
	refreshFail   prometheus.Counter
	httpStatus    *prometheus.CounterVec
	submitLatency prometheus.Histogram
	pdfExports    prometheus.Counter
	activeLedgers prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exptra_submissions_total",
			Help: "取引投入の合計数（種別・結果別）",
		}, []string{"type", "outcome"}),
		refreshOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exptra_snapshot_refresh_total",
			Help: "スナップショット再取得成功の合計数",
		}),
		refreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exptra_snapshot_refresh_fail_total",
			Help: "スナップショット再取得失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exptra_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		submitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exptra_submit_latency_seconds",
			Help:    "取引投入のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		pdfExports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exptra_pdf_exports_total",
			Help: "PDFレポート出力の合計数",
		}),
		activeLedgers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exptra_active_ledgers",
			Help: "購読中の台帳エンジン数",
		}),
	}

	reg.MustRegister(
		c.submissions,
		c.refreshOK,
		c.refreshFail,
		c.httpStatus,
		c.submitLatency,
		c.pdfExports,
		c.activeLedgers,
	)

	return c
}

// RecordSubmission は取引投入の結果を記録する。
func (c *Collector) RecordSubmission(txType string, outcome string) {
	c.submissions.WithLabelValues(txType, outcome).Inc()
}

// RecordSnapshotRefresh はスナップショット再取得成功を記録する。
func (c *Collector) RecordSnapshotRefresh() {
	c.refreshOK.Inc()
}

// RecordSnapshotRefreshFailure はスナップショット再取得失敗を記録する。
func (c *Collector) RecordSnapshotRefreshFailure() {
	c.refreshFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSubmitLatency は取引投入のレイテンシを記録する。
func (c *Collector) RecordSubmitLatency(duration time.Duration) {
	c.submitLatency.Observe(duration.Seconds())
}

// RecordPDFExport はPDFレポート出力を記録する。
func (c *Collector) RecordPDFExport() {
	c.pdfExports.Inc()
}

// RecordActiveLedgers は購読中の台帳エンジン数を記録する。
func (c *Collector) RecordActiveLedgers(count int) {
	c.activeLedgers.Set(float64(count))
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

var _ MetricsCollector = (*Collector)(nil)
