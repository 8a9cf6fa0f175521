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
// HTTPミドルウェア、認証サービス、ノートサービス、イベント発行から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	RecordLogin(result string)
	RecordNotesCreated(count int)
	RecordNotesDeleted(count int)
	RecordEventPublished(ok bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	notesCreated    prometheus.Counter
	notesDeleted    prometheus.Counter
	eventsPublished *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notekeeper_http_requests_total",
			Help: "メソッド・ルート・ステータス別のHTTPリクエスト数",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notekeeper_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notekeeper_logins_total",
			Help: "結果別のOAuthログイン数",
		}, []string{"result"}),
		notesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notekeeper_notes_created_total",
			Help: "作成されたノートの合計数",
		}),
		notesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notekeeper_notes_deleted_total",
			Help: "削除されたノートの合計数",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notekeeper_events_published_total",
			Help: "結果別のノートイベント発行数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.logins,
		c.notesCreated,
		c.notesDeleted,
		c.eventsPublished,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、ラベルのカーディナリティを抑える。
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordNotesCreated は作成されたノート数を記録する。
func (c *Collector) RecordNotesCreated(count int) {
	c.notesCreated.Add(float64(count))
}

// RecordNotesDeleted は削除されたノート数を記録する。
func (c *Collector) RecordNotesDeleted(count int) {
	c.notesDeleted.Add(float64(count))
}

// RecordEventPublished はイベント発行の成否を記録する。
func (c *Collector) RecordEventPublished(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.eventsPublished.WithLabelValues(result).Inc()
}

// Noop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Noop struct{}

func (Noop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Noop) RecordLogin(string)                                  {}
func (Noop) RecordNotesCreated(int)                              {}
func (Noop) RecordNotesDeleted(int)                              {}
func (Noop) RecordEventPublished(bool)                           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
