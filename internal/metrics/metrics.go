// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginError              = "error"
)

// Todo操作結果のラベル値
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected" // バリデーション・重複・未検出
	ResultError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、リポジトリ層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(method string, duration time.Duration)
	RecordLogin(result string)
	RecordTodoOperation(op, result string)
	RecordStoreReadFailure(collection string)
	RecordStoreWrite(collection string, duration time.Duration, err error)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	todoOps         *prometheus.CounterVec
	storeReadFail   *prometheus.CounterVec
	storeWrites     *prometheus.CounterVec
	storeWriteDelay *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todoman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_login_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		todoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_todo_operations_total",
			Help: "操作種別・結果別のTodo操作数",
		}, []string{"op", "result"}),
		storeReadFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_store_read_failures_total",
			Help: "空配列として扱ったデータファイル読み込み失敗の数",
		}, []string{"collection"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_store_writes_total",
			Help: "データファイル書き込みの数",
		}, []string{"collection", "result"}),
		storeWriteDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todoman_store_write_duration_seconds",
			Help:    "データファイル書き込みの所要時間（秒）",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"collection"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.httpLatency,
		c.logins,
		c.todoOps,
		c.storeReadFail,
		c.storeWrites,
		c.storeWriteDelay,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordHTTPLatency(method string, duration time.Duration) {
	c.httpLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordTodoOperation はTodo操作の結果を記録する。
func (c *Collector) RecordTodoOperation(op, result string) {
	c.todoOps.WithLabelValues(op, result).Inc()
}

// RecordStoreReadFailure はデータファイル読み込み失敗を記録する。
func (c *Collector) RecordStoreReadFailure(collection string) {
	c.storeReadFail.WithLabelValues(collection).Inc()
}

// RecordStoreWrite はデータファイル書き込みの結果と所要時間を記録する。
func (c *Collector) RecordStoreWrite(collection string, duration time.Duration, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	c.storeWrites.WithLabelValues(collection, result).Inc()
	c.storeWriteDelay.WithLabelValues(collection).Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。
// テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordHTTPStatus(int) {}

func (Nop) RecordHTTPLatency(string, time.Duration) {}

func (Nop) RecordLogin(string) {}

func (Nop) RecordTodoOperation(string, string) {}

func (Nop) RecordStoreReadFailure(string) {}

func (Nop) RecordStoreWrite(string, time.Duration, error) {}

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
