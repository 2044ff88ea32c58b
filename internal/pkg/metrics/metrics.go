package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
// nil レシーバーでもメソッドは安全に呼べる
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約調停の結果（outcome: accepted, conflict, past_start, invalid_window, not_found, timeout, error）
	ArbitrationsTotal *prometheus.CounterVec

	// 調停全体の所要時間
	ArbitrationDuration prometheus.Histogram

	// リソースロックの操作時間（operation: acquire/release, status: success/failed）
	LockDuration *prometheus.HistogramVec

	// 状態遷移の結果（transition: terminated/cancelled, outcome）
	TransitionsTotal *prometheus.CounterVec

	// 通知の送信結果（kind: confirmed/status_changed/reminder, status: success/failed）
	NotificationsTotal *prometheus.CounterVec

	// リマインダー処理の結果（status: sent/failed）
	RemindersTotal *prometheus.CounterVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ArbitrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_arbitrations_total",
				Help: "Total number of booking arbitration attempts by outcome",
			},
			[]string{"outcome"},
		),
		ArbitrationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "booking_arbitration_duration_seconds",
				Help:    "Time spent arbitrating a booking request",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		LockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resource_lock_duration_seconds",
				Help:    "Time spent on per-car lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_transitions_total",
				Help: "Total number of booking state transitions by kind and outcome",
			},
			[]string{"transition", "outcome"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_notifications_total",
				Help: "Total number of notification attempts",
			},
			[]string{"kind", "status"},
		),
		RemindersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_reminders_total",
				Help: "Total number of processed reminders",
			},
			[]string{"status"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ArbitrationsTotal,
		m.ArbitrationDuration,
		m.LockDuration,
		m.TransitionsTotal,
		m.NotificationsTotal,
		m.RemindersTotal,
	)

	return m
}

// ObserveArbitration は調停結果と所要時間を記録する
func (m *Metrics) ObserveArbitration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ArbitrationsTotal.WithLabelValues(outcome).Inc()
	m.ArbitrationDuration.Observe(d.Seconds())
}

// ObserveLock はロック操作の時間を記録する
func (m *Metrics) ObserveLock(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.LockDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}

// IncTransition は状態遷移の結果を記録する
func (m *Metrics) IncTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(transition, outcome).Inc()
}

// IncNotification は通知の送信結果を記録する
func (m *Metrics) IncNotification(kind, status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// IncReminder はリマインダー処理の結果を記録する
func (m *Metrics) IncReminder(status string) {
	if m == nil {
		return
	}
	m.RemindersTotal.WithLabelValues(status).Inc()
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
