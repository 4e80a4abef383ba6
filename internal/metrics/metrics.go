package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "harvest_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ticksTotal   *prometheus.CounterVec
	tickLatency  prometheus.Histogram
	devicesStage *prometheus.GaugeVec

	transfersTotal *prometheus.CounterVec
	mutationsTotal *prometheus.CounterVec

	pushClients       prometheus.Gauge
	pushMessagesTotal *prometheus.CounterVec
	pushDroppedTotal  prometheus.Counter
)

// Init registers the simulator, API and push metrics. A non-nil db adds
// connection pool gauges.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		ticksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticks_total",
				Help: "Total simulation ticks by result",
			},
			[]string{"result"},
		)
		tickLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tick_latency_seconds",
				Help:    "Simulation tick latency including persistence, in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		devicesStage = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "devices",
				Help: "Devices per stage and connectivity after the last tick",
			},
			[]string{"stage", "status"},
		)

		transfersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transfers_total",
				Help: "Explicit device transfers by result",
			},
			[]string{"result"},
		)
		mutationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mutations_total",
				Help: "Registry mutations by operation and result",
			},
			[]string{"op", "result"},
		)

		pushClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "push_clients",
				Help: "Connected push listeners",
			},
		)
		pushMessagesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_messages_total",
				Help: "Broadcast push messages by type",
			},
			[]string{"type"},
		)
		pushDroppedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_dropped_total",
				Help: "Push messages dropped because a listener queue was full",
			},
		)

		prometheus.MustRegister(
			ticksTotal,
			tickLatency,
			devicesStage,
			transfersTotal,
			mutationsTotal,
			pushClients,
			pushMessagesTotal,
			pushDroppedTotal,
		)

		if db != nil {
			registerDBMetrics(db)
		}
	})
}

func registerDBMetrics(db *sql.DB) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open database connections",
		}, func() float64 { return float64(db.Stats().OpenConnections) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: metricPrefix + "db_in_use_connections",
			Help: "Database connections currently in use",
		}, func() float64 { return float64(db.Stats().InUse) }),
	)
}

// ObserveTick records a tick's latency and result.
func ObserveTick(err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if ticksTotal != nil {
		ticksTotal.WithLabelValues(result).Inc()
	}
	if tickLatency != nil && err == nil {
		tickLatency.Observe(duration.Seconds())
	}
}

// SetDeviceCounts replaces the per-stage device gauges. Keys are stage then status.
func SetDeviceCounts(counts map[string]map[string]int) {
	if devicesStage == nil {
		return
	}
	devicesStage.Reset()
	for stage, byStatus := range counts {
		for status, n := range byStatus {
			devicesStage.WithLabelValues(stage, status).Set(float64(n))
		}
	}
}

// IncTransfer counts an explicit transfer; result is "success", "capacity" or "error".
func IncTransfer(result string) {
	if result == "" {
		result = resultSuccess
	}
	if transfersTotal != nil {
		transfersTotal.WithLabelValues(result).Inc()
	}
}

// IncMutation counts a registry mutation.
func IncMutation(op string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if mutationsTotal != nil {
		mutationsTotal.WithLabelValues(op, result).Inc()
	}
}

func SetPushClients(n int) {
	if pushClients != nil {
		pushClients.Set(float64(n))
	}
}

func IncPushMessage(msgType string) {
	if msgType == "" {
		msgType = "unknown"
	}
	if pushMessagesTotal != nil {
		pushMessagesTotal.WithLabelValues(msgType).Inc()
	}
}

func IncPushDropped() {
	if pushDroppedTotal != nil {
		pushDroppedTotal.Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultCapacity = "capacity"
)
