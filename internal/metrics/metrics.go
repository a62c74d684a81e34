// Package metrics handles Prometheus metrics and process monitoring.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/cpu"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

const namespace = "maxdiskusage"

// Prometheus metrics - exported for use by other packages. They exist from
// package init so callers never see nil collectors; InitMetrics only
// registers them.
var (
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Guard decisions by outcome and reason.",
	}, []string{"outcome", "reason"})
	WarningsSuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "warnings_suppressed_total",
		Help:      "Threshold warnings swallowed by the rate limiter.",
	})
	StatFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stat_failures_total",
		Help:      "Filesystem probes that failed.",
	})
	EvaluateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluate_duration_seconds",
		Help:      "Time spent probing and evaluating one statement.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
	FreeMegabytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "free_megabytes",
		Help:      "Free space on the monitored path at the last probe.",
	})
	UsedPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "used_percent",
		Help:      "Used space percentage on the monitored path at the last probe.",
	})
	AuditDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Audit records that could not be delivered.",
	})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path"})
	CpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cpu_usage_percent",
		Help:      "Current CPU usage percentage.",
	})
	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_usage_bytes",
		Help:      "Current memory usage in bytes.",
	})
	Goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "goroutines",
		Help:      "Number of running goroutines.",
	})
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DecisionsTotal,
			WarningsSuppressedTotal,
			StatFailuresTotal,
			EvaluateDuration,
			FreeMegabytes,
			UsedPercent,
			AuditDroppedTotal,
			RequestsTotal,
			CpuUsage,
			MemoryUsage,
			Goroutines,
		)
		log.Info("Prometheus metrics initialized")
	})
}

// UpdateSystemMetrics updates memory, CPU, and goroutine metrics.
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.Set(float64(m.Alloc))
	Goroutines.Set(float64(runtime.NumGoroutine()))

	cpuPercent, err := cpu.Percent(time.Second, false)
	if err == nil && len(cpuPercent) > 0 {
		CpuUsage.Set(cpuPercent[0])
	}
}

// RunSystemMetrics refreshes the process gauges every interval until stop
// is closed.
func RunSystemMetrics(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			UpdateSystemMetrics()
		case <-stop:
			return
		}
	}
}
