// Package metrics exposes Prometheus metrics for session lifecycle.
// Labels are bounded enums; no session IDs or URLs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionStartsTotal counts Start attempts by result ("ok" or an error reason).
	SessionStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termshare_session_starts_total",
		Help: "Total number of session start attempts, by result.",
	}, []string{"result"})

	// SessionStopsTotal counts completed teardowns by cause.
	SessionStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termshare_session_stops_total",
		Help: "Total number of session teardowns, by cause (stop, crash).",
	}, []string{"cause"})

	// ProcessCrashesTotal counts unexpected child exits by process.
	ProcessCrashesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termshare_process_crashes_total",
		Help: "Total number of unexpected child process exits, by process.",
	}, []string{"process"})

	// OrphansReapedTotal counts processes left by a previous run and terminated.
	OrphansReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termshare_orphans_reaped_total",
		Help: "Total number of orphaned child processes terminated at start.",
	})

	// SessionActive is 1 while a session is running.
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termshare_session_active",
		Help: "Whether a session is currently running (0 or 1).",
	})

	// StartDuration observes how long successful and failed starts take.
	StartDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "termshare_session_start_duration_seconds",
		Help:    "Duration of session start sequences, by result.",
		Buckets: []float64{0.5, 1, 2, 3, 5, 10, 20, 30, 45, 60},
	}, []string{"result"})
)

// RecordStart records one start attempt.
func RecordStart(result string, d time.Duration) {
	SessionStartsTotal.WithLabelValues(result).Inc()
	StartDuration.WithLabelValues(result).Observe(d.Seconds())
	if result == ResultOK {
		SessionActive.Set(1)
	}
}

// RecordStop records a teardown of a running session.
func RecordStop(cause string) {
	SessionStopsTotal.WithLabelValues(cause).Inc()
	SessionActive.Set(0)
}

// RecordCrash records an unexpected exit of process.
func RecordCrash(process string) {
	ProcessCrashesTotal.WithLabelValues(process).Inc()
}

// RecordOrphanReaped records one orphan termination.
func RecordOrphanReaped() {
	OrphansReapedTotal.Inc()
}

// Start results and stop causes.
const (
	ResultOK   = "ok"
	CauseStop  = "stop"
	CauseCrash = "crash"
)
