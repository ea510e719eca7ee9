// Package metrics exposes the Prometheus collectors the workflow driver
// maintains on its own registry: scheduler job lifecycle counters and a
// gauge for in-flight jobs, plus counters for the cached remote-
// repository stager's hit/miss behaviour. It follows the same
// registry-composition shape the example pack's HPC exporters use
// (a private prometheus.Registry a caller's own HTTP handler can
// Gather() alongside its own metrics) rather than registering onto the
// global default registry, so embedding this module in a larger process
// never collides with that process's own metric names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the process-wide registry for every collector this
// package declares. Callers that expose a metrics endpoint compose it
// into their own prometheus.Gatherers the way the example pack's
// collector handler composes an exporter registry with a request-scoped
// one.
var Registry = prometheus.NewRegistry()

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cstar",
		Subsystem: "scheduler_job",
		Name:      "submitted_total",
		Help:      "Scheduler jobs submitted, by scheduler kind.",
	}, []string{"scheduler"})

	jobsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cstar",
		Subsystem: "scheduler_job",
		Name:      "submit_failed_total",
		Help:      "Scheduler job submissions that failed, by scheduler kind.",
	}, []string{"scheduler"})

	jobStatusPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cstar",
		Subsystem: "scheduler_job",
		Name:      "status_polls_total",
		Help:      "Scheduler job status queries, by scheduler kind and observed status.",
	}, []string{"scheduler", "status"})

	jobsCancelledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cstar",
		Subsystem: "scheduler_job",
		Name:      "cancelled_total",
		Help:      "Scheduler jobs actually cancelled (cancel requests against a non-terminal job), by scheduler kind.",
	}, []string{"scheduler"})

	jobsInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cstar",
		Subsystem: "scheduler_job",
		Name:      "in_flight",
		Help:      "Scheduler jobs currently PENDING or RUNNING, by scheduler kind.",
	}, []string{"scheduler"})

	stagerCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cstar",
		Subsystem: "stager_cache",
		Name:      "result_total",
		Help:      "Cached remote-repository stager requests, by result: served from a fresh cache (hit) or needing a clone or checkout (miss).",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		jobsSubmittedTotal,
		jobsFailedTotal,
		jobStatusPollsTotal,
		jobsCancelledTotal,
		jobsInFlight,
		stagerCacheHitsTotal,
	)
}

// RecordSubmit records a scheduler job submission outcome.
func RecordSubmit(schedulerKind string, ok bool) {
	if ok {
		jobsSubmittedTotal.WithLabelValues(schedulerKind).Inc()
		jobsInFlight.WithLabelValues(schedulerKind).Inc()
	} else {
		jobsFailedTotal.WithLabelValues(schedulerKind).Inc()
	}
}

// RecordStatusPoll records an observed job status for schedulerKind,
// adjusting the in-flight gauge when the status is terminal.
func RecordStatusPoll(schedulerKind, status string, terminal bool) {
	jobStatusPollsTotal.WithLabelValues(schedulerKind, status).Inc()
	if terminal {
		jobsInFlight.WithLabelValues(schedulerKind).Dec()
	}
}

// RecordCancel records a cancellation that was actually issued (not a
// no-op against an already-terminal job).
func RecordCancel(schedulerKind string) {
	jobsCancelledTotal.WithLabelValues(schedulerKind).Inc()
	jobsInFlight.WithLabelValues(schedulerKind).Dec()
}

// RecordStagerCacheResult records whether a cached-repository stage
// request was served from an already-fresh cache ("hit") or required a
// clone or checkout against the remote ("miss").
func RecordStagerCacheResult(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	stagerCacheHitsTotal.WithLabelValues(result).Inc()
}
