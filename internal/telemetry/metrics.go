// Package telemetry exposes docsift's Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so library code can take
// metrics as an optional dependency.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docsift"

// Index operations counted by IndexOp.
const (
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpCommit   = "commit"
	OpCancel   = "cancel"
	OpOptimize = "optimize"
	OpRecreate = "recreate"
)

// Metrics holds all docsift collectors.
type Metrics struct {
	searchRequests *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	zeroResults    *prometheus.CounterVec
	pageCache      *prometheus.CounterVec
	indexOps       *prometheus.CounterVec
	asnViolations  prometheus.Counter
	ruleEvals      *prometheus.CounterVec
	regexErrors    prometheus.Counter
	syncRuns       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Total number of search page executions",
			},
			[]string{"variant", "status"},
		),
		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Search page execution time in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"variant"},
		),
		zeroResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_zero_results_total",
				Help:      "Searches that matched no documents",
			},
			[]string{"variant"},
		),
		pageCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "page_cache_total",
				Help:      "Result page cache hits and misses",
			},
			[]string{"result"}, // "hit" / "miss"
		),
		indexOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_operations_total",
				Help:      "Index writer operations",
			},
			[]string{"op"},
		),
		asnViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asn_out_of_range_total",
			Help:      "Documents indexed with an archive serial number outside the allowed range",
		}),
		ruleEvals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_evaluations_total",
				Help:      "Matching rule evaluations",
			},
			[]string{"algorithm", "matched"},
		),
		regexErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_regex_errors_total",
			Help:      "Regular expression rules that failed to compile",
		}),
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Index sync runs",
			},
			[]string{"status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.searchRequests, m.searchDuration, m.zeroResults, m.pageCache,
			m.indexOps, m.asnViolations, m.ruleEvals, m.regexErrors, m.syncRuns,
		)
	}
	return m
}

// ObserveSearch records one executed result page.
func (m *Metrics) ObserveSearch(variant string, d time.Duration, total uint64, err error) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(variant, status(err)).Inc()
	m.searchDuration.WithLabelValues(variant).Observe(d.Seconds())
	if err == nil && total == 0 {
		m.zeroResults.WithLabelValues(variant).Inc()
	}
}

// PageCache records a cursor page cache lookup.
func (m *Metrics) PageCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.pageCache.WithLabelValues("hit").Inc()
		return
	}
	m.pageCache.WithLabelValues("miss").Inc()
}

// IndexOp counts one writer operation.
func (m *Metrics) IndexOp(op string) {
	if m == nil {
		return
	}
	m.indexOps.WithLabelValues(op).Inc()
}

// ASNViolation counts one out-of-range archive serial number.
func (m *Metrics) ASNViolation() {
	if m == nil {
		return
	}
	m.asnViolations.Inc()
}

// RuleEvaluated counts one rule evaluation.
func (m *Metrics) RuleEvaluated(algorithm string, matched bool) {
	if m == nil {
		return
	}
	m.ruleEvals.WithLabelValues(algorithm, strconv.FormatBool(matched)).Inc()
}

// RegexError counts one invalid regular expression rule.
func (m *Metrics) RegexError() {
	if m == nil {
		return
	}
	m.regexErrors.Inc()
}

// SyncRun counts one index sync.
func (m *Metrics) SyncRun(err error) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
