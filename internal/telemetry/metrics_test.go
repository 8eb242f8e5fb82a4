package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveSearch("fulltext", time.Millisecond, 0, nil)
		m.PageCache(true)
		m.IndexOp(OpCommit)
		m.ASNViolation()
		m.RuleEvaluated("ANY", true)
		m.RegexError()
		m.SyncRun(nil)
	})
}

func TestMetrics_ObserveSearch(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveSearch("fulltext", 3*time.Millisecond, 0, nil)
	m.ObserveSearch("fulltext", 3*time.Millisecond, 5, nil)
	m.ObserveSearch("more_like", time.Millisecond, 0, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.searchRequests.WithLabelValues("fulltext", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchRequests.WithLabelValues("more_like", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.zeroResults.WithLabelValues("fulltext")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.zeroResults.WithLabelValues("more_like")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.searchDuration))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(nil)

	m.PageCache(true)
	m.PageCache(false)
	m.PageCache(false)
	m.IndexOp(OpUpdate)
	m.ASNViolation()
	m.RuleEvaluated("FUZZY", false)
	m.RegexError()
	m.SyncRun(errors.New("db gone"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pageCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pageCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.indexOps.WithLabelValues(OpUpdate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.asnViolations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleEvals.WithLabelValues("FUZZY", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.regexErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("error")))
}

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ASNViolation()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "docsift_asn_out_of_range_total")
	assert.Panics(t, func() { NewMetrics(reg) })
}
