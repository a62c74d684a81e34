package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetricsIsIdempotent(t *testing.T) {
	assert.NotPanics(t, InitMetrics)
	assert.NotPanics(t, InitMetrics)

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["maxdiskusage_free_megabytes"])
	assert.True(t, names["maxdiskusage_stat_failures_total"])
}

func TestDecisionsCounter(t *testing.T) {
	before := testutil.ToFloat64(DecisionsTotal.WithLabelValues("block", "stat_failure"))
	DecisionsTotal.WithLabelValues("block", "stat_failure").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DecisionsTotal.WithLabelValues("block", "stat_failure")))
}
