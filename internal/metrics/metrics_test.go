package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/metrics"
)

func TestNewUsesIsolatedRegistries(t *testing.T) {
	a := metrics.New()
	b := metrics.New()

	a.DocumentsIngested.WithLabelValues("ok").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.DocumentsIngested.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DocumentsIngested.WithLabelValues("ok")))
}

func TestSnapshot(t *testing.T) {
	m := metrics.New()
	m.PINVerifications.WithLabelValues("mismatch").Add(2)
	m.OpenViews.Set(3)
	m.ObserveSearch(time.Now())

	snap, err := m.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, 2.0, snap["docvault_pin_verifications_total{result=mismatch}"])
	assert.Equal(t, 3.0, snap["docvault_open_views"])
	assert.Equal(t, 1.0, snap["docvault_searches_total"])
	assert.Equal(t, 1.0, snap["docvault_search_duration_seconds"])
}
