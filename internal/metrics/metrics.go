package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the vault counters. Each vault owns its own registry so that
// several vaults, or several tests, never share counters.
type Metrics struct {
	Registry *prometheus.Registry

	DocumentsIngested *prometheus.CounterVec
	IngestFailures    *prometheus.CounterVec
	DocumentsDeleted  *prometheus.CounterVec
	DecryptFailures   *prometheus.CounterVec
	PINVerifications  *prometheus.CounterVec
	Transactions      *prometheus.CounterVec
	Searches          prometheus.Counter
	SearchDuration    prometheus.Histogram
	IntegrityFindings *prometheus.CounterVec
	OpenViews         prometheus.Gauge
}

// New registers every vault metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		DocumentsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docvault_documents_ingested_total",
			Help: "Document ingests by outcome.",
		}, []string{"result"}),
		IngestFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docvault_ingest_failures_total",
			Help: "Failed document ingests by failing stage.",
		}, []string{"stage"}),
		DocumentsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docvault_documents_deleted_total",
			Help: "Document deletes by outcome.",
		}, []string{"result"}),
		DecryptFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docvault_decrypt_failures_total",
			Help: "Decryption failures by kind.",
		}, []string{"kind"}),
		PINVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docvault_pin_verifications_total",
			Help: "PIN verification attempts by result.",
		}, []string{"result"}),
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docvault_store_transactions_total",
			Help: "Store transactions by outcome.",
		}, []string{"result"}),
		Searches: factory.NewCounter(prometheus.CounterOpts{
			Name: "docvault_searches_total",
			Help: "Search queries that reached storage.",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docvault_search_duration_seconds",
			Help:    "Time spent ranking a search query.",
			Buckets: prometheus.DefBuckets,
		}),
		IntegrityFindings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docvault_integrity_findings_total",
			Help: "Inconsistencies found by reconciliation, by kind.",
		}, []string{"kind"}),
		OpenViews: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docvault_open_views",
			Help: "Decrypted temporary copies currently on disk.",
		}),
	}
}

// ObserveSearch records one search and its duration.
func (m *Metrics) ObserveSearch(start time.Time) {
	m.Searches.Inc()
	m.SearchDuration.Observe(time.Since(start).Seconds())
}

// Snapshot flattens counters and gauges into "name{label=value}" keys.
// Histograms report their sample count.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}

			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
