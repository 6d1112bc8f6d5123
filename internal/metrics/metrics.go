// Package metrics provides Prometheus metrics for interaction ranking runs and
// the HTTP front end. The metrics are exposed via the Prometheus endpoint of
// the serve command.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the ranking service.
type Metrics struct {
	// Ranking metrics
	RankingRuns          prometheus.Counter   // Total number of ranking runs started
	RankingFailures      prometheus.Counter   // Total number of ranking runs that failed
	CandidatesEvaluated  prometheus.Counter   // Candidate pairs scored
	CandidatesSkipped    prometheus.Counter   // Candidate pairs over the joint cell ceiling
	CandidatesDegenerate prometheus.Counter   // Candidate pairs scored zero for lack of a valid split
	RankingLatency       prometheus.Histogram // Ranking duration in seconds

	// Front end metrics
	Requests       *prometheus.CounterVec // HTTP and websocket requests by endpoint and outcome
	RunsStored     prometheus.Counter     // Ranking runs persisted to storage
	DatasetsLoaded prometheus.Counter     // Datasets read from files or URLs

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	m := &Metrics{
		RankingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranking_runs_total",
			Help: "Total number of interaction ranking runs",
		}),
		RankingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranking_failures_total",
			Help: "Total number of failed interaction ranking runs",
		}),
		CandidatesEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranking_candidates_evaluated_total",
			Help: "Total number of candidate pairs scored",
		}),
		CandidatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranking_candidates_skipped_total",
			Help: "Total number of candidate pairs skipped for exceeding the joint cell ceiling",
		}),
		CandidatesDegenerate: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranking_candidates_degenerate_total",
			Help: "Total number of candidate pairs without a split satisfying the leaf size",
		}),
		RankingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ranking_latency_seconds",
			Help:    "Interaction ranking latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of ranking requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		RunsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "runs_stored_total",
			Help: "Total number of ranking runs persisted",
		}),
		DatasetsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "datasets_loaded_total",
			Help: "Total number of datasets loaded",
		}),
	}
	if g, ok := registerer.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// FailureRate returns failed runs over started runs, or 0 before the first
// run or when the registry cannot be gathered.
func (m *Metrics) FailureRate() float64 {
	if m.gatherer == nil {
		return 0
	}
	families, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	var runs, failures float64
	for _, mf := range families {
		switch mf.GetName() {
		case "ranking_runs_total":
			for _, c := range mf.Metric {
				runs = c.GetCounter().GetValue()
			}
		case "ranking_failures_total":
			for _, c := range mf.Metric {
				failures = c.GetCounter().GetValue()
			}
		}
	}

	if runs == 0 {
		return 0
	}
	return failures / runs
}
