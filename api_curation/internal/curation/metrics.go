package curation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fortuneofweb3/blabz/pkg/monitoring"
)

type Metrics struct {
	PostsEvaluated   *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	IngestDuration   *prometheus.HistogramVec
}

func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	if mc == nil {
		return nil
	}
	return &Metrics{
		PostsEvaluated:   mc.NewCounter("posts_evaluated_total", "Upstream posts evaluated by outcome", []string{"outcome"}),
		UpstreamRequests: mc.NewCounter("upstream_requests_total", "Upstream attempts by operation and outcome", []string{"op", "status"}),
		CacheLookups:     mc.NewCounter("cache_lookups_total", "Response cache lookups", []string{"result"}),
		IngestDuration:   mc.NewHistogram("ingest_duration_seconds", "Account ingestion run duration", []string{"source"}, nil),
	}
}

func (m *Metrics) IncEvaluated(outcome string) {
	if m == nil || m.PostsEvaluated == nil {
		return
	}

	m.PostsEvaluated.WithLabelValues(outcome).Inc()
}

// IncUpstream matches clients.RateLimitedConfig.OnAttempt.
func (m *Metrics) IncUpstream(op, status string) {
	if m == nil || m.UpstreamRequests == nil {
		return
	}

	m.UpstreamRequests.WithLabelValues(op, status).Inc()
}

func (m *Metrics) IncCache(hit bool) {
	if m == nil || m.CacheLookups == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveIngest(source string, seconds float64) {
	if m == nil || m.IngestDuration == nil {
		return
	}

	m.IngestDuration.WithLabelValues(source).Observe(seconds)
}
