package handlers

import "github.com/prometheus/client_golang/prometheus"

type APIMetrics struct {
	Requests *prometheus.CounterVec
}

func (m *APIMetrics) IncRequest(route, status string) {
	if m == nil || m.Requests == nil {
		return
	}

	m.Requests.WithLabelValues(route, status).Inc()
}
