package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	calculations    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func newAPIMetrics(reg prometheus.Registerer) *apiMetrics {
	m := &apiMetrics{
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spark_guide",
			Name:      "calculations_total",
			Help:      "Calculator invocations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spark_guide",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.calculations, m.requestDuration)
	return m
}

func (m *apiMetrics) observeCalculation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errorCode(err)
	}
	m.calculations.WithLabelValues(operation, outcome).Inc()
}
