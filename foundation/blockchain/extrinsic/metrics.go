package extrinsic

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pipeline results. A nil value records nothing.
type Metrics struct {
	results *prometheus.CounterVec
}

// NewMetrics constructs and registers the pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := Metrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossledger",
			Subsystem: "extrinsic",
			Name:      "results_total",
			Help:      "Extrinsics processed segmented by stage, format and result.",
		}, []string{"stage", "format", "result"}),
	}

	if reg != nil {
		reg.MustRegister(m.results)
	}

	return &m
}

func (m *Metrics) record(stage string, kind Kind, err error) {
	if m == nil {
		return
	}

	result := "ok"
	switch {
	case IsFatal(err):
		result = "fatal"
	case err != nil:
		result = "invalid"
	}

	m.results.WithLabelValues(stage, kind.String(), result).Inc()
}
