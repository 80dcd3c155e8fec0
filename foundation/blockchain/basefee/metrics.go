package basefee

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the fee to prometheus. A nil value records nothing.
type Metrics struct {
	current     prometheus.Gauge
	adjustments *prometheus.CounterVec
}

// NewMetrics constructs and registers the fee metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := Metrics{
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossledger",
			Subsystem: "basefee",
			Name:      "current",
			Help:      "Current base fee per unit of gas.",
		}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossledger",
			Subsystem: "basefee",
			Name:      "adjustments_total",
			Help:      "Block finalizations segmented by the direction the fee moved.",
		}, []string{"direction"}),
	}

	if reg != nil {
		reg.MustRegister(m.current, m.adjustments)
	}

	return &m
}

func (m *Metrics) observe(fee *uint256.Int) {
	if m == nil || fee == nil {
		return
	}

	f, _ := new(big.Float).SetInt(fee.ToBig()).Float64()
	m.current.Set(f)
}

func (m *Metrics) adjusted(prev, next *uint256.Int) {
	if m == nil {
		return
	}

	direction := "unchanged"
	switch prev.Cmp(next) {
	case -1:
		direction = "up"
	case 1:
		direction = "down"
	}

	m.adjustments.WithLabelValues(direction).Inc()
	m.observe(next)
}
