package mid

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/crossledger/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the request metrics of a web app. A nil value records
// nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	panics   prometheus.Counter
}

// NewMetrics constructs and registers the request metrics for the named api.
func NewMetrics(reg prometheus.Registerer, api string) *Metrics {
	labels := prometheus.Labels{"api": api}

	m := Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crossledger",
			Subsystem:   "web",
			Name:        "requests_total",
			Help:        "Requests handled segmented by method and status code.",
			ConstLabels: labels,
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "crossledger",
			Subsystem:   "web",
			Name:        "request_duration_seconds",
			Help:        "Time spent handling requests.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "crossledger",
			Subsystem:   "web",
			Name:        "panics_total",
			Help:        "Handlers that panicked.",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.panics)
	}

	return &m
}

func (m *Metrics) panicked() {
	if m == nil {
		return
	}
	m.panics.Inc()
}

// Measure updates program counters for every request.
func Measure(metrics *Metrics) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)

			if metrics == nil {
				return err
			}

			v, verr := web.GetValues(ctx)
			if verr != nil {
				return err
			}

			metrics.requests.WithLabelValues(r.Method, strconv.Itoa(v.StatusCode)).Inc()
			metrics.duration.WithLabelValues(r.Method).Observe(time.Since(v.Now).Seconds())

			return err
		}

		return h
	}

	return m
}
