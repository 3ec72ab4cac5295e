// Package metrics exposes scheduling engine outcomes to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/salon-scheduling/internal/schedule"
	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

type Metrics struct {
	proposals     *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	sweepExpired  prometheus.Counter
	sweepDuration prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "scheduling",
			Name:      "proposals_total",
			Help:      "Propose calls by origin and result.",
		}, []string{"origin", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Appointment status transitions.",
		}, []string{"from", "to", "origin"}),
		sweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "scheduling",
			Name:      "holds_expired_total",
			Help:      "Holds expired by the sweep.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "scheduling",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one expiry sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.proposals, m.transitions, m.sweepExpired, m.sweepDuration, m.httpRequests, m.httpDuration)
	return m
}

func proposeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, schedule.ErrConflict):
		return "conflict"
	case errors.Is(err, timemodel.ErrInvalidInterval),
		errors.Is(err, schedule.ErrInvalidOrigin),
		errors.Is(err, schedule.ErrInvalidResource):
		return "invalid"
	case errors.Is(err, schedule.ErrResourceBusy):
		return "busy"
	case errors.Is(err, schedule.ErrStorage):
		return "storage_error"
	default:
		return "error"
	}
}

func (m *Metrics) ProposeResult(origin schedule.Origin, err error) {
	m.proposals.WithLabelValues(string(origin), proposeResult(err)).Inc()
}

func (m *Metrics) Transition(from, to schedule.AppointmentStatus, origin schedule.Origin) {
	m.transitions.WithLabelValues(string(from), string(to), string(origin)).Inc()
}

func (m *Metrics) Swept(expired int, elapsed time.Duration) {
	m.sweepExpired.Add(float64(expired))
	m.sweepDuration.Observe(elapsed.Seconds())
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(r *http.Request, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
}
