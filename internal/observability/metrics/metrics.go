package metrics

import "github.com/prometheus/client_golang/prometheus"

// PollMetrics exposes counters/gauges for the poll loop and its probes.
type PollMetrics struct {
	cyclesTotal   *prometheus.CounterVec
	probesTotal   *prometheus.CounterVec
	bookingsTotal *prometheus.CounterVec
	authTotal     prometheus.Counter
	errorStreak   prometheus.Gauge
}

func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	m := &PollMetrics{
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visabot",
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total poll cycles by outcome",
		}, []string{"outcome"}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visabot",
			Subsystem: "egress",
			Name:      "probes_total",
			Help:      "Total availability probes by egress path and status",
		}, []string{"path", "status"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visabot",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Total booking attempts by result",
		}, []string{"result"}),
		authTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visabot",
			Subsystem: "session",
			Name:      "auth_total",
			Help:      "Total session (re)authentications",
		}),
		errorStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "visabot",
			Subsystem: "poller",
			Name:      "error_streak",
			Help:      "Current consecutive-error count driving backoff",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.cyclesTotal, m.probesTotal, m.bookingsTotal, m.authTotal, m.errorStreak)
	return m
}

func (m *PollMetrics) ObserveCycle(outcome string) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(outcome).Inc()
}

func (m *PollMetrics) ObserveProbe(path, status string) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(path, status).Inc()
}

func (m *PollMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *PollMetrics) ObserveAuth() {
	if m == nil {
		return
	}
	m.authTotal.Inc()
}

func (m *PollMetrics) SetErrorStreak(n int) {
	if m == nil {
		return
	}
	m.errorStreak.Set(float64(n))
}
