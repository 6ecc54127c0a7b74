package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCollector exposes engagement-session metrics. It satisfies the
// session manager's metrics recorder, and every method is safe on a nil
// receiver.
type SessionCollector struct {
	gatherer prometheus.Gatherer

	Sessions         prometheus.Gauge
	SessionsRunning  prometheus.Gauge
	Ticks            *prometheus.CounterVec
	Outcomes         *prometheus.CounterVec
	ObserverFailures *prometheus.CounterVec
	TickCompute      prometheus.Histogram
}

// NewSessionCollector registers session metrics against the provided
// registerer, defaulting to the global registry when nil.
func NewSessionCollector(reg prometheus.Registerer) (*SessionCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	sessions, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sandbox_sessions",
		Help: "Number of engagement sessions currently registered.",
	}), "sandbox_sessions")
	if err != nil {
		return nil, err
	}

	running, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sandbox_sessions_running",
		Help: "Number of sessions with a live tick loop.",
	}), "sandbox_sessions_running")
	if err != nil {
		return nil, err
	}

	ticks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_ticks_total",
		Help: "Resolved ticks, labeled by matchup state.",
	}, []string{"state"}), "sandbox_ticks_total")
	if err != nil {
		return nil, err
	}

	outcomes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_outcomes_total",
		Help: "Finished engagements, labeled by terminal outcome.",
	}, []string{"outcome"}), "sandbox_outcomes_total")
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_observer_failures_total",
		Help: "Observer callbacks that panicked, labeled by callback.",
	}, []string{"callback"}), "sandbox_observer_failures_total")
	if err != nil {
		return nil, err
	}

	compute, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sandbox_tick_compute_seconds",
		Help:    "Time spent resolving a single tick, excluding pacing.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}), "sandbox_tick_compute_seconds")
	if err != nil {
		return nil, err
	}

	return &SessionCollector{
		gatherer:         gatherer,
		Sessions:         sessions,
		SessionsRunning:  running,
		Ticks:            ticks,
		Outcomes:         outcomes,
		ObserverFailures: failures,
		TickCompute:      compute,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SessionCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetSessions updates the registered-session gauge.
func (c *SessionCollector) SetSessions(n int) {
	if c == nil || c.Sessions == nil {
		return
	}
	c.Sessions.Set(float64(n))
}

// SetRunning updates the live-loop gauge.
func (c *SessionCollector) SetRunning(n int) {
	if c == nil || c.SessionsRunning == nil {
		return
	}
	c.SessionsRunning.Set(float64(n))
}

// ObserveTick counts a resolved tick and its compute time.
func (c *SessionCollector) ObserveTick(state string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Ticks != nil {
		c.Ticks.WithLabelValues(state).Inc()
	}
	if c.TickCompute != nil {
		c.TickCompute.Observe(d.Seconds())
	}
}

// IncOutcome counts a finished engagement.
func (c *SessionCollector) IncOutcome(outcome string) {
	if c == nil || c.Outcomes == nil {
		return
	}
	c.Outcomes.WithLabelValues(outcome).Inc()
}

// IncObserverFailure counts a recovered observer panic.
func (c *SessionCollector) IncObserverFailure(callback string) {
	if c == nil || c.ObserverFailures == nil {
		return
	}
	c.ObserverFailures.WithLabelValues(callback).Inc()
}
