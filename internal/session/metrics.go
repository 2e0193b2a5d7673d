package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts registry and lock activity. All fields are optional; a nil
// Metrics disables collection.
type Metrics struct {
	SessionsCreated   prometheus.Counter
	SessionsExpired   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	LocksAcquired     prometheus.Counter
	LocksContended    prometheus.Counter
	LockPermission    prometheus.Counter
}

// NewMetrics builds and registers the session metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fmusd_sessions_created_total",
			Help: "Sessions created.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fmusd_sessions_expired_total",
			Help: "Sessions destroyed because their TTL elapsed.",
		}),
		SessionsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fmusd_sessions_destroyed_total",
			Help: "Sessions destroyed explicitly.",
		}),
		LocksAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fmusd_project_locks_acquired_total",
			Help: "Project directory locks acquired.",
		}),
		LocksContended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fmusd_project_locks_contended_total",
			Help: "Project attaches that proceeded read-only due to lock contention.",
		}),
		LockPermission: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fmusd_project_lock_permission_errors_total",
			Help: "Lock acquisitions rejected for insufficient directory permissions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SessionsCreated, m.SessionsExpired, m.SessionsDestroyed,
			m.LocksAcquired, m.LocksContended, m.LockPermission,
		)
	}
	return m
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func (m *Metrics) incCreated() {
	if m != nil {
		inc(m.SessionsCreated)
	}
}

func (m *Metrics) incExpired() {
	if m != nil {
		inc(m.SessionsExpired)
	}
}

func (m *Metrics) incDestroyed() {
	if m != nil {
		inc(m.SessionsDestroyed)
	}
}

func (m *Metrics) incLockAcquired() {
	if m != nil {
		inc(m.LocksAcquired)
	}
}

func (m *Metrics) incLockContended() {
	if m != nil {
		inc(m.LocksContended)
	}
}

func (m *Metrics) incLockPermission() {
	if m != nil {
		inc(m.LockPermission)
	}
}
