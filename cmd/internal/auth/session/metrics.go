package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts service outcomes per operation. A nil *Metrics is a no-op.
type Metrics struct {
	outcomes *prometheus.CounterVec
}

// NewMetrics registers the session counters on reg.
// A nil reg yields unregistered (but usable) collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authd",
			Subsystem: "session",
			Name:      "outcomes_total",
			Help:      "Session operations by operation and result.",
		}, []string{"op", "result"}),
	}
	if reg == nil {
		return m, nil
	}
	if err := reg.Register(m.outcomes); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				m.outcomes = existing
				return m, nil
			}
		}
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(op, outcome(err)).Inc()
}

// outcome is a low-cardinality label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
