package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "wish_console"

// Label values
const (
	resultSuccess    = "success"
	resultFailure    = "failure"
	resultSuperseded = "superseded"

	methodPassword = "password"
	methodOTP      = "otp"

	actionStart = "start"
	actionStop  = "stop"
)

// metrics is nil when WithMetrics was not given; every method is a no-op then
type metrics struct {
	logins         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	forcedLogouts  *prometheus.CounterVec
	impersonations *prometheus.CounterVec
}

func newMetrics(registry prometheus.Registerer) *metrics {
	factory := promauto.With(registry)

	return &metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Login attempts by method and result",
		}, []string{"method", "result"}),

		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refreshes_total",
			Help:      "Session refreshes by result",
		}, []string{"result"}),

		forcedLogouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "forced_logouts_total",
			Help:      "Sessions ended without the user asking, by reason",
		}, []string{"reason"}),

		impersonations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "impersonations_total",
			Help:      "Impersonation starts and stops by result",
		}, []string{"action", "result"}),
	}
}

func (m *metrics) login(method, result string) {
	if m != nil {
		m.logins.WithLabelValues(method, result).Inc()
	}
}

func (m *metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *metrics) forcedLogout(reason string) {
	if m != nil {
		m.forcedLogouts.WithLabelValues(reason).Inc()
	}
}

func (m *metrics) impersonation(action, result string) {
	if m != nil {
		m.impersonations.WithLabelValues(action, result).Inc()
	}
}

func resultOf(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}
