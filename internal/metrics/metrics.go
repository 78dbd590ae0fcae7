package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "token_authority"

// Result labels for grant outcomes.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Revocation scope labels.
const (
	ScopeToken   = "token"
	ScopeDevice  = "device"
	ScopeOthers  = "others"
	ScopeSubject = "subject"
)

// Metrics holds the collectors for the authority. A nil *Metrics is valid and
// records nothing, so components can be constructed without one.
type Metrics struct {
	registry            *prometheus.Registry
	grantsTotal         *prometheus.CounterVec
	lockoutActivations  prometheus.Counter
	tokensRevokedTotal  *prometheus.CounterVec
	tokensPrunedTotal   prometheus.Counter
	blacklistRejections prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		grantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grants",
				Name:      "total",
				Help:      "Token grant requests partitioned by grant type and result.",
			},
			[]string{"grant_type", "result"},
		),
		lockoutActivations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lockout",
				Name:      "activations_total",
				Help:      "Number of times an account crossed the failed login threshold.",
			},
		),
		tokensRevokedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tokens",
				Name:      "revoked_total",
				Help:      "Tokens moved to revoked partitioned by revocation scope.",
			},
			[]string{"scope"},
		),
		tokensPrunedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tokens",
				Name:      "pruned_total",
				Help:      "Expired tokens deleted by the prune sweep.",
			},
		),
		blacklistRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "blacklist",
				Name:      "rejections_total",
				Help:      "Bearer tokens rejected because their subject is blacklisted.",
			},
		),
	}
}

func (m *Metrics) ObserveGrant(grantType, result string) {
	if m == nil {
		return
	}
	m.grantsTotal.WithLabelValues(grantType, result).Inc()
}

func (m *Metrics) IncLockoutActivation() {
	if m == nil {
		return
	}
	m.lockoutActivations.Inc()
}

func (m *Metrics) AddRevoked(scope string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensRevokedTotal.WithLabelValues(scope).Add(float64(n))
}

func (m *Metrics) AddPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensPrunedTotal.Add(float64(n))
}

func (m *Metrics) IncBlacklistRejection() {
	if m == nil {
		return
	}
	m.blacklistRejections.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
