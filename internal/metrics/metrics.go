// Package metrics defines the Prometheus collectors shared by the client
// services. Collectors are registered on an injected registry so tests and
// multiple clients in one process do not collide on the global one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "aivedha"

type Metrics struct {
	CryptoFallbacks    *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
	SubscriptionSyncs  *prometheus.CounterVec
	CreditDeductions   prometheus.Counter
	AdminDecisions     *prometheus.CounterVec
	AuditStarts        *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CryptoFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential_store",
			Name:      "crypto_fallbacks_total",
			Help:      "Sensitive values stored or read without encryption after a crypto failure.",
		}, []string{"op"}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"state"}),
		SubscriptionSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "refresh_total",
			Help:      "Subscription refresh attempts by outcome.",
		}, []string{"outcome"}),
		CreditDeductions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "optimistic_deductions_total",
			Help:      "Credits deducted locally ahead of server confirmation.",
		}),
		AdminDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin_guard",
			Name:      "decisions_total",
			Help:      "Admin guard decisions by resulting state.",
		}, []string{"state"}),
		AuditStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "starts_total",
			Help:      "Audit start attempts by region and outcome.",
		}, []string{"region", "outcome"}),
	}

	reg.MustRegister(
		m.CryptoFallbacks,
		m.SessionTransitions,
		m.SubscriptionSyncs,
		m.CreditDeductions,
		m.AdminDecisions,
		m.AuditStarts,
	)
	return m
}

// NewUnregistered returns collectors bound to a private registry, for callers
// that never expose them.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
