// Package metrics exposes Prometheus instrumentation for the ticket
// lifecycle. Registration happens on first use via promauto against a
// dedicated registry so tests can create isolated metric sets.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the instrument set shared by the API handlers.
type Metrics struct {
	Registry *prometheus.Registry

	TicketsCreated    prometheus.Counter
	Transitions       *prometheus.CounterVec
	TransitionRejects *prometheus.CounterVec
	EcoPointsAwarded  prometheus.Counter
	EcoPointsRedeemed prometheus.Counter
	TicketFetches     prometheus.Counter
	TicketsByStatus   *prometheus.GaugeVec
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		TicketsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "wastetrace_tickets_created_total",
			Help: "Tickets created by citizens.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wastetrace_ticket_transitions_total",
			Help: "Accepted lifecycle transitions by target status.",
		}, []string{"status"}),
		TransitionRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wastetrace_ticket_transition_rejects_total",
			Help: "Rejected lifecycle transitions by reason.",
		}, []string{"reason"}),
		EcoPointsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "wastetrace_eco_points_awarded_total",
			Help: "Eco points credited to citizens on recycling completion.",
		}),
		EcoPointsRedeemed: factory.NewCounter(prometheus.CounterOpts{
			Name: "wastetrace_eco_points_redeemed_total",
			Help: "Eco points spent on voucher redemptions.",
		}),
		TicketFetches: factory.NewCounter(prometheus.CounterOpts{
			Name: "wastetrace_ticket_fetches_total",
			Help: "Full ticket-set fetches (client reconciliations).",
		}),
		TicketsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wastetrace_tickets",
			Help: "Current ticket count by lifecycle status.",
		}, []string{"status"}),
	}
}
