package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvitationsCreated counts successfully created invitations.
	InvitationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rosterkit_invitations_created_total",
		Help: "Total number of invitations created.",
	})

	// StatusTransitions counts applied status transitions by target state.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosterkit_invitation_transitions_total",
		Help: "Total number of applied invitation status transitions.",
	}, []string{"to"})

	// DeliveryFailures counts notifier failures on send.
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rosterkit_invitation_delivery_failures_total",
		Help: "Total number of failed invitation delivery attempts.",
	})
)
