package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateConflictsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaign_generation_state_conflicts_total",
		Help: "Total number of generation status updates dropped as illegal transitions.",
	})

	pollRetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaign_generation_poll_retries_exhausted_total",
		Help: "Total number of status polls that exhausted all retry attempts.",
	})

	initializerRaceLosses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaign_session_initializer_race_losses_total",
		Help: "Total number of session initializations that lost the race to a concurrent request.",
	})

	staleLocationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaign_location_stale_fallbacks_total",
		Help: "Total number of location reads served from the local cache after a remote failure.",
	})
)
