package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_generation_triggers_total",
		Help: "Total number of generation start requests by kind and result.",
	}, []string{"kind", "result"})
	sessionInitializationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_session_initializations_total",
		Help: "Total number of session initialization requests by result.",
	}, []string{"result"})
	locationSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_location_syncs_total",
		Help: "Total number of location sync requests by result.",
	}, []string{"result"})
)
