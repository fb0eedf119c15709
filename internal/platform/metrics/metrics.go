package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "list_status_transitions_total",
		Help: "Completed list status transitions by target status.",
	}, []string{"status"})

	ListReuses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "list_reuses_total",
		Help: "Completed lists copied back into a draft.",
	})

	AutosavePuts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autosave_puts_total",
		Help: "Autosave draft upserts accepted by the server.",
	})

	AutosaveResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autosave_resets_total",
		Help: "Autosave draft resets after activation.",
	})

	TabEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tab_events_published_total",
		Help: "Tab-sync events published, by event type.",
	}, []string{"type"})

	TabEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tab_events_received_total",
		Help: "Tab-sync events delivered to a subscriber, by event type.",
	}, []string{"type"})

	ConflictResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draft_conflict_resolutions_total",
		Help: "Draft reconciliation outcomes at agent startup.",
	}, []string{"outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
