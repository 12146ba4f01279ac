package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutboxPublished counts outbox entries confirmed on the broker.
	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docflow_outbox_published_total",
		Help: "Outbox entries successfully published to the broker.",
	})

	// OutboxFailed counts entries given up on after the publish retry budget.
	OutboxFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docflow_outbox_failed_total",
		Help: "Outbox entries marked failed after exhausting publish retries.",
	})

	// EventsApplied counts projection applies by topic.
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_events_applied_total",
		Help: "Events applied to the read store.",
	}, []string{"topic"})

	// ApplyFailures counts projection applies that errored.
	ApplyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_apply_failures_total",
		Help: "Projection applies that returned an error.",
	}, []string{"topic"})
)
