package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CollectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labwatch_collections_total",
		Help: "Agent collection runs by agent id and outcome.",
	}, []string{"agent", "status"})

	SamplesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labwatch_metric_samples_written_total",
		Help: "Metric samples appended to the store.",
	})

	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labwatch_alerts_triggered_total",
		Help: "Alerts created, by severity.",
	}, []string{"severity"})

	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labwatch_alerts_suppressed_total",
		Help: "Alerts persisted but withheld from notification by correlation.",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labwatch_notifications_total",
		Help: "Notification delivery attempts by service type and outcome.",
	}, []string{"service_type", "outcome"})
)
