package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/okwaro/pesasentinel/internal/domain/alert"
	"github.com/okwaro/pesasentinel/internal/service/alerts"
)

// Prometheus metrics exposed on /metrics alongside the OTel registry.

var (
	alertsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "alerts",
			Name:      "delivered_total",
			Help:      "Total alerts handed to the delivery channel",
		},
		[]string{"type", "severity"},
	)

	alertsBySeverity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentinel",
			Subsystem: "alerts",
			Name:      "last_delivery_timestamp_seconds",
			Help:      "Unix time of the most recent alert delivery per severity",
		},
		[]string{"severity"},
	)
)

// newPromNotifier counts deliveries instead of sending them anywhere. The
// delivery integration (SMS gateway, USSD broadcast) plugs in here.
func newPromNotifier() alerts.Notifier {
	return alerts.NotifierFunc(func(a alert.Alert) {
		alertsDelivered.WithLabelValues(a.Type, string(a.Severity)).Inc()
		alertsBySeverity.WithLabelValues(string(a.Severity)).Set(float64(a.CreatedAt.Unix()))
	})
}
