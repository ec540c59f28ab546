// Package metrics exposes the proxy's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebservicesCalls counts DSO calls by operation and outcome.
	WebservicesCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sgeproxy",
		Name:      "webservices_calls_total",
		Help:      "DSO web service calls by operation and terminal status.",
	}, []string{"webservice", "status"})

	// NotAuthorized counts refused operations by reason.
	NotAuthorized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sgeproxy",
		Name:      "not_authorized_total",
		Help:      "Operations refused for lack of a valid consent.",
	}, []string{"reason"})

	// StreamFiles counts ingested inbox files by outcome.
	StreamFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sgeproxy",
		Name:      "stream_files_total",
		Help:      "Inbox files by ingestion outcome.",
	}, []string{"outcome"})

	// StreamRecords counts records emitted by the stream parsers.
	StreamRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sgeproxy",
		Name:      "stream_records_total",
		Help:      "Records emitted by stream parsers.",
	})

	// Deliveries counts subscription deliveries by outcome.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sgeproxy",
		Name:      "deliveries_total",
		Help:      "Subscription deliveries by outcome.",
	}, []string{"outcome"})

	// DeliveredRecords counts records sent to subscribers.
	DeliveredRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sgeproxy",
		Name:      "delivered_records_total",
		Help:      "Records delivered to subscribers.",
	})
)
