// Package metrics exposes pipeline observability counters.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "alertmirror_"

// Drop reasons, matching the error taxonomy.
const (
	ReasonFiltered        = "filtered"
	ReasonDebounced       = "debounced"
	ReasonBodyUnavailable = "body_unavailable"
	ReasonMalformed       = "malformed"
	ReasonLostCorrelation = "lost_correlation"
	ReasonStorage         = "storage"
)

var (
	registerOnce sync.Once

	eventsObserved *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	mergesTotal    *prometheus.CounterVec
	attachedTabs   prometheus.Gauge
)

// Init registers the pipeline metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		eventsObserved = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "network_events_total",
				Help: "Network instrumentation events observed by stage",
			},
			[]string{"stage"},
		)
		eventsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_dropped_total",
				Help: "Events dropped before merging, by reason",
			},
			[]string{"reason"},
		)
		mergesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "merges_total",
				Help: "Successful merges into the durable store by operation",
			},
			[]string{"operation"},
		)
		attachedTabs = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "attached_tabs",
				Help: "Tabs currently attached for network interception",
			},
		)

		prometheus.MustRegister(eventsObserved, eventsDropped, mergesTotal, attachedTabs)
	})
}

// ObserveEvent counts an intercepted request or response event.
func ObserveEvent(stage string) {
	if eventsObserved != nil {
		eventsObserved.WithLabelValues(stage).Inc()
	}
}

// DropEvent counts a dropped event by taxonomy reason.
func DropEvent(reason string) {
	if eventsDropped != nil {
		eventsDropped.WithLabelValues(reason).Inc()
	}
}

// Merge counts a successful store merge by operation suffix.
func Merge(operation string) {
	if mergesTotal != nil {
		mergesTotal.WithLabelValues(operation).Inc()
	}
}

// TabAttached adjusts the attached-tab gauge.
func TabAttached(delta int) {
	if attachedTabs != nil {
		attachedTabs.Add(float64(delta))
	}
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
