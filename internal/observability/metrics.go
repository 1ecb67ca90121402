// Package observability exposes Prometheus instrumentation shared across the
// feed engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	liveViewsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "soonish",
		Subsystem: "feed",
		Name:      "live_views",
		Help:      "Number of viewers with materialized live-view state.",
	})
	livePlansGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "soonish",
		Subsystem: "feed",
		Name:      "live_plan_entries",
		Help:      "Total plan entries across all live views.",
	})
	sweepExpiredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "soonish",
		Subsystem: "feed",
		Name:      "sweep_expired_total",
		Help:      "Plans removed from live views by the expiry reconciler.",
	})
	sweepReleasedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "soonish",
		Subsystem: "feed",
		Name:      "sweep_released_views_total",
		Help:      "Idle live views garbage-collected by the reconciler.",
	})
	overlapsDetectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "soonish",
		Subsystem: "overlap",
		Name:      "detected_total",
		Help:      "Overlap records detected.",
	})
	overlapsRetiredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "soonish",
		Subsystem: "overlap",
		Name:      "retired_total",
		Help:      "Overlap records retired.",
	})
	overlapsLiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "soonish",
		Subsystem: "overlap",
		Name:      "live_records",
		Help:      "Currently live overlap records.",
	})
	friendLookupStaleCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "soonish",
		Subsystem: "friendgraph",
		Name:      "stale_lookups_total",
		Help:      "Friend-graph lookups served from the last known good value.",
	})
)

func init() {
	prometheus.MustRegister(
		liveViewsGauge,
		livePlansGauge,
		sweepExpiredCounter,
		sweepReleasedCounter,
		overlapsDetectedCounter,
		overlapsRetiredCounter,
		overlapsLiveGauge,
		friendLookupStaleCounter,
	)
}

// RecordLiveViews publishes the current view and entry counts.
func RecordLiveViews(views, planEntries int) {
	liveViewsGauge.Set(float64(views))
	livePlansGauge.Set(float64(planEntries))
}

// RecordSweep accounts for one reconciler pass.
func RecordSweep(expired, releasedViews int) {
	if expired > 0 {
		sweepExpiredCounter.Add(float64(expired))
	}
	if releasedViews > 0 {
		sweepReleasedCounter.Add(float64(releasedViews))
	}
}

// RecordOverlapDetected counts a newly detected overlap.
func RecordOverlapDetected(liveRecords int) {
	overlapsDetectedCounter.Inc()
	overlapsLiveGauge.Set(float64(liveRecords))
}

// RecordOverlapRetired counts a retired overlap.
func RecordOverlapRetired(liveRecords int) {
	overlapsRetiredCounter.Inc()
	overlapsLiveGauge.Set(float64(liveRecords))
}

// RecordStaleFriendLookup counts a lookup answered from cached state.
func RecordStaleFriendLookup() {
	friendLookupStaleCounter.Inc()
}
