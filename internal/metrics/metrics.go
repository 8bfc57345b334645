// Package metrics provides Prometheus metrics for activity lifecycles and
// supervised processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "liveactivity"

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "activity",
		Name:      "transitions_total",
		Help:      "Lifecycle goal requests by goal and evaluation result",
	}, []string{"goal", "result"})

	activityState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "activity",
		Name:      "state",
		Help:      "Current lifecycle state of an activity as its numeric state code",
	}, []string{"activity"})

	componentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "component",
		Name:      "failures_total",
		Help:      "Component operation failures",
	}, []string{"component", "operation"})

	processLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "launches_total",
		Help:      "Initial process launches by outcome",
	}, []string{"process", "outcome"})

	processRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "restarts_total",
		Help:      "Completed restart attempts by outcome (success, abandoned)",
	}, []string{"process", "outcome"})
)

// RecordTransition counts a goal request.
func RecordTransition(goal, result string) {
	transitionsTotal.WithLabelValues(goal, result).Inc()
}

// SetActivityState records the numeric state of an activity.
func SetActivityState(activity string, state int) {
	activityState.WithLabelValues(activity).Set(float64(state))
}

// DeleteActivity removes an activity's state series.
func DeleteActivity(activity string) {
	activityState.DeleteLabelValues(activity)
}

// RecordComponentFailure counts a failed configure, start or stop.
func RecordComponentFailure(component, operation string) {
	componentFailures.WithLabelValues(component, operation).Inc()
}

// RecordProcessLaunch counts a first launch.
func RecordProcessLaunch(process, outcome string) {
	processLaunches.WithLabelValues(process, outcome).Inc()
}

// RecordProcessRestart counts the end of a restart attempt.
func RecordProcessRestart(process, outcome string) {
	processRestarts.WithLabelValues(process, outcome).Inc()
}
