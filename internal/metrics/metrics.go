package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_events_received",
	Help: "Number of normalized events accepted into guild queues",
}, []string{"category"})

var EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_events_dropped",
	Help: "Number of events dropped before evaluation, by reason",
}, []string{"reason"})

var EventsExempt = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_events_exempt",
	Help: "Number of events short-circuited by the whitelist, by matching rule",
}, []string{"rule"})

var Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_verdicts",
	Help: "Number of verdicts produced, by category and kind",
}, []string{"category", "kind"})

var EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "modguard_evaluation_duration_sec",
	Help:    "Time from dequeue to verdict for one event",
	Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
})

var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modguard_queue_depth",
	Help: "Events waiting across all guild queues",
})

var ActiveCounters = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modguard_window_counters",
	Help: "Live sliding-window counters",
})

var ActionsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_actions_dispatched",
	Help: "Number of dispatch requests, by action and outcome",
}, []string{"action", "outcome"})

var ActionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_action_attempts",
	Help: "Number of platform calls made, including retries",
}, []string{"action"})

var PlatformRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "modguard_platform_request_duration_sec",
	Help: "Duration of platform REST calls",
}, []string{"route", "status"})

var AppealTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_appeal_transitions",
	Help: "Number of appeal state transitions",
}, []string{"from", "to"})
