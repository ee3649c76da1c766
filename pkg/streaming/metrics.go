package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tesla_streaming"

var (
	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "sessions_total",
		Help:      "Number of streaming sessions opened.",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "sessions_active",
		Help:      "Number of streaming sessions that have not finished.",
	})

	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "state_transitions_total",
		Help:      "Session state transitions, by destination state.",
	}, []string{"state"})

	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_total",
		Help:      "Events delivered to stream consumers, by kind.",
	}, []string{"kind"})

	droppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "dropped_frames_total",
		Help:      "Inbound frames that did not produce an event, by reason.",
	}, []string{"reason"})
)

const (
	dropDecode  = "decode"
	dropUnknown = "unknown_type"
	dropEmpty   = "empty_update"
)
