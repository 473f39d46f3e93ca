package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueMetrics counts message queue outcomes by message type.
type QueueMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewQueueMetrics registers the queue outcome counters on the provided registerer.
func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	if reg == nil {
		return &QueueMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queued_message_outcomes_total",
		Help: "Terminal outcomes of queued WhatsApp messages.",
	}, []string{"type", "outcome"})
	reg.MustRegister(outcomes)
	return &QueueMetrics{outcomes: outcomes}
}

// IncOutcome counts one terminal transition for the given message type.
func (q *QueueMetrics) IncOutcome(messageType, outcome string) {
	if q == nil || q.outcomes == nil {
		return
	}
	q.outcomes.WithLabelValues(normalizeLabel(messageType), normalizeLabel(outcome)).Inc()
}
