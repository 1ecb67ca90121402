package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soonish",
		Subsystem: "notify",
		Name:      "notifications_delivered_total",
		Help:      "Number of overlap notifications successfully published, labeled by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soonish",
		Subsystem: "notify",
		Name:      "notifications_failed_total",
		Help:      "Number of overlap notification publishes that failed, labeled by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter)
}

func recordDelivered(eventType string, count int) {
	deliveredCounter.WithLabelValues(eventType).Add(float64(count))
}

func recordDeliveryFailure(eventType string) {
	failedCounter.WithLabelValues(eventType).Inc()
}
