package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of outbox event batches that failed to publish and will be retried.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter)
}
