package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/healthsync/internal/domain"
)

var (
	recordsUpserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "sync",
		Name:      "records_upserted_total",
		Help:      "Number of health records upserted, labeled by stream.",
	}, []string{"stream"})

	fetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "sync",
		Name:      "fetch_errors_total",
		Help:      "Number of source fetch failures after retries, labeled by stream and kind.",
	}, []string{"stream", "kind"})

	skipForwards = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "sync",
		Name:      "skip_forwards_total",
		Help:      "Number of empty-streak skip-forward jumps, labeled by stream.",
	}, []string{"stream"})

	syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Number of completed sync runs, labeled by stream and result.",
	}, []string{"stream", "result"})

	lastSyncedDate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "healthsync",
		Subsystem: "sync",
		Name:      "last_synced_date_timestamp_seconds",
		Help:      "Unix timestamp of the most recent confirmed-synced date per stream.",
	}, []string{"stream"})
)

func init() {
	prometheus.MustRegister(recordsUpserted, fetchErrors, skipForwards, syncRuns, lastSyncedDate)
}

// RecordBatchPersisted updates the upsert counter and checkpoint watermark
// after a batch commits.
func RecordBatchPersisted(stream domain.StreamID, count int, through time.Time) {
	recordsUpserted.WithLabelValues(string(stream)).Add(float64(count))
	if !through.IsZero() {
		lastSyncedDate.WithLabelValues(string(stream)).Set(float64(through.Unix()))
	}
}

// RecordFetchError counts a fetch failure that exhausted its retries.
func RecordFetchError(stream domain.StreamID, kind string) {
	fetchErrors.WithLabelValues(string(stream), kind).Inc()
}

// RecordSkipForward counts an empty-streak cursor jump.
func RecordSkipForward(stream domain.StreamID) {
	skipForwards.WithLabelValues(string(stream)).Inc()
}

// RecordSyncRun counts a terminal sync outcome.
func RecordSyncRun(stream domain.StreamID, result string) {
	syncRuns.WithLabelValues(string(stream), result).Inc()
}
