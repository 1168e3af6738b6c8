// Package domain defines the data types shared across the health sync service.
package domain

import "time"

// StreamID identifies one synchronized Garmin data type.
type StreamID string

const (
	StreamActivities StreamID = "activities"
	StreamSleep      StreamID = "sleep"
	StreamDaily      StreamID = "daily"
	StreamHeartRate  StreamID = "heart_rate"
	StreamBody       StreamID = "body"
)

// Streams returns the canonical ordered list of known streams.
func Streams() []StreamID {
	return []StreamID{StreamActivities, StreamSleep, StreamDaily, StreamHeartRate, StreamBody}
}

// KnownStream reports whether id names a synchronized stream.
func KnownStream(id StreamID) bool {
	for _, s := range Streams() {
		if s == id {
			return true
		}
	}
	return false
}

// SyncStatus is the lifecycle state of a stream's sync.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusDone    SyncStatus = "done"
	SyncStatusError   SyncStatus = "error"
)

// SyncCheckpoint is the durable per-stream cursor stored in sync_log.
// LastSyncedDate is the inclusive upper bound of confirmed-persisted data
// and never regresses.
type SyncCheckpoint struct {
	Stream         StreamID
	LastSyncedDate time.Time
	LastSyncAt     *time.Time
	Status         SyncStatus
	ErrorMessage   *string
	UpdatedAt      time.Time
}
