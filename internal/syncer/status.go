package syncer

import (
	"sort"
	"sync"
	"time"

	"example.com/healthsync/internal/domain"
)

// StatusEntry is the live, in-memory progress of one stream's sync. The
// running StreamSyncer is the only writer for its stream; polling observers
// read snapshots concurrently.
type StatusEntry struct {
	Stream       domain.StreamID
	Status       domain.SyncStatus
	Message      string
	LastSyncAt   *time.Time
	ErrorMessage string
}

// StatusBoard is a concurrency-safe map of stream ID to StatusEntry.
type StatusBoard struct {
	mu      sync.RWMutex
	entries map[domain.StreamID]StatusEntry
}

// NewStatusBoard constructs an empty board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{entries: make(map[domain.StreamID]StatusEntry)}
}

// Set replaces the entry for a stream.
func (b *StatusBoard) Set(entry StatusEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[entry.Stream] = entry
}

// Get returns the entry for a stream, if present.
func (b *StatusBoard) Get(stream domain.StreamID) (StatusEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[stream]
	return entry, ok
}

// Snapshot returns a consistent copy of all entries ordered by stream ID.
// The copy never mutates under the reader.
func (b *StatusBoard) Snapshot() []StatusEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]StatusEntry, 0, len(b.entries))
	for _, entry := range b.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out
}
