package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/source"
)

var (
	// ErrSyncInProgress is returned when a stream is triggered while its
	// previous sync is still running. Triggers are rejected, never queued.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrUnknownStream is returned for stream IDs outside the known set.
	ErrUnknownStream = errors.New("unknown stream")
)

// Orchestrator launches per-stream sync loops, guaranteeing at most one
// in-flight sync per stream. All loops share one rate limiter and one
// status board.
type Orchestrator struct {
	source  source.Client
	store   Store
	limiter *RateLimiter
	board   *StatusBoard
	cfg     Config
	logger  *log.Logger
	opts    []Option

	mu       sync.Mutex
	inFlight map[domain.StreamID]struct{}
	wg       sync.WaitGroup
}

// NewOrchestrator constructs an Orchestrator. The supplied options are
// passed through to every StreamSyncer it launches.
func NewOrchestrator(src source.Client, store Store, limiter *RateLimiter, board *StatusBoard, cfg Config, opts ...Option) *Orchestrator {
	return &Orchestrator{
		source:   src,
		store:    store,
		limiter:  limiter,
		board:    board,
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[orchestrator] ", log.LstdFlags),
		opts:     opts,
		inFlight: make(map[domain.StreamID]struct{}),
	}
}

// SyncStream starts an asynchronous sync for one stream. It returns
// immediately; progress is observable only through Status. A stream already
// syncing is rejected with ErrSyncInProgress.
func (o *Orchestrator) SyncStream(ctx context.Context, stream domain.StreamID) error {
	if !domain.KnownStream(stream) {
		return fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}

	o.mu.Lock()
	if _, running := o.inFlight[stream]; running {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSyncInProgress, stream)
	}
	o.inFlight[stream] = struct{}{}
	o.wg.Add(1)
	o.mu.Unlock()

	runner := NewStreamSyncer(stream, o.source, o.store, o.limiter, o.board, o.cfg, o.opts...)

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.inFlight, stream)
			o.mu.Unlock()
			o.wg.Done()
		}()
		runner.Run(ctx)
	}()

	return nil
}

// SyncAll triggers every known stream and returns the ones actually started.
// Streams already in flight are skipped; an error from one stream never
// affects its siblings.
func (o *Orchestrator) SyncAll(ctx context.Context) []domain.StreamID {
	started := make([]domain.StreamID, 0, len(domain.Streams()))
	for _, stream := range domain.Streams() {
		if err := o.SyncStream(ctx, stream); err != nil {
			o.logger.Printf("skipping %s: %v", stream, err)
			continue
		}
		started = append(started, stream)
	}
	return started
}

// Status returns a consistent snapshot of the live board.
func (o *Orchestrator) Status() []StatusEntry {
	return o.board.Snapshot()
}

// Wait blocks until all in-flight syncs have finished. Used for graceful
// shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
