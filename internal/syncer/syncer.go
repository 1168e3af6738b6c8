package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/observability"
	"example.com/healthsync/internal/source"
)

// Store captures the persistence operations the sync loop depends on.
// SaveBatch must be atomic: records, checkpoint advance, and the outbox row
// commit together or not at all.
type Store interface {
	Checkpoint(ctx context.Context, stream domain.StreamID) (*domain.SyncCheckpoint, error)
	SaveBatch(ctx context.Context, stream domain.StreamID, records []domain.Record, through time.Time) error
	MarkProgress(ctx context.Context, stream domain.StreamID, through time.Time) error
	MarkCompleted(ctx context.Context, stream domain.StreamID, at time.Time) error
	MarkError(ctx context.Context, stream domain.StreamID, message string) error
}

// Config tunes the per-stream sync loop.
type Config struct {
	// Epoch is where a stream with no checkpoint starts probing.
	Epoch time.Time
	// EmptyStreakThreshold is the number of consecutive empty windows that
	// triggers a skip-forward. Zero or negative disables skipping, which is
	// what the backfill tool wants.
	EmptyStreakThreshold int
	// SkipForwardDays is how far the cursor jumps past the current position
	// when the empty streak threshold is hit.
	SkipForwardDays int
	// FetchAttempts is the total number of tries for a transient fetch
	// failure before the stream errors out.
	FetchAttempts int
	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration
}

const fallbackEpoch = "2015-01-01"

func (c Config) withDefaults() Config {
	if c.Epoch.IsZero() {
		c.Epoch, _ = time.Parse(domain.DateFormat, fallbackEpoch)
	}
	if c.SkipForwardDays <= 0 {
		c.SkipForwardDays = 30
	}
	if c.FetchAttempts <= 0 {
		c.FetchAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	return c
}

// Option configures optional behaviour for a StreamSyncer.
type Option func(*StreamSyncer)

// WithLogger overrides the logger used to report progress and errors.
func WithLogger(logger *log.Logger) Option {
	return func(s *StreamSyncer) {
		s.logger = logger
	}
}

// WithClock overrides the time source, fixing "today" in tests.
func WithClock(now func() time.Time) Option {
	return func(s *StreamSyncer) {
		s.now = now
	}
}

// StreamSyncer advances one stream from its checkpoint to the present,
// window by window.
type StreamSyncer struct {
	stream  domain.StreamID
	source  source.Client
	store   Store
	limiter *RateLimiter
	board   *StatusBoard
	cfg     Config
	logger  *log.Logger
	now     func() time.Time
}

// NewStreamSyncer constructs a syncer for one stream.
func NewStreamSyncer(stream domain.StreamID, src source.Client, store Store, limiter *RateLimiter, board *StatusBoard, cfg Config, opts ...Option) *StreamSyncer {
	s := &StreamSyncer{
		stream:  stream,
		source:  src,
		store:   store,
		limiter: limiter,
		board:   board,
		cfg:     cfg.withDefaults(),
		logger:  log.New(log.Writer(), "[syncer] ", log.LstdFlags),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the stream to "caught up" and publishes a terminal status. It
// blocks until done and is intended to run on its own goroutine.
func (s *StreamSyncer) Run(ctx context.Context) {
	today := domain.DateOnly(s.now())

	checkpoint, err := s.store.Checkpoint(ctx, s.stream)
	if err != nil {
		s.fail(ctx, fmt.Sprintf("loading checkpoint: %v", err))
		return
	}

	cursor := domain.DateOnly(s.cfg.Epoch)
	if checkpoint != nil && !checkpoint.LastSyncedDate.IsZero() {
		cursor = domain.DateOnly(checkpoint.LastSyncedDate).AddDate(0, 0, 1)
	}

	s.board.Set(StatusEntry{
		Stream:  s.stream,
		Status:  domain.SyncStatusSyncing,
		Message: fmt.Sprintf("starting at %s", cursor.Format(domain.DateFormat)),
	})

	emptyStreak := 0
	for !cursor.After(today) {
		// Cancellation point between windows.
		if err := ctx.Err(); err != nil {
			s.fail(ctx, fmt.Sprintf("sync cancelled: %v", err))
			return
		}

		records, err := s.fetchWindow(ctx, cursor)
		if err != nil {
			kind := "transient"
			if errors.Is(err, source.ErrPermanent) {
				kind = "permanent"
			}
			observability.RecordFetchError(s.stream, kind)
			s.fail(ctx, fmt.Sprintf("fetching %s: %v", cursor.Format(domain.DateFormat), err))
			return
		}

		if len(records) > 0 {
			if err := s.store.SaveBatch(ctx, s.stream, records, cursor); err != nil {
				s.fail(ctx, fmt.Sprintf("persisting %s: %v", cursor.Format(domain.DateFormat), err))
				return
			}
			emptyStreak = 0
			observability.RecordBatchPersisted(s.stream, len(records), cursor)
			s.progress(fmt.Sprintf("%d records synced through %s", len(records), cursor.Format(domain.DateFormat)))
		} else {
			if err := s.store.MarkProgress(ctx, s.stream, cursor); err != nil {
				s.fail(ctx, fmt.Sprintf("advancing checkpoint past %s: %v", cursor.Format(domain.DateFormat), err))
				return
			}
			emptyStreak++
			s.progress(fmt.Sprintf("no data for %s", cursor.Format(domain.DateFormat)))
		}

		if s.cfg.EmptyStreakThreshold > 0 && emptyStreak >= s.cfg.EmptyStreakThreshold {
			// Long quiet stretch: jump ahead instead of probing day by day.
			// The next persisted window advances the checkpoint past the gap.
			jumped := cursor.AddDate(0, 0, s.cfg.SkipForwardDays)
			s.logger.Printf("%s: %d empty days, skipping forward to %s", s.stream, emptyStreak, jumped.Format(domain.DateFormat))
			observability.RecordSkipForward(s.stream)
			cursor = jumped
			emptyStreak = 0
			continue
		}

		cursor = cursor.AddDate(0, 0, 1)
	}

	finishedAt := s.now().UTC()
	if err := s.store.MarkCompleted(ctx, s.stream, finishedAt); err != nil {
		s.fail(ctx, fmt.Sprintf("finalizing checkpoint: %v", err))
		return
	}
	observability.RecordSyncRun(s.stream, "done")
	s.board.Set(StatusEntry{
		Stream:     s.stream,
		Status:     domain.SyncStatusDone,
		Message:    "caught up",
		LastSyncAt: &finishedAt,
	})
}

// fetchWindow queries one day window, retrying transient failures with
// exponential backoff. Every attempt waits for the shared rate limiter so
// retries count against the source call budget too.
func (s *StreamSyncer) fetchWindow(ctx context.Context, day time.Time) ([]domain.Record, error) {
	var records []domain.Record

	operation := func() error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return backoff.Permanent(err)
		}
		fetched, err := s.source.FetchDay(ctx, s.stream, day)
		if err != nil {
			if errors.Is(err, source.ErrPermanent) {
				return backoff.Permanent(err)
			}
			s.logger.Printf("%s: fetch %s failed, will retry: %v", s.stream, day.Format(domain.DateFormat), err)
			return err
		}
		records = fetched
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryBaseDelay
	retries := uint64(s.cfg.FetchAttempts - 1)

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *StreamSyncer) progress(message string) {
	entry, _ := s.board.Get(s.stream)
	entry.Stream = s.stream
	entry.Status = domain.SyncStatusSyncing
	entry.Message = message
	s.board.Set(entry)
}

// fail records the terminal error on both the durable checkpoint row and the
// board. The checkpoint date itself is left wherever confirmed progress got
// to, so the next trigger resumes from the failed window.
func (s *StreamSyncer) fail(ctx context.Context, message string) {
	s.logger.Printf("%s: sync failed: %s", s.stream, message)
	observability.RecordSyncRun(s.stream, "error")

	// The durable error write must land even when the run context is gone.
	if err := s.store.MarkError(context.WithoutCancel(ctx), s.stream, message); err != nil {
		s.logger.Printf("%s: recording sync error: %v", s.stream, err)
	}
	s.board.Set(StatusEntry{
		Stream:       s.stream,
		Status:       domain.SyncStatusError,
		Message:      message,
		ErrorMessage: message,
	})
}
