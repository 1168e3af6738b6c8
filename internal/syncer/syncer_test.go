package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/source"
)

func day(value string) time.Time {
	parsed, err := time.Parse(domain.DateFormat, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

type stubSource struct {
	mu        sync.Mutex
	fetched   []time.Time
	records   map[string][]domain.Record
	errs      map[string]error
	failTimes map[string]int
	failWith  error
}

func newStubSource() *stubSource {
	return &stubSource{
		records:   make(map[string][]domain.Record),
		errs:      make(map[string]error),
		failTimes: make(map[string]int),
	}
}

func (s *stubSource) withData(dates ...string) *stubSource {
	for _, d := range dates {
		s.records[d] = []domain.Record{domain.Sleep{CalendarDate: day(d)}}
	}
	return s
}

func (s *stubSource) FetchDay(_ context.Context, _ domain.StreamID, date time.Time) ([]domain.Record, error) {
	key := date.Format(domain.DateFormat)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, date)

	if s.failTimes[key] > 0 {
		s.failTimes[key]--
		return nil, s.failWith
	}
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	return s.records[key], nil
}

func (s *stubSource) fetchedDates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.fetched))
	for _, d := range s.fetched {
		out = append(out, d.Format(domain.DateFormat))
	}
	return out
}

type savedBatch struct {
	through time.Time
	count   int
}

type memStore struct {
	mu          sync.Mutex
	checkpoint  *domain.SyncCheckpoint
	saved       []savedBatch
	progress    []time.Time
	completedAt *time.Time
	errorMsg    string

	// failSaveOn makes the nth SaveBatch call (1-based) return saveErr.
	failSaveOn int
	saveErr    error
}

func (m *memStore) Checkpoint(_ context.Context, stream domain.StreamID) (*domain.SyncCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkpoint == nil {
		return nil, nil
	}
	cp := *m.checkpoint
	return &cp, nil
}

func (m *memStore) advance(stream domain.StreamID, through time.Time) {
	if m.checkpoint == nil {
		m.checkpoint = &domain.SyncCheckpoint{Stream: stream}
	}
	if through.After(m.checkpoint.LastSyncedDate) {
		m.checkpoint.LastSyncedDate = through
	}
	m.checkpoint.Status = domain.SyncStatusSyncing
}

func (m *memStore) SaveBatch(_ context.Context, stream domain.StreamID, records []domain.Record, through time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveOn > 0 && len(m.saved)+1 == m.failSaveOn {
		return m.saveErr
	}
	m.saved = append(m.saved, savedBatch{through: through, count: len(records)})
	m.advance(stream, through)
	return nil
}

func (m *memStore) MarkProgress(_ context.Context, stream domain.StreamID, through time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, through)
	m.advance(stream, through)
	return nil
}

func (m *memStore) MarkCompleted(_ context.Context, stream domain.StreamID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedAt = &at
	if m.checkpoint != nil {
		m.checkpoint.Status = domain.SyncStatusDone
	}
	return nil
}

func (m *memStore) MarkError(_ context.Context, stream domain.StreamID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsg = message
	if m.checkpoint != nil {
		m.checkpoint.Status = domain.SyncStatusError
	}
	return nil
}

func newTestSyncer(stream domain.StreamID, src source.Client, store Store, board *StatusBoard, cfg Config, today string) *StreamSyncer {
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	now := day(today)
	return NewStreamSyncer(stream, src, store, NewRateLimiter(0), board, cfg,
		WithClock(func() time.Time { return now }))
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	src := newStubSource().withData("2024-03-12", "2024-03-14")
	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamSleep,
		LastSyncedDate: day("2024-03-10"),
		Status:         domain.SyncStatusDone,
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{EmptyStreakThreshold: 14}, "2024-03-15")
	s.Run(context.Background())

	require.Equal(t, []string{"2024-03-11", "2024-03-12", "2024-03-13", "2024-03-14", "2024-03-15"}, src.fetchedDates())
	require.Len(t, store.saved, 2)
	require.Equal(t, day("2024-03-15"), store.checkpoint.LastSyncedDate)
	require.NotNil(t, store.completedAt)

	entry, ok := board.Get(domain.StreamSleep)
	require.True(t, ok)
	require.Equal(t, domain.SyncStatusDone, entry.Status)
	require.Equal(t, "caught up", entry.Message)
}

func TestRunUpsertsEveryWindowWithData(t *testing.T) {
	src := newStubSource().withData("2024-01-11", "2024-01-12", "2024-01-13", "2024-01-14", "2024-01-15")
	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamSleep,
		LastSyncedDate: day("2024-01-10"),
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{EmptyStreakThreshold: 14}, "2024-01-15")
	s.Run(context.Background())

	require.Len(t, store.saved, 5)
	require.Equal(t, day("2024-01-15"), store.checkpoint.LastSyncedDate)
	require.Equal(t, domain.SyncStatusDone, store.checkpoint.Status)
}

func TestWriteFailureKeepsConfirmedProgress(t *testing.T) {
	src := newStubSource().withData("2024-03-13", "2024-03-14", "2024-03-15")
	store := &memStore{
		checkpoint: &domain.SyncCheckpoint{
			Stream:         domain.StreamSleep,
			LastSyncedDate: day("2024-03-12"),
		},
		failSaveOn: 3,
		saveErr:    fmt.Errorf("connection reset by peer"),
	}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{EmptyStreakThreshold: 14}, "2024-03-15")
	s.Run(context.Background())

	// The first two windows committed, the third did not: the checkpoint
	// holds at window two and the next trigger resumes at the failed day.
	require.Len(t, store.saved, 2)
	require.Equal(t, day("2024-03-14"), store.checkpoint.LastSyncedDate)
	require.NotEmpty(t, store.errorMsg)
	require.Contains(t, store.errorMsg, "2024-03-15")
	require.Nil(t, store.completedAt)

	entry, _ := board.Get(domain.StreamSleep)
	require.Equal(t, domain.SyncStatusError, entry.Status)
}

func TestRunStartsAtEpochWithoutCheckpoint(t *testing.T) {
	src := newStubSource().withData("2024-03-13")
	store := &memStore{}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamDaily, src, store, board, Config{
		Epoch:                day("2024-03-13"),
		EmptyStreakThreshold: 14,
	}, "2024-03-15")
	s.Run(context.Background())

	require.Equal(t, []string{"2024-03-13", "2024-03-14", "2024-03-15"}, src.fetchedDates())
	require.Equal(t, day("2024-03-15"), store.checkpoint.LastSyncedDate)
}

func TestRunAlreadyCaughtUp(t *testing.T) {
	src := newStubSource()
	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamSleep,
		LastSyncedDate: day("2024-03-15"),
		Status:         domain.SyncStatusDone,
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{EmptyStreakThreshold: 14}, "2024-03-15")
	s.Run(context.Background())

	require.Empty(t, src.fetchedDates())
	require.NotNil(t, store.completedAt)

	entry, _ := board.Get(domain.StreamSleep)
	require.Equal(t, domain.SyncStatusDone, entry.Status)
}

func TestEmptyWindowsStillAdvanceCheckpoint(t *testing.T) {
	src := newStubSource()
	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamBody,
		LastSyncedDate: day("2024-03-12"),
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamBody, src, store, board, Config{EmptyStreakThreshold: 14}, "2024-03-15")
	s.Run(context.Background())

	require.Equal(t, []time.Time{day("2024-03-13"), day("2024-03-14"), day("2024-03-15")}, store.progress)
	require.Equal(t, day("2024-03-15"), store.checkpoint.LastSyncedDate)
	require.Empty(t, store.saved)
}

func TestEmptyStreakSkipsForward(t *testing.T) {
	src := newStubSource().withData("2023-02-13")
	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamActivities,
		LastSyncedDate: day("2022-12-31"),
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamActivities, src, store, board, Config{
		EmptyStreakThreshold: 14,
		SkipForwardDays:      30,
	}, "2023-02-14")
	s.Run(context.Background())

	fetched := src.fetchedDates()
	// 14 empty probes, then the cursor jumps straight to 2023-02-13.
	require.Equal(t, "2023-01-01", fetched[0])
	require.Equal(t, "2023-01-14", fetched[13])
	require.Equal(t, "2023-02-13", fetched[14])
	require.Equal(t, "2023-02-14", fetched[15])
	require.Len(t, fetched, 16)

	// The skipped gap is never probed and never checkpointed directly.
	for _, d := range store.progress {
		key := d.Format(domain.DateFormat)
		require.False(t, key > "2023-01-14" && key < "2023-02-13", "checkpoint written inside skipped gap: %s", key)
	}
	require.Equal(t, day("2023-02-14"), store.checkpoint.LastSyncedDate)
	require.NotNil(t, store.completedAt)
}

func TestDataResetsEmptyStreak(t *testing.T) {
	// Data on day 10 interrupts the streak, so 14 empty days in total but
	// never 14 consecutive: no skip happens.
	src := newStubSource().withData("2023-01-10")
	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamActivities,
		LastSyncedDate: day("2022-12-31"),
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamActivities, src, store, board, Config{
		EmptyStreakThreshold: 14,
		SkipForwardDays:      30,
	}, "2023-01-20")
	s.Run(context.Background())

	require.Len(t, src.fetchedDates(), 20)
	require.Equal(t, day("2023-01-20"), store.checkpoint.LastSyncedDate)
}

func TestZeroThresholdDisablesSkipForward(t *testing.T) {
	src := newStubSource()
	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamSleep,
		LastSyncedDate: day("2022-12-31"),
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{EmptyStreakThreshold: 0}, "2023-01-31")
	s.Run(context.Background())

	require.Len(t, src.fetchedDates(), 31)
	require.Equal(t, day("2023-01-31"), store.checkpoint.LastSyncedDate)
}

func TestTransientErrorRetriesThenSucceeds(t *testing.T) {
	src := newStubSource().withData("2024-03-15")
	src.failWith = fmt.Errorf("%w: 503", source.ErrTransient)
	src.failTimes["2024-03-15"] = 2

	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamSleep,
		LastSyncedDate: day("2024-03-14"),
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{
		EmptyStreakThreshold: 14,
		FetchAttempts:        3,
	}, "2024-03-15")
	s.Run(context.Background())

	require.Len(t, src.fetchedDates(), 3)
	require.Len(t, store.saved, 1)
	require.NotNil(t, store.completedAt)
}

func TestTransientErrorExhaustsRetries(t *testing.T) {
	src := newStubSource()
	src.failWith = fmt.Errorf("%w: timeout", source.ErrTransient)
	src.failTimes["2024-03-14"] = 10

	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamSleep,
		LastSyncedDate: day("2024-03-12"),
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{
		EmptyStreakThreshold: 14,
		FetchAttempts:        3,
	}, "2024-03-15")
	s.Run(context.Background())

	// One clean probe for 03-13, then three failed attempts for 03-14.
	require.Len(t, src.fetchedDates(), 4)
	require.NotEmpty(t, store.errorMsg)
	require.Contains(t, store.errorMsg, "2024-03-14")
	require.Nil(t, store.completedAt)

	// Confirmed progress survives the failure, so the next run resumes at
	// the failed window.
	require.Equal(t, day("2024-03-13"), store.checkpoint.LastSyncedDate)

	entry, _ := board.Get(domain.StreamSleep)
	require.Equal(t, domain.SyncStatusError, entry.Status)
	require.NotEmpty(t, entry.ErrorMessage)
}

func TestPermanentErrorAbortsImmediately(t *testing.T) {
	src := newStubSource()
	src.errs["2024-03-14"] = fmt.Errorf("%w: status 401", source.ErrPermanent)

	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamSleep,
		LastSyncedDate: day("2024-03-13"),
	}}
	board := NewStatusBoard()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{
		EmptyStreakThreshold: 14,
		FetchAttempts:        3,
	}, "2024-03-15")
	s.Run(context.Background())

	// No retries for auth failures.
	require.Len(t, src.fetchedDates(), 1)
	require.True(t, strings.Contains(store.errorMsg, "401"))
	require.Equal(t, day("2024-03-13"), store.checkpoint.LastSyncedDate)
}

func TestCancelledContextStopsRun(t *testing.T) {
	src := newStubSource()
	store := &memStore{checkpoint: &domain.SyncCheckpoint{
		Stream:         domain.StreamSleep,
		LastSyncedDate: day("2024-03-10"),
	}}
	board := NewStatusBoard()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSyncer(domain.StreamSleep, src, store, board, Config{EmptyStreakThreshold: 14}, "2024-03-15")
	s.Run(ctx)

	require.Empty(t, src.fetchedDates())
	require.NotEmpty(t, store.errorMsg)
	require.Nil(t, store.completedAt)
}
