package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/syncer"
)

type stubSyncService struct {
	streamErr error
	started   []domain.StreamID
	status    []syncer.StatusEntry

	syncStreamCalls []domain.StreamID
	syncAllCalls    int
}

func (s *stubSyncService) SyncStream(_ context.Context, stream domain.StreamID) error {
	s.syncStreamCalls = append(s.syncStreamCalls, stream)
	return s.streamErr
}

func (s *stubSyncService) SyncAll(context.Context) []domain.StreamID {
	s.syncAllCalls++
	return s.started
}

func (s *stubSyncService) Status() []syncer.StatusEntry { return s.status }

type stubStore struct {
	checkpoints []domain.SyncCheckpoint
	activities  []domain.Activity
	sleep       []domain.Sleep
	daily       []domain.DailySummary
	heartRate   []domain.HeartRate
	body        []domain.BodyComposition
	journal     []domain.JournalEntry

	created    *domain.JournalEntry
	updateErr  error
	deleteErr  error
	lastFilter postgres.ActivityFilter
}

func (s *stubStore) ListCheckpoints(context.Context) ([]domain.SyncCheckpoint, error) {
	return s.checkpoints, nil
}

func (s *stubStore) ListActivities(_ context.Context, f postgres.ActivityFilter) ([]domain.Activity, error) {
	s.lastFilter = f
	return s.activities, nil
}

func (s *stubStore) ListSleep(context.Context, postgres.RangeFilter) ([]domain.Sleep, error) {
	return s.sleep, nil
}

func (s *stubStore) ListDaily(context.Context, postgres.RangeFilter) ([]domain.DailySummary, error) {
	return s.daily, nil
}

func (s *stubStore) ListHeartRate(context.Context, postgres.RangeFilter) ([]domain.HeartRate, error) {
	return s.heartRate, nil
}

func (s *stubStore) ListBody(context.Context, postgres.RangeFilter) ([]domain.BodyComposition, error) {
	return s.body, nil
}

func (s *stubStore) ListJournal(context.Context, string, int, int) ([]domain.JournalEntry, error) {
	return s.journal, nil
}

func (s *stubStore) CreateJournal(_ context.Context, entry domain.JournalEntry) (*domain.JournalEntry, error) {
	entry.ID = "journal-1"
	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt
	if entry.Category == "" {
		entry.Category = "general"
	}
	s.created = &entry
	return &entry, nil
}

func (s *stubStore) UpdateJournal(_ context.Context, _ string, _ postgres.JournalUpdate) (*domain.JournalEntry, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if len(s.journal) == 0 {
		return nil, postgres.ErrJournalNotFound
	}
	return &s.journal[0], nil
}

func (s *stubStore) DeleteJournal(context.Context, string) error { return s.deleteErr }

func authedRequest(method, target string, body string, scopes ...string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scopeSet[scope] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "tester",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestSyncStreamAccepted(t *testing.T) {
	syncs := &stubSyncService{}
	handler := NewHandler(syncs, &stubStore{})

	req := authedRequest(http.MethodPost, "/v1/sync/sleep", "", auth.ScopeHealthWrite)
	rr := httptest.NewRecorder()
	handler.syncStream(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(syncs.syncStreamCalls) != 1 || syncs.syncStreamCalls[0] != domain.StreamSleep {
		t.Fatalf("expected one SyncStream call for sleep, got %v", syncs.syncStreamCalls)
	}

	var resp TriggerResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Started) != 1 || resp.Started[0] != domain.StreamSleep {
		t.Fatalf("unexpected started list %v", resp.Started)
	}
}

func TestSyncStreamConflictWhenInFlight(t *testing.T) {
	syncs := &stubSyncService{streamErr: syncer.ErrSyncInProgress}
	handler := NewHandler(syncs, &stubStore{})

	req := authedRequest(http.MethodPost, "/v1/sync/activities", "", auth.ScopeHealthWrite)
	rr := httptest.NewRecorder()
	handler.syncStream(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSyncStreamUnknown(t *testing.T) {
	syncs := &stubSyncService{streamErr: syncer.ErrUnknownStream}
	handler := NewHandler(syncs, &stubStore{})

	req := authedRequest(http.MethodPost, "/v1/sync/blood_pressure", "", auth.ScopeHealthWrite)
	rr := httptest.NewRecorder()
	handler.syncStream(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSyncStreamRequiresWriteScope(t *testing.T) {
	syncs := &stubSyncService{}
	handler := NewHandler(syncs, &stubStore{})

	req := authedRequest(http.MethodPost, "/v1/sync/sleep", "", auth.ScopeHealthRead)
	rr := httptest.NewRecorder()
	handler.syncStream(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(syncs.syncStreamCalls) != 0 {
		t.Fatalf("sync should not start without write scope")
	}
}

func TestSyncAllAccepted(t *testing.T) {
	syncs := &stubSyncService{started: domain.Streams()}
	handler := NewHandler(syncs, &stubStore{})

	req := authedRequest(http.MethodPost, "/v1/sync/all", "", auth.ScopeHealthWrite)
	rr := httptest.NewRecorder()
	handler.syncAll(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}
	if syncs.syncAllCalls != 1 {
		t.Fatalf("expected one SyncAll call, got %d", syncs.syncAllCalls)
	}

	var resp TriggerResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Started) != len(domain.Streams()) {
		t.Fatalf("expected all streams started, got %v", resp.Started)
	}
}

func TestSyncStatusMergesBoardOverCheckpoints(t *testing.T) {
	lastSync := time.Date(2024, time.March, 10, 6, 30, 0, 0, time.UTC)
	syncs := &stubSyncService{
		status: []syncer.StatusEntry{
			{Stream: domain.StreamSleep, Status: domain.SyncStatusSyncing, Message: "processing 2024-03-11"},
		},
	}
	store := &stubStore{
		checkpoints: []domain.SyncCheckpoint{
			{
				Stream:         domain.StreamSleep,
				LastSyncedDate: time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
				LastSyncAt:     &lastSync,
				Status:         domain.SyncStatusDone,
			},
			{
				Stream:         domain.StreamDaily,
				LastSyncedDate: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
				Status:         domain.SyncStatusDone,
			},
		},
	}
	handler := NewHandler(syncs, store)

	req := authedRequest(http.MethodGet, "/v1/sync/status", "", auth.ScopeHealthRead)
	rr := httptest.NewRecorder()
	handler.syncStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp []SyncStatusView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != len(domain.Streams()) {
		t.Fatalf("expected one row per stream, got %d", len(resp))
	}

	byStream := make(map[string]SyncStatusView, len(resp))
	for _, view := range resp {
		byStream[view.Stream] = view
	}

	sleep := byStream["sleep"]
	if sleep.Status != "syncing" {
		t.Fatalf("live board should win for an active stream, got %q", sleep.Status)
	}
	if sleep.Progress != "processing 2024-03-11" {
		t.Fatalf("unexpected progress %q", sleep.Progress)
	}
	if sleep.LastSyncedDate == nil || *sleep.LastSyncedDate != "2024-03-10" {
		t.Fatalf("durable checkpoint date should survive the merge, got %v", sleep.LastSyncedDate)
	}

	if byStream["daily"].Status != "done" {
		t.Fatalf("idle stream should report its stored status, got %q", byStream["daily"].Status)
	}
	if byStream["body"].Status != "idle" {
		t.Fatalf("never-synced stream should report idle, got %q", byStream["body"].Status)
	}
}

func TestActivitiesPassesFilter(t *testing.T) {
	avgHR := 140
	store := &stubStore{
		activities: []domain.Activity{
			{
				ID:        42,
				StartTime: time.Date(2024, time.March, 9, 7, 0, 0, 0, time.UTC),
				AvgHR:     &avgHR,
			},
		},
	}
	handler := NewHandler(&stubSyncService{}, store)

	req := authedRequest(http.MethodGet, "/v1/activities?start=2024-03-01&end=2024-03-10&type=running&limit=5&offset=10", "", auth.ScopeHealthRead)
	rr := httptest.NewRecorder()
	handler.activities(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if store.lastFilter.Type != "running" {
		t.Fatalf("type filter not forwarded: %+v", store.lastFilter)
	}
	if store.lastFilter.Limit != 5 || store.lastFilter.Offset != 10 {
		t.Fatalf("pagination not forwarded: %+v", store.lastFilter)
	}
	if store.lastFilter.Start == nil || store.lastFilter.Start.Format(domain.DateFormat) != "2024-03-01" {
		t.Fatalf("start filter not forwarded: %+v", store.lastFilter)
	}

	var resp []ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != 42 {
		t.Fatalf("unexpected activities payload %+v", resp)
	}
}

func TestActivitiesRejectsBadDate(t *testing.T) {
	handler := NewHandler(&stubSyncService{}, &stubStore{})

	req := authedRequest(http.MethodGet, "/v1/activities?start=03-01-2024", "", auth.ScopeHealthRead)
	rr := httptest.NewRecorder()
	handler.activities(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateJournalValidation(t *testing.T) {
	handler := NewHandler(&stubSyncService{}, &stubStore{})

	cases := []struct {
		name string
		body string
	}{
		{"missing date", `{"content":"felt great"}`},
		{"bad date", `{"entry_date":"tomorrow","content":"felt great"}`},
		{"missing content", `{"entry_date":"2024-03-10"}`},
		{"rating out of range", `{"entry_date":"2024-03-10","content":"x","rating":9}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := authedRequest(http.MethodPost, "/v1/journal", tc.body, auth.ScopeHealthWrite)
			rr := httptest.NewRecorder()
			handler.journal(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreateJournalSuccess(t *testing.T) {
	store := &stubStore{}
	handler := NewHandler(&stubSyncService{}, store)

	body := `{"entry_date":"2024-03-10","content":"long run, legs heavy","rating":4}`
	req := authedRequest(http.MethodPost, "/v1/journal", body, auth.ScopeHealthWrite)
	rr := httptest.NewRecorder()
	handler.journal(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	if store.created == nil {
		t.Fatalf("store was not called")
	}
	if store.created.Category != "general" {
		t.Fatalf("expected default category, got %q", store.created.Category)
	}

	var resp JournalView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "journal-1" || resp.EntryDate != "2024-03-10" {
		t.Fatalf("unexpected journal payload %+v", resp)
	}
}

func TestUpdateJournalNotFound(t *testing.T) {
	handler := NewHandler(&stubSyncService{}, &stubStore{})

	req := authedRequest(http.MethodPut, "/v1/journal/missing-id", `{"content":"edited"}`, auth.ScopeHealthWrite)
	rr := httptest.NewRecorder()
	handler.journalByID(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteJournalNotFound(t *testing.T) {
	handler := NewHandler(&stubSyncService{}, &stubStore{deleteErr: postgres.ErrJournalNotFound})

	req := authedRequest(http.MethodDelete, "/v1/journal/missing-id", "", auth.ScopeHealthWrite)
	rr := httptest.NewRecorder()
	handler.journalByID(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	handler := NewHandler(&stubSyncService{}, &stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/v1/sync/status", nil)
	rr := httptest.NewRecorder()
	handler.syncStatus(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d: %s", rr.Code, rr.Body.String())
	}
}
