// Package api exposes HTTP handlers for the health sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/syncer"
)

// SyncService captures the orchestrator operations the API layer uses.
type SyncService interface {
	SyncStream(ctx context.Context, stream domain.StreamID) error
	SyncAll(ctx context.Context) []domain.StreamID
	Status() []syncer.StatusEntry
}

// Store captures the read and journal operations the API layer uses.
type Store interface {
	ListCheckpoints(ctx context.Context) ([]domain.SyncCheckpoint, error)
	ListActivities(ctx context.Context, f postgres.ActivityFilter) ([]domain.Activity, error)
	ListSleep(ctx context.Context, f postgres.RangeFilter) ([]domain.Sleep, error)
	ListDaily(ctx context.Context, f postgres.RangeFilter) ([]domain.DailySummary, error)
	ListHeartRate(ctx context.Context, f postgres.RangeFilter) ([]domain.HeartRate, error)
	ListBody(ctx context.Context, f postgres.RangeFilter) ([]domain.BodyComposition, error)
	ListJournal(ctx context.Context, category string, limit, offset int) ([]domain.JournalEntry, error)
	CreateJournal(ctx context.Context, entry domain.JournalEntry) (*domain.JournalEntry, error)
	UpdateJournal(ctx context.Context, id string, update postgres.JournalUpdate) (*domain.JournalEntry, error)
	DeleteJournal(ctx context.Context, id string) error
}

// Handler coordinates HTTP requests with the sync engine and the store.
type Handler struct {
	syncs SyncService
	store Store
}

// NewHandler builds a Handler.
func NewHandler(syncs SyncService, store Store) *Handler {
	return &Handler{syncs: syncs, store: store}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync/all", h.syncAll)
	mux.HandleFunc("/v1/sync/status", h.syncStatus)
	mux.HandleFunc("/v1/sync/", h.syncStream)
	mux.HandleFunc("/v1/dashboard", h.dashboard)
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/sleep", h.sleep)
	mux.HandleFunc("/v1/daily", h.daily)
	mux.HandleFunc("/v1/heart-rate", h.heartRate)
	mux.HandleFunc("/v1/body", h.body)
	mux.HandleFunc("/v1/journal", h.journal)
	mux.HandleFunc("/v1/journal/", h.journalByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) syncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeHealthWrite) {
		return
	}

	started := h.syncs.SyncAll(r.Context())
	writeJSON(w, http.StatusAccepted, TriggerResponse{Started: started})
}

func (h *Handler) syncStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeHealthWrite) {
		return
	}

	stream := domain.StreamID(strings.TrimPrefix(r.URL.Path, "/v1/sync/"))
	if stream == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing stream id")
		return
	}

	err := h.syncs.SyncStream(r.Context(), stream)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, TriggerResponse{Started: []domain.StreamID{stream}})
	case errors.Is(err, syncer.ErrUnknownStream):
		writeError(w, http.StatusNotFound, "unknown_stream", err.Error())
	case errors.Is(err, syncer.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync_in_progress", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// syncStatus merges the durable sync_log rows with the live board so idle
// streams show their last run and active streams show live progress.
func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeHealthRead, auth.ScopeHealthWrite) {
		return
	}

	checkpoints, err := h.store.ListCheckpoints(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	views := make(map[domain.StreamID]SyncStatusView, len(checkpoints))
	for _, cp := range checkpoints {
		view := SyncStatusView{
			Stream:     string(cp.Stream),
			Status:     string(cp.Status),
			LastSyncAt: cp.LastSyncAt,
		}
		if !cp.LastSyncedDate.IsZero() {
			date := cp.LastSyncedDate.Format(domain.DateFormat)
			view.LastSyncedDate = &date
		}
		if cp.ErrorMessage != nil {
			view.ErrorMessage = *cp.ErrorMessage
		}
		views[cp.Stream] = view
	}

	for _, entry := range h.syncs.Status() {
		view := views[entry.Stream]
		view.Stream = string(entry.Stream)
		view.Status = string(entry.Status)
		view.Progress = entry.Message
		if entry.LastSyncAt != nil {
			view.LastSyncAt = entry.LastSyncAt
		}
		if entry.ErrorMessage != "" {
			view.ErrorMessage = entry.ErrorMessage
		}
		views[entry.Stream] = view
	}

	out := make([]SyncStatusView, 0, len(domain.Streams()))
	for _, stream := range domain.Streams() {
		view, ok := views[stream]
		if !ok {
			view = SyncStatusView{Stream: string(stream), Status: string(domain.SyncStatusIdle)}
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeHealthRead, auth.ScopeHealthWrite) {
		return
	}

	filter := postgres.RangeFilter{Limit: 1000}
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if start != nil || end != nil {
		filter.Start = start
		filter.End = end
	} else {
		days := 30
		if raw := r.URL.Query().Get("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "validation_failed", "invalid days parameter")
				return
			}
			days = parsed
		}
		// days == 0 means all time.
		if days > 0 {
			from := domain.DateOnly(time.Now().UTC()).AddDate(0, 0, -days)
			filter.Start = &from
		}
	}

	ctx := r.Context()
	activities, err := h.store.ListActivities(ctx, postgres.ActivityFilter{RangeFilter: filter})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	sleep, err := h.store.ListSleep(ctx, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	daily, err := h.store.ListDaily(ctx, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	heartRate, err := h.store.ListHeartRate(ctx, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	body, err := h.store.ListBody(ctx, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DashboardResponse{
		Activities: toActivityViews(activities),
		Sleep:      toSleepViews(sleep),
		Daily:      toDailyViews(daily),
		HeartRate:  toHeartRateViews(heartRate),
		Body:       toBodyViews(body),
	})
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeHealthRead, auth.ScopeHealthWrite) {
		return
	}

	filter, ok := activityFilterFromQuery(w, r)
	if !ok {
		return
	}
	items, err := h.store.ListActivities(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toActivityViews(items))
}

func (h *Handler) sleep(w http.ResponseWriter, r *http.Request) {
	h.rangeEndpoint(w, r, func(ctx context.Context, f postgres.RangeFilter) (any, error) {
		items, err := h.store.ListSleep(ctx, f)
		return toSleepViews(items), err
	})
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) {
	h.rangeEndpoint(w, r, func(ctx context.Context, f postgres.RangeFilter) (any, error) {
		items, err := h.store.ListDaily(ctx, f)
		return toDailyViews(items), err
	})
}

func (h *Handler) heartRate(w http.ResponseWriter, r *http.Request) {
	h.rangeEndpoint(w, r, func(ctx context.Context, f postgres.RangeFilter) (any, error) {
		items, err := h.store.ListHeartRate(ctx, f)
		return toHeartRateViews(items), err
	})
}

func (h *Handler) body(w http.ResponseWriter, r *http.Request) {
	h.rangeEndpoint(w, r, func(ctx context.Context, f postgres.RangeFilter) (any, error) {
		items, err := h.store.ListBody(ctx, f)
		return toBodyViews(items), err
	})
}

func (h *Handler) rangeEndpoint(w http.ResponseWriter, r *http.Request, list func(context.Context, postgres.RangeFilter) (any, error)) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeHealthRead, auth.ScopeHealthWrite) {
		return
	}

	filter, ok := rangeFilterFromQuery(w, r)
	if !ok {
		return
	}
	payload, err := list(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) journal(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listJournal(w, r)
	case http.MethodPost:
		h.createJournal(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listJournal(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeHealthRead, auth.ScopeHealthWrite) {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	entries, err := h.store.ListJournal(r.Context(), r.URL.Query().Get("category"), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toJournalViews(entries))
}

func (h *Handler) createJournal(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeHealthWrite) {
		return
	}

	var req JournalCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	entryDate, _ := time.Parse(domain.DateFormat, req.EntryDate)
	entry, err := h.store.CreateJournal(r.Context(), domain.JournalEntry{
		EntryDate: entryDate,
		Category:  req.Category,
		Content:   req.Content,
		Rating:    req.Rating,
		Tags:      req.Tags,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toJournalView(*entry))
}

func (h *Handler) journalByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/journal/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing journal entry id")
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.updateJournal(w, r, id)
	case http.MethodDelete:
		h.deleteJournal(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) updateJournal(w http.ResponseWriter, r *http.Request, id string) {
	if !requireScope(w, r, auth.ScopeHealthWrite) {
		return
	}

	var req JournalUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	update := postgres.JournalUpdate{
		Category: req.Category,
		Content:  req.Content,
		Rating:   req.Rating,
		Tags:     req.Tags,
	}
	if req.EntryDate != nil {
		parsed, err := time.Parse(domain.DateFormat, *req.EntryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "entry_date must be YYYY-MM-DD")
			return
		}
		update.EntryDate = &parsed
	}

	entry, err := h.store.UpdateJournal(r.Context(), id, update)
	if err != nil {
		if errors.Is(err, postgres.ErrJournalNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "journal entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toJournalView(*entry))
}

func (h *Handler) deleteJournal(w http.ResponseWriter, r *http.Request, id string) {
	if !requireScope(w, r, auth.ScopeHealthWrite) {
		return
	}

	if err := h.store.DeleteJournal(r.Context(), id); err != nil {
		if errors.Is(err, postgres.ErrJournalNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "journal entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return false
}

func rangeFilterFromQuery(w http.ResponseWriter, r *http.Request) (postgres.RangeFilter, bool) {
	filter := postgres.RangeFilter{Limit: 100}
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return filter, false
	}
	filter.Start = start
	filter.End = end

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be between 1 and 1000")
			return filter, false
		}
		filter.Limit = parsed
	}
	return filter, true
}

func activityFilterFromQuery(w http.ResponseWriter, r *http.Request) (postgres.ActivityFilter, bool) {
	rangeFilter, ok := rangeFilterFromQuery(w, r)
	if !ok {
		return postgres.ActivityFilter{}, false
	}

	filter := postgres.ActivityFilter{RangeFilter: rangeFilter, Type: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "offset must be >= 0")
			return filter, false
		}
		filter.Offset = parsed
	}
	return filter, true
}

func parseRange(r *http.Request) (start, end *time.Time, err error) {
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, parseErr := time.Parse(domain.DateFormat, raw)
		if parseErr != nil {
			return nil, nil, errors.New("start must be YYYY-MM-DD")
		}
		start = &parsed
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, parseErr := time.Parse(domain.DateFormat, raw)
		if parseErr != nil {
			return nil, nil, errors.New("end must be YYYY-MM-DD")
		}
		end = &parsed
	}
	return start, end, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
