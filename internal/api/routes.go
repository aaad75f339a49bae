package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"roundabout-sync/internal/config"
	"roundabout-sync/internal/inventory"
	"roundabout-sync/internal/logger"
	"roundabout-sync/internal/metrics"
	"roundabout-sync/internal/store"
	"roundabout-sync/internal/sync"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FieldInstances manages field instance registrations.
type FieldInstances interface {
	ListFieldInstances(ctx context.Context) ([]*inventory.FieldInstance, error)
	GetFieldInstance(ctx context.Context, id int64) (*inventory.FieldInstance, error)
	SaveFieldInstance(ctx context.Context, fi *inventory.FieldInstance) error
	DeleteFieldInstance(ctx context.Context, id int64) error
}

type Handler struct {
	syncManager *sync.Manager
	store       store.Store
	instances   FieldInstances
	cfg         config.ServerConfig
}

func NewHandler(manager *sync.Manager, st store.Store, instances FieldInstances, cfg config.ServerConfig) *Handler {
	return &Handler{
		syncManager: manager,
		store:       st,
		instances:   instances,
		cfg:         cfg,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware(h.cfg.CorsOrigins))

	r.Get("/health", h.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.AuthToken))
		r.Get("/field-instances/sync-to-home/", h.SyncToHome)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.AuthToken))

		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/history", h.GetSyncHistory)
		r.Get("/sync/conflicts", h.GetConflicts)
		r.Get("/sync/conflicts/{id}", h.GetConflict)
		r.Get("/sync/metrics", h.GetMetrics)
		r.Delete("/sync/checkpoint", h.ResetCheckpoint)

		r.Route("/field-instances", func(r chi.Router) {
			r.Get("/", h.ListFieldInstances)
			r.Post("/", h.CreateFieldInstance)
			r.Get("/{id}", h.GetFieldInstance)
			r.Patch("/{id}", h.UpdateFieldInstance)
			r.Delete("/{id}", h.DeleteFieldInstance)
		})
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// SyncToHome is the operator facing trigger. It blocks until the run is over
// and answers in plain text.
func (h *Handler) SyncToHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	_, err := h.syncManager.Run(runContext(r), sync.RunOptions{
		Token:   r.URL.Query().Get("api_token"),
		Trigger: "http",
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Code 200"))
	case errors.Is(err, sync.ErrAlreadyRunning):
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(err.Error()))
	case errors.Is(err, inventory.ErrNotFieldInstance):
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("ERROR. This is not a Field Instance of RDB."))
	default:
		logger.Log.Error("Sync to home failed", zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("API error"))
	}
}

// runContext keeps a run going when the client hangs up; the manager's run
// timeout still bounds it.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// TriggerSync runs a sync and returns the full report.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"api_token"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	report, err := h.syncManager.Run(runContext(r), sync.RunOptions{Token: req.Token, Trigger: "api"})
	switch {
	case errors.Is(err, sync.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case report == nil && errors.Is(err, inventory.ErrNotFieldInstance):
		writeError(w, http.StatusBadRequest, err.Error())
	case report == nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		writeJSON(w, http.StatusBadGateway, report)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

type checkpointResponse struct {
	Target       string     `json:"target"`
	LastSyncTime *time.Time `json:"last_sync_time"`
	RowsSynced   int64      `json:"rows_synced"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": h.syncManager.GetStatus(),
		"target": h.syncManager.Target(),
	}

	state, err := h.syncManager.Checkpoint(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if state != nil {
		cp := checkpointResponse{
			Target:     state.Target,
			RowsSynced: state.RowsSynced,
			Status:     state.Status,
			UpdatedAt:  state.UpdatedAt,
		}
		if state.LastSyncTime.Valid {
			t := state.LastSyncTime.Time
			cp.LastSyncTime = &t
		}
		if state.ErrorMessage.Valid {
			cp.ErrorMessage = state.ErrorMessage.String
		}
		resp["checkpoint"] = cp
	}
	if last := h.syncManager.LastReport(); last != nil {
		resp["last_run"] = last
	}

	writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	ID             string     `json:"id"`
	Target         string     `json:"target"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Cursor         time.Time  `json:"cursor"`
	Created        int        `json:"created"`
	Updated        int        `json:"updated"`
	Failed         int        `json:"failed"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	LastStatusCode int        `json:"last_status_code"`
}

func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	history, err := h.store.GetSyncHistory(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]historyResponse, 0, len(history))
	for _, hh := range history {
		item := historyResponse{
			ID:             hh.ID,
			Target:         hh.Target,
			StartedAt:      hh.StartedAt,
			Cursor:         hh.Cursor,
			Created:        hh.Created,
			Updated:        hh.Updated,
			Failed:         hh.Failed,
			Status:         hh.Status,
			LastStatusCode: hh.LastStatusCode,
		}
		if hh.CompletedAt.Valid {
			t := hh.CompletedAt.Time
			item.CompletedAt = &t
		}
		if hh.ErrorMessage.Valid {
			item.ErrorMessage = hh.ErrorMessage.String
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

type conflictResponse struct {
	ID                 string              `json:"id"`
	Target             string              `json:"target"`
	Kind               string              `json:"kind"`
	LocalID            int64               `json:"local_id"`
	ConflictType       string              `json:"conflict_type"`
	LocalData          jsoniter.RawMessage `json:"local_data,omitempty"`
	RemoteData         jsoniter.RawMessage `json:"remote_data,omitempty"`
	DetectedAt         time.Time           `json:"detected_at"`
	Resolved           bool                `json:"resolved"`
	ResolutionStrategy string              `json:"resolution_strategy,omitempty"`
	ResolvedAt         *time.Time          `json:"resolved_at,omitempty"`
	ResolvedData       jsoniter.RawMessage `json:"resolved_data,omitempty"`
}

func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	resolved, _ := strconv.ParseBool(r.URL.Query().Get("resolved"))

	conflicts, err := h.store.ListConflicts(r.Context(), resolved, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]conflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, toConflictResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetConflict(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetConflict(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "conflict not found")
		return
	}
	writeJSON(w, http.StatusOK, toConflictResponse(c))
}

func toConflictResponse(c *store.Conflict) conflictResponse {
	item := conflictResponse{
		ID:           c.ID,
		Target:       c.Target,
		Kind:         c.Kind,
		LocalID:      c.LocalID,
		ConflictType: c.ConflictType,
		LocalData:    jsoniter.RawMessage(c.LocalData),
		RemoteData:   jsoniter.RawMessage(c.RemoteData),
		DetectedAt:   c.DetectedAt,
		Resolved:     c.Resolved,
		ResolvedData: jsoniter.RawMessage(c.ResolvedData),
	}
	if c.ResolutionStrategy.Valid {
		item.ResolutionStrategy = c.ResolutionStrategy.String
	}
	if c.ResolvedAt.Valid {
		t := c.ResolvedAt.Time
		item.ResolvedAt = &t
	}
	return item
}

func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Snapshot())
}

func (h *Handler) ResetCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := h.syncManager.ResetCheckpoint(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sync.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err = strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
