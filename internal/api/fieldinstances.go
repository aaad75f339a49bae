package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"roundabout-sync/internal/inventory"
)

type fieldInstanceRequest struct {
	Name           *string    `json:"name"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	Notes          *string    `json:"notes"`
	IsThisInstance *bool      `json:"is_this_instance"`
}

func (req fieldInstanceRequest) apply(fi *inventory.FieldInstance) {
	if req.Name != nil {
		fi.Name = strings.TrimSpace(*req.Name)
	}
	if req.StartDate != nil {
		fi.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		fi.EndDate = req.EndDate
	}
	if req.Notes != nil {
		fi.Notes = *req.Notes
	}
	if req.IsThisInstance != nil {
		fi.IsThisInstance = *req.IsThisInstance
	}
}

func (h *Handler) ListFieldInstances(w http.ResponseWriter, r *http.Request) {
	list, err := h.instances.ListFieldInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*inventory.FieldInstance{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateFieldInstance(w http.ResponseWriter, r *http.Request) {
	var req fieldInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fi := &inventory.FieldInstance{}
	req.apply(fi)
	if fi.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.instances.SaveFieldInstance(r.Context(), fi); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, fi)
}

func (h *Handler) GetFieldInstance(w http.ResponseWriter, r *http.Request) {
	fi, ok := h.loadFieldInstance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, fi)
}

func (h *Handler) UpdateFieldInstance(w http.ResponseWriter, r *http.Request) {
	fi, ok := h.loadFieldInstance(w, r)
	if !ok {
		return
	}

	var req fieldInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.apply(fi)
	if fi.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.instances.SaveFieldInstance(r.Context(), fi); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fi)
}

func (h *Handler) DeleteFieldInstance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	err = h.instances.DeleteFieldInstance(r.Context(), id)
	if errors.Is(err, inventory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "field instance not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadFieldInstance(w http.ResponseWriter, r *http.Request) (*inventory.FieldInstance, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}

	fi, err := h.instances.GetFieldInstance(r.Context(), id)
	if errors.Is(err, inventory.ErrNotFound) {
		writeError(w, http.StatusNotFound, "field instance not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return fi, true
}
