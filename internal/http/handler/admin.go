package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"outreach/internal/jobs"
)

// JobAdmin is the administrative side of jobs.Service.
type JobAdmin interface {
	Job(ctx context.Context, userID uint64) (*jobs.Job, error)
	Logs(ctx context.Context, userID uint64, limit int) ([]jobs.ExecutionLog, error)
	ForceRun(ctx context.Context, userID uint64) error
	SimulateFailure(ctx context.Context, userID uint64, message string) error
	Reset(ctx context.Context, userID uint64) error
	Delete(ctx context.Context, userID uint64) error
	TrackerState() jobs.TrackerState
}

type AdminHandler struct {
	Jobs JobAdmin
}

func (h *AdminHandler) Scheduler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Jobs.TrackerState())
}

func (h *AdminHandler) Job(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDParam(r)
	if !ok {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	j, err := h.Jobs.Job(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(j))
}

func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDParam(r)
	if !ok {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	logs, err := h.Jobs.Logs(r.Context(), uid, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": newLogViews(logs)})
}

func (h *AdminHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.Jobs.ForceRun)
}

type failReq struct {
	Message string `json:"message"`
}

func (h *AdminHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req failReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
	}
	h.action(w, r, func(ctx context.Context, uid uint64) error {
		return h.Jobs.SimulateFailure(ctx, uid, req.Message)
	})
}

func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDParam(r)
	if !ok {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := h.Jobs.Reset(r.Context(), uid); err != nil {
		writeError(w, err)
		return
	}
	j, err := h.Jobs.Job(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(j))
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDParam(r)
	if !ok {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := h.Jobs.Delete(r.Context(), uid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// action runs a dispatching operation. The execution itself is asynchronous.
func (h *AdminHandler) action(w http.ResponseWriter, r *http.Request, fn func(context.Context, uint64) error) {
	uid, ok := userIDParam(r)
	if !ok {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), uid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"user_id": uid, "dispatched": true})
}
