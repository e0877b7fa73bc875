package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"outreach/internal/jobs"
	"outreach/internal/prefs"
	"outreach/internal/schedule"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Anything unknown is a 500
// and its text is not exposed.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, prefs.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, prefs.ErrInvalid),
		errors.Is(err, schedule.ErrNoDays),
		errors.Is(err, schedule.ErrInvalidDay),
		errors.Is(err, schedule.ErrInvalidTime),
		errors.Is(err, schedule.ErrInvalidTimezone):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, jobs.ErrAlreadyRunning), errors.Is(err, jobs.ErrJobDisabled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, jobs.ErrAtCapacity), errors.Is(err, jobs.ErrStopping):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func userIDParam(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 64)
	return id, err == nil && id > 0
}
