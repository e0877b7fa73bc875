package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"outreach/internal/auth"
	"outreach/internal/jobs"
	"outreach/internal/prefs"
)

type PreferencesService interface {
	Get(ctx context.Context, userID uint64) (*prefs.Preferences, error)
	Save(ctx context.Context, userID uint64, in prefs.SaveInput) (*prefs.Preferences, error)
	Disable(ctx context.Context, userID uint64) error
}

type JobReader interface {
	Job(ctx context.Context, userID uint64) (*jobs.Job, error)
}

type PreferencesHandler struct {
	Prefs PreferencesService
	Jobs  JobReader
}

type savePreferencesReq struct {
	Enabled        bool            `json:"enabled"`
	Days           []string        `json:"days"`
	Time           string          `json:"time"`
	Timezone       string          `json:"timezone"`
	ContactsPerDay int             `json:"contacts_per_day"`
	Options        json.RawMessage `json:"options"`
}

func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	p, err := h.Prefs.Get(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPreferencesView(p))
}

func (h *PreferencesHandler) Put(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req savePreferencesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	p, err := h.Prefs.Save(r.Context(), uid, prefs.SaveInput{
		Enabled:        req.Enabled,
		Days:           req.Days,
		Time:           req.Time,
		Timezone:       req.Timezone,
		ContactsPerDay: req.ContactsPerDay,
		Options:        req.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPreferencesView(p))
}

func (h *PreferencesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	if err := h.Prefs.Disable(r.Context(), uid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Job shows the caller's own job.
func (h *PreferencesHandler) Job(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	j, err := h.Jobs.Job(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(j))
}
