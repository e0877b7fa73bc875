package handler

import (
	"encoding/json"
	"time"

	"outreach/internal/jobs"
	"outreach/internal/prefs"
)

type preferencesView struct {
	Enabled        bool            `json:"enabled"`
	Days           []string        `json:"days"`
	Time           string          `json:"time"`
	Timezone       string          `json:"timezone"`
	ContactsPerDay int             `json:"contacts_per_day"`
	Options        json.RawMessage `json:"options,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newPreferencesView(p *prefs.Preferences) preferencesView {
	days := []string(p.ScheduleDays)
	if days == nil {
		days = []string{}
	}
	return preferencesView{
		Enabled:        p.Enabled,
		Days:           days,
		Time:           p.ScheduleTime,
		Timezone:       p.Timezone,
		ContactsPerDay: p.ContactsPerDay,
		Options:        p.Options,
		UpdatedAt:      p.UpdatedAt,
	}
}

type jobView struct {
	ID          uint64      `json:"id"`
	UserID      uint64      `json:"user_id"`
	Status      jobs.Status `json:"status"`
	NextRunAt   time.Time   `json:"next_run_at"`
	LastRunAt   *time.Time  `json:"last_run_at"`
	LastError   *string     `json:"last_error"`
	RetryCount  int         `json:"retry_count"`
	NextRetryAt *time.Time  `json:"next_retry_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func newJobView(j *jobs.Job) jobView {
	return jobView{
		ID:          j.ID,
		UserID:      j.UserID,
		Status:      j.Status,
		NextRunAt:   j.NextRunAt,
		LastRunAt:   j.LastRunAt,
		LastError:   j.LastError,
		RetryCount:  j.RetryCount,
		NextRetryAt: j.NextRetryAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

type logView struct {
	ID                uint64         `json:"id"`
	ExecutedAt        time.Time      `json:"executed_at"`
	Status            jobs.LogStatus `json:"status"`
	ProcessingTimeMs  int64          `json:"processing_time_ms"`
	BatchID           *string        `json:"batch_id,omitempty"`
	ContactsProcessed *int           `json:"contacts_processed,omitempty"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
}

func newLogViews(logs []jobs.ExecutionLog) []logView {
	out := make([]logView, 0, len(logs))
	for _, l := range logs {
		out = append(out, logView{
			ID:                l.ID,
			ExecutedAt:        l.ExecutedAt,
			Status:            l.Status,
			ProcessingTimeMs:  l.ProcessingTimeMs,
			BatchID:           l.BatchID,
			ContactsProcessed: l.ContactsProcessed,
			ErrorMessage:      l.ErrorMessage,
		})
	}
	return out
}
