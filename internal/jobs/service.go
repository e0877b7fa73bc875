package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"outreach/internal/schedule"
)

var ErrJobDisabled = errors.New("job disabled")

// Service is the entry point for everything outside the poll loop:
// preference changes and the administrative surface. It goes through the
// same store, tracker and executor as the loop.
type Service struct {
	Store  Store
	Prefs  PreferencesProvider
	Worker *Worker
	Log    zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ApplyPreferences creates, reschedules or disables the user's job after a
// preferences change. A job that is running keeps running; the executor
// honours the new state when it finishes.
func (s *Service) ApplyPreferences(ctx context.Context, userID uint64, p schedule.Preferences) error {
	now := s.now()
	if !p.Enabled {
		if err := s.Store.Disable(ctx, userID, now, "scheduling disabled at "+now.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("disable job: %w", err)
		}
		s.Log.Info().Uint64("user_id", userID).Msg("job disabled")
		return nil
	}

	next, err := schedule.NextRun(p, now)
	if err != nil {
		return err
	}
	note := "scheduled for " + next.Format(time.RFC3339)
	if err := s.Store.Upsert(ctx, userID, now, next, note); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	s.Log.Info().Uint64("user_id", userID).Time("next_run_at", next).Msg("job scheduled")
	return nil
}

func (s *Service) Job(ctx context.Context, userID uint64) (*Job, error) {
	return s.Store.Get(ctx, userID)
}

func (s *Service) Logs(ctx context.Context, userID uint64, limit int) ([]ExecutionLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.Store.ListLogs(ctx, userID, limit)
}

// ForceRun executes the job now regardless of its due time.
func (s *Service) ForceRun(ctx context.Context, userID uint64) error {
	return s.dispatch(ctx, userID, nil)
}

// SimulateFailure runs the job with a workload that fails, so the normal
// retry bookkeeping applies.
func (s *Service) SimulateFailure(ctx context.Context, userID uint64, message string) error {
	if message == "" {
		message = "simulated failure"
	}
	cause := errors.New(message)
	return s.dispatch(ctx, userID, ProcessorFunc(func(context.Context, uint64) Outcome {
		return Failure(cause)
	}))
}

// Reset reapplies the user's current preferences, which clears retry state
// and puts the job back to scheduled (or disabled).
func (s *Service) Reset(ctx context.Context, userID uint64) error {
	if _, err := s.Store.Get(ctx, userID); err != nil {
		return err
	}
	p, err := s.Prefs.SchedulePreferences(ctx, userID)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	return s.ApplyPreferences(ctx, userID, p)
}

// Delete hard-deletes the job row, keeping its execution logs.
func (s *Service) Delete(ctx context.Context, userID uint64) error {
	if s.Worker.Tracker.Has(userID) {
		return ErrAlreadyRunning
	}
	if err := s.Store.Delete(ctx, userID); err != nil {
		return err
	}
	s.Log.Warn().Uint64("user_id", userID).Msg("job deleted by admin")
	return nil
}

type RunningJob struct {
	UserID    uint64    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

type TrackerState struct {
	MaxConcurrent int          `json:"max_concurrent"`
	Running       []RunningJob `json:"running"`
}

func (s *Service) TrackerState() TrackerState {
	snap := s.Worker.Tracker.Snapshot()
	running := make([]RunningJob, 0, len(snap))
	for uid, started := range snap {
		running = append(running, RunningJob{UserID: uid, StartedAt: started})
	}
	sort.Slice(running, func(i, j int) bool { return running[i].StartedAt.Before(running[j].StartedAt) })
	return TrackerState{MaxConcurrent: s.Worker.Tracker.Max(), Running: running}
}

func (s *Service) dispatch(ctx context.Context, userID uint64, proc Processor) error {
	job, err := s.Store.Get(ctx, userID)
	if err != nil {
		return err
	}
	switch job.Status {
	case StatusDisabled:
		return ErrJobDisabled
	case StatusRunning:
		return ErrAlreadyRunning
	}
	return s.Worker.Dispatch(ctx, *job, proc)
}
