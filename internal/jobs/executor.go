package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"outreach/internal/schedule"
)

var ErrNotClaimed = errors.New("job not claimable")

// Executor runs a single dispatched job to completion and records the result.
type Executor struct {
	Store     Store
	Prefs     PreferencesProvider
	Processor Processor
	Tracker   *Tracker
	Policy    RetryPolicy
	Metrics   *Metrics
	Log       zerolog.Logger
	Now       func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Execute claims the job, runs proc (the configured Processor when nil) and
// applies the resulting transition. The slot is always released. Per-job
// failures are recorded on the job, not returned; the error only reports
// that the job could not be claimed.
func (e *Executor) Execute(ctx context.Context, slot Slot, job Job, proc Processor) error {
	defer e.Metrics.Released()
	defer e.Tracker.Release(slot)

	if proc == nil {
		proc = e.Processor
	}
	log := e.Log.With().Uint64("user_id", job.UserID).Uint64("job_id", job.ID).Logger()

	started := e.now()
	claimed, err := e.Store.MarkRunning(ctx, job.UserID, started, "running since "+started.Format(time.RFC3339))
	if err != nil {
		log.Error().Err(err).Msg("claim job")
		return fmt.Errorf("claim job %d: %w", job.ID, err)
	}
	if !claimed {
		log.Debug().Msg("job already claimed or no longer runnable")
		return ErrNotClaimed
	}

	log.Info().Int("retry_count", job.RetryCount).Msg("job started")
	outcome := e.process(ctx, proc, job.UserID)
	finished := e.now()
	took := finished.Sub(started)

	if outcome.Kind == OutcomeFailure {
		e.fail(ctx, log, job, outcome.Err, started, finished, took)
		return nil
	}
	e.complete(ctx, log, job, outcome, started, finished, took)
	return nil
}

func (e *Executor) process(ctx context.Context, proc Processor, userID uint64) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure(fmt.Errorf("workload panic: %v", r))
		}
	}()
	out = proc.ProcessUserWorkload(ctx, userID)
	if out.Kind == OutcomeFailure && out.Err == nil {
		out.Err = errors.New("workload reported failure")
	}
	return out
}

func (e *Executor) complete(ctx context.Context, log zerolog.Logger, job Job, out Outcome, started, now time.Time, took time.Duration) {
	entry := &ExecutionLog{
		JobID:            job.ID,
		UserID:           job.UserID,
		ExecutedAt:       started,
		Status:           LogSuccess,
		ProcessingTimeMs: took.Milliseconds(),
	}
	var note string
	switch out.Kind {
	case OutcomeSoftStop:
		note = "skipped: " + out.Reason
		entry.ErrorMessage = strPtr(note)
	default:
		note = fmt.Sprintf("completed: %d contacts processed", out.ContactsProcessed)
		if out.BatchID != "" {
			entry.BatchID = strPtr(out.BatchID)
			note += ", batch " + out.BatchID
		}
		contacts := out.ContactsProcessed
		entry.ContactsProcessed = &contacts
	}

	prefs, err := e.Prefs.SchedulePreferences(ctx, job.UserID)
	switch {
	case err != nil:
		// Keep the job alive without knowing the schedule; the next
		// preferences update will put it back on track.
		next := now.Add(24 * time.Hour)
		log.Error().Err(err).Time("next_run_at", next).Msg("load preferences after run")
		e.markSucceeded(ctx, log, job, now, next, note+"; preferences unavailable, retrying schedule in 24h")
	case !prefs.Enabled:
		if err := e.Store.Disable(ctx, job.UserID, now, note+"; scheduling disabled, not rescheduled"); err != nil {
			log.Error().Err(err).Msg("disable job")
		}
		log.Info().Msg("scheduling disabled during run, job not rescheduled")
	default:
		next, err := schedule.NextRun(prefs, now)
		if err != nil {
			e.fail(ctx, log, job, fmt.Errorf("compute next run: %w", err), started, now, took)
			return
		}
		e.markSucceeded(ctx, log, job, now, next, fmt.Sprintf("%s; next run %s", note, next.Format(time.RFC3339)))
	}

	e.appendLog(ctx, log, entry)
	e.Metrics.Finished(out.Kind.String(), took)
	log.Info().Str("outcome", out.Kind.String()).Dur("took", took).Msg("job finished")
}

func (e *Executor) markSucceeded(ctx context.Context, log zerolog.Logger, job Job, now, next time.Time, note string) {
	ok, err := e.Store.MarkSucceeded(ctx, job.UserID, now, next, note)
	if err != nil {
		log.Error().Err(err).Msg("mark job succeeded")
		return
	}
	if !ok {
		log.Warn().Msg("job changed while running, keeping its current state")
	}
}

// failTransitionTries bounds how often fail re-reads a row whose retry
// count moved under it.
const failTransitionTries = 3

func (e *Executor) fail(ctx context.Context, log zerolog.Logger, job Job, cause error, started, now time.Time, took time.Duration) {
	entry := &ExecutionLog{
		JobID:            job.ID,
		UserID:           job.UserID,
		ExecutedAt:       started,
		ProcessingTimeMs: took.Milliseconds(),
		ErrorMessage:     strPtr(cause.Error()),
	}

	// The count is taken from the row, not the dispatch snapshot: a
	// preferences update during the run resets it.
	current := job.RetryCount
	var attempt int
	for try := 0; try < failTransitionTries; try++ {
		attempt = current + 1
		var (
			nextRetry *time.Time
			note      string
		)
		if retryAt, ok := e.Policy.Next(attempt, now); ok {
			nextRetry = timePtr(retryAt)
			entry.Status = LogFailed
			note = fmt.Sprintf("attempt %d failed: %v; retry at %s", attempt, cause, retryAt.Format(time.RFC3339))
		} else {
			entry.Status = LogFailedPermanent
			note = fmt.Sprintf("attempt %d failed: %v; retries exhausted", attempt, cause)
		}

		ok, err := e.Store.MarkFailed(ctx, job.UserID, now, current, nextRetry, note)
		if err != nil {
			log.Error().Err(err).Msg("mark job failed")
			break
		}
		if ok {
			break
		}
		fresh, err := e.Store.Get(ctx, job.UserID)
		if err != nil || fresh.Status != StatusRunning {
			log.Warn().Msg("job changed while running, keeping its current state")
			break
		}
		log.Debug().Int("retry_count", fresh.RetryCount).Msg("retry count changed during run")
		current = fresh.RetryCount
	}

	e.appendLog(ctx, log, entry)
	e.Metrics.Finished(string(entry.Status), took)

	ev := log.Warn()
	if entry.Status == LogFailedPermanent {
		ev = log.Error()
	}
	ev.Err(cause).Int("attempt", attempt).Str("status", string(entry.Status)).Msg("job failed")
}

func (e *Executor) appendLog(ctx context.Context, log zerolog.Logger, entry *ExecutionLog) {
	if err := e.Store.AppendLog(ctx, entry); err != nil {
		log.Error().Err(err).Msg("append execution log")
	}
}
