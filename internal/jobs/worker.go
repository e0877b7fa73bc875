package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultBatchSize    = 10
)

var (
	ErrAlreadyRunning = errors.New("job already running")
	ErrAtCapacity     = errors.New("no free execution slot")
	ErrStopping       = errors.New("scheduler stopping")
)

// Worker polls the store for due jobs and dispatches each one to the
// executor on its own goroutine. The loop never waits on an execution.
type Worker struct {
	Store     Store
	Tracker   *Tracker
	Sweeper   *Sweeper
	Executor  *Executor
	Interval  time.Duration
	BatchSize int
	Metrics   *Metrics
	Log       zerolog.Logger
	Now       func() time.Time

	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

// Run ticks until ctx is done, starting with an immediate tick, then waits
// for in-flight executions.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w.Log.Info().
		Dur("interval", interval).
		Int("max_concurrent", w.Tracker.Max()).
		Msg("scheduler started")

	w.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Log.Info().Int("in_flight", w.Tracker.Size()).Msg("scheduler stopping, waiting for running jobs")
			w.mu.Lock()
			w.stopping = true
			w.mu.Unlock()
			w.wg.Wait()
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Wait blocks until every dispatched execution has returned.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

// tick runs one poll cycle and returns how many jobs were dispatched.
func (w *Worker) tick(ctx context.Context) int {
	if evicted := w.Tracker.EvictStale(); len(evicted) > 0 {
		w.Metrics.Evicted(len(evicted))
		w.Log.Warn().Interface("user_ids", evicted).Msg("evicted stale in-memory reservations")
	}

	if w.Sweeper != nil {
		if _, err := w.Sweeper.Sweep(ctx); err != nil {
			w.Log.Error().Err(err).Msg("stale job sweep")
		}
	}

	slots := w.Tracker.Available()
	if slots == 0 {
		w.Log.Debug().Msg("no free slots, skipping tick")
		return 0
	}
	limit := w.BatchSize
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	limit = min(limit, slots)

	due, err := w.Store.FindDue(ctx, w.now(), limit, w.Executor.Policy.MaxRetries)
	if err != nil {
		w.Log.Error().Err(err).Msg("fetch due jobs")
		return 0
	}

	dispatched := 0
	for _, job := range due {
		if err := w.Dispatch(ctx, job, nil); err != nil {
			w.Log.Debug().Err(err).Uint64("user_id", job.UserID).Msg("skip dispatch")
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		w.Log.Debug().Int("dispatched", dispatched).Int("due", len(due)).Msg("tick")
	}
	return dispatched
}

// Dispatch reserves a slot for the job and executes it in the background
// with proc, or the executor's processor when proc is nil. The execution is
// detached from ctx cancellation: in-flight jobs are never interrupted.
func (w *Worker) Dispatch(ctx context.Context, job Job, proc Processor) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopping {
		return ErrStopping
	}

	slot, ok := w.Tracker.Reserve(job.UserID)
	if !ok {
		if w.Tracker.Has(job.UserID) {
			return ErrAlreadyRunning
		}
		return ErrAtCapacity
	}

	w.Metrics.Dispatched()
	execCtx := context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Executor.Execute(execCtx, slot, job, proc); err != nil {
			w.Log.Debug().Err(err).Uint64("user_id", job.UserID).Msg("execution not started")
		}
	}()
	return nil
}
