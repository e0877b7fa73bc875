package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper resets jobs left in running by a crashed or hung execution. It is
// run at boot, on every poll tick and from the periodic sweep timer.
type Sweeper struct {
	Store     Store
	Threshold time.Duration
	Metrics   *Metrics
	Log       zerolog.Logger
	Now       func() time.Time
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}

	stale, err := s.Store.FindStaleRunning(ctx, now, threshold)
	if err != nil {
		return 0, fmt.Errorf("find stale running jobs: %w", err)
	}

	recovered := 0
	for _, job := range stale {
		note := fmt.Sprintf("recovered at %s: running without update since %s",
			now.Format(time.RFC3339), job.UpdatedAt.UTC().Format(time.RFC3339))
		ok, err := s.Store.ResetStale(ctx, job.UserID, now, now.Add(-threshold), note)
		if err != nil {
			s.Log.Error().Err(err).Uint64("user_id", job.UserID).Msg("reset stale job")
			continue
		}
		if ok {
			recovered++
			s.Log.Warn().
				Uint64("user_id", job.UserID).
				Uint64("job_id", job.ID).
				Time("updated_at", job.UpdatedAt).
				Msg("recovered stale running job")
		}
	}
	s.Metrics.Recovered(recovered)
	return recovered, nil
}

// Every registers the sweep on c at a fixed interval, rounded up to whole
// seconds by cron.
func (s *Sweeper) Every(c *cron.Cron, interval time.Duration) (cron.EntryID, error) {
	if interval <= 0 {
		interval = DefaultStaleThreshold
	}
	return c.AddFunc("@every "+interval.String(), func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.Log.Error().Err(err).Msg("periodic sweep")
		}
	})
}
