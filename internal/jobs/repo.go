package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("job not found")

// Store is the durable side of the scheduler. Every mutation touches a single
// row and is atomic on its own; conditional updates report whether the row
// was in the expected state.
type Store interface {
	Get(ctx context.Context, userID uint64) (*Job, error)
	FindDue(ctx context.Context, now time.Time, limit, maxRetries int) ([]Job, error)
	FindStaleRunning(ctx context.Context, now time.Time, threshold time.Duration) ([]Job, error)

	MarkRunning(ctx context.Context, userID uint64, now time.Time, note string) (bool, error)
	MarkSucceeded(ctx context.Context, userID uint64, now, nextRunAt time.Time, note string) (bool, error)
	// MarkFailed increments retry_count of a running job whose count is
	// still fromRetryCount.
	MarkFailed(ctx context.Context, userID uint64, now time.Time, fromRetryCount int, nextRetryAt *time.Time, note string) (bool, error)
	ResetStale(ctx context.Context, userID uint64, now, staleBefore time.Time, note string) (bool, error)

	Upsert(ctx context.Context, userID uint64, now, nextRunAt time.Time, note string) error
	Disable(ctx context.Context, userID uint64, now time.Time, note string) error
	Delete(ctx context.Context, userID uint64) error

	AppendLog(ctx context.Context, entry *ExecutionLog) error
	ListLogs(ctx context.Context, userID uint64, limit int) ([]ExecutionLog, error)
}

// Repo is the Postgres Store.
type Repo struct {
	DB *gorm.DB
}

var _ Store = (*Repo)(nil)

func (r *Repo) Get(ctx context.Context, userID uint64) (*Job, error) {
	var job Job
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// FindDue returns scheduled jobs whose run time has passed and failed jobs
// still within their retry budget. Retries sort first so a burst of fresh
// jobs cannot starve them. retry_count counts failures, so `<= maxRetries`
// admits the job for its last retry; failure maxRetries+1 is permanent.
func (r *Repo) FindDue(ctx context.Context, now time.Time, limit, maxRetries int) ([]Job, error) {
	var out []Job
	err := r.DB.WithContext(ctx).Raw(`
select *
from daily_jobs
where (status = 'scheduled' and next_run_at <= ?)
   or (status = 'failed' and retry_count <= ? and (next_retry_at is null or next_retry_at <= ?))
order by case when status = 'failed' then 0 else 1 end, next_run_at asc
limit ?
`, now, maxRetries, now, limit).Scan(&out).Error
	return out, err
}

func (r *Repo) FindStaleRunning(ctx context.Context, now time.Time, threshold time.Duration) ([]Job, error) {
	var out []Job
	err := r.DB.WithContext(ctx).Raw(`
select *
from daily_jobs
where status = 'running' and updated_at <= ?
order by updated_at asc
`, now.Add(-threshold)).Scan(&out).Error
	return out, err
}

// MarkRunning claims a scheduled or failed job. It reports false when another
// caller got there first or the job was disabled in the meantime.
func (r *Repo) MarkRunning(ctx context.Context, userID uint64, now time.Time, note string) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update daily_jobs
set status = 'running', last_run_at = ?, last_error = ?, updated_at = ?
where user_id = ? and status in ('scheduled', 'failed')
`, now, note, now, userID)
	return res.RowsAffected == 1, res.Error
}

func (r *Repo) MarkSucceeded(ctx context.Context, userID uint64, now, nextRunAt time.Time, note string) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update daily_jobs
set status = 'scheduled',
    next_run_at = ?,
    retry_count = 0,
    next_retry_at = null,
    last_error = ?,
    updated_at = ?
where user_id = ? and status = 'running'
`, nextRunAt, note, now, userID)
	return res.RowsAffected == 1, res.Error
}

func (r *Repo) MarkFailed(ctx context.Context, userID uint64, now time.Time, fromRetryCount int, nextRetryAt *time.Time, note string) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update daily_jobs
set status = 'failed',
    retry_count = retry_count + 1,
    next_retry_at = ?,
    last_error = ?,
    updated_at = ?
where user_id = ? and status = 'running' and retry_count = ?
`, nextRetryAt, note, now, userID, fromRetryCount)
	return res.RowsAffected == 1, res.Error
}

// ResetStale puts a job stuck in running back to scheduled. retry_count is
// left alone: the interrupted attempt may well have finished its work.
func (r *Repo) ResetStale(ctx context.Context, userID uint64, now, staleBefore time.Time, note string) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update daily_jobs
set status = 'scheduled', last_error = ?, updated_at = ?
where user_id = ? and status = 'running' and updated_at <= ?
`, note, now, userID, staleBefore)
	return res.RowsAffected == 1, res.Error
}

// Upsert creates the job or resets it to scheduled with a clean retry state.
// A running job stays running; its executor reschedules it on completion.
func (r *Repo) Upsert(ctx context.Context, userID uint64, now, nextRunAt time.Time, note string) error {
	job := Job{
		UserID:    userID,
		Status:    StatusScheduled,
		NextRunAt: nextRunAt,
		LastError: strPtr(note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":        gorm.Expr("case when daily_jobs.status = ? then daily_jobs.status else ? end", StatusRunning, StatusScheduled),
			"next_run_at":   nextRunAt,
			"retry_count":   0,
			"next_retry_at": nil,
			"last_error":    note,
			"updated_at":    now,
		}),
	}).Create(&job).Error
}

func (r *Repo) Disable(ctx context.Context, userID uint64, now time.Time, note string) error {
	return r.DB.WithContext(ctx).Exec(`
update daily_jobs
set status = 'disabled', next_retry_at = null, last_error = ?, updated_at = ?
where user_id = ?
`, note, now, userID).Error
}

// Delete removes the job row. Execution logs are kept.
func (r *Repo) Delete(ctx context.Context, userID uint64) error {
	res := r.DB.WithContext(ctx).Exec(`delete from daily_jobs where user_id = ?`, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) AppendLog(ctx context.Context, entry *ExecutionLog) error {
	return r.DB.WithContext(ctx).Create(entry).Error
}

func (r *Repo) ListLogs(ctx context.Context, userID uint64, limit int) ([]ExecutionLog, error) {
	var out []ExecutionLog
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("executed_at desc, id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
