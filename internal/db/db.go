package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"outreach/internal/auth"
	"outreach/internal/jobs"
	"outreach/internal/prefs"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

// indexes backs the poll loop, the sweeper and log listing.
var indexes = []string{
	`create index if not exists idx_daily_jobs_due on daily_jobs(status, next_run_at);`,
	`create index if not exists idx_daily_jobs_retry on daily_jobs(status, next_retry_at) where next_retry_at is not null;`,
	`create index if not exists idx_daily_jobs_stale on daily_jobs(status, updated_at);`,
	`create index if not exists idx_exec_logs_user on job_execution_logs(user_id, executed_at desc);`,
	`create index if not exists idx_exec_logs_job on job_execution_logs(job_id, executed_at desc);`,
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&auth.User{},
		&prefs.Preferences{},
		&jobs.Job{},
		&jobs.ExecutionLog{},
	); err != nil {
		return err
	}

	for _, s := range indexes {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}
	return nil
}
