package jobs

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusFailed    Status = "failed"
	StatusDisabled  Status = "disabled"
)

// Job is the single daily outreach job of a user.
type Job struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"uniqueIndex;not null"`

	Status    Status     `gorm:"type:text;index;not null;default:'scheduled'"`
	NextRunAt time.Time  `gorm:"type:timestamptz;not null"`
	LastRunAt *time.Time `gorm:"type:timestamptz"`

	// Free-text diagnostic: status notes as well as errors.
	LastError *string `gorm:"type:text"`

	RetryCount  int        `gorm:"not null;default:0"`
	NextRetryAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Job) TableName() string { return "daily_jobs" }

type LogStatus string

const (
	LogSuccess         LogStatus = "success"
	LogFailed          LogStatus = "failed"
	LogFailedPermanent LogStatus = "failed_permanent"
)

// ExecutionLog is append-only, one row per attempt.
type ExecutionLog struct {
	ID     uint64 `gorm:"primaryKey"`
	JobID  uint64 `gorm:"index;not null"`
	UserID uint64 `gorm:"index;not null"`

	ExecutedAt       time.Time `gorm:"type:timestamptz;not null"`
	Status           LogStatus `gorm:"type:text;not null"`
	ProcessingTimeMs int64     `gorm:"not null;default:0"`

	BatchID           *string `gorm:"type:text"`
	ContactsProcessed *int
	ErrorMessage      *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (ExecutionLog) TableName() string { return "job_execution_logs" }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
