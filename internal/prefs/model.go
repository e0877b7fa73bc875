package prefs

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"outreach/internal/schedule"
)

// Preferences are a user's outreach settings. The scheduler only reads the
// schedule part; ContactsPerDay and Options belong to the workload.
type Preferences struct {
	UserID  uint64 `gorm:"primaryKey"`
	Enabled bool   `gorm:"not null"`

	ScheduleDays pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	ScheduleTime string         `gorm:"type:text;not null;default:'09:00'"`
	Timezone     string         `gorm:"type:text;not null;default:'UTC'"`

	ContactsPerDay int             `gorm:"not null"`
	Options        json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Preferences) TableName() string { return "outreach_preferences" }

func (p Preferences) Schedule() (schedule.Preferences, error) {
	days, err := schedule.ParseDays(p.ScheduleDays)
	if err != nil {
		return schedule.Preferences{}, err
	}
	return schedule.Preferences{
		Enabled:  p.Enabled,
		Days:     days,
		Time:     p.ScheduleTime,
		Timezone: p.Timezone,
	}, nil
}
