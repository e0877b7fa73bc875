package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outreach/internal/schedule"
)

var (
	ErrNotFound = errors.New("preferences not found")
	ErrInvalid  = errors.New("invalid preferences")
)

// JobScheduler is told about every preferences change.
type JobScheduler interface {
	ApplyPreferences(ctx context.Context, userID uint64, p schedule.Preferences) error
}

type Service struct {
	DB   *gorm.DB
	Jobs JobScheduler
}

type SaveInput struct {
	Enabled        bool
	Days           []string
	Time           string
	Timezone       string
	ContactsPerDay int
	Options        json.RawMessage
}

// Validate normalizes the input and returns the schedule it describes.
// Disabled preferences may be incomplete.
func (in *SaveInput) Validate() (schedule.Preferences, error) {
	in.Time = strings.TrimSpace(in.Time)
	in.Timezone = strings.TrimSpace(in.Timezone)
	if in.ContactsPerDay < 0 {
		return schedule.Preferences{}, fmt.Errorf("%w: contacts_per_day must not be negative", ErrInvalid)
	}
	if len(in.Options) > 0 && !json.Valid(in.Options) {
		return schedule.Preferences{}, fmt.Errorf("%w: options must be JSON", ErrInvalid)
	}

	days, err := schedule.ParseDays(in.Days)
	if err != nil {
		return schedule.Preferences{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sp := schedule.Preferences{Enabled: in.Enabled, Days: days, Time: in.Time, Timezone: in.Timezone}
	if in.Enabled {
		if err := sp.Validate(); err != nil {
			return schedule.Preferences{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return sp, nil
}

func (s *Service) Get(ctx context.Context, userID uint64) (*Preferences, error) {
	var p Preferences
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Save stores the preferences and then brings the user's job in line.
func (s *Service) Save(ctx context.Context, userID uint64, in SaveInput) (*Preferences, error) {
	sp, err := in.Validate()
	if err != nil {
		return nil, err
	}

	opts := in.Options
	if len(opts) == 0 || string(opts) == "null" {
		opts = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	p := Preferences{
		UserID:         userID,
		Enabled:        in.Enabled,
		ScheduleDays:   pq.StringArray(schedule.DayNames(sp.Days)),
		ScheduleTime:   in.Time,
		Timezone:       in.Timezone,
		ContactsPerDay: in.ContactsPerDay,
		Options:        opts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.ScheduleTime == "" {
		p.ScheduleTime = "09:00"
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}

	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "schedule_days", "schedule_time", "timezone",
			"contacts_per_day", "options", "updated_at",
		}),
	}).Create(&p).Error
	if err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}

	if err := s.Jobs.ApplyPreferences(ctx, userID, sp); err != nil {
		return nil, fmt.Errorf("apply schedule: %w", err)
	}
	return &p, nil
}

// Disable turns scheduling off and disables the job. The row is kept.
func (s *Service) Disable(ctx context.Context, userID uint64) error {
	res := s.DB.WithContext(ctx).Model(&Preferences{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"enabled": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return s.Jobs.ApplyPreferences(ctx, userID, schedule.Preferences{Enabled: false})
}

// SchedulePreferences serves the scheduler. Users without preferences are
// reported as disabled.
func (s *Service) SchedulePreferences(ctx context.Context, userID uint64) (schedule.Preferences, error) {
	p, err := s.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return schedule.Preferences{}, nil
	}
	if err != nil {
		return schedule.Preferences{}, err
	}
	return p.Schedule()
}
