package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Candidate local dates checked before falling back. Seven covers every
// weekday, the extra day absorbs DST and "today already passed" cases.
const searchDays = 8

var (
	ErrNoDays          = errors.New("schedule: no days selected")
	ErrInvalidTime     = errors.New("schedule: invalid time of day")
	ErrInvalidTimezone = errors.New("schedule: invalid timezone")
	ErrInvalidDay      = errors.New("schedule: invalid weekday")
)

// Preferences is the scheduling part of a user's outreach settings.
type Preferences struct {
	Enabled  bool
	Days     []time.Weekday
	Time     string // HH:MM, local to Timezone
	Timezone string // IANA zone id
}

func (p Preferences) Validate() error {
	if len(p.Days) == 0 {
		return ErrNoDays
	}
	if _, _, err := ParseClock(p.Time); err != nil {
		return err
	}
	if _, err := loadLocation(p.Timezone); err != nil {
		return err
	}
	return nil
}

// NextRun returns the first UTC instant strictly after now that falls on one
// of p.Days at p.Time, both evaluated in p.Timezone.
func NextRun(p Preferences, now time.Time) (time.Time, error) {
	hour, minute, err := ParseClock(p.Time)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := loadLocation(p.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	days := make(map[time.Weekday]bool, len(p.Days))
	for _, d := range p.Days {
		days[d] = true
	}

	local := now.In(loc)
	for i := 0; i < searchDays; i++ {
		// time.Date normalizes day overflow and resolves the offset for that
		// specific date, so DST changes inside the window are handled.
		candidate := time.Date(local.Year(), local.Month(), local.Day()+i, hour, minute, 0, 0, loc)
		if !days[candidate.Weekday()] {
			continue
		}
		if candidate.After(now) {
			return candidate.UTC(), nil
		}
	}

	return now.Add(24 * time.Hour).UTC(), nil
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 || len(hh) > 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hour, minute, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseDays maps weekday names ("mon", "Monday", ...) to a de-duplicated
// slice in input order.
func ParseDays(names []string) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]bool, len(names))
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDay, n)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// DayNames is the inverse of ParseDays, using three letter lower-case names.
func DayNames(days []time.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, strings.ToLower(d.String()[:3]))
	}
	return out
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, tz, err)
	}
	return loc, nil
}
