package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"outreach/internal/schedule"
)

// memStore mirrors Repo's semantics in memory.
type memStore struct {
	mu     sync.Mutex
	jobs   map[uint64]*Job
	logs   []ExecutionLog
	nextID uint64

	claims int
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uint64]*Job)}
}

func (m *memStore) put(j Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == 0 {
		m.nextID++
		j.ID = m.nextID
	}
	m.jobs[j.UserID] = &j
}

func (m *memStore) job(userID uint64) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[userID]
}

func (m *memStore) allLogs() []ExecutionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutionLog(nil), m.logs...)
}

func (m *memStore) Get(_ context.Context, userID uint64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) FindDue(_ context.Context, now time.Time, limit, maxRetries int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		switch {
		case j.Status == StatusScheduled && !j.NextRunAt.After(now):
			out = append(out, *j)
		case j.Status == StatusFailed && j.RetryCount <= maxRetries && (j.NextRetryAt == nil || !j.NextRetryAt.After(now)):
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		fa, fb := out[a].Status == StatusFailed, out[b].Status == StatusFailed
		if fa != fb {
			return fa
		}
		return out[a].NextRunAt.Before(out[b].NextRunAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) FindStaleRunning(_ context.Context, now time.Time, threshold time.Duration) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if j.Status == StatusRunning && !j.UpdatedAt.After(now.Add(-threshold)) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memStore) MarkRunning(_ context.Context, userID uint64, now time.Time, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[userID]
	if !ok || (j.Status != StatusScheduled && j.Status != StatusFailed) {
		return false, nil
	}
	m.claims++
	j.Status = StatusRunning
	j.LastRunAt = timePtr(now)
	j.LastError = strPtr(note)
	j.UpdatedAt = now
	return true, nil
}

func (m *memStore) MarkSucceeded(_ context.Context, userID uint64, now, nextRunAt time.Time, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[userID]
	if !ok || j.Status != StatusRunning {
		return false, nil
	}
	j.Status = StatusScheduled
	j.NextRunAt = nextRunAt
	j.RetryCount = 0
	j.NextRetryAt = nil
	j.LastError = strPtr(note)
	j.UpdatedAt = now
	return true, nil
}

func (m *memStore) MarkFailed(_ context.Context, userID uint64, now time.Time, fromRetryCount int, nextRetryAt *time.Time, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[userID]
	if !ok || j.Status != StatusRunning || j.RetryCount != fromRetryCount {
		return false, nil
	}
	j.Status = StatusFailed
	j.RetryCount++
	j.NextRetryAt = nextRetryAt
	j.LastError = strPtr(note)
	j.UpdatedAt = now
	return true, nil
}

func (m *memStore) ResetStale(_ context.Context, userID uint64, now, staleBefore time.Time, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[userID]
	if !ok || j.Status != StatusRunning || j.UpdatedAt.After(staleBefore) {
		return false, nil
	}
	j.Status = StatusScheduled
	j.LastError = strPtr(note)
	j.UpdatedAt = now
	return true, nil
}

func (m *memStore) Upsert(_ context.Context, userID uint64, now, nextRunAt time.Time, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[userID]
	if !ok {
		m.nextID++
		j = &Job{ID: m.nextID, UserID: userID, CreatedAt: now}
		m.jobs[userID] = j
	}
	if j.Status != StatusRunning {
		j.Status = StatusScheduled
	}
	j.NextRunAt = nextRunAt
	j.RetryCount = 0
	j.NextRetryAt = nil
	j.LastError = strPtr(note)
	j.UpdatedAt = now
	return nil
}

func (m *memStore) Disable(_ context.Context, userID uint64, now time.Time, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[userID]; ok {
		j.Status = StatusDisabled
		j.NextRetryAt = nil
		j.LastError = strPtr(note)
		j.UpdatedAt = now
	}
	return nil
}

func (m *memStore) Delete(_ context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[userID]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, userID)
	return nil
}

func (m *memStore) AppendLog(_ context.Context, entry *ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uint64(len(m.logs) + 1)
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memStore) ListLogs(_ context.Context, userID uint64, limit int) ([]ExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExecutionLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].UserID == userID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

// staticPrefs serves the same enabled schedule to every user unless overridden.
type staticPrefs struct {
	mu       sync.Mutex
	def      schedule.Preferences
	override map[uint64]schedule.Preferences
	err      error
}

func newStaticPrefs() *staticPrefs {
	return &staticPrefs{
		def: schedule.Preferences{
			Enabled:  true,
			Days:     []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			Time:     "09:00",
			Timezone: "UTC",
		},
		override: make(map[uint64]schedule.Preferences),
	}
}

func (s *staticPrefs) set(userID uint64, p schedule.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override[userID] = p
}

func (s *staticPrefs) SchedulePreferences(_ context.Context, userID uint64) (schedule.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return schedule.Preferences{}, s.err
	}
	if p, ok := s.override[userID]; ok {
		return p, nil
	}
	return s.def, nil
}

// fakeClock is a settable clock safe for concurrent use.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
