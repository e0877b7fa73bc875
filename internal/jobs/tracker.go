package jobs

import (
	"sync"
	"time"
)

const DefaultStaleThreshold = 5 * time.Minute

// Slot is a reservation handed out by Tracker.Reserve.
type Slot struct {
	UserID    uint64
	StartedAt time.Time
}

// Tracker is the in-process registry of executing jobs. It stops this process
// from dispatching a user twice and caps parallelism; the persisted running
// status covers restarts.
type Tracker struct {
	mu         sync.Mutex
	running    map[uint64]time.Time
	max        int
	staleAfter time.Duration
	now        func() time.Time
}

func NewTracker(maxConcurrent int, staleAfter time.Duration) *Tracker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleThreshold
	}
	return &Tracker{
		running:    make(map[uint64]time.Time),
		max:        maxConcurrent,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Reserve takes a slot for userID. It fails when the user already holds one
// or every slot is taken.
func (t *Tracker) Reserve(userID uint64) (Slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.running[userID]; busy {
		return Slot{}, false
	}
	if len(t.running) >= t.max {
		return Slot{}, false
	}
	started := t.now()
	t.running[userID] = started
	return Slot{UserID: userID, StartedAt: started}, true
}

// Release frees the slot. A slot that was evicted as stale and re-reserved by
// a later dispatch is left untouched.
func (t *Tracker) Release(s Slot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if started, ok := t.running[s.UserID]; ok && started.Equal(s.StartedAt) {
		delete(t.running, s.UserID)
	}
}

func (t *Tracker) Has(userID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[userID]
	return ok
}

func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}

func (t *Tracker) Max() int { return t.max }

func (t *Tracker) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.max - len(t.running); n > 0 {
		return n
	}
	return 0
}

// EvictStale drops reservations older than the staleness threshold and
// returns the affected users.
func (t *Tracker) EvictStale() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.staleAfter)
	var evicted []uint64
	for uid, started := range t.running {
		if !started.After(cutoff) {
			delete(t.running, uid)
			evicted = append(evicted, uid)
		}
	}
	return evicted
}

// Snapshot copies the current reservations.
func (t *Tracker) Snapshot() map[uint64]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint64]time.Time, len(t.running))
	for uid, started := range t.running {
		out[uid] = started
	}
	return out
}
