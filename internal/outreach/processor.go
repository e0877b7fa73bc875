// Package outreach holds the daily workload run by the scheduler. Contact
// selection and message generation live behind Notifier.
package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"outreach/internal/jobs"
	"outreach/internal/prefs"
)

// PrefsSource is the read side of prefs.Service.
type PrefsSource interface {
	Get(ctx context.Context, userID uint64) (*prefs.Preferences, error)
}

// Batch is one day's outreach for a user.
type Batch struct {
	ID       string
	UserID   uint64
	Contacts int
	Options  json.RawMessage
}

// Notifier delivers a batch. It returns how many contacts were handled.
type Notifier interface {
	Notify(ctx context.Context, b Batch) (int, error)
}

type Processor struct {
	Prefs    PrefsSource
	Notifier Notifier
	Log      zerolog.Logger

	// NewID defaults to uuid.NewString.
	NewID func() string
}

var _ jobs.Processor = (*Processor)(nil)

func (p *Processor) ProcessUserWorkload(ctx context.Context, userID uint64) jobs.Outcome {
	pr, err := p.Prefs.Get(ctx, userID)
	if errors.Is(err, prefs.ErrNotFound) {
		return jobs.SoftStop("no preferences")
	}
	if err != nil {
		return jobs.Failure(fmt.Errorf("load preferences: %w", err))
	}
	if !pr.Enabled {
		return jobs.SoftStop("outreach disabled")
	}
	if pr.ContactsPerDay <= 0 {
		return jobs.SoftStop("no contacts requested")
	}

	newID := p.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	b := Batch{ID: newID(), UserID: userID, Contacts: pr.ContactsPerDay, Options: pr.Options}

	n, err := p.Notifier.Notify(ctx, b)
	if err != nil {
		return jobs.Failure(fmt.Errorf("batch %s: %w", b.ID, err))
	}
	if n == 0 {
		return jobs.SoftStop("no eligible contacts")
	}
	p.Log.Debug().Uint64("user_id", userID).Str("batch_id", b.ID).Int("contacts", n).Msg("batch delivered")
	return jobs.Success(b.ID, n)
}

// LogNotifier only logs the batch. It is the default when no delivery
// backend is configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, b Batch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	opts := b.Options
	if len(opts) == 0 {
		opts = json.RawMessage("{}")
	}
	n.Log.Info().
		Uint64("user_id", b.UserID).
		Str("batch_id", b.ID).
		Int("contacts", b.Contacts).
		RawJSON("options", opts).
		Msg("outreach batch")
	return b.Contacts, nil
}
