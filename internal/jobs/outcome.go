package jobs

import (
	"context"

	"outreach/internal/schedule"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSoftStop
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftStop:
		return "soft_stop"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is what a workload run reports back.
type Outcome struct {
	Kind OutcomeKind

	BatchID           string
	ContactsProcessed int

	// Reason explains a soft stop.
	Reason string
	Err    error
}

func Success(batchID string, contacts int) Outcome {
	return Outcome{Kind: OutcomeSuccess, BatchID: batchID, ContactsProcessed: contacts}
}

// SoftStop is a recognized non-error condition, e.g. preconditions not met.
// It reschedules like a success and never retries.
func SoftStop(reason string) Outcome {
	return Outcome{Kind: OutcomeSoftStop, Reason: reason}
}

func Failure(err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Err: err}
}

// Processor runs the day's outreach for a user.
type Processor interface {
	ProcessUserWorkload(ctx context.Context, userID uint64) Outcome
}

type ProcessorFunc func(ctx context.Context, userID uint64) Outcome

func (f ProcessorFunc) ProcessUserWorkload(ctx context.Context, userID uint64) Outcome {
	return f(ctx, userID)
}

// PreferencesProvider supplies the current schedule of a user. Users without
// stored preferences are reported with Enabled false and a nil error.
type PreferencesProvider interface {
	SchedulePreferences(ctx context.Context, userID uint64) (schedule.Preferences, error)
}
