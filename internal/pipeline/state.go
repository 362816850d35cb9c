package pipeline

import (
	"time"

	"relentless-relay/internal/models"
)

// State is a step of one bounded invocation.
type State string

const (
	StateStart               State = "start"
	StateFetchUnit           State = "fetch_unit"
	StateExtract             State = "extract"
	StatePersist             State = "persist"
	StateCheckBudget         State = "check_budget"
	StatePublishContinuation State = "publish_continuation"
	StateDone                State = "done"
	StateError               State = "error"
)

// Terminal reports whether an invocation can end in s.
func (s State) Terminal() bool {
	return s == StateDone || s == StatePublishContinuation || s == StateError
}

// Observer receives progress events from a running invocation.
// Implementations must not block; they run on the invocation goroutine.
type Observer interface {
	OnTransition(from, to State, unit models.WorkUnit)
	OnUnitDone(unit models.WorkUnit, records int, dur time.Duration)
}

// Outcome summarises one invocation.
type Outcome struct {
	InvocationID   string
	JobID          string
	Hop            int
	Start          models.WorkUnit
	State          State
	FailedIn       State // set when State == StateError
	UnitsProcessed int
	RecordsStored  int
	Next           *models.Cursor // the published continuation, if any
	UnitGone       bool
	Looped         bool // ended because the next unit was already on the trail
}

// StatusOf turns an invocation result into the RunStatus shown by the API.
func StatusOf(out Outcome, runErr error, now time.Time) models.RunStatus {
	status := models.RunStatus{
		JobID:          out.JobID,
		InvocationID:   out.InvocationID,
		Hop:            out.Hop,
		Status:         string(out.State),
		UnitsProcessed: out.UnitsProcessed,
		RecordsStored:  out.RecordsStored,
		UpdatedAt:      now.UTC(),
	}
	if out.Next != nil {
		status.NextRef = out.Next.Unit.Ref
	}
	if runErr != nil {
		status.Status = string(StateError)
		status.Error = runErr.Error()
	}
	return status
}
