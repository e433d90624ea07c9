package orders

import (
	"time"

	"github.com/labtrack/labtrack/internal/platform/apperr"
)

// Precondition is the optimistic guard a transition is persisted under. The
// repository re-checks it in the UPDATE's WHERE clause so two technicians
// racing on the same order cannot both win.
type Precondition struct {
	// Statuses the order must currently be in. Empty means any status.
	Statuses []Status
	// SampleCollected, when non-nil, requires sample_collected_at to be
	// set (true) or null (false).
	SampleCollected *bool
}

func (p Precondition) allows(o *Order) bool {
	if len(p.Statuses) > 0 {
		ok := false
		for _, s := range p.Statuses {
			if o.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if p.SampleCollected != nil && o.SampleCollected() != *p.SampleCollected {
		return false
	}
	return true
}

func boolPtr(b bool) *bool { return &b }

type transition struct {
	pre Precondition
	to  Status
}

var transitions = map[Action]transition{
	ActionMarkCollected: {
		pre: Precondition{Statuses: []Status{StatusOrderCreated, StatusPendingCollection}},
		to:  StatusCollected,
	},
	ActionMarkNotCollected: {
		pre: Precondition{SampleCollected: boolPtr(true)},
		to:  StatusPendingCollection,
	},
	ActionStartProcessing: {
		pre: Precondition{Statuses: []Status{StatusCollected}},
		to:  StatusInProgress,
	},
	ActionSubmitForApproval: {
		pre: Precondition{Statuses: []Status{StatusInProgress}},
		to:  StatusPendingApproval,
	},
	ActionApproveResults: {
		pre: Precondition{Statuses: []Status{StatusPendingApproval}},
		to:  StatusCompleted,
	},
	ActionDeliver: {
		pre: Precondition{Statuses: []Status{StatusCompleted}},
		to:  StatusDelivered,
	},
}

// PreconditionFor returns the guard the repository must enforce when
// persisting the given action.
func PreconditionFor(action Action) (Precondition, bool) {
	t, ok := transitions[action]
	return t.pre, ok
}

// Apply mutates the order per the action's transition, stamping
// status_updated_at/by and the collection fields, or returns
// apperr.InvalidTransition when the precondition does not hold. Apply is
// pure over its inputs; persistence is the service's job.
func Apply(o *Order, action Action, actor string, now time.Time) error {
	t, ok := transitions[action]
	if !ok {
		return apperr.InvalidTransition("unknown action %q", action)
	}
	if !t.pre.allows(o) {
		return apperr.InvalidTransition("cannot %s order in status %s", action, o.Status)
	}

	o.Status = t.to
	o.StatusUpdatedAt = now
	o.StatusUpdatedBy = actor

	switch action {
	case ActionMarkCollected:
		collectedAt := now
		o.SampleCollectedAt = &collectedAt
		o.SampleCollectedBy = &actor
	case ActionMarkNotCollected:
		o.SampleCollectedAt = nil
		o.SampleCollectedBy = nil
	}
	return nil
}
