package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/labtrack/labtrack/internal/platform/apperr"
)

func newOrder(status Status) *Order {
	return &Order{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		Status:          status,
		StatusUpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		StatusUpdatedBy: "system",
	}
}

func TestApply_ValidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		action Action
		want   Status
	}{
		{"mark collected from created", StatusOrderCreated, ActionMarkCollected, StatusCollected},
		{"mark collected from pending", StatusPendingCollection, ActionMarkCollected, StatusCollected},
		{"start processing", StatusCollected, ActionStartProcessing, StatusInProgress},
		{"submit for approval", StatusInProgress, ActionSubmitForApproval, StatusPendingApproval},
		{"approve results", StatusPendingApproval, ActionApproveResults, StatusCompleted},
		{"deliver", StatusCompleted, ActionDeliver, StatusDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder(tt.from)
			if tt.action == ActionStartProcessing || tt.action == ActionSubmitForApproval ||
				tt.action == ActionApproveResults || tt.action == ActionDeliver {
				collectedAt := time.Now().UTC()
				collector := "tech-1"
				o.SampleCollectedAt = &collectedAt
				o.SampleCollectedBy = &collector
			}

			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			if err := Apply(o, tt.action, "tech-2", now); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if o.Status != tt.want {
				t.Errorf("expected status %s, got %s", tt.want, o.Status)
			}
			if !o.StatusUpdatedAt.Equal(now) {
				t.Errorf("expected status_updated_at stamped to %v, got %v", now, o.StatusUpdatedAt)
			}
			if o.StatusUpdatedBy != "tech-2" {
				t.Errorf("expected status_updated_by tech-2, got %s", o.StatusUpdatedBy)
			}
		})
	}
}

func TestApply_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		action Action
	}{
		{"collect an already collected order", StatusCollected, ActionMarkCollected},
		{"collect a delivered order", StatusDelivered, ActionMarkCollected},
		{"process before collection", StatusOrderCreated, ActionStartProcessing},
		{"submit before processing", StatusCollected, ActionSubmitForApproval},
		{"approve before submission", StatusInProgress, ActionApproveResults},
		{"deliver before completion", StatusPendingApproval, ActionDeliver},
		{"deliver twice", StatusDelivered, ActionDeliver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder(tt.from)
			err := Apply(o, tt.action, "tech-1", time.Now().UTC())
			if !errors.Is(err, apperr.InvalidTransition("")) {
				t.Fatalf("expected InvalidTransition, got %v", err)
			}
			if o.Status != tt.from {
				t.Errorf("status mutated on failed transition: %s", o.Status)
			}
		})
	}
}

func TestApply_UnknownAction(t *testing.T) {
	o := newOrder(StatusOrderCreated)
	err := Apply(o, Action("teleport"), "tech-1", time.Now().UTC())
	if !errors.Is(err, apperr.InvalidTransition("")) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestApply_MarkCollectedSetsCollectionFields(t *testing.T) {
	o := newOrder(StatusOrderCreated)
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	if err := Apply(o, ActionMarkCollected, "tech-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.SampleCollectedAt == nil || !o.SampleCollectedAt.Equal(now) {
		t.Errorf("expected sample_collected_at %v, got %v", now, o.SampleCollectedAt)
	}
	if o.SampleCollectedBy == nil || *o.SampleCollectedBy != "tech-1" {
		t.Errorf("expected sample_collected_by tech-1, got %v", o.SampleCollectedBy)
	}
}

// markCollected then markNotCollected reverts to pending_collection and
// clears both collection fields.
func TestApply_CollectThenRevert(t *testing.T) {
	o := newOrder(StatusOrderCreated)

	if err := Apply(o, ActionMarkCollected, "tech-1", time.Now().UTC()); err != nil {
		t.Fatalf("mark collected: %v", err)
	}
	if o.Status != StatusCollected {
		t.Fatalf("expected collected, got %s", o.Status)
	}

	if err := Apply(o, ActionMarkNotCollected, "tech-2", time.Now().UTC()); err != nil {
		t.Fatalf("mark not collected: %v", err)
	}
	if o.Status != StatusPendingCollection {
		t.Errorf("expected pending_collection, got %s", o.Status)
	}
	if o.SampleCollectedAt != nil || o.SampleCollectedBy != nil {
		t.Error("expected collection fields cleared")
	}
}

func TestApply_MarkNotCollectedRequiresCollectedSample(t *testing.T) {
	o := newOrder(StatusPendingCollection)
	err := Apply(o, ActionMarkNotCollected, "tech-1", time.Now().UTC())
	if !errors.Is(err, apperr.InvalidTransition("")) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

// Collection fields are always both set or both null, across every action
// from every state.
func TestApply_CollectionFieldInvariant(t *testing.T) {
	statuses := []Status{
		StatusOrderCreated, StatusPendingCollection, StatusCollected,
		StatusInProgress, StatusPendingApproval, StatusCompleted, StatusDelivered,
	}
	actions := []Action{
		ActionMarkCollected, ActionMarkNotCollected, ActionStartProcessing,
		ActionSubmitForApproval, ActionApproveResults, ActionDeliver,
	}

	for _, status := range statuses {
		for _, collected := range []bool{false, true} {
			for _, action := range actions {
				o := newOrder(status)
				if collected {
					at := time.Now().UTC()
					by := "tech-1"
					o.SampleCollectedAt = &at
					o.SampleCollectedBy = &by
				}
				_ = Apply(o, action, "tech-2", time.Now().UTC())
				if (o.SampleCollectedAt == nil) != (o.SampleCollectedBy == nil) {
					t.Fatalf("invariant broken after %s on %s: at=%v by=%v",
						action, status, o.SampleCollectedAt, o.SampleCollectedBy)
				}
				if !o.Status.Valid() {
					t.Fatalf("status left the enum after %s on %s: %s", action, status, o.Status)
				}
			}
		}
	}
}

func TestParseAction(t *testing.T) {
	if _, ok := ParseAction("mark_collected"); !ok {
		t.Error("expected mark_collected to parse")
	}
	if _, ok := ParseAction("repair_consistency"); ok {
		t.Error("repair_consistency must not be accepted from the API")
	}
	if _, ok := ParseAction("nonsense"); ok {
		t.Error("expected nonsense to be rejected")
	}
}
