package orders

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical order lifecycle state.
type Status string

const (
	StatusOrderCreated      Status = "order_created"
	StatusPendingCollection Status = "pending_collection"
	StatusCollected         Status = "collected"
	StatusInProgress        Status = "in_progress"
	StatusPendingApproval   Status = "pending_approval"
	StatusCompleted         Status = "completed"
	StatusDelivered         Status = "delivered"
)

var validStatuses = map[Status]bool{
	StatusOrderCreated: true, StatusPendingCollection: true, StatusCollected: true,
	StatusInProgress: true, StatusPendingApproval: true, StatusCompleted: true,
	StatusDelivered: true,
}

// Valid reports whether s is one of the seven lifecycle states.
func (s Status) Valid() bool { return validStatuses[s] }

// Action is a named lifecycle transition.
type Action string

const (
	ActionMarkCollected     Action = "mark_collected"
	ActionMarkNotCollected  Action = "mark_not_collected"
	ActionStartProcessing   Action = "start_processing"
	ActionSubmitForApproval Action = "submit_for_approval"
	ActionApproveResults    Action = "approve_results"
	ActionDeliver           Action = "deliver"

	// actionRepair is recorded in status history when a consistency repair
	// is applied. It is not accepted from the API.
	actionRepair Action = "repair_consistency"
)

var validActions = map[Action]bool{
	ActionMarkCollected: true, ActionMarkNotCollected: true,
	ActionStartProcessing: true, ActionSubmitForApproval: true,
	ActionApproveResults: true, ActionDeliver: true,
}

// ParseAction validates an action name from the API.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, validActions[a]
}

// Order maps to the orders table.
type Order struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	Status            Status     `db:"status" json:"status"`
	SampleCollectedAt *time.Time `db:"sample_collected_at" json:"sample_collected_at,omitempty"`
	SampleCollectedBy *string    `db:"sample_collected_by" json:"sample_collected_by,omitempty"`
	StatusUpdatedAt   time.Time  `db:"status_updated_at" json:"status_updated_at"`
	StatusUpdatedBy   string     `db:"status_updated_by" json:"status_updated_by"`
	Note              *string    `db:"note" json:"note,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// SampleCollected reports whether collection facts are recorded.
func (o *Order) SampleCollected() bool { return o.SampleCollectedAt != nil }

// OrderTest maps to the order_tests table: one panel registered on an order,
// with the analyte count the progress projection expects.
type OrderTest struct {
	ID               uuid.UUID `db:"id" json:"id"`
	OrderID          uuid.UUID `db:"order_id" json:"order_id"`
	TestGroupID      uuid.UUID `db:"test_group_id" json:"test_group_id"`
	TestGroupName    string    `db:"test_group_name" json:"test_group_name"`
	ExpectedAnalytes int       `db:"expected_analytes" json:"expected_analytes"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// StatusHistory records one status transition on an order.
type StatusHistory struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	FromStatus Status    `db:"from_status" json:"from_status"`
	ToStatus   Status    `db:"to_status" json:"to_status"`
	Action     Action    `db:"action" json:"action"`
	ChangedBy  string    `db:"changed_by" json:"changed_by"`
	ChangedAt  time.Time `db:"changed_at" json:"changed_at"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
}
