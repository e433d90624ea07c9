package results

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a result submission through entry.
type Status string

const (
	StatusEntered             Status = "entered"
	StatusPendingVerification Status = "pending_verification"
)

// VerificationStatus tracks the clinical sign-off state of a result.
// verified and rejected are terminal.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending_verification"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

func (v VerificationStatus) Terminal() bool {
	return v == VerificationVerified || v == VerificationRejected
}

// Flag classifies a value against its reference range.
type Flag string

const (
	FlagNormal   Flag = "normal"
	FlagHigh     Flag = "high"
	FlagLow      Flag = "low"
	FlagCritical Flag = "critical"
)

// Result is one submission event: all values entered together for one
// panel of one order. A panel may accumulate several results over time.
type Result struct {
	ID                 uuid.UUID          `json:"id"`
	OrderID            uuid.UUID          `json:"order_id"`
	TestGroupID        uuid.UUID          `json:"test_group_id"`
	Status             Status             `json:"status"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	VerifiedBy         *string            `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	ReviewComment      *string            `json:"review_comment,omitempty"`
	CriticalFlag       bool               `json:"critical_flag"`
	ManuallyVerified   bool               `json:"manually_verified"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ResultValue is a single analyte measurement. Immutable once created.
type ResultValue struct {
	ID             uuid.UUID `json:"id"`
	ResultID       uuid.UUID `json:"result_id"`
	AnalyteID      uuid.UUID `json:"analyte_id"`
	AnalyteName    string    `json:"analyte_name"`
	Value          string    `json:"value"`
	Unit           string    `json:"unit,omitempty"`
	ReferenceRange string    `json:"reference_range,omitempty"`
	Flag           Flag      `json:"flag,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// BulkOutcome reports a bulk verification call. Success means every id
// in the batch was processed; partial failures land in FailedIDs and
// never abort the rest of the batch.
type BulkOutcome struct {
	Success      bool        `json:"success"`
	SuccessCount int         `json:"success_count"`
	FailedIDs    []uuid.UUID `json:"failed_ids"`
}
