package results

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Verification captures one sign-off attempt against a pending result.
type Verification struct {
	ResultID uuid.UUID
	Status   VerificationStatus
	By       string
	At       time.Time
	Comment  *string
	Manual   bool
}

// Repository persists results and their values. Create writes the
// result and its values together; SetVerification is a conditional
// update that only touches rows still pending verification.
type Repository interface {
	Create(ctx context.Context, r *Result, values []*ResultValue) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Result, error)
	SetVerification(ctx context.Context, v Verification) (bool, error)
	OrderExists(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type ValueRepository interface {
	ListByResult(ctx context.Context, resultID uuid.UUID) ([]*ResultValue, error)
}
