package orders

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Order, int, error)
	// UpdateStatus persists an already-applied transition, re-checking the
	// precondition in the UPDATE itself. Returns false when no row matched,
	// meaning a concurrent actor changed the order first.
	UpdateStatus(ctx context.Context, o *Order, pre Precondition) (bool, error)
}

type OrderTestRepository interface {
	CreateBatch(ctx context.Context, tests []*OrderTest) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*OrderTest, error)
}

type StatusHistoryRepository interface {
	Create(ctx context.Context, h *StatusHistory) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*StatusHistory, error)
}
