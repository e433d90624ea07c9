package progress

import (
	"context"

	"github.com/google/uuid"
)

// Repository exposes the read-only projection behind the aggregator.
// An order with no panels yields an empty slice, not an error.
type Repository interface {
	ObservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]PanelObservation, error)
}
