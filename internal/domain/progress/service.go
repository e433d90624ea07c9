package progress

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labtrack/labtrack/internal/platform/apperr"
	"github.com/labtrack/labtrack/internal/platform/db"
)

// Service recomputes progress from the projection on every read. No
// cache, so there is nothing to invalidate on writes.
type Service struct {
	repo    Repository
	timeout time.Duration
}

func NewService(repo Repository, timeout time.Duration) *Service {
	return &Service{repo: repo, timeout: timeout}
}

func (s *Service) OrderProgress(ctx context.Context, orderID uuid.UUID) (Progress, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	observations, err := s.repo.ObservationsByOrder(sctx, orderID)
	if err != nil {
		return Progress{}, apperr.FromStore(err)
	}
	return Compute(observations), nil
}
