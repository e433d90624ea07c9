package orders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labtrack/labtrack/internal/platform/apperr"
	"github.com/labtrack/labtrack/internal/platform/changefeed"
	"github.com/labtrack/labtrack/internal/platform/db"
)

type Service struct {
	orders   Repository
	tests    OrderTestRepository
	history  StatusHistoryRepository
	notifier changefeed.Publisher
	inTx     db.TxRunner
	timeout  time.Duration
}

func NewService(orders Repository, tests OrderTestRepository, history StatusHistoryRepository, notifier changefeed.Publisher, inTx db.TxRunner, timeout time.Duration) *Service {
	if notifier == nil {
		notifier = changefeed.NopPublisher{}
	}
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	}
	return &Service{orders: orders, tests: tests, history: history, notifier: notifier, inTx: inTx, timeout: timeout}
}

// CreateOrder registers a new order with its panels. Status starts at
// order_created; panels carry the analyte counts the progress projection
// expects.
func (s *Service) CreateOrder(ctx context.Context, o *Order, panels []*OrderTest, actor string) error {
	if o.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	for _, p := range panels {
		if p.TestGroupID == uuid.Nil {
			return apperr.Validation("test_group_id is required on every panel")
		}
		if p.ExpectedAnalytes <= 0 {
			return apperr.Validation("expected_analytes must be positive")
		}
	}

	now := time.Now().UTC()
	o.Status = StatusOrderCreated
	o.SampleCollectedAt = nil
	o.SampleCollectedBy = nil
	o.StatusUpdatedAt = now
	o.StatusUpdatedBy = actor

	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()

	// Order and panel rows land together or not at all.
	err := s.inTx(sctx, func(txCtx context.Context) error {
		if err := s.orders.Create(txCtx, o); err != nil {
			return err
		}
		for _, p := range panels {
			p.OrderID = o.ID
		}
		if len(panels) == 0 {
			return nil
		}
		return s.tests.CreateBatch(txCtx, panels)
	})
	if err != nil {
		return apperr.FromStore(err)
	}

	s.publish(ctx, "order.created", o.ID)
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	o, err := s.orders.GetByID(sctx, id)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return o, nil
}

func (s *Service) ListOrdersByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	items, total, err := s.orders.ListByPatient(sctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore(err)
	}
	return items, total, nil
}

func (s *Service) SearchOrders(ctx context.Context, params map[string]string, limit, offset int) ([]*Order, int, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	items, total, err := s.orders.Search(sctx, params, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore(err)
	}
	return items, total, nil
}

func (s *Service) ListPanels(ctx context.Context, orderID uuid.UUID) ([]*OrderTest, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	items, err := s.tests.ListByOrder(sctx, orderID)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return items, nil
}

// ApplyAction runs one lifecycle transition. The precondition is checked
// twice: in memory against the loaded row for a precise error message, and
// again inside the conditional UPDATE so a concurrent transition loses
// cleanly with InvalidTransition instead of overwriting.
func (s *Service) ApplyAction(ctx context.Context, id uuid.UUID, action Action, actor string) (*Order, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()

	o, err := s.orders.GetByID(sctx, id)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	from := o.Status

	if err := Apply(o, action, actor, time.Now().UTC()); err != nil {
		return nil, err
	}

	pre, _ := PreconditionFor(action)
	ok, err := s.orders.UpdateStatus(sctx, o, pre)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !ok {
		return nil, apperr.InvalidTransition("order changed concurrently, cannot %s from %s", action, from)
	}

	s.recordHistory(sctx, o, from, action, actor, nil)
	s.publish(ctx, "order.status_changed", o.ID)
	return o, nil
}

// Consistency returns the diagnostic report for one order without touching it.
func (s *Service) Consistency(ctx context.Context, id uuid.UUID) (ConsistencyReport, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	o, err := s.orders.GetByID(sctx, id)
	if err != nil {
		return ConsistencyReport{}, apperr.FromStore(err)
	}
	return CheckConsistency(o), nil
}

// RepairConsistency applies the checker's recommendation. A consistent order
// is returned unchanged.
func (s *Service) RepairConsistency(ctx context.Context, id uuid.UUID, actor string) (*Order, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()

	o, err := s.orders.GetByID(sctx, id)
	if err != nil {
		return nil, apperr.FromStore(err)
	}

	report := CheckConsistency(o)
	if report.Consistent {
		return o, nil
	}

	from := o.Status
	o.Status = *report.RecommendedStatus
	o.StatusUpdatedAt = time.Now().UTC()
	o.StatusUpdatedBy = actor

	// Guard on the exact inconsistent state the recommendation was computed
	// from, so a concurrent fix does not get repaired twice.
	pre := Precondition{Statuses: []Status{from}, SampleCollected: boolPtr(o.SampleCollected())}
	ok, err := s.orders.UpdateStatus(sctx, o, pre)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !ok {
		return nil, apperr.InvalidTransition("order changed concurrently during repair")
	}

	reason := report.Reason
	s.recordHistory(sctx, o, from, actionRepair, actor, &reason)
	s.publish(ctx, "order.status_changed", o.ID)
	return o, nil
}

func (s *Service) StatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusHistory, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	items, err := s.history.ListByOrder(sctx, orderID)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return items, nil
}

// recordHistory appends a transition record. History is an audit trail, not
// part of the transition's contract, so failures are swallowed after the
// primary write succeeded.
func (s *Service) recordHistory(ctx context.Context, o *Order, from Status, action Action, actor string, reason *string) {
	_ = s.history.Create(ctx, &StatusHistory{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   o.Status,
		Action:     action,
		ChangedBy:  actor,
		ChangedAt:  o.StatusUpdatedAt,
		Reason:     reason,
	})
}

func (s *Service) publish(ctx context.Context, eventType string, orderID uuid.UUID) {
	_ = s.notifier.Publish(ctx, changefeed.Event{
		Type:      eventType,
		OrderID:   orderID.String(),
		Resource:  "order",
		Timestamp: time.Now().UTC(),
	})
}
