package results

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/labtrack/labtrack/internal/platform/apperr"
	"github.com/labtrack/labtrack/internal/platform/changefeed"
	"github.com/labtrack/labtrack/internal/platform/db"
)

// SubmittedValue is one analyte measurement as supplied by the caller.
// Flag is optional; when absent the service consults its classifier.
type SubmittedValue struct {
	AnalyteID      uuid.UUID `json:"analyte_id"`
	AnalyteName    string    `json:"analyte_name"`
	Value          string    `json:"value"`
	Unit           string    `json:"unit,omitempty"`
	ReferenceRange string    `json:"reference_range,omitempty"`
	Flag           Flag      `json:"flag,omitempty"`
}

type Service struct {
	results    Repository
	values     ValueRepository
	classifier FlagClassifier
	notifier   changefeed.Publisher
	timeout    time.Duration
}

func NewService(results Repository, values ValueRepository, classifier FlagClassifier, notifier changefeed.Publisher, timeout time.Duration) *Service {
	if classifier == nil {
		classifier = RangeClassifier{}
	}
	if notifier == nil {
		notifier = changefeed.NopPublisher{}
	}
	return &Service{results: results, values: values, classifier: classifier, notifier: notifier, timeout: timeout}
}

// SubmitResult records one entry session for a panel: a Result row plus
// its values, flagged either by the caller or by the classifier. The
// new result starts pending verification.
func (s *Service) SubmitResult(ctx context.Context, orderID, testGroupID uuid.UUID, submitted []SubmittedValue) (*Result, error) {
	if orderID == uuid.Nil {
		return nil, apperr.Validation("order_id is required")
	}
	if testGroupID == uuid.Nil {
		return nil, apperr.Validation("test_group_id is required")
	}
	if len(submitted) == 0 {
		return nil, apperr.Validation("at least one value is required")
	}
	for _, v := range submitted {
		if v.AnalyteID == uuid.Nil && strings.TrimSpace(v.AnalyteName) == "" {
			return nil, apperr.Validation("every value needs an analyte_id or analyte_name")
		}
	}

	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()

	ok, err := s.results.OrderExists(sctx, orderID)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !ok {
		return nil, apperr.NotFound("order not found")
	}

	values := make([]*ResultValue, 0, len(submitted))
	critical := false
	for _, v := range submitted {
		flag := v.Flag
		if flag == "" {
			flag = s.classifier.Classify(v.Value, v.ReferenceRange)
		}
		if flag == FlagCritical {
			critical = true
		}
		values = append(values, &ResultValue{
			AnalyteID:      v.AnalyteID,
			AnalyteName:    v.AnalyteName,
			Value:          v.Value,
			Unit:           v.Unit,
			ReferenceRange: v.ReferenceRange,
			Flag:           flag,
		})
	}

	res := &Result{
		OrderID:            orderID,
		TestGroupID:        testGroupID,
		Status:             StatusEntered,
		VerificationStatus: VerificationPending,
		CriticalFlag:       critical,
	}
	if err := s.results.Create(sctx, res, values); err != nil {
		return nil, apperr.FromStore(err)
	}

	s.publish(ctx, "result.submitted", orderID)
	return res, nil
}

func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*Result, []*ResultValue, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	res, err := s.results.GetByID(sctx, id)
	if err != nil {
		return nil, nil, apperr.FromStore(err)
	}
	values, err := s.values.ListByResult(sctx, id)
	if err != nil {
		return nil, nil, apperr.FromStore(err)
	}
	return res, values, nil
}

func (s *Service) ListResultsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Result, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()
	items, err := s.results.ListByOrder(sctx, orderID)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return items, nil
}

// Approve signs off a pending result. Returns false when the result is
// missing or already terminal; an error only for infrastructure faults.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, notes *string, actor string) (bool, error) {
	return s.verify(ctx, id, VerificationVerified, notes, actor)
}

// Reject marks a pending result rejected. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string, actor string) (bool, error) {
	if strings.TrimSpace(reason) == "" {
		return false, apperr.Validation("rejection reason is required")
	}
	return s.verify(ctx, id, VerificationRejected, &reason, actor)
}

func (s *Service) verify(ctx context.Context, id uuid.UUID, status VerificationStatus, comment *string, actor string) (bool, error) {
	sctx, cancel := db.StoreContext(ctx, s.timeout)
	defer cancel()

	res, err := s.results.GetByID(sctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return false, nil
		}
		return false, apperr.FromStore(err)
	}
	if res.VerificationStatus.Terminal() {
		return false, nil
	}

	ok, err := s.results.SetVerification(sctx, Verification{
		ResultID: id,
		Status:   status,
		By:       actor,
		At:       time.Now().UTC(),
		Comment:  comment,
		Manual:   true,
	})
	if err != nil {
		return false, apperr.FromStore(err)
	}
	if !ok {
		// Lost the race to another verifier.
		return false, nil
	}

	s.publish(ctx, "result.verification_changed", res.OrderID)
	return true, nil
}

// BulkApprove applies Approve per id with no cross-row atomicity. Every
// id is attempted; failures of any kind land in FailedIDs.
func (s *Service) BulkApprove(ctx context.Context, ids []uuid.UUID, notes *string, actor string) (BulkOutcome, error) {
	return s.bulkVerify(ctx, ids, func(id uuid.UUID) (bool, error) {
		return s.Approve(ctx, id, notes, actor)
	})
}

// BulkReject mirrors BulkApprove but refuses the whole batch, before
// any attempt, when the reason is blank.
func (s *Service) BulkReject(ctx context.Context, ids []uuid.UUID, reason string, actor string) (BulkOutcome, error) {
	if strings.TrimSpace(reason) == "" {
		return BulkOutcome{FailedIDs: []uuid.UUID{}}, apperr.Validation("rejection reason is required")
	}
	return s.bulkVerify(ctx, ids, func(id uuid.UUID) (bool, error) {
		return s.Reject(ctx, id, reason, actor)
	})
}

func (s *Service) bulkVerify(ctx context.Context, ids []uuid.UUID, apply func(uuid.UUID) (bool, error)) (BulkOutcome, error) {
	out := BulkOutcome{FailedIDs: []uuid.UUID{}}
	if len(ids) == 0 {
		return out, nil
	}
	for _, id := range ids {
		ok, err := apply(id)
		if err != nil || !ok {
			out.FailedIDs = append(out.FailedIDs, id)
			continue
		}
		out.SuccessCount++
	}
	out.Success = len(out.FailedIDs) == 0
	return out, nil
}

func (s *Service) publish(ctx context.Context, eventType string, orderID uuid.UUID) {
	_ = s.notifier.Publish(ctx, changefeed.Event{
		Type:      eventType,
		OrderID:   orderID.String(),
		Resource:  "result",
		Timestamp: time.Now().UTC(),
	})
}
