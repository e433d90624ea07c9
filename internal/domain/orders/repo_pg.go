package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labtrack/labtrack/internal/platform/apperr"
	"github.com/labtrack/labtrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderCols = `id, patient_id, status, sample_collected_at, sample_collected_by,
	status_updated_at, status_updated_by, note, created_at, updated_at`

func (r *orderRepoPG) scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PatientID, &o.Status, &o.SampleCollectedAt, &o.SampleCollectedBy,
		&o.StatusUpdatedAt, &o.StatusUpdatedBy, &o.Note, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order not found")
	}
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO orders (id, patient_id, status, sample_collected_at, sample_collected_by,
			status_updated_at, status_updated_by, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.PatientID, o.Status, o.SampleCollectedAt, o.SampleCollectedBy,
		o.StatusUpdatedAt, o.StatusUpdatedBy, o.Note)
	return err
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
}

func (r *orderRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orderCols+` FROM orders WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, nil
}

func (r *orderRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Order, int, error) {
	query := `SELECT ` + orderCols + ` FROM orders WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM orders WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["patient"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["collected"]; ok {
		if p == "true" {
			query += ` AND sample_collected_at IS NOT NULL`
			countQuery += ` AND sample_collected_at IS NOT NULL`
		} else {
			query += ` AND sample_collected_at IS NULL`
			countQuery += ` AND sample_collected_at IS NULL`
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, nil
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, o *Order, pre Precondition) (bool, error) {
	query := `
		UPDATE orders SET status=$2, sample_collected_at=$3, sample_collected_by=$4,
			status_updated_at=$5, status_updated_by=$6, updated_at=NOW()
		WHERE id = $1`
	args := []interface{}{o.ID, o.Status, o.SampleCollectedAt, o.SampleCollectedBy,
		o.StatusUpdatedAt, o.StatusUpdatedBy}

	if len(pre.Statuses) > 0 {
		statuses := make([]string, len(pre.Statuses))
		for i, s := range pre.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	if pre.SampleCollected != nil {
		if *pre.SampleCollected {
			query += ` AND sample_collected_at IS NOT NULL`
		} else {
			query += ` AND sample_collected_at IS NULL`
		}
	}

	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// =========== OrderTest Repository ===========

type orderTestRepoPG struct{ pool *pgxpool.Pool }

func NewOrderTestRepoPG(pool *pgxpool.Pool) OrderTestRepository {
	return &orderTestRepoPG{pool: pool}
}

func (r *orderTestRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderTestCols = `id, order_id, test_group_id, test_group_name, expected_analytes, created_at`

func (r *orderTestRepoPG) CreateBatch(ctx context.Context, tests []*OrderTest) error {
	for _, t := range tests {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO order_tests (id, order_id, test_group_id, test_group_name, expected_analytes)
			VALUES ($1,$2,$3,$4,$5)`,
			t.ID, t.OrderID, t.TestGroupID, t.TestGroupName, t.ExpectedAnalytes)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *orderTestRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*OrderTest, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orderTestCols+` FROM order_tests WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*OrderTest
	for rows.Next() {
		var t OrderTest
		if err := rows.Scan(&t.ID, &t.OrderID, &t.TestGroupID, &t.TestGroupName, &t.ExpectedAnalytes, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &t)
	}
	return items, nil
}

// =========== StatusHistory Repository ===========

type statusHistoryRepoPG struct{ pool *pgxpool.Pool }

func NewStatusHistoryRepoPG(pool *pgxpool.Pool) StatusHistoryRepository {
	return &statusHistoryRepoPG{pool: pool}
}

func (r *statusHistoryRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *statusHistoryRepoPG) Create(ctx context.Context, h *StatusHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, action, changed_by, changed_at, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		h.ID, h.OrderID, h.FromStatus, h.ToStatus, h.Action, h.ChangedBy, h.ChangedAt, h.Reason)
	return err
}

func (r *statusHistoryRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, from_status, to_status, action, changed_by, changed_at, reason
		FROM order_status_history WHERE order_id = $1 ORDER BY changed_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.Action, &h.ChangedBy, &h.ChangedAt, &h.Reason); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, nil
}
