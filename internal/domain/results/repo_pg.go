package results

import (
	"context"
	"errors"

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

// =========== Result Repository ===========

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const resultCols = `id, order_id, test_group_id, status, verification_status, verified_by,
	verified_at, review_comment, critical_flag, manually_verified, created_at, updated_at`

func (r *resultRepoPG) scanResult(row pgx.Row) (*Result, error) {
	var res Result
	err := row.Scan(&res.ID, &res.OrderID, &res.TestGroupID, &res.Status, &res.VerificationStatus,
		&res.VerifiedBy, &res.VerifiedAt, &res.ReviewComment, &res.CriticalFlag,
		&res.ManuallyVerified, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("result not found")
	}
	return &res, err
}

// Create inserts the result row and its value rows in one transaction so a
// failed value insert leaves nothing behind.
func (r *resultRepoPG) Create(ctx context.Context, res *Result, values []*ResultValue) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO results (id, order_id, test_group_id, status, verification_status,
				critical_flag, manually_verified)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			res.ID, res.OrderID, res.TestGroupID, res.Status, res.VerificationStatus,
			res.CriticalFlag, res.ManuallyVerified)
		if err != nil {
			return err
		}
		for _, v := range values {
			if v.ID == uuid.Nil {
				v.ID = uuid.New()
			}
			v.ResultID = res.ID
			_, err = q.Exec(ctx, `
				INSERT INTO result_values (id, result_id, analyte_id, analyte_name, value,
					unit, reference_range, flag)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				v.ID, v.ResultID, v.AnalyteID, v.AnalyteName, v.Value, v.Unit, v.ReferenceRange, v.Flag)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx, `SELECT `+resultCols+` FROM results WHERE id = $1`, id))
}

func (r *resultRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Result, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM results WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Result
	for rows.Next() {
		res, err := r.scanResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, res)
	}
	return items, rows.Err()
}

// SetVerification only succeeds against rows still pending; terminal
// rows are left untouched and reported as false.
func (r *resultRepoPG) SetVerification(ctx context.Context, v Verification) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE results
		SET verification_status = $1, verified_by = $2, verified_at = $3,
			review_comment = $4, manually_verified = $5, updated_at = NOW()
		WHERE id = $6 AND verification_status = 'pending_verification'`,
		v.Status, v.By, v.At, v.Comment, v.Manual, v.ResultID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *resultRepoPG) OrderExists(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	return exists, err
}

// =========== Result Value Repository ===========

type valueRepoPG struct{ pool *pgxpool.Pool }

func NewValueRepoPG(pool *pgxpool.Pool) ValueRepository {
	return &valueRepoPG{pool: pool}
}

func (r *valueRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *valueRepoPG) ListByResult(ctx context.Context, resultID uuid.UUID) ([]*ResultValue, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, result_id, analyte_id, analyte_name, value, unit, reference_range, flag, created_at
		FROM result_values WHERE result_id = $1 ORDER BY created_at, analyte_name`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ResultValue
	for rows.Next() {
		var v ResultValue
		if err := rows.Scan(&v.ID, &v.ResultID, &v.AnalyteID, &v.AnalyteName, &v.Value,
			&v.Unit, &v.ReferenceRange, &v.Flag, &v.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}
