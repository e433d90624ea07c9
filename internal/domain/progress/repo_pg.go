package progress

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labtrack/labtrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// One row per panel. Analytes are counted on identity (id, else
// normalized name) so re-submissions of the same analyte are not
// double-counted; a panel reads verified only when every result on it
// is verified.
const observationSQL = `
	SELECT ot.id, ot.test_group_id, ot.expected_analytes,
		COUNT(DISTINCT COALESCE(NULLIF(rv.analyte_id, '00000000-0000-0000-0000-000000000000'::uuid)::text,
			LOWER(TRIM(rv.analyte_name)))) AS entered_analytes,
		COUNT(r.id) > 0 AS has_results,
		COALESCE(BOOL_AND(r.verification_status = 'verified'), false) AS is_verified
	FROM order_tests ot
	LEFT JOIN results r ON r.order_id = ot.order_id AND r.test_group_id = ot.test_group_id
	LEFT JOIN result_values rv ON rv.result_id = r.id
	WHERE ot.order_id = $1
	GROUP BY ot.id, ot.test_group_id, ot.expected_analytes, ot.created_at
	ORDER BY ot.created_at`

func (r *repoPG) ObservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]PanelObservation, error) {
	rows, err := r.conn(ctx).Query(ctx, observationSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []PanelObservation
	for rows.Next() {
		var obs PanelObservation
		if err := rows.Scan(&obs.OrderTestID, &obs.TestGroupID, &obs.ExpectedAnalytes,
			&obs.EnteredAnalytes, &obs.HasResults, &obs.IsVerified); err != nil {
			return nil, err
		}
		obs.PanelStatus = derivePanelStatus(obs)
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

func derivePanelStatus(obs PanelObservation) PanelStatus {
	switch {
	case obs.HasResults && obs.IsVerified:
		return PanelVerified
	case !obs.HasResults || obs.EnteredAnalytes == 0:
		return PanelNotStarted
	case obs.EnteredAnalytes >= obs.ExpectedAnalytes:
		return PanelComplete
	default:
		return PanelPartial
	}
}
