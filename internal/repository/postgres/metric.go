package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/giftly/metrics-reporter/internal/domain"
)

// MetricRepo answers metric queries against PostgreSQL. It implements
// metrics.Source. All queries are read-only.
type MetricRepo struct{ db *sql.DB }

// NewMetricRepo creates a Postgres-backed metric source.
func NewMetricRepo(db *sql.DB) *MetricRepo { return &MetricRepo{db: db} }

// Fetch runs the count or sum for one metric over a window, limited to the
// scope. Users, organizations and funds carry a region code directly; orders
// and monetary volume are scoped through the owning organization's region,
// which is an explicit join rather than a column on the order row.
func (r *MetricRepo) Fetch(ctx context.Context, metric domain.MetricName, window domain.TimeWindow, scope domain.Scope) (float64, error) {
	args := []interface{}{window.Start, window.End}

	var q string
	switch metric {
	case domain.MetricPopulation:
		q = `SELECT COUNT(*) FROM users
			WHERE created_at >= $1 AND created_at < $2` +
			scopeFilter("region_code", scope, &args)
	case domain.MetricOrganizations:
		q = `SELECT COUNT(*) FROM organizations
			WHERE created_at >= $1 AND created_at < $2` +
			scopeFilter("region_code", scope, &args)
	case domain.MetricMonetaryVolume:
		q = `SELECT COALESCE(SUM(o.amount), 0)
			FROM orders o
			JOIN organizations org ON org.id = o.organization_id
			WHERE o.created_at >= $1 AND o.created_at < $2` +
			scopeFilter("org.region_code", scope, &args)
	case domain.MetricOrders:
		q = `SELECT COUNT(*)
			FROM orders o
			JOIN organizations org ON org.id = o.organization_id
			WHERE o.created_at >= $1 AND o.created_at < $2` +
			scopeFilter("org.region_code", scope, &args)
	case domain.MetricFunds:
		q = `SELECT COUNT(*) FROM collective_funds
			WHERE created_at >= $1 AND created_at < $2` +
			scopeFilter("region_code", scope, &args)
	default:
		return 0, fmt.Errorf("unknown metric %q", metric)
	}

	var v float64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&v); err != nil {
		return 0, fmt.Errorf("query %s: %w", metric, err)
	}
	return v, nil
}

// TopPerformers returns the organizations with the highest order revenue in
// the window, best first. Organizations with no orders are omitted.
func (r *MetricRepo) TopPerformers(ctx context.Context, window domain.TimeWindow, scope domain.Scope, limit int) ([]domain.TopPerformer, error) {
	if limit <= 0 {
		limit = 5
	}
	args := []interface{}{window.Start, window.End}
	q := `SELECT org.name, SUM(o.amount) AS revenue
		FROM orders o
		JOIN organizations org ON org.id = o.organization_id
		WHERE o.created_at >= $1 AND o.created_at < $2` +
		scopeFilter("org.region_code", scope, &args)
	args = append(args, limit)
	q += fmt.Sprintf(`
		GROUP BY org.name
		ORDER BY revenue DESC
		LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query top performers: %w", err)
	}
	defer rows.Close()

	var out []domain.TopPerformer
	for rows.Next() {
		var tp domain.TopPerformer
		if err := rows.Scan(&tp.Name, &tp.Revenue); err != nil {
			return nil, fmt.Errorf("scan top performer: %w", err)
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

// scopeFilter appends a region predicate for restricted scopes and returns
// the SQL fragment. Unrestricted scopes add nothing. A restricted scope with
// no regions still emits the predicate, which matches no rows.
func scopeFilter(column string, scope domain.Scope, args *[]interface{}) string {
	if !scope.IsRestricted() {
		return ""
	}
	*args = append(*args, pq.Array(scope.Regions()))
	return fmt.Sprintf(" AND %s = ANY($%d)", column, len(*args))
}
