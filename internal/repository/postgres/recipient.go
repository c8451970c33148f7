package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/giftly/metrics-reporter/internal/domain"
)

// RecipientRepo loads report subscribers from PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// Subscribed returns active subscribers whose cadence set includes the given
// cadence. Rows with a NULL or blank address are returned as-is; the
// resolver decides how to count them.
func (r *RecipientRepo) Subscribed(ctx context.Context, cadence domain.Cadence) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(email, ''), role, COALESCE(region_codes, '{}'),
		       wants_kpis, wants_alerts, wants_top_performers,
		       COALESCE(cadences, '{}')
		FROM report_subscribers
		WHERE active = true AND $1 = ANY(cadences)
		ORDER BY email
	`, string(cadence))
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var (
			rec      domain.Recipient
			role     string
			regions  pq.StringArray
			cadences pq.StringArray
		)
		if err := rows.Scan(
			&rec.Address, &role, &regions,
			&rec.Preferences.KPIs, &rec.Preferences.Alerts, &rec.Preferences.TopPerformers,
			&cadences,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		rec.Role = domain.Role(role)
		rec.Regions = []string(regions)
		for _, c := range cadences {
			rec.Cadences = append(rec.Cadences, domain.Cadence(c))
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
