package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/giftly/metrics-reporter/internal/domain"
)

// AuditRepo persists run summaries for non-dry report runs.
type AuditRepo struct{ db *sql.DB }

// NewAuditRepo creates a Postgres-backed audit repository.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// Record writes one audit row for a completed run. scopeCounts is the number
// of recipients served per distinct scope label.
func (r *AuditRepo) Record(ctx context.Context, run *domain.RunResult, scopeCounts map[string]int, errs string) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	breakdown, err := json.Marshal(scopeCounts)
	if err != nil {
		return fmt.Errorf("marshal scope breakdown: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO report_runs
			(id, cadence, status, success_count, total_count, skipped_count,
			 scopes_computed, scope_breakdown, errors, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, run.ID, string(run.Cadence), string(run.Status),
		run.SuccessCount(), len(run.Outcomes), run.Skipped,
		run.ScopesComputed, breakdown, errs, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
