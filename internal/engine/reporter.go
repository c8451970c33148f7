// Package engine orchestrates a report run: period resolution, per-scope
// metric computation through the single-flight cache, payload composition,
// delivery, and the audit summary.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giftly/metrics-reporter/internal/delivery"
	"github.com/giftly/metrics-reporter/internal/domain"
	"github.com/giftly/metrics-reporter/internal/metrics"
	"github.com/giftly/metrics-reporter/internal/period"
	"github.com/giftly/metrics-reporter/internal/pkg/logger"
	"github.com/giftly/metrics-reporter/internal/report"
	"github.com/giftly/metrics-reporter/internal/scopecache"
)

// RunRequest is the trigger contract for one report run.
type RunRequest struct {
	Cadence       domain.Cadence `json:"cadence"`
	DryRun        bool           `json:"dry_run"`
	DryRunAddress string         `json:"dry_run_address,omitempty"`
}

// RecipientSource yields the dispatch-ready recipients for a cadence plus
// the number of address-less rows skipped.
type RecipientSource interface {
	Active(ctx context.Context, cadence domain.Cadence) ([]domain.Recipient, int, error)
}

// Renderer turns a composed payload into a deliverable subject and body.
type Renderer interface {
	Render(p report.Payload) (subject, body string, err error)
}

// AuditStore persists the run summary for non-dry runs.
type AuditStore interface {
	Record(ctx context.Context, run *domain.RunResult, scopeCounts map[string]int, errs string) error
}

// Reporter runs scoped metric reports end to end. All collaborators are
// injected; Reporter holds no cross-run state.
type Reporter struct {
	builder    *metrics.Builder
	recipients RecipientSource
	renderer   Renderer
	deliverer  delivery.Deliverer
	audit      AuditStore

	maxParallel int
	now         func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithMaxParallel bounds concurrent recipient processing. Defaults to 8.
func WithMaxParallel(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.maxParallel = n
		}
	}
}

// WithClock overrides the run clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter wires a report engine from its collaborators.
func NewReporter(builder *metrics.Builder, recipients RecipientSource, renderer Renderer, deliverer delivery.Deliverer, audit AuditStore, opts ...Option) *Reporter {
	r := &Reporter{
		builder:     builder,
		recipients:  recipients,
		renderer:    renderer,
		deliverer:   deliverer,
		audit:       audit,
		maxParallel: 8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one report run to completion.
//
// An invalid cadence or a dry-run request without an address is returned to
// the caller before anything is fetched. Every other failure is captured at
// recipient granularity: a scope whose bundle cannot be computed fails all
// recipients sharing it, a delivery failure fails only its recipient, and
// neither stops the remaining recipients. The summary is persisted to the
// audit store unless the run is a dry run.
func (r *Reporter) Run(ctx context.Context, req RunRequest) (*domain.RunResult, error) {
	current, previous, err := period.Windows(req.Cadence, r.now())
	if err != nil {
		return nil, err
	}
	if req.DryRun && req.DryRunAddress == "" {
		return nil, fmt.Errorf("dry run requires a destination address")
	}

	recipients, skipped, err := r.resolveRecipients(ctx, req)
	if err != nil {
		return nil, err
	}

	run := &domain.RunResult{
		ID:        uuid.New().String(),
		Cadence:   req.Cadence,
		Skipped:   skipped,
		StartedAt: r.now().UTC(),
	}
	logger.Info("report run started",
		"run_id", run.ID,
		"cadence", string(req.Cadence),
		"recipients", fmt.Sprintf("%d", len(recipients)),
		"dry_run", fmt.Sprintf("%v", req.DryRun))

	cache := scopecache.New()
	outcomes := make([]domain.RecipientOutcome, len(recipients))

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.maxParallel)
	for i, rec := range recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = r.process(ctx, req.Cadence, current, previous, cache, rec)
		}()
	}
	wg.Wait()

	run.Outcomes = outcomes
	run.ScopesComputed = cache.Len()
	run.FinishedAt = r.now().UTC()
	run.Status = run.DeriveStatus()

	logger.Info("report run finished",
		"run_id", run.ID,
		"status", string(run.Status),
		"success", fmt.Sprintf("%d/%d", run.SuccessCount(), len(run.Outcomes)),
		"scopes_computed", fmt.Sprintf("%d", run.ScopesComputed))

	if !req.DryRun {
		if err := r.persistAudit(ctx, run, recipients); err != nil {
			return run, fmt.Errorf("persist audit record: %w", err)
		}
	}
	return run, nil
}

func (r *Reporter) resolveRecipients(ctx context.Context, req RunRequest) ([]domain.Recipient, int, error) {
	if req.DryRun {
		// A dry run bypasses the subscriber table entirely: one synthetic
		// unrestricted recipient with every section enabled.
		return []domain.Recipient{{
			Address:     req.DryRunAddress,
			Role:        domain.RolePrivileged,
			Scope:       domain.Unrestricted(),
			Preferences: domain.Preferences{KPIs: true, Alerts: true, TopPerformers: true},
			Cadences:    []domain.Cadence{req.Cadence},
		}}, 0, nil
	}
	return r.recipients.Active(ctx, req.Cadence)
}

// process handles one recipient and never returns an error: failures become
// the recipient's outcome.
func (r *Reporter) process(ctx context.Context, cadence domain.Cadence, current, previous domain.TimeWindow, cache *scopecache.Cache, rec domain.Recipient) domain.RecipientOutcome {
	bundle, err := cache.GetOrCompute(ctx, rec.Scope, func(ctx context.Context) (*domain.MetricBundle, error) {
		return r.builder.Build(ctx, cadence, current, previous, rec.Scope)
	})
	if err != nil {
		logger.Error("bundle computation failed",
			"scope", rec.Scope.Label(), "destination", rec.Address, "error", err.Error())
		return domain.RecipientOutcome{Address: rec.Address, Error: err.Error()}
	}

	payload := report.Compose(bundle, cadence, current, rec.Preferences, rec.Scope.Label())
	subject, body, err := r.renderer.Render(payload)
	if err != nil {
		return domain.RecipientOutcome{Address: rec.Address, Error: fmt.Sprintf("render report: %v", err)}
	}

	if err := r.deliverer.Deliver(ctx, rec.Address, subject, body); err != nil {
		logger.Warn("delivery failed", "destination", rec.Address, "error", err.Error())
		return domain.RecipientOutcome{Address: rec.Address, Error: err.Error()}
	}
	return domain.RecipientOutcome{Address: rec.Address, Success: true}
}

func (r *Reporter) persistAudit(ctx context.Context, run *domain.RunResult, recipients []domain.Recipient) error {
	scopeCounts := make(map[string]int)
	for _, rec := range recipients {
		scopeCounts[rec.Scope.Label()]++
	}

	var msgs []string
	for _, o := range run.Outcomes {
		if o.Error != "" {
			msgs = append(msgs, o.Error)
		}
	}
	sort.Strings(msgs)
	return r.audit.Record(ctx, run, scopeCounts, strings.Join(msgs, "; "))
}
