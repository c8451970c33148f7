package domain

import (
	"time"
)

// Cadence is the reporting period length driving window sizing.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Valid reports whether c is a recognized cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

// TimeWindow is a half-open [Start, End) interval in UTC.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// MetricName enumerates the business metrics computed per report.
type MetricName string

const (
	MetricPopulation     MetricName = "population"
	MetricOrganizations  MetricName = "organizations"
	MetricMonetaryVolume MetricName = "monetary_volume"
	MetricOrders         MetricName = "orders"
	MetricFunds          MetricName = "funds"
)

// AllMetrics returns the metric names in report order.
func AllMetrics() []MetricName {
	return []MetricName{
		MetricPopulation,
		MetricOrganizations,
		MetricMonetaryVolume,
		MetricOrders,
		MetricFunds,
	}
}

// MetricResult holds one metric's paired window values and derived ratios.
// VariationPct is nil only when both window values are zero. AttainmentPct
// is nil iff Objective is nil or zero.
type MetricResult struct {
	Name          MetricName `json:"name"`
	CurrentValue  float64    `json:"current_value"`
	PreviousValue float64    `json:"previous_value"`
	VariationPct  *int       `json:"variation_pct"`
	Objective     *float64   `json:"objective"`
	AttainmentPct *int       `json:"attainment_pct"`
}

// TopPerformer is one entry of the revenue leaderboard attached to
// weekly and monthly bundles.
type TopPerformer struct {
	Name    string  `json:"name"`
	Revenue float64 `json:"revenue"`
}

// MetricBundle is the full set of computed results for one scope and one
// cadence, in AllMetrics order.
type MetricBundle struct {
	Results       []MetricResult `json:"results"`
	TopPerformers []TopPerformer `json:"top_performers,omitempty"`
}

// Result returns the bundle entry for the named metric, or nil.
func (b *MetricBundle) Result(name MetricName) *MetricResult {
	for i := range b.Results {
		if b.Results[i].Name == name {
			return &b.Results[i]
		}
	}
	return nil
}

// RunStatus summarizes a run at the invocation level. Callers inspect
// per-recipient outcomes for detail.
type RunStatus string

const (
	RunFull    RunStatus = "full"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RecipientOutcome records the fate of one recipient within a run.
type RecipientOutcome struct {
	Address string `json:"address" db:"address"`
	Success bool   `json:"success" db:"success"`
	Error   string `json:"error,omitempty" db:"error"`
}

// RunResult is the audit summary of one report run. It is created once per
// invocation and persisted after dispatch completes (never for dry runs).
type RunResult struct {
	ID             string             `json:"id" db:"id"`
	Cadence        Cadence            `json:"cadence" db:"cadence"`
	Status         RunStatus          `json:"status" db:"status"`
	Outcomes       []RecipientOutcome `json:"outcomes"`
	ScopesComputed int                `json:"scopes_computed" db:"scopes_computed"`
	Skipped        int                `json:"skipped" db:"skipped"`
	StartedAt      time.Time          `json:"started_at" db:"started_at"`
	FinishedAt     time.Time          `json:"finished_at" db:"finished_at"`
}

// SuccessCount returns the number of successful outcomes.
func (r *RunResult) SuccessCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// DeriveStatus computes the invocation-level status from the outcome ratio.
// A run with no recipients at all is considered full (nothing to fail).
func (r *RunResult) DeriveStatus() RunStatus {
	if len(r.Outcomes) == 0 {
		return RunFull
	}
	switch n := r.SuccessCount(); {
	case n == len(r.Outcomes):
		return RunFull
	case n == 0:
		return RunFailed
	default:
		return RunPartial
	}
}
