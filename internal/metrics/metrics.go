// Package metrics computes time-windowed, scope-filtered business metrics
// and their period-over-period derivations.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/giftly/metrics-reporter/internal/domain"
)

// Source answers metric queries against the underlying data store. It is
// pure: calls have no side effects and may run concurrently.
type Source interface {
	// Fetch returns a count or sum for one metric over a window, limited to
	// the rows visible under the scope.
	Fetch(ctx context.Context, metric domain.MetricName, window domain.TimeWindow, scope domain.Scope) (float64, error)

	// TopPerformers returns the organizations with the highest revenue in
	// the window, limited to the scope, best first.
	TopPerformers(ctx context.Context, window domain.TimeWindow, scope domain.Scope, limit int) ([]domain.TopPerformer, error)
}

// TopPerformersQuery labels leaderboard failures in a FetchError. It is not
// one of the reported metrics.
const TopPerformersQuery domain.MetricName = "top_performers"

// FetchError reports a metric query that could not complete. A bundle with
// any failed fetch is never returned partially.
type FetchError struct {
	Metric domain.MetricName
	Cause  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Metric, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// AsFetchError unwraps err to a *FetchError if one is in its chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Objectives maps metrics to configured targets. A missing or zero entry
// means no objective is set for that metric.
type Objectives map[domain.MetricName]float64

// Lookup returns the objective for a metric, or nil when none is set.
func (o Objectives) Lookup(name domain.MetricName) *float64 {
	if o == nil {
		return nil
	}
	v, ok := o[name]
	if !ok || v == 0 {
		return nil
	}
	return &v
}
