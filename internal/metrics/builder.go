package metrics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/giftly/metrics-reporter/internal/domain"
)

// DefaultTopPerformers is how many leaderboard entries a bundle carries.
const DefaultTopPerformers = 5

// Builder computes full metric bundles for one scope and cadence.
type Builder struct {
	src        Source
	objectives Objectives
	topN       int
}

// NewBuilder creates a bundle builder over the given metric source.
func NewBuilder(src Source, objectives Objectives) *Builder {
	return &Builder{src: src, objectives: objectives, topN: DefaultTopPerformers}
}

// SetTopN overrides the leaderboard size. Non-positive values are ignored.
func (b *Builder) SetTopN(n int) {
	if n > 0 {
		b.topN = n
	}
}

// Build fetches every metric for both windows concurrently and derives
// variations and attainment. Any fetch failure aborts the whole bundle;
// a partial bundle is never returned. Daily bundles carry no leaderboard.
func (b *Builder) Build(ctx context.Context, cadence domain.Cadence, current, previous domain.TimeWindow, scope domain.Scope) (*domain.MetricBundle, error) {
	names := domain.AllMetrics()
	results := make([]domain.MetricResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			cur, err := b.src.Fetch(gctx, name, current, scope)
			if err != nil {
				return wrapFetch(name, err)
			}
			prev, err := b.src.Fetch(gctx, name, previous, scope)
			if err != nil {
				return wrapFetch(name, err)
			}
			obj := b.objectives.Lookup(name)
			results[i] = domain.MetricResult{
				Name:          name,
				CurrentValue:  cur,
				PreviousValue: prev,
				VariationPct:  VariationPct(cur, prev),
				Objective:     obj,
				AttainmentPct: AttainmentPct(cur, obj),
			}
			return nil
		})
	}

	var top []domain.TopPerformer
	if cadence != domain.CadenceDaily {
		g.Go(func() error {
			var err error
			top, err = b.src.TopPerformers(gctx, current, scope, b.topN)
			if err != nil {
				return wrapFetch(TopPerformersQuery, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &domain.MetricBundle{Results: results, TopPerformers: top}, nil
}

func wrapFetch(name domain.MetricName, err error) error {
	if _, ok := AsFetchError(err); ok {
		return err
	}
	return &FetchError{Metric: name, Cause: err}
}
