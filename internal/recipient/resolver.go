// Package recipient loads report subscribers and resolves their effective
// data-access scope.
package recipient

import (
	"context"
	"fmt"

	"github.com/giftly/metrics-reporter/internal/domain"
	"github.com/giftly/metrics-reporter/internal/pkg/logger"
	"github.com/giftly/metrics-reporter/internal/scoping"
)

// Store is the subscriber lookup the resolver reads from.
type Store interface {
	Subscribed(ctx context.Context, cadence domain.Cadence) ([]domain.Recipient, error)
}

// Resolver turns stored subscriber rows into dispatch-ready recipients.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Active returns the recipients subscribed to the cadence with their scope
// resolved, plus the number of rows skipped for having no delivery address.
// Skipped rows are not failures and never appear in run outcomes.
func (r *Resolver) Active(ctx context.Context, cadence domain.Cadence) ([]domain.Recipient, int, error) {
	rows, err := r.store.Subscribed(ctx, cadence)
	if err != nil {
		return nil, 0, fmt.Errorf("load subscribers: %w", err)
	}

	out := make([]domain.Recipient, 0, len(rows))
	skipped := 0
	for _, rec := range rows {
		if rec.Address == "" {
			skipped++
			logger.Warn("subscriber without address skipped", "cadence", string(cadence))
			continue
		}
		rec.Scope = scoping.Resolve(rec.Role, rec.Regions)
		out = append(out, rec)
	}
	return out, skipped, nil
}
