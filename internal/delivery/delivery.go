// Package delivery defines the outbound report delivery contract and its
// adapters. The engine only sees the Deliverer interface; transport choice
// is wiring.
package delivery

import (
	"context"

	"github.com/giftly/metrics-reporter/internal/pkg/logger"
)

// Deliverer hands a rendered report to a transport. Implementations must be
// safe for concurrent use; the engine dispatches recipients in parallel.
type Deliverer interface {
	Deliver(ctx context.Context, destination, subject, body string) error
}

// LogDeliverer writes reports to the structured log instead of sending
// them. Used for local development and as a fallback when no transport is
// configured.
type LogDeliverer struct{}

// Deliver logs the report and always succeeds.
func (LogDeliverer) Deliver(_ context.Context, destination, subject, _ string) error {
	logger.Info("report delivery (log transport)",
		"destination", destination,
		"subject", subject)
	return nil
}
