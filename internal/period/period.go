// Package period derives report window boundaries from a cadence.
package period

import (
	"errors"
	"fmt"
	"time"

	"github.com/giftly/metrics-reporter/internal/domain"
)

// ErrInvalidCadence is returned for an unrecognized cadence tag. It is a
// configuration error: no partial run is meaningful without a valid period.
var ErrInvalidCadence = errors.New("invalid cadence")

// Lookback returns the fixed window length for a cadence.
func Lookback(c domain.Cadence) (time.Duration, error) {
	switch c {
	case domain.CadenceDaily:
		return 24 * time.Hour, nil
	case domain.CadenceWeekly:
		return 7 * 24 * time.Hour, nil
	case domain.CadenceMonthly:
		return 30 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCadence, c)
}

// Windows computes the current and previous report windows for a cadence.
// Both windows are half-open UTC intervals of identical length, anchored to
// the last midnight before now, with previous ending exactly where current
// begins.
func Windows(c domain.Cadence, now time.Time) (current, previous domain.TimeWindow, err error) {
	length, err := Lookback(c)
	if err != nil {
		return domain.TimeWindow{}, domain.TimeWindow{}, err
	}
	end := now.UTC().Truncate(24 * time.Hour)
	current = domain.TimeWindow{Start: end.Add(-length), End: end}
	previous = domain.TimeWindow{Start: current.Start.Add(-length), End: current.Start}
	return current, previous, nil
}
