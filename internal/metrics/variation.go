package metrics

import "math"

// VariationPct computes the rounded period-over-period percentage delta.
// Returns nil when both values are zero (no variation is expressible), and
// 100 when a zero previous value grew to anything positive.
func VariationPct(current, previous float64) *int {
	if previous == 0 {
		if current == 0 {
			return nil
		}
		v := 100
		return &v
	}
	v := int(math.Round((current - previous) / previous * 100))
	return &v
}

// AttainmentPct computes the rounded ratio of current value to objective,
// as a percentage. Nil objective or zero objective yields nil. Values over
// 100 are valid: over-attainment is expected.
func AttainmentPct(current float64, objective *float64) *int {
	if objective == nil || *objective == 0 {
		return nil
	}
	v := int(math.Round(current / *objective * 100))
	return &v
}
