// Package report shapes computed metric bundles into structured report
// payloads according to recipient preferences. It never fetches data.
package report

import (
	"time"

	"github.com/giftly/metrics-reporter/internal/domain"
)

// Payload is the structured report handed to the formatter and the delivery
// collaborator. Optional sections are nil when the recipient did not opt in;
// the header fields and period are always present, so a recipient with zero
// sections still receives a well-formed minimal report.
type Payload struct {
	Cadence     domain.Cadence    `json:"cadence"`
	ScopeLabel  string            `json:"scope_label"`
	Period      domain.TimeWindow `json:"period"`
	GeneratedAt time.Time         `json:"generated_at"`

	KPIs          []domain.MetricResult `json:"kpis,omitempty"`
	Alerts        *AlertsSection        `json:"alerts,omitempty"`
	TopPerformers []domain.TopPerformer `json:"top_performers,omitempty"`
}

// AlertsSection counts the metrics that declined period-over-period.
type AlertsSection struct {
	Count   int                 `json:"count"`
	Metrics []domain.MetricName `json:"metrics,omitempty"`
}

// Compose filters and shapes a bundle into the payload for one recipient.
func Compose(bundle *domain.MetricBundle, cadence domain.Cadence, period domain.TimeWindow, prefs domain.Preferences, scopeLabel string) Payload {
	p := Payload{
		Cadence:     cadence,
		ScopeLabel:  scopeLabel,
		Period:      period,
		GeneratedAt: time.Now().UTC(),
	}

	if prefs.KPIs {
		p.KPIs = append([]domain.MetricResult(nil), bundle.Results...)
	}
	if prefs.Alerts {
		a := &AlertsSection{}
		for _, res := range bundle.Results {
			if res.VariationPct != nil && *res.VariationPct < 0 {
				a.Count++
				a.Metrics = append(a.Metrics, res.Name)
			}
		}
		p.Alerts = a
	}
	if prefs.TopPerformers && len(bundle.TopPerformers) > 0 {
		p.TopPerformers = append([]domain.TopPerformer(nil), bundle.TopPerformers...)
	}
	return p
}
