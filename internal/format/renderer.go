// Package format renders structured report payloads into a deliverable
// subject and body using Liquid templates. Rendering is deterministic for a
// given payload: every value the templates reference is carried in the
// payload itself.
package format

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/osteele/liquid"

	"github.com/giftly/metrics-reporter/internal/report"
)

const defaultSubject = `{{ cadence | capitalize }} activity report ({{ scope_label }}): {{ period.start | slice: 0, 10 }} to {{ period.end | slice: 0, 10 }}`

const defaultBody = `Activity report for {{ scope_label }}
Period: {{ period.start | slice: 0, 10 }} to {{ period.end | slice: 0, 10 }} ({{ cadence }})
{% if kpis %}
Key indicators:
{% for kpi in kpis %}- {{ kpi.name }}: {{ kpi.current_value }} (previous {{ kpi.previous_value }}{% if kpi.variation_pct %}, {{ kpi.variation_pct }}%{% endif %}{% if kpi.attainment_pct %}, objective attainment {{ kpi.attainment_pct }}%{% endif %})
{% endfor %}{% endif %}{% if alerts %}
Alerts: {{ alerts.count }} metric(s) declined over the period.
{% endif %}{% if top_performers %}
Top performers:
{% for tp in top_performers %}- {{ tp.name }}: {{ tp.revenue }}
{% endfor %}{% endif %}`

// Renderer renders payloads through cached Liquid templates.
type Renderer struct {
	engine  *liquid.Engine
	mu      sync.Mutex
	subject *liquid.Template
	body    *liquid.Template
	subjSrc string
	bodySrc string
}

// NewRenderer creates a renderer with the built-in templates.
func NewRenderer() *Renderer {
	return &Renderer{
		engine:  liquid.NewEngine(),
		subjSrc: defaultSubject,
		bodySrc: defaultBody,
	}
}

// SetTemplates overrides the subject and body template sources. Templates
// are parsed lazily on next render.
func (r *Renderer) SetTemplates(subject, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjSrc, r.bodySrc = subject, body
	r.subject, r.body = nil, nil
}

// Render produces the subject and body for one payload.
func (r *Renderer) Render(p report.Payload) (subject, body string, err error) {
	bindings, err := bindings(p)
	if err != nil {
		return "", "", err
	}

	r.mu.Lock()
	if r.subject == nil {
		if r.subject, err = r.engine.ParseTemplate([]byte(r.subjSrc)); err != nil {
			r.mu.Unlock()
			return "", "", fmt.Errorf("parse subject template: %w", err)
		}
	}
	if r.body == nil {
		if r.body, err = r.engine.ParseTemplate([]byte(r.bodySrc)); err != nil {
			r.mu.Unlock()
			return "", "", fmt.Errorf("parse body template: %w", err)
		}
	}
	subjTpl, bodyTpl := r.subject, r.body
	r.mu.Unlock()

	sOut, err := subjTpl.Render(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	bOut, err := bodyTpl.Render(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return string(sOut), string(bOut), nil
}

// bindings flattens the payload to the map shape liquid templates consume,
// reusing the payload's JSON field names.
func bindings(p report.Payload) (map[string]interface{}, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return m, nil
}
