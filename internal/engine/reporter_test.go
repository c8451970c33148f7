package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/giftly/metrics-reporter/internal/domain"
	"github.com/giftly/metrics-reporter/internal/metrics"
	"github.com/giftly/metrics-reporter/internal/report"
)

// ---------------------------------------------------------------------------
// collaborator fakes
// ---------------------------------------------------------------------------

// fakeSource serves fixture values keyed by metric, window start, and scope
// key, and counts fetch calls per scope so cache behavior is observable.
type fakeSource struct {
	mu        sync.Mutex
	values    map[string]float64
	calls     map[string]int
	failScope string
	failErr   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{values: map[string]float64{}, calls: map[string]int{}}
}

func (f *fakeSource) set(m domain.MetricName, w domain.TimeWindow, scope domain.Scope, v float64) {
	f.values[fmt.Sprintf("%s|%s|%s", m, w.Start.Format(time.RFC3339), scope.Key())] = v
}

func (f *fakeSource) Fetch(_ context.Context, m domain.MetricName, w domain.TimeWindow, scope domain.Scope) (float64, error) {
	f.mu.Lock()
	f.calls[scope.Key()]++
	f.mu.Unlock()
	if scope.Key() == f.failScope {
		return 0, f.failErr
	}
	return f.values[fmt.Sprintf("%s|%s|%s", m, w.Start.Format(time.RFC3339), scope.Key())], nil
}

func (f *fakeSource) TopPerformers(_ context.Context, _ domain.TimeWindow, _ domain.Scope, _ int) ([]domain.TopPerformer, error) {
	return []domain.TopPerformer{{Name: "Maison Dara", Revenue: 420000}}, nil
}

func (f *fakeSource) callsFor(scope domain.Scope) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[scope.Key()]
}

type stubRecipients struct {
	recipients []domain.Recipient
	skipped    int
	err        error
	called     bool
}

func (s *stubRecipients) Active(_ context.Context, _ domain.Cadence) ([]domain.Recipient, int, error) {
	s.called = true
	return s.recipients, s.skipped, s.err
}

// recordingRenderer emits a fixed subject/body and keeps every payload it
// saw, keyed by scope label.
type recordingRenderer struct {
	mu       sync.Mutex
	payloads map[string]report.Payload
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{payloads: map[string]report.Payload{}}
}

func (r *recordingRenderer) Render(p report.Payload) (string, string, error) {
	r.mu.Lock()
	r.payloads[p.ScopeLabel] = p
	r.mu.Unlock()
	return "subject " + p.ScopeLabel, "body", nil
}

// captureDeliverer records deliveries and can fail specific addresses.
type captureDeliverer struct {
	mu        sync.Mutex
	delivered []string
	failAddrs map[string]error
}

func (d *captureDeliverer) Deliver(_ context.Context, destination, _, _ string) error {
	if err, ok := d.failAddrs[destination]; ok {
		return err
	}
	d.mu.Lock()
	d.delivered = append(d.delivered, destination)
	d.mu.Unlock()
	return nil
}

type fakeAudit struct {
	mu          sync.Mutex
	records     int
	lastRun     *domain.RunResult
	scopeCounts map[string]int
	errs        string
	failWith    error
}

func (a *fakeAudit) Record(_ context.Context, run *domain.RunResult, scopeCounts map[string]int, errs string) error {
	if a.failWith != nil {
		return a.failWith
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records++
	a.lastRun = run
	a.scopeCounts = scopeCounts
	a.errs = errs
	return nil
}

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

var testNow = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func weeklyWindows() (cur, prev domain.TimeWindow) {
	end := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	cur = domain.TimeWindow{Start: end.Add(-7 * 24 * time.Hour), End: end}
	prev = domain.TimeWindow{Start: cur.Start.Add(-7 * 24 * time.Hour), End: cur.Start}
	return cur, prev
}

// seedScenario loads the fixture from the weekly two-recipient scenario:
// global population 120/100, region-CI population 50/40.
func seedScenario(src *fakeSource) {
	cur, prev := weeklyWindows()
	global := domain.Unrestricted()
	ci := domain.RestrictedTo([]string{"CI"})
	for _, m := range domain.AllMetrics() {
		src.set(m, cur, global, 120)
		src.set(m, prev, global, 100)
		src.set(m, cur, ci, 50)
		src.set(m, prev, ci, 40)
	}
}

func newTestReporter(src *fakeSource, recs RecipientSource, del *captureDeliverer, audit *fakeAudit, renderer Renderer) *Reporter {
	builder := metrics.NewBuilder(src, nil)
	return NewReporter(builder, recs, renderer, del, audit,
		WithClock(func() time.Time { return testNow }))
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestRun_InvalidCadenceAbortsBeforeAnyFetch(t *testing.T) {
	src := newFakeSource()
	recs := &stubRecipients{}
	audit := &fakeAudit{}
	r := newTestReporter(src, recs, &captureDeliverer{}, audit, newRecordingRenderer())

	_, err := r.Run(context.Background(), RunRequest{Cadence: "hourly"})
	if err == nil {
		t.Fatal("Run() expected error for invalid cadence")
	}
	if recs.called {
		t.Error("recipients resolved despite invalid cadence")
	}
	if src.callsFor(domain.Unrestricted()) != 0 {
		t.Error("fetchers invoked despite invalid cadence")
	}
	if audit.records != 0 {
		t.Error("audit written despite invalid cadence")
	}
}

func TestRun_WeeklyTwoRecipientScenario(t *testing.T) {
	src := newFakeSource()
	seedScenario(src)

	ci := domain.RestrictedTo([]string{"CI"})
	recs := &stubRecipients{recipients: []domain.Recipient{
		{
			Address:     "a@giftly.app",
			Scope:       domain.Unrestricted(),
			Preferences: domain.Preferences{KPIs: true, Alerts: true, TopPerformers: true},
		},
		{
			Address:     "b@giftly.app",
			Scope:       ci,
			Preferences: domain.Preferences{KPIs: true},
		},
	}}
	del := &captureDeliverer{}
	audit := &fakeAudit{}
	renderer := newRecordingRenderer()
	r := newTestReporter(src, recs, del, audit, renderer)

	run, err := r.Run(context.Background(), RunRequest{Cadence: domain.CadenceWeekly})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if run.Status != domain.RunFull {
		t.Errorf("status = %s, want full", run.Status)
	}
	if run.ScopesComputed != 2 {
		t.Errorf("ScopesComputed = %d, want 2", run.ScopesComputed)
	}
	if len(del.delivered) != 2 {
		t.Errorf("delivered = %v, want both recipients", del.delivered)
	}

	// A sees the global bundle: population 120 vs 100, +20%.
	pa := renderer.payloads["global"]
	popA := pa.KPIs[0]
	if popA.Name != domain.MetricPopulation || popA.VariationPct == nil || *popA.VariationPct != 20 {
		t.Errorf("global population variation = %+v, want +20", popA)
	}
	if pa.Alerts == nil || len(pa.TopPerformers) == 0 {
		t.Errorf("recipient A should carry all sections: %+v", pa)
	}

	// B sees the CI bundle: population 50 vs 40, +25%, KPIs only.
	pb := renderer.payloads["regions:CI"]
	popB := pb.KPIs[0]
	if popB.VariationPct == nil || *popB.VariationPct != 25 {
		t.Errorf("CI population variation = %+v, want +25", popB)
	}
	if pb.Alerts != nil || pb.TopPerformers != nil {
		t.Errorf("recipient B opted into KPIs only, got %+v", pb)
	}

	// Audit record written with the scope breakdown.
	if audit.records != 1 {
		t.Fatalf("audit records = %d, want 1", audit.records)
	}
	if audit.scopeCounts["global"] != 1 || audit.scopeCounts["regions:CI"] != 1 {
		t.Errorf("scope breakdown = %v", audit.scopeCounts)
	}
}

func TestRun_SharedScopeComputedOnce(t *testing.T) {
	src := newFakeSource()
	seedScenario(src)

	ci := domain.RestrictedTo([]string{"CI"})
	var recipients []domain.Recipient
	for i := 0; i < 4; i++ {
		recipients = append(recipients, domain.Recipient{
			Address:     fmt.Sprintf("r%d@giftly.app", i),
			Scope:       ci,
			Preferences: domain.Preferences{KPIs: true},
		})
	}
	recs := &stubRecipients{recipients: recipients}
	r := newTestReporter(src, recs, &captureDeliverer{}, &fakeAudit{}, newRecordingRenderer())

	run, err := r.Run(context.Background(), RunRequest{Cadence: domain.CadenceWeekly})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if run.ScopesComputed != 1 {
		t.Errorf("ScopesComputed = %d, want 1", run.ScopesComputed)
	}
	// Five metrics, two windows each, exactly once for the shared scope.
	want := 2 * len(domain.AllMetrics())
	if got := src.callsFor(ci); got != want {
		t.Errorf("fetch calls for shared scope = %d, want %d", got, want)
	}
}

func TestRun_ScopeFailureIsolatedFromOtherScopes(t *testing.T) {
	src := newFakeSource()
	seedScenario(src)
	ci := domain.RestrictedTo([]string{"CI"})
	src.failScope = ci.Key()
	src.failErr = errors.New("orders relation locked")

	recs := &stubRecipients{recipients: []domain.Recipient{
		{Address: "global@giftly.app", Scope: domain.Unrestricted(), Preferences: domain.Preferences{KPIs: true}},
		{Address: "ci-1@giftly.app", Scope: ci, Preferences: domain.Preferences{KPIs: true}},
		{Address: "ci-2@giftly.app", Scope: ci, Preferences: domain.Preferences{KPIs: true}},
	}}
	del := &captureDeliverer{}
	audit := &fakeAudit{}
	r := newTestReporter(src, recs, del, audit, newRecordingRenderer())

	run, err := r.Run(context.Background(), RunRequest{Cadence: domain.CadenceWeekly})
	if err != nil {
		t.Fatalf("Run() error: %v (scope failures belong in the summary)", err)
	}
	if run.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial", run.Status)
	}

	byAddr := map[string]domain.RecipientOutcome{}
	for _, o := range run.Outcomes {
		byAddr[o.Address] = o
	}
	if !byAddr["global@giftly.app"].Success {
		t.Errorf("unrelated scope failed: %+v", byAddr["global@giftly.app"])
	}
	for _, addr := range []string{"ci-1@giftly.app", "ci-2@giftly.app"} {
		o := byAddr[addr]
		if o.Success {
			t.Errorf("%s succeeded despite failed scope bundle", addr)
		}
		if o.Error == "" {
			t.Errorf("%s outcome missing the fetch error message", addr)
		}
	}
	if audit.errs == "" {
		t.Error("audit record missing concatenated error messages")
	}
}

func TestRun_DeliveryFailureDoesNotAbortOthers(t *testing.T) {
	src := newFakeSource()
	seedScenario(src)

	recs := &stubRecipients{recipients: []domain.Recipient{
		{Address: "ok@giftly.app", Scope: domain.Unrestricted(), Preferences: domain.Preferences{KPIs: true}},
		{Address: "bad@giftly.app", Scope: domain.Unrestricted(), Preferences: domain.Preferences{KPIs: true}},
	}}
	del := &captureDeliverer{failAddrs: map[string]error{"bad@giftly.app": errors.New("smtp 554")}}
	r := newTestReporter(src, recs, del, &fakeAudit{}, newRecordingRenderer())

	run, err := r.Run(context.Background(), RunRequest{Cadence: domain.CadenceDaily})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if run.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial", run.Status)
	}
	if run.SuccessCount() != 1 {
		t.Errorf("SuccessCount = %d, want 1", run.SuccessCount())
	}
}

func TestRun_DryRunBypassesSubscribersAndAudit(t *testing.T) {
	src := newFakeSource()
	seedScenario(src)

	// The real subscriber table has rows; a dry run must not touch them.
	recs := &stubRecipients{recipients: []domain.Recipient{
		{Address: "real@giftly.app", Scope: domain.RestrictedTo([]string{"SN"})},
	}}
	audit := &fakeAudit{}
	del := &captureDeliverer{}
	renderer := newRecordingRenderer()
	r := newTestReporter(src, recs, del, audit, renderer)

	run, err := r.Run(context.Background(), RunRequest{
		Cadence:       domain.CadenceWeekly,
		DryRun:        true,
		DryRunAddress: "probe@giftly.app",
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if recs.called {
		t.Error("dry run consulted the subscriber table")
	}
	if audit.records != 0 {
		t.Error("dry run wrote an audit record")
	}
	if len(run.Outcomes) != 1 || run.Outcomes[0].Address != "probe@giftly.app" {
		t.Errorf("outcomes = %+v, want exactly the synthetic recipient", run.Outcomes)
	}
	if p, ok := renderer.payloads["global"]; !ok || p.ScopeLabel != "global" {
		t.Error("synthetic dry-run recipient should be unrestricted")
	}
}

func TestRun_DryRunRequiresAddress(t *testing.T) {
	r := newTestReporter(newFakeSource(), &stubRecipients{}, &captureDeliverer{}, &fakeAudit{}, newRecordingRenderer())
	if _, err := r.Run(context.Background(), RunRequest{Cadence: domain.CadenceDaily, DryRun: true}); err == nil {
		t.Fatal("Run() expected error for dry run without address")
	}
}

func TestRun_AllDeliveriesFailedStatus(t *testing.T) {
	src := newFakeSource()
	seedScenario(src)

	recs := &stubRecipients{recipients: []domain.Recipient{
		{Address: "x@giftly.app", Scope: domain.Unrestricted()},
	}}
	del := &captureDeliverer{failAddrs: map[string]error{"x@giftly.app": errors.New("mailbox full")}}
	r := newTestReporter(src, recs, del, &fakeAudit{}, newRecordingRenderer())

	run, err := r.Run(context.Background(), RunRequest{Cadence: domain.CadenceWeekly})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if run.Status != domain.RunFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
}

func TestRun_AuditFailureSurfacesWithResult(t *testing.T) {
	src := newFakeSource()
	seedScenario(src)

	recs := &stubRecipients{recipients: []domain.Recipient{
		{Address: "a@giftly.app", Scope: domain.Unrestricted()},
	}}
	audit := &fakeAudit{failWith: errors.New("report_runs table missing")}
	r := newTestReporter(src, recs, &captureDeliverer{}, audit, newRecordingRenderer())

	run, err := r.Run(context.Background(), RunRequest{Cadence: domain.CadenceWeekly})
	if err == nil {
		t.Fatal("Run() expected audit persistence error")
	}
	if run == nil || run.Status != domain.RunFull {
		t.Error("run summary should still be returned alongside the audit error")
	}
}
