package recipient

import (
	"context"
	"errors"
	"testing"

	"github.com/giftly/metrics-reporter/internal/domain"
)

type stubStore struct {
	rows []domain.Recipient
	err  error
}

func (s *stubStore) Subscribed(_ context.Context, _ domain.Cadence) ([]domain.Recipient, error) {
	return s.rows, s.err
}

func TestActive_ResolvesScopesAndSkipsAddressless(t *testing.T) {
	store := &stubStore{rows: []domain.Recipient{
		{Address: "admin@giftly.app", Role: domain.RolePrivileged, Regions: []string{"CI"}},
		{Address: "ci@giftly.app", Role: domain.RoleRestricted, Regions: []string{"CI"}},
		{Address: "", Role: domain.RoleRestricted},
		{Address: "all@giftly.app", Role: domain.RoleRestricted},
	}}

	got, skipped, err := NewResolver(store).Active(context.Background(), domain.CadenceWeekly)
	if err != nil {
		t.Fatalf("Active() error: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	// Privileged role overrides the assigned region list.
	if got[0].Scope.IsRestricted() {
		t.Errorf("privileged recipient resolved to restricted scope %s", got[0].Scope.Label())
	}
	if !got[1].Scope.IsRestricted() || got[1].Scope.Label() != "regions:CI" {
		t.Errorf("restricted recipient scope = %s, want regions:CI", got[1].Scope.Label())
	}
	// Restricted role with no regions configured sees everything.
	if got[2].Scope.IsRestricted() {
		t.Errorf("unassigned restricted recipient should be unrestricted")
	}
}

func TestActive_StoreError(t *testing.T) {
	store := &stubStore{err: errors.New("connection refused")}
	_, _, err := NewResolver(store).Active(context.Background(), domain.CadenceDaily)
	if err == nil {
		t.Fatal("Active() expected error")
	}
}
