package scoping

import (
	"testing"

	"github.com/giftly/metrics-reporter/internal/domain"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		role       domain.Role
		regions    []string
		restricted bool
		key        string
	}{
		{"privileged no regions", domain.RolePrivileged, nil, false, "*"},
		{"privileged with regions still global", domain.RolePrivileged, []string{"CI", "SN"}, false, "*"},
		{"restricted with regions", domain.RoleRestricted, []string{"SN", "CI"}, true, "r/2:CI/2:SN"},
		{"restricted nil regions", domain.RoleRestricted, nil, false, "*"},
		{"restricted empty list", domain.RoleRestricted, []string{}, false, "*"},
		{"restricted blank entries only", domain.RoleRestricted, []string{"", ""}, false, "*"},
		{"restricted single region", domain.RoleRestricted, []string{"CI"}, true, "r/2:CI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Resolve(tt.role, tt.regions)
			if s.IsRestricted() != tt.restricted {
				t.Errorf("IsRestricted() = %v, want %v", s.IsRestricted(), tt.restricted)
			}
			if s.Key() != tt.key {
				t.Errorf("Key() = %q, want %q", s.Key(), tt.key)
			}
		})
	}
}

func TestScopeKey_NoDelimiterCollision(t *testing.T) {
	// "A/B" + "C" must not collide with "A" + "B/C".
	a := domain.RestrictedTo([]string{"A/B", "C"})
	b := domain.RestrictedTo([]string{"A", "B/C"})
	if a.Key() == b.Key() {
		t.Errorf("distinct region sets share key %q", a.Key())
	}
}

func TestScopeKey_OrderInsensitive(t *testing.T) {
	a := domain.RestrictedTo([]string{"SN", "CI", "CI"})
	b := domain.RestrictedTo([]string{"CI", "SN"})
	if a.Key() != b.Key() {
		t.Errorf("keys differ for equal sets: %q vs %q", a.Key(), b.Key())
	}
}
