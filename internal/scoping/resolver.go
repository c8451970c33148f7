// Package scoping maps recipient roles and region assignments to an
// effective data-access scope.
package scoping

import (
	"github.com/giftly/metrics-reporter/internal/domain"
)

// Resolve computes the effective scope for a recipient.
//
// A privileged role always resolves to the unrestricted scope, even when a
// region list is assigned; the role takes precedence over the assignment.
// A restricted role with no assigned regions also resolves to unrestricted:
// an absent assignment means no restriction was configured.
func Resolve(role domain.Role, regions []string) domain.Scope {
	if role == domain.RolePrivileged {
		return domain.Unrestricted()
	}
	nonBlank := 0
	for _, r := range regions {
		if r != "" {
			nonBlank++
		}
	}
	if nonBlank == 0 {
		return domain.Unrestricted()
	}
	return domain.RestrictedTo(regions)
}
