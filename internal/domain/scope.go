package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Scope is the subset of underlying data a recipient is authorized to see:
// either everything, or only rows owned by one of a set of region codes.
//
// Scope is a value type with structural equality via Key(). A restricted
// scope with an empty region set is representable and matches nothing;
// mapping "no regions assigned" to Unrestricted is the resolver's decision,
// not this type's.
type Scope struct {
	restricted bool
	regions    []string
}

// Unrestricted returns the scope that sees all data.
func Unrestricted() Scope {
	return Scope{}
}

// RestrictedTo returns a scope limited to the given region codes.
// Codes are trimmed, deduplicated, and sorted; blank codes are dropped.
func RestrictedTo(regions []string) Scope {
	seen := make(map[string]bool, len(regions))
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return Scope{restricted: true, regions: out}
}

// IsRestricted reports whether the scope limits data access.
func (s Scope) IsRestricted() bool { return s.restricted }

// Regions returns a copy of the region codes, sorted. Nil for unrestricted.
func (s Scope) Regions() []string {
	if !s.restricted {
		return nil
	}
	out := make([]string, len(s.regions))
	copy(out, s.regions)
	return out
}

// Matches reports whether a row owned by the given region is visible.
func (s Scope) Matches(region string) bool {
	if !s.restricted {
		return true
	}
	for _, r := range s.regions {
		if r == region {
			return true
		}
	}
	return false
}

// Key returns a canonical cache key with structural equality: two scopes
// yield the same key iff they authorize the same data. Region codes are
// length-prefixed so codes containing separators cannot collide.
func (s Scope) Key() string {
	if !s.restricted {
		return "*"
	}
	var b strings.Builder
	b.WriteString("r")
	for _, r := range s.regions {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(len(r)))
		b.WriteByte(':')
		b.WriteString(r)
	}
	return b.String()
}

// Label returns a human-readable scope name for audit records and payloads.
func (s Scope) Label() string {
	if !s.restricted {
		return "global"
	}
	if len(s.regions) == 0 {
		return "regions:none"
	}
	return "regions:" + strings.Join(s.regions, ",")
}
