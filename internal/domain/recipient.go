package domain

// Role is a recipient's authorization role. Privileged recipients always
// see global data; restricted recipients are limited to their assigned
// regions when any are assigned.
type Role string

const (
	RolePrivileged Role = "privileged"
	RoleRestricted Role = "restricted"
)

// Preferences are the optional report sections a recipient opted into.
// The header and period are always included regardless of flags.
type Preferences struct {
	KPIs          bool `json:"kpis" db:"wants_kpis"`
	Alerts        bool `json:"alerts" db:"wants_alerts"`
	TopPerformers bool `json:"top_performers" db:"wants_top_performers"`
}

// None reports whether no optional section is selected.
func (p Preferences) None() bool {
	return !p.KPIs && !p.Alerts && !p.TopPerformers
}

// Recipient is a report subscriber, read-only input to a run.
type Recipient struct {
	Address     string      `json:"address"`
	Role        Role        `json:"role"`
	Regions     []string    `json:"regions,omitempty"`
	Scope       Scope       `json:"-"`
	Preferences Preferences `json:"preferences"`
	Cadences    []Cadence   `json:"cadences"`
}

// Subscribed reports whether the recipient opted into the given cadence.
func (r Recipient) Subscribed(c Cadence) bool {
	for _, rc := range r.Cadences {
		if rc == c {
			return true
		}
	}
	return false
}
