package domain

import "time"

// AccessGrant is the role + category lock bundle applied at a successful
// closure. The two flags are cleared independently by their timers.
type AccessGrant struct {
	UserID            string
	TicketID          string
	GrantedAt         time.Time
	RoleHeld          bool
	CategoryLocked    bool
	RoleExpiresAt     time.Time
	CooldownExpiresAt time.Time
}

// Active reports whether either half of the grant is still in force.
func (g *AccessGrant) Active() bool {
	return g.RoleHeld || g.CategoryLocked
}
