package domain

// Actor identifies who triggered an operation and what they may do.
type Actor struct {
	UserID      string
	DisplayName string
	// Operator holds the server-management privilege.
	Operator bool
	// Owner is the bot application owner.
	Owner bool
	// System marks timer-driven actions.
	System bool
}

// SystemActor is used for timer-driven transitions.
func SystemActor() Actor {
	return Actor{UserID: "system", DisplayName: "system", System: true}
}

// Privileged reports whether the actor may act on tickets they do not own.
func (a Actor) Privileged() bool {
	return a.Operator || a.Owner || a.System
}
