package domain

import "time"

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen                    TicketState = "OPEN"
	TicketStateAwaitingProofReview     TicketState = "AWAITING_PROOF_REVIEW"
	TicketStateAwaitingSecondStepProof TicketState = "AWAITING_SECOND_STEP_PROOF"
	TicketStateDelivered               TicketState = "DELIVERED"
	TicketStateClosed                  TicketState = "CLOSED"
)

// IsTerminal reports whether no further transition is possible.
func (s TicketState) IsTerminal() bool {
	return s == TicketStateClosed
}

// AcceptsProof reports whether a proof submission may be made in this state.
func (s TicketState) AcceptsProof() bool {
	return s == TicketStateOpen || s == TicketStateAwaitingSecondStepProof
}

// Ticket is the aggregate for a single user's access request.
type Ticket struct {
	ID              string
	ExternalKey     string
	OwnerID         string
	OwnerName       string
	ChannelID       string
	ChannelName     string
	OriginChannelID string
	State           TicketState
	RewardKey       string
	ReviewID        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeliveredAt     *time.Time
	ClosedAt        *time.Time
	ClosedByID      string
	GrantApplied    bool
}

// HasReward reports whether a reward key has been selected or matched.
func (t *Ticket) HasReward() bool {
	return t.RewardKey != ""
}

// Duration returns how long the ticket has been (or was) open.
func (t *Ticket) Duration(now time.Time) time.Duration {
	end := now
	if t.ClosedAt != nil {
		end = *t.ClosedAt
	}
	return end.Sub(t.CreatedAt)
}
