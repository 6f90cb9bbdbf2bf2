package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeState    TicketChangeType = "STATE_CHANGE"
	ChangeTypeReward   TicketChangeType = "REWARD_SELECTED"
	ChangeTypeProof    TicketChangeType = "PROOF_SUBMITTED"
	ChangeTypeDecision TicketChangeType = "PROOF_DECIDED"
	ChangeTypeDelivery TicketChangeType = "DELIVERY"
	ChangeTypeGrant    TicketChangeType = "GRANT_APPLIED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          string
	TicketID    string
	ChangedByID string
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
