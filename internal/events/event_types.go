package events

import (
	"time"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened     EventType = "ticket_opened"
	EventRewardSelected   EventType = "reward_selected"
	EventProofSubmitted   EventType = "proof_submitted"
	EventProofDecided     EventType = "proof_decided"
	EventRewardDelivered  EventType = "reward_delivered"
	EventTicketClosed     EventType = "ticket_closed"
	EventGrantApplied     EventType = "grant_applied"
	EventRoleExpired      EventType = "role_expired"
	EventCooldownReleased EventType = "cooldown_released"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID   string `json:"user_id"`
	Operator bool   `json:"operator,omitempty"`
	System   bool   `json:"system,omitempty"`
}

// ActorFrom converts a domain actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{UserID: a.UserID, Operator: a.Operator || a.Owner, System: a.System}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	UserID    string    `json:"user_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	ChannelID       string `json:"channel_id"`
	ChannelName     string `json:"channel_name"`
	OriginChannelID string `json:"origin_channel_id"`
}

// RewardSelectedPayload payload.
type RewardSelectedPayload struct {
	RewardKey string `json:"reward_key"`
	TwoStage  bool   `json:"two_stage"`
}

// ProofSubmittedPayload payload.
type ProofSubmittedPayload struct {
	ReviewID  string            `json:"review_id,omitempty"`
	RewardKey string            `json:"reward_key"`
	Stage     domain.ProofStage `json:"stage"`
}

// ProofDecidedPayload payload.
type ProofDecidedPayload struct {
	ReviewID  string `json:"review_id"`
	RewardKey string `json:"reward_key"`
	Approved  bool   `json:"approved"`
}

// RewardDeliveredPayload payload.
type RewardDeliveredPayload struct {
	RewardKey string `json:"reward_key"`
	Outcome   string `json:"outcome"`
	Manual    bool   `json:"manual"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	PreviousState    domain.TicketState `json:"previous_state"`
	ChannelName      string             `json:"channel_name"`
	GrantApplied     bool               `json:"grant_applied"`
	Forced           bool               `json:"forced"`
	Duration         time.Duration      `json:"duration"`
	TranscriptChunks int                `json:"transcript_chunks"`
}

// GrantAppliedPayload payload.
type GrantAppliedPayload struct {
	RoleHeld          bool      `json:"role_held"`
	CategoryLocked    bool      `json:"category_locked"`
	RoleExpiresAt     time.Time `json:"role_expires_at"`
	CooldownExpiresAt time.Time `json:"cooldown_expires_at"`
}

// RoleExpiredPayload payload.
type RoleExpiredPayload struct {
	RoleID  string `json:"role_id"`
	Removed bool   `json:"removed"`
}

// CooldownReleaseReason says why a cooldown ended.
type CooldownReleaseReason string

const (
	ReleaseExpired  CooldownReleaseReason = "expired"
	ReleaseOperator CooldownReleaseReason = "operator"
)

// CooldownReleasedPayload payload.
type CooldownReleasedPayload struct {
	ExpiresAt time.Time             `json:"expires_at"`
	Reason    CooldownReleaseReason `json:"reason"`
}
