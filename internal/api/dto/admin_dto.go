package dto

import (
	"time"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

// OperatorLoginRequest payload for console login.
type OperatorLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RewardRequest is the body of PUT /admin/catalog/:key.
type RewardRequest struct {
	Link           string `json:"link"`
	TwoStage       bool   `json:"two_stage"`
	SecondStepLink string `json:"second_step_link"`
}

// ArchiveQuery captures archive search filters.
type ArchiveQuery struct {
	OwnerID      string
	States       []domain.TicketState
	RewardKey    string
	GrantApplied *bool
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Page         int
	PageSize     int
}

// FlagsResponse mirrors the global switches.
type FlagsResponse struct {
	CreationEnabled        bool `json:"creation_enabled"`
	OperationalHoursBypass bool `json:"operational_hours_bypass"`
}

// CooldownResponse is one active cooldown.
type CooldownResponse struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusResponse is the console status panel.
type StatusResponse struct {
	Flags           FlagsResponse      `json:"flags"`
	Now             time.Time          `json:"now"`
	WindowOpen      bool               `json:"window_open"`
	Window          string             `json:"window"`
	OpenTickets     int                `json:"open_tickets"`
	ActiveCooldowns []CooldownResponse `json:"active_cooldowns"`
}

// TicketResponse is the console view of a ticket.
type TicketResponse struct {
	ID           string             `json:"id"`
	ExternalKey  string             `json:"external_key"`
	OwnerID      string             `json:"owner_id"`
	OwnerName    string             `json:"owner_name"`
	ChannelID    string             `json:"channel_id"`
	ChannelName  string             `json:"channel_name"`
	State        domain.TicketState `json:"state"`
	RewardKey    string             `json:"reward_key"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	DeliveredAt  *time.Time         `json:"delivered_at"`
	ClosedAt     *time.Time         `json:"closed_at"`
	ClosedByID   string             `json:"closed_by_id"`
	GrantApplied bool               `json:"grant_applied"`
}

// CloseResponse reports a console force-close.
type CloseResponse struct {
	Ticket           TicketResponse `json:"ticket"`
	TranscriptChunks int            `json:"transcript_chunks"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangedByID string                  `json:"changed_by_id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// TranscriptChunkResponse is one stored transcript part.
type TranscriptChunkResponse struct {
	Sequence int    `json:"sequence"`
	Body     string `json:"body"`
}

// ArchivedTicketResponse provides an archived ticket with its transcript.
type ArchivedTicketResponse struct {
	TicketResponse
	Transcript []TranscriptChunkResponse `json:"transcript"`
	History    []TicketHistoryResponse   `json:"history"`
}
