// Package platform describes the chat-platform operations the ticket core
// depends on. Implementations live in subpackages.
package platform

import (
	"context"
	"errors"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

var (
	// ErrForbidden is returned when the platform refuses an action for lack
	// of permission, including a user who blocks direct messages.
	ErrForbidden = errors.New("platform: forbidden")
	// ErrNotFound is returned when the target channel, user or message is gone.
	ErrNotFound = errors.New("platform: not found")
)

// Color values used by embeds.
const (
	ColorGreen  = 0x2ECC71
	ColorRed    = 0xE74C3C
	ColorOrange = 0xE67E22
	ColorBlue   = 0x32C8FF
	ColorGold   = 0xF1C40F
	ColorPurple = 0x5865F2
)

// ButtonStyle selects a button's appearance.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
	ButtonLink
)

// Button is a clickable component. Link buttons carry URL instead of CustomID.
type Button struct {
	Label    string
	CustomID string
	URL      string
	Style    ButtonStyle
	Disabled bool
}

// SelectOption is one choice in a Select.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Select is a single-choice dropdown.
type Select struct {
	CustomID    string
	Placeholder string
	Options     []SelectOption
	Disabled    bool
}

// EmbedField is a titled block inside an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich message block.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
}

// Message is an outbound message.
type Message struct {
	Content string
	Embeds  []Embed
	Buttons []Button
	Select  *Select
}

// Text returns a plain-content message.
func Text(content string) Message {
	return Message{Content: content}
}

// Platform is the chat-platform boundary.
type Platform interface {
	// CreateThread opens a thread under parentChannelID and returns its ID.
	CreateThread(ctx context.Context, parentChannelID, name string) (string, error)
	// SendMessage posts to a channel and returns the new message ID.
	SendMessage(ctx context.Context, channelID string, msg Message) (string, error)
	// EditMessage replaces a message's content and components.
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error
	// FetchHistory returns the channel's full history, oldest first.
	FetchHistory(ctx context.Context, channelID string) ([]domain.TicketMessage, error)
	// SetCategoryPermission allows or denies a user's view of a category.
	SetCategoryPermission(ctx context.Context, categoryID, userID string, allowView bool) error
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	// HasRole reports whether the user currently holds roleID.
	HasRole(ctx context.Context, userID, roleID string) (bool, error)
	DeleteChannel(ctx context.Context, channelID string) error
	// ArchiveThread archives and locks a thread.
	ArchiveThread(ctx context.Context, channelID string) error
	// SendDM sends a direct message to a user.
	SendDM(ctx context.Context, userID string, msg Message) error
}
