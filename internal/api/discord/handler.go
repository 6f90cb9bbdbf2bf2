// Package discord routes gateway events (slash commands, components and
// ticket-channel messages) into the ticket service.
package discord

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/config"
	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
	"github.com/spec-kit/access-ticket-bot/internal/service"
)

const defaultTimeout = 30 * time.Second

// Session is the slice of *discordgo.Session the handler replies through.
type Session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Handler owns the gateway callbacks.
type Handler struct {
	tickets  *service.TicketService
	platform platform.Platform
	discord  config.DiscordConfig
	logger   *zap.Logger
	timeout  time.Duration

	mu      sync.RWMutex
	ownerID string
}

// HandlerDependencies groups what NewHandler needs.
type HandlerDependencies struct {
	Tickets  *service.TicketService
	Platform platform.Platform
	Discord  config.DiscordConfig
	Logger   *zap.Logger
	// OwnerID is normally resolved from the application on Ready.
	OwnerID string
	Timeout time.Duration
}

// NewHandler builds the gateway handler.
func NewHandler(deps HandlerDependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{
		tickets:  deps.Tickets,
		platform: deps.Platform,
		discord:  deps.Discord,
		logger:   logger.Named("gateway"),
		timeout:  timeout,
		ownerID:  deps.OwnerID,
	}
}

// Intents are the gateway intents the handler needs.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentMessageContent

// Register attaches the callbacks to a session before it is opened.
func (h *Handler) Register(s *discordgo.Session) {
	s.Identify.Intents = Intents
	s.AddHandler(h.onReady)
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		h.HandleInteraction(s, i)
	})
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		h.HandleMessage(s, m)
	})
}

func (h *Handler) onReady(s *discordgo.Session, r *discordgo.Ready) {
	h.logger.Info("gateway ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))

	app, err := s.Application("@me")
	if err != nil {
		h.logger.Warn("resolve application owner", zap.Error(err))
	} else if app.Owner != nil {
		h.mu.Lock()
		h.ownerID = app.Owner.ID
		h.mu.Unlock()
	}

	if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, h.discord.GuildID, Commands()); err != nil {
		h.logger.Error("register slash commands", zap.Error(err))
		return
	}
	h.logger.Info("slash commands registered", zap.Int("count", len(Commands())))
}

// HandleInteraction dispatches slash commands and component clicks.
func (h *Handler) HandleInteraction(s Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(s, i)
	}
}

// HandleMessage treats guild messages in ticket threads as proof submissions.
func (h *Handler) HandleMessage(s Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	attachments := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, a.URL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	result, err := h.tickets.SubmitProof(ctx, service.SubmitProofInput{
		ChannelID:   m.ChannelID,
		UserID:      m.Author.ID,
		Text:        m.Content,
		Attachments: attachments,
	})
	switch {
	case err == nil:
		h.logger.Info("proof accepted",
			zap.String("ticket_id", result.Ticket.ID),
			zap.String("user_id", m.Author.ID),
			zap.Stringer("stage", result.Stage))
	case errors.Is(err, service.ErrNotTicketChannel),
		errors.Is(err, service.ErrNoRewardMatched),
		errors.Is(err, service.ErrNotOwner):
	default:
		if _, rerr := s.ChannelMessageSendReply(m.ChannelID, errorText(err), m.Reference()); rerr != nil {
			h.logger.Warn("reply to proof", zap.String("channel_id", m.ChannelID), zap.Error(rerr))
		}
	}
}

func (h *Handler) owner() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ownerID
}

// actor maps the interaction's member onto the service's privilege model.
// operatorPerm is the permission bit that grants operator rights for the
// action at hand.
func (h *Handler) actor(i *discordgo.InteractionCreate, operatorPerm int64) domain.Actor {
	user, perms := invoker(i)
	if user == nil {
		return domain.Actor{}
	}
	ownerID := h.owner()
	return domain.Actor{
		UserID:      user.ID,
		DisplayName: displayName(i),
		Operator:    perms&operatorPerm != 0 || perms&discordgo.PermissionAdministrator != 0,
		Owner:       ownerID != "" && user.ID == ownerID,
	}
}

func invoker(i *discordgo.InteractionCreate) (*discordgo.User, int64) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User, i.Member.Permissions
	}
	return i.User, 0
}

func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		if i.Member.User != nil {
			if i.Member.User.GlobalName != "" {
				return i.Member.User.GlobalName
			}
			return i.Member.User.Username
		}
	}
	if i.User != nil {
		return i.User.Username
	}
	return ""
}

// run defers an ephemeral reply, executes fn and edits the reply with its
// outcome. Work that can outlast the interaction deadline goes through here.
func (h *Handler) run(s Session, i *discordgo.InteractionCreate, fn func(ctx context.Context) (platform.Message, error)) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		h.logger.Warn("defer interaction", zap.String("interaction_id", i.ID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	msg, err := fn(ctx)
	if err != nil {
		h.logFailure(i, err)
		msg = platform.Text(errorText(err))
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, webhookEdit(msg)); err != nil {
		h.logger.Warn("edit interaction reply", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

func (h *Handler) logFailure(i *discordgo.InteractionCreate, err error) {
	user, _ := invoker(i)
	fields := []zap.Field{zap.String("interaction_id", i.ID), zap.Error(err)}
	if user != nil {
		fields = append(fields, zap.String("user_id", user.ID))
	}
	if isInternal(err) {
		h.logger.Error("interaction failed", fields...)
		return
	}
	h.logger.Info("interaction rejected", fields...)
}
