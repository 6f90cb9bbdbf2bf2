package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/platform"
	"github.com/spec-kit/access-ticket-bot/internal/service"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

func (h *Handler) handleComponent(s Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	id := data.CustomID

	var fn func(ctx context.Context) (platform.Message, error)
	switch {
	case id == service.ComponentCreateTicket:
		fn = func(ctx context.Context) (platform.Message, error) {
			return h.openTicket(ctx, i, i.ChannelID)
		}
	case strings.HasPrefix(id, service.ComponentSelectReward):
		ticketID := strings.TrimPrefix(id, service.ComponentSelectReward)
		fn = func(ctx context.Context) (platform.Message, error) {
			if len(data.Values) == 0 {
				return platform.Message{}, apperrors.NewValidationError("no reward selected", nil)
			}
			entry, err := h.tickets.SelectReward(ctx, ticketID, h.actor(i, 0), data.Values[0])
			if err != nil {
				return platform.Message{}, err
			}
			return platform.Text("✅ You selected **" + entry.DisplayName() + "**. Follow the instructions in the ticket."), nil
		}
	case strings.HasPrefix(id, service.ComponentProofApprove):
		fn = h.decide(i, strings.TrimPrefix(id, service.ComponentProofApprove), true)
	case strings.HasPrefix(id, service.ComponentProofDeny):
		fn = h.decide(i, strings.TrimPrefix(id, service.ComponentProofDeny), false)
	case strings.HasPrefix(id, service.ComponentCloseTicket):
		ticketID := strings.TrimPrefix(id, service.ComponentCloseTicket)
		fn = func(ctx context.Context) (platform.Message, error) {
			result, err := h.tickets.CloseTicket(ctx, ticketID, h.actor(i, discordgo.PermissionManageChannels), true)
			if result == nil {
				return platform.Message{}, err
			}
			return closedMessage(result, err), nil
		}
	case id == service.ComponentToggleCreation:
		fn = func(ctx context.Context) (platform.Message, error) {
			actor := h.actor(i, discordgo.PermissionManageServer)
			if _, err := h.tickets.ToggleCreation(ctx, actor); err != nil {
				return platform.Message{}, err
			}
			return h.status(ctx, actor)
		}
	case id == service.ComponentToggleBypass:
		fn = func(ctx context.Context) (platform.Message, error) {
			actor := h.actor(i, discordgo.PermissionManageServer)
			if _, err := h.tickets.ToggleBypass(ctx, actor); err != nil {
				return platform.Message{}, err
			}
			return h.status(ctx, actor)
		}
	default:
		h.logger.Warn("unknown component", zap.String("custom_id", id))
		return
	}
	h.run(s, i, fn)
}

func (h *Handler) decide(i *discordgo.InteractionCreate, reviewID string, approve bool) func(ctx context.Context) (platform.Message, error) {
	return func(ctx context.Context) (platform.Message, error) {
		review, err := h.tickets.DecideProof(ctx, reviewID, approve, h.actor(i, discordgo.PermissionManageServer))
		if err != nil {
			return platform.Message{}, err
		}
		if approve {
			return platform.Text("✅ Proof approved for " + mention(review.UserID) + "."), nil
		}
		return platform.Text("❌ Proof denied for " + mention(review.UserID) + "."), nil
	}
}
