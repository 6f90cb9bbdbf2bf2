package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
	"github.com/spec-kit/access-ticket-bot/internal/service"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

// Slash command names.
const (
	CommandTicket          = "ticket"
	CommandAddApp          = "add_app"
	CommandRemoveApp       = "remove_app"
	CommandViewApps        = "view_apps"
	CommandRemoveCooldown  = "remove_cooldown"
	CommandForceClose      = "force_close"
	CommandSendApp         = "send_app"
	CommandViewTickets     = "view_tickets"
	CommandRefreshPanel    = "refresh_panel"
	CommandStatus          = "status"
	CommandDMNotifications = "dm_notifications"
)

// Commands returns the guild slash command definitions.
func Commands() []*discordgo.ApplicationCommand {
	manageServer := int64(discordgo.PermissionManageServer)
	manageChannels := int64(discordgo.PermissionManageChannels)

	appName := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "name",
		Description: "Reward key, e.g. spotify",
		Required:    true,
	}
	user := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: "Target member",
		Required:    true,
	}

	return []*discordgo.ApplicationCommand{
		{Name: CommandTicket, Description: "Open a new access ticket"},
		{
			Name:                     CommandAddApp,
			Description:              "Add or update a reward in the catalog",
			DefaultMemberPermissions: &manageServer,
			Options: []*discordgo.ApplicationCommandOption{
				appName,
				{Type: discordgo.ApplicationCommandOptionString, Name: "link", Description: "Delivery link", Required: true},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "two_stage", Description: "Require a second proof before delivery"},
				{Type: discordgo.ApplicationCommandOptionString, Name: "second_step_link", Description: "Verification page for the second proof"},
			},
		},
		{
			Name:                     CommandRemoveApp,
			Description:              "Remove a reward from the catalog",
			DefaultMemberPermissions: &manageServer,
			Options:                  []*discordgo.ApplicationCommandOption{appName},
		},
		{Name: CommandViewApps, Description: "List the reward catalog"},
		{
			Name:                     CommandRemoveCooldown,
			Description:              "Lift a member's cooldown and temporary role",
			DefaultMemberPermissions: &manageServer,
			Options:                  []*discordgo.ApplicationCommandOption{user},
		},
		{
			Name:                     CommandForceClose,
			Description:              "Close a ticket without granting access",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "target", Description: "Ticket ID, key or channel ID; defaults to this channel"},
			},
		},
		{
			Name:                     CommandSendApp,
			Description:              "Deliver a reward into a member's open ticket",
			DefaultMemberPermissions: &manageServer,
			Options:                  []*discordgo.ApplicationCommandOption{appName, user},
		},
		{
			Name:                     CommandViewTickets,
			Description:              "List open tickets",
			DefaultMemberPermissions: &manageChannels,
		},
		{
			Name:                     CommandRefreshPanel,
			Description:              "Re-post the ticket panel",
			DefaultMemberPermissions: &manageServer,
		},
		{Name: CommandStatus, Description: "Show the bot status panel"},
		{
			Name:        CommandDMNotifications,
			Description: "Choose whether the bot may DM you",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Receive direct messages", Required: true},
			},
		},
	}
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(in []*discordgo.ApplicationCommandInteractionDataOption) options {
	out := make(options, len(in))
	for _, o := range in {
		out[o.Name] = o
	}
	return out
}

func (o options) str(name string) string {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return opt.StringValue()
	}
	return ""
}

func (o options) boolean(name string) bool {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionBoolean {
		return opt.BoolValue()
	}
	return false
}

func (o options) userID(name string) string {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionUser {
		return opt.UserValue(nil).ID
	}
	return ""
}

func (h *Handler) handleCommand(s Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := optionMap(data.Options)

	var fn func(ctx context.Context) (platform.Message, error)
	switch data.Name {
	case CommandTicket:
		fn = func(ctx context.Context) (platform.Message, error) {
			return h.openTicket(ctx, i, "")
		}
	case CommandAddApp:
		fn = func(ctx context.Context) (platform.Message, error) {
			entry, err := h.tickets.UpsertReward(ctx, h.actor(i, discordgo.PermissionManageServer), domain.RewardEntry{
				Key:            opts.str("name"),
				Link:           opts.str("link"),
				TwoStage:       opts.boolean("two_stage"),
				SecondStepLink: opts.str("second_step_link"),
			})
			if err != nil {
				return platform.Message{}, err
			}
			return rewardSavedMessage(entry), nil
		}
	case CommandRemoveApp:
		fn = func(ctx context.Context) (platform.Message, error) {
			key := domain.NormalizeRewardKey(opts.str("name"))
			if err := h.tickets.RemoveReward(ctx, h.actor(i, discordgo.PermissionManageServer), key); err != nil {
				return platform.Message{}, err
			}
			return platform.Text("🗑️ Removed **" + key + "** from the catalog."), nil
		}
	case CommandViewApps:
		fn = func(context.Context) (platform.Message, error) {
			return catalogMessage(h.tickets.Rewards()), nil
		}
	case CommandRemoveCooldown:
		fn = func(ctx context.Context) (platform.Message, error) {
			userID := opts.userID("user")
			if err := h.tickets.Grants().ClearCooldown(ctx, userID, h.actor(i, discordgo.PermissionManageServer)); err != nil {
				return platform.Message{}, err
			}
			return platform.Text("✅ Cooldown and temporary role cleared for " + mention(userID) + "."), nil
		}
	case CommandForceClose:
		fn = func(ctx context.Context) (platform.Message, error) {
			target := opts.str("target")
			if target == "" {
				target = i.ChannelID
			}
			result, err := h.tickets.ForceClose(ctx, target, h.actor(i, discordgo.PermissionManageChannels))
			if result == nil {
				return platform.Message{}, err
			}
			// A result with an error means only the channel cleanup failed.
			return closedMessage(result, err), nil
		}
	case CommandSendApp:
		fn = func(ctx context.Context) (platform.Message, error) {
			result, err := h.tickets.DeliverReward(ctx, h.actor(i, discordgo.PermissionManageServer), opts.userID("user"), domain.NormalizeRewardKey(opts.str("name")))
			if err != nil {
				return platform.Message{}, err
			}
			return deliveryResultMessage(result), nil
		}
	case CommandViewTickets:
		fn = func(ctx context.Context) (platform.Message, error) {
			tickets, err := h.tickets.ListOpenTickets(ctx, h.actor(i, discordgo.PermissionManageChannels))
			if err != nil {
				return platform.Message{}, err
			}
			return openTicketsMessage(tickets), nil
		}
	case CommandRefreshPanel:
		fn = h.refreshPanel(i)
	case CommandStatus:
		fn = func(ctx context.Context) (platform.Message, error) {
			return h.status(ctx, h.actor(i, discordgo.PermissionManageServer))
		}
	case CommandDMNotifications:
		fn = func(ctx context.Context) (platform.Message, error) {
			actor := h.actor(i, 0)
			enabled := opts.boolean("enabled")
			if err := h.tickets.SetDMPreference(ctx, actor.UserID, enabled); err != nil {
				return platform.Message{}, err
			}
			return dmPreferenceMessage(enabled), nil
		}
	default:
		h.logger.Warn("unknown command", zap.String("command", data.Name))
		return
	}
	h.run(s, i, fn)
}

func (h *Handler) openTicket(ctx context.Context, i *discordgo.InteractionCreate, originChannelID string) (platform.Message, error) {
	actor := h.actor(i, 0)
	t, err := h.tickets.OpenTicket(ctx, service.OpenTicketInput{
		UserID:          actor.UserID,
		UserName:        actor.DisplayName,
		OriginChannelID: originChannelID,
	})
	if err != nil {
		return platform.Message{}, err
	}
	return platform.Text("✅ Your ticket is ready: " + channelMention(t.ChannelID)), nil
}

func (h *Handler) refreshPanel(i *discordgo.InteractionCreate) func(ctx context.Context) (platform.Message, error) {
	return func(ctx context.Context) (platform.Message, error) {
		actor := h.actor(i, discordgo.PermissionManageServer)
		if !actor.Operator && !actor.Owner {
			return platform.Message{}, apperrors.NewNotAuthorized("refreshing the panel requires the manage server permission")
		}
		channelID := h.discord.TicketPanelChannelID
		if channelID == "" {
			channelID = i.ChannelID
		}
		if _, err := h.platform.SendMessage(ctx, channelID, service.PanelMessage(h.tickets.Rewards())); err != nil {
			return platform.Message{}, apperrors.NewPermissionDenied("unable to post the ticket panel", err)
		}
		h.logger.Info("ticket panel posted", zap.String("channel_id", channelID), zap.String("actor_id", actor.UserID))
		return platform.Text("✅ Ticket panel posted in " + channelMention(channelID) + "."), nil
	}
}

func (h *Handler) status(ctx context.Context, actor domain.Actor) (platform.Message, error) {
	status, err := h.tickets.Status(ctx, actor)
	if err != nil {
		return platform.Message{}, err
	}
	return statusMessage(status), nil
}
