package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
	discordplatform "github.com/spec-kit/access-ticket-bot/internal/platform/discord"
	"github.com/spec-kit/access-ticket-bot/internal/service"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

const internalErrorText = "❌ Something went wrong. Please try again later."

// maxListed caps embed lists so they stay under the field limits.
const maxListed = 20

func mention(userID string) string {
	return "<@" + userID + ">"
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

func isInternal(err error) bool {
	return apperrors.ToDomainError(err).Code == apperrors.CodeInternal
}

// errorText renders a rejection the way users see it in an ephemeral reply.
func errorText(err error) string {
	de := apperrors.ToDomainError(err)
	switch de.Code {
	case apperrors.CodeInternal:
		return internalErrorText
	case apperrors.CodeDuplicateTicket:
		if ch, ok := de.Details["channel_id"].(string); ok && ch != "" {
			return "❌ You already have an open ticket: " + channelMention(ch)
		}
	case apperrors.CodeKeywordMissing:
		if required, ok := de.Details["required"].([]string); ok && len(required) > 0 {
			return "❌ Your proof must mention **" + strings.Join(required, "** and **") + "**."
		}
	case apperrors.CodeAttachmentMissing:
		return "❌ Please attach a screenshot as proof."
	}
	return "❌ " + sentence(de.Message)
}

func sentence(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToUpper(s[:1]) + s[1:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

func webhookEdit(msg platform.Message) *discordgo.WebhookEdit {
	edit := &discordgo.WebhookEdit{Content: &msg.Content}
	if embeds := discordplatform.ToEmbeds(msg.Embeds); len(embeds) > 0 {
		edit.Embeds = &embeds
	}
	if components := discordplatform.ToComponents(msg); len(components) > 0 {
		edit.Components = &components
	}
	return edit
}

func rewardSavedMessage(entry domain.RewardEntry) platform.Message {
	fields := []platform.EmbedField{{Name: "Link", Value: entry.Link}}
	if entry.TwoStage {
		fields = append(fields, platform.EmbedField{Name: "Second step", Value: onOff(entry.SecondStepLink != "", entry.SecondStepLink, "not set")})
	}
	return platform.Message{Embeds: []platform.Embed{{
		Title:       "✅ Saved " + entry.DisplayName(),
		Description: onOff(entry.TwoStage, "Two-stage verification", "Single-stage verification"),
		Color:       platform.ColorGreen,
		Fields:      fields,
	}}}
}

func catalogMessage(rewards []domain.RewardEntry) platform.Message {
	if len(rewards) == 0 {
		return platform.Text("The catalog is empty.")
	}
	lines := make([]string, 0, len(rewards))
	for _, r := range rewards {
		line := "• **" + r.Key + "**"
		if r.TwoStage {
			line += " (two-stage)"
		}
		lines = append(lines, line)
	}
	return platform.Message{Embeds: []platform.Embed{{
		Title:       "📦 Reward catalog",
		Description: strings.Join(lines, "\n"),
		Color:       platform.ColorBlue,
		Footer:      fmt.Sprintf("%d rewards", len(rewards)),
	}}}
}

func openTicketsMessage(tickets []domain.Ticket) platform.Message {
	if len(tickets) == 0 {
		return platform.Text("There are no open tickets.")
	}
	lines := make([]string, 0, min(len(tickets), maxListed))
	for i, t := range tickets {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("…and %d more", len(tickets)-maxListed))
			break
		}
		lines = append(lines, fmt.Sprintf("• %s %s `%s` %s", channelMention(t.ChannelID), mention(t.OwnerID), t.State, t.ExternalKey))
	}
	return platform.Message{Embeds: []platform.Embed{{
		Title:       fmt.Sprintf("🎫 Open tickets (%d)", len(tickets)),
		Description: strings.Join(lines, "\n"),
		Color:       platform.ColorOrange,
	}}}
}

func closedMessage(result *service.CloseResult, cleanupErr error) platform.Message {
	text := "🔒 Ticket **" + result.Ticket.ChannelName + "** closed."
	if result.GrantApplied {
		text += " Access granted."
	}
	if cleanupErr != nil {
		text += " The channel could not be removed: " + sentence(apperrors.ToDomainError(cleanupErr).Message)
	}
	return platform.Text(text)
}

func deliveryResultMessage(result *service.DeliveryResult) platform.Message {
	text := "✅ Sent **" + result.RewardKey + "** to " + mention(result.UserID) + "'s ticket."
	switch result.Outcome {
	case service.DeliverySuppressed:
		text += " They turned off DM copies."
	case service.DeliveryChannelFailed:
		text += " The DM copy could not be delivered."
	}
	return platform.Text(text)
}

func dmPreferenceMessage(enabled bool) platform.Message {
	if enabled {
		return platform.Text("🔔 Direct messages enabled. You will get copies of your rewards and cooldown notices.")
	}
	return platform.Text("🔕 Direct messages disabled. Everything will still be posted in your ticket.")
}

func statusMessage(status service.Status) platform.Message {
	fields := []platform.EmbedField{
		{Name: "Ticket creation", Value: onOff(status.Flags.CreationEnabled, "🟢 Enabled", "🔴 Disabled"), Inline: true},
		{Name: "Hours bypass", Value: onOff(status.Flags.OperationalHoursBypass, "🟢 On", "⚪ Off"), Inline: true},
		{Name: "Window", Value: status.Window + " (" + onOff(status.WindowOpen, "open", "closed") + ")", Inline: false},
		{Name: "Current time", Value: status.Now.Format(time.DateTime), Inline: true},
		{Name: "Open tickets", Value: fmt.Sprint(status.OpenTickets), Inline: true},
		{Name: "Active cooldowns", Value: fmt.Sprint(len(status.ActiveCooldowns)), Inline: true},
	}
	return platform.Message{
		Embeds: []platform.Embed{{Title: "⚙️ Bot status", Color: platform.ColorPurple, Fields: fields}},
		Buttons: []platform.Button{
			{Label: onOff(status.Flags.CreationEnabled, "Disable creation", "Enable creation"), CustomID: service.ComponentToggleCreation, Style: platform.ButtonPrimary},
			{Label: onOff(status.Flags.OperationalHoursBypass, "Disable bypass", "Enable bypass"), CustomID: service.ComponentToggleBypass, Style: platform.ButtonSecondary},
		},
	}
}

func onOff(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
