package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/access-ticket-bot/internal/config"
	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

// Component ID prefixes shared with the interaction handlers.
const (
	ComponentCreateTicket   = "create_ticket"
	ComponentSelectReward   = "select_reward:"
	ComponentProofApprove   = "proof_approve:"
	ComponentProofDeny      = "proof_deny:"
	ComponentCloseTicket    = "close_ticket:"
	ComponentToggleCreation = "admin_toggle_creation"
	ComponentToggleBypass   = "admin_toggle_bypass"
)

// maxSelectOptions is the platform's dropdown limit.
const maxSelectOptions = 25

func mention(userID string) string {
	return "<@" + userID + ">"
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

// PanelMessage is the ticket panel carrying the create button.
func PanelMessage(rewards []domain.RewardEntry) platform.Message {
	names := make([]string, 0, len(rewards))
	for _, r := range rewards {
		names = append(names, r.DisplayName())
	}
	desc := "Press the button below to open a private ticket thread."
	if len(names) > 0 {
		desc += "\n\n**Available:** " + strings.Join(names, ", ")
	}
	return platform.Message{
		Embeds: []platform.Embed{{
			Title:       "🎟️ Premium Access Tickets",
			Description: desc,
			Color:       platform.ColorBlue,
		}},
		Buttons: []platform.Button{{Label: "Create New Ticket", CustomID: ComponentCreateTicket, Style: platform.ButtonPrimary}},
	}
}

func welcomeMessage(t *domain.Ticket, rewards []domain.RewardEntry, discord config.DiscordConfig) platform.Message {
	options := make([]platform.SelectOption, 0, len(rewards))
	for _, r := range rewards {
		if len(options) == maxSelectOptions {
			break
		}
		desc := "One verification step"
		if r.TwoStage {
			desc = "Two verification steps"
		}
		options = append(options, platform.SelectOption{Label: r.DisplayName(), Value: r.Key, Description: desc})
	}
	desc := "Choose the application you want from the menu below, then follow the instructions that appear."
	if discord.InstructionsChannelID != "" {
		desc += "\n\nFull guide: " + channelMention(discord.InstructionsChannelID)
	}
	msg := platform.Message{
		Content: fmt.Sprintf("Welcome %s!", mention(t.OwnerID)),
		Embeds: []platform.Embed{{
			Title:       "🌟 Welcome to the Premium Access Ticket Center",
			Description: desc,
			Color:       platform.ColorPurple,
			Footer:      "Ticket " + t.ExternalKey,
		}},
		Buttons: []platform.Button{{Label: "Close Ticket", CustomID: ComponentCloseTicket + t.ID, Style: platform.ButtonDanger}},
	}
	if len(options) > 0 {
		msg.Select = &platform.Select{
			CustomID:    ComponentSelectReward + t.ID,
			Placeholder: "Select an application",
			Options:     options,
		}
	}
	return msg
}

func instructionsMessage(t *domain.Ticket, entry domain.RewardEntry, phrase string, discord config.DiscordConfig) platform.Message {
	fields := []platform.EmbedField{
		{Name: "Step 1", Value: proofStepText(discord)},
		{Name: "Keyword", Value: fmt.Sprintf("Include **%s** in the same message as your screenshot.", phrase)},
	}
	title := fmt.Sprintf("1-STEP VERIFICATION: %s", entry.DisplayName())
	desc := fmt.Sprintf("You selected **%s**. Complete the verification step below to receive your link.", entry.DisplayName())
	if entry.TwoStage {
		title = fmt.Sprintf("2-STEP VERIFICATION: %s 🔒", entry.DisplayName())
		desc = fmt.Sprintf("You selected **%s**. This application needs two verification steps; complete **Step 1** now.", entry.DisplayName())
		step2 := fmt.Sprintf("After approval, finish the task at the second link and send a screenshot with **%s**.", entry.SecondStagePhrase())
		if entry.SecondStepLink != "" {
			step2 += "\n" + entry.SecondStepLink
		}
		fields = append(fields, platform.EmbedField{Name: "Step 2", Value: step2})
	}
	return platform.Message{
		Content: fmt.Sprintf("**✅ Selection locked: %s**", entry.DisplayName()),
		Embeds: []platform.Embed{{
			Title:       title,
			Description: desc,
			Color:       platform.ColorGold,
			Fields:      fields,
			Footer:      "Ticket " + t.ExternalKey,
		}},
	}
}

func proofStepText(discord config.DiscordConfig) string {
	if discord.ProofChannelURL == "" {
		return "Subscribe to the channel and send a screenshot as proof."
	}
	return "Subscribe to " + discord.ProofChannelURL + " and send a screenshot as proof."
}

func reviewPrompt(t *domain.Ticket, review *domain.ProofReview, entry domain.RewardEntry) platform.Message {
	return platform.Message{
		Embeds: []platform.Embed{reviewEmbed(t, review, entry.DisplayName(), platform.ColorOrange, "Awaiting decision")},
		Buttons: []platform.Button{
			{Label: "Approve", CustomID: ComponentProofApprove + review.ID, Style: platform.ButtonSuccess},
			{Label: "Deny", CustomID: ComponentProofDeny + review.ID, Style: platform.ButtonDanger},
		},
	}
}

func decidedPrompt(t *domain.Ticket, review *domain.ProofReview, operator domain.Actor) platform.Message {
	color, status := platform.ColorGreen, "Approved by "+mention(operator.UserID)
	if review.Decision == domain.ProofDecisionDenied {
		color, status = platform.ColorRed, "Denied by "+mention(operator.UserID)
	}
	return platform.Message{
		Embeds: []platform.Embed{reviewEmbed(t, review, review.RewardKey, color, status)},
		Buttons: []platform.Button{
			{Label: "Approve", CustomID: ComponentProofApprove + review.ID, Style: platform.ButtonSuccess, Disabled: true},
			{Label: "Deny", CustomID: ComponentProofDeny + review.ID, Style: platform.ButtonDanger, Disabled: true},
		},
	}
}

func withdrawnPrompt(t *domain.Ticket, review *domain.ProofReview) platform.Message {
	return platform.Message{
		Embeds: []platform.Embed{reviewEmbed(t, review, review.RewardKey, platform.ColorRed, "Ticket closed before a decision")},
		Buttons: []platform.Button{
			{Label: "Approve", CustomID: ComponentProofApprove + review.ID, Style: platform.ButtonSuccess, Disabled: true},
			{Label: "Deny", CustomID: ComponentProofDeny + review.ID, Style: platform.ButtonDanger, Disabled: true},
		},
	}
}

func reviewEmbed(t *domain.Ticket, review *domain.ProofReview, reward string, color int, status string) platform.Embed {
	return platform.Embed{
		Title:       "📸 Verification Proof Received",
		Description: fmt.Sprintf("%s submitted proof for **%s**.", mention(review.UserID), reward),
		Color:       color,
		Fields: []platform.EmbedField{
			{Name: "Ticket", Value: channelMention(t.ChannelID), Inline: true},
			{Name: "Stage", Value: review.Stage.String(), Inline: true},
			{Name: "Screenshot", Value: review.AttachmentURL},
			{Name: "Status", Value: status},
		},
		Footer: "Review " + review.ID,
	}
}

func secondStageNotice(t *domain.Ticket, entry domain.RewardEntry) platform.Message {
	return platform.Message{
		Embeds: []platform.Embed{{
			Title:       fmt.Sprintf("🎉 Final proof received for %s", entry.DisplayName()),
			Description: fmt.Sprintf("%s passed the keyword check in %s; the link was sent automatically.", mention(t.OwnerID), channelMention(t.ChannelID)),
			Color:       platform.ColorGreen,
		}},
	}
}

func proofReceivedMessage(entry domain.RewardEntry) platform.Message {
	return platform.Message{
		Embeds: []platform.Embed{{
			Title:       "✅ Upload successful",
			Description: fmt.Sprintf("Your proof for **%s** was forwarded for review. You will get your link here once it is verified. ⏳", entry.DisplayName()),
			Color:       platform.ColorGreen,
		}},
	}
}

func deniedMessage(t *domain.Ticket, phrase string) platform.Message {
	return platform.Message{
		Content: mention(t.OwnerID),
		Embeds: []platform.Embed{{
			Title:       "❌ Verification proof denied",
			Description: fmt.Sprintf("Please resubmit a clear screenshot together with the keyword **%s**.", phrase),
			Color:       platform.ColorRed,
		}},
	}
}

func secondStageMessage(t *domain.Ticket, entry domain.RewardEntry) platform.Message {
	desc := fmt.Sprintf("Step 1 is verified. Finish the final step and send a screenshot with **%s** in the message.", entry.SecondStagePhrase())
	if entry.SecondStepLink != "" {
		desc += "\n\n" + entry.SecondStepLink
	}
	return platform.Message{
		Content: mention(t.OwnerID),
		Embeds: []platform.Embed{{
			Title:       fmt.Sprintf("✅ Step 1 verified: %s", entry.DisplayName()),
			Description: desc,
			Color:       platform.ColorGold,
		}},
	}
}

func deliveryMessage(t *domain.Ticket, entry domain.RewardEntry) platform.Message {
	return platform.Message{
		Content: mention(t.OwnerID),
		Embeds:  []platform.Embed{deliveryEmbed(entry)},
		Buttons: []platform.Button{{Label: "Open " + entry.DisplayName(), URL: entry.Link, Style: platform.ButtonLink}},
	}
}

func deliveryEmbed(entry domain.RewardEntry) platform.Embed {
	return platform.Embed{
		Title:       "✅ Verification approved, access granted",
		Description: fmt.Sprintf("Your verification for **%s** is complete.\n\n**Link:** %s", entry.DisplayName(), entry.Link),
		Color:       platform.ColorGreen,
	}
}

func deliveryDM(entry domain.RewardEntry, discord config.DiscordConfig) platform.Message {
	content := fmt.Sprintf("Your **%s** link is ready.", entry.DisplayName())
	if discord.FeedbackChannelID != "" {
		content += " Tell us how it went in " + channelMention(discord.FeedbackChannelID) + "."
	}
	return platform.Message{Content: content, Embeds: []platform.Embed{deliveryEmbed(entry)}}
}

func closePrompt(t *domain.Ticket) platform.Message {
	return platform.Message{
		Embeds: []platform.Embed{{
			Title:       "🎉 Service completed, time to close",
			Description: "Close the ticket with the button below. Closing applies your cooldown and category lock.",
			Color:       platform.ColorPurple,
		}},
		Buttons: []platform.Button{{Label: "Close Ticket", CustomID: ComponentCloseTicket + t.ID, Style: platform.ButtonDanger}},
	}
}

func inactivityMessage(minutes int) platform.Message {
	return platform.Message{
		Embeds: []platform.Embed{{
			Description: fmt.Sprintf("⏳ This ticket is being closed after %d minutes of inactivity. Access denied.", minutes),
			Color:       platform.ColorRed,
		}},
	}
}

func closureLogMessage(t *domain.Ticket, closer domain.Actor) platform.Message {
	closedBy := mention(closer.UserID)
	if closer.System {
		closedBy = "System (auto-close)"
	}
	reward := t.RewardKey
	if reward == "" {
		reward = "none"
	}
	var closedAt time.Time
	if t.ClosedAt != nil {
		closedAt = *t.ClosedAt
	}
	return platform.Message{
		Embeds: []platform.Embed{{
			Title:       "📜 Ticket transcript log: " + t.ChannelName,
			Description: fmt.Sprintf("Transcript for ticket **%s** follows.", t.ChannelName),
			Color:       platform.ColorBlue,
			Fields: []platform.EmbedField{
				{Name: "User", Value: mention(t.OwnerID), Inline: true},
				{Name: "Closed by", Value: closedBy, Inline: true},
				{Name: "Reward", Value: reward, Inline: true},
				{Name: "State at close", Value: string(t.State), Inline: true},
				{Name: "Open for", Value: apperrors.FormatDuration(closedAt.Sub(t.CreatedAt)), Inline: true},
			},
			Footer: "Ticket " + t.ExternalKey,
		}},
	}
}

func transcriptPartMessage(part int, body string) platform.Message {
	return platform.Message{
		Embeds: []platform.Embed{{
			Title:       fmt.Sprintf("📄 Transcript part %d", part),
			Description: body,
			Color:       platform.ColorBlue,
		}},
	}
}

// GrantAuditMessage is the log channel line for an applied grant.
func GrantAuditMessage(userID string, roleHeld, categoryLocked bool, cooldownEnds time.Time) platform.Message {
	return platform.Text(fmt.Sprintf("🔒 Grant applied to %s: temporary role %s, category %s, cooldown until <t:%d:f>.",
		mention(userID), onOff(roleHeld, "added", "not added"), onOff(categoryLocked, "locked", "unchanged"), cooldownEnds.Unix()))
}

// CooldownExpiredMessage is the DM sent when a cooldown ends.
func CooldownExpiredMessage(cooldown time.Duration) platform.Message {
	return platform.Text(fmt.Sprintf("✅ Your %d-hour access cooldown has expired. You can now create a new ticket.", int(cooldown.Hours())))
}

func onOff(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
