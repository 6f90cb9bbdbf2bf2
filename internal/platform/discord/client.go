// Package discord implements the platform boundary on top of discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
)

const (
	historyPageSize  = 100
	maxButtonsPerRow = 5
)

// Client adapts a discordgo session to platform.Platform.
type Client struct {
	session         *discordgo.Session
	guildID         string
	autoArchiveMins int
	logger          *zap.Logger
}

var _ platform.Platform = (*Client)(nil)

// ClientDependencies groups what NewClient needs.
type ClientDependencies struct {
	Session         *discordgo.Session
	GuildID         string
	AutoArchiveMins int
	Logger          *zap.Logger
}

// NewClient builds the adapter.
func NewClient(deps ClientDependencies) *Client {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	archive := deps.AutoArchiveMins
	if archive <= 0 {
		archive = 60
	}
	return &Client{session: deps.Session, guildID: deps.GuildID, autoArchiveMins: archive, logger: logger}
}

func (c *Client) CreateThread(ctx context.Context, parentChannelID, name string) (string, error) {
	ch, err := c.session.ThreadStartComplex(parentChannelID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: c.autoArchiveMins,
		Type:                discordgo.ChannelTypeGuildPublicThread,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", translate("create thread", err)
	}
	return ch.ID, nil
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	sent, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     ToEmbeds(msg.Embeds),
		Components: ToComponents(msg),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", translate("send message", err)
	}
	return sent.ID, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg platform.Message) error {
	content := msg.Content
	embeds := ToEmbeds(msg.Embeds)
	components := ToComponents(msg)
	_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	return translate("edit message", err)
}

func (c *Client) FetchHistory(ctx context.Context, channelID string) ([]domain.TicketMessage, error) {
	var out []domain.TicketMessage
	before := ""
	for {
		page, err := c.session.ChannelMessages(channelID, historyPageSize, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, translate("fetch history", err)
		}
		for _, m := range page {
			out = append(out, toTicketMessage(m))
		}
		if len(page) < historyPageSize {
			break
		}
		before = page[len(page)-1].ID
	}
	// The API pages newest first.
	slices.Reverse(out)
	return out, nil
}

func (c *Client) SetCategoryPermission(ctx context.Context, categoryID, userID string, allowView bool) error {
	var allow, deny int64
	if allowView {
		allow = discordgo.PermissionViewChannel
	} else {
		deny = discordgo.PermissionViewChannel
	}
	err := c.session.ChannelPermissionSet(categoryID, userID, discordgo.PermissionOverwriteTypeMember, allow, deny, discordgo.WithContext(ctx))
	return translate("set category permission", err)
}

func (c *Client) AddRole(ctx context.Context, userID, roleID string) error {
	return translate("add role", c.session.GuildMemberRoleAdd(c.guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	return translate("remove role", c.session.GuildMemberRoleRemove(c.guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) HasRole(ctx context.Context, userID, roleID string) (bool, error) {
	member, err := c.session.GuildMember(c.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return false, translate("fetch member", err)
	}
	return slices.Contains(member.Roles, roleID), nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return translate("delete channel", err)
}

func (c *Client) ArchiveThread(ctx context.Context, channelID string) error {
	archived, locked := true, true
	_, err := c.session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{
		Archived: &archived,
		Locked:   &locked,
	}, discordgo.WithContext(ctx))
	return translate("archive thread", err)
}

func (c *Client) SendDM(ctx context.Context, userID string, msg platform.Message) error {
	dm, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return translate("open dm", err)
	}
	_, err = c.SendMessage(ctx, dm.ID, msg)
	return err
}

// translate maps REST failures onto the platform sentinel errors.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, platform.ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %v", op, platform.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toTicketMessage(m *discordgo.Message) domain.TicketMessage {
	tm := domain.TicketMessage{ID: m.ID, Content: m.Content, CreatedAt: m.Timestamp.UTC()}
	if m.Author != nil {
		tm.AuthorID = m.Author.ID
		tm.AuthorName = displayName(m.Author)
	}
	for _, a := range m.Attachments {
		tm.Attachments = append(tm.Attachments, a.URL)
	}
	return tm
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// ToEmbeds converts platform embeds to discordgo embeds.
func ToEmbeds(in []platform.Embed) []*discordgo.MessageEmbed {
	if len(in) == 0 {
		return nil
	}
	out := make([]*discordgo.MessageEmbed, 0, len(in))
	for _, e := range in {
		embed := &discordgo.MessageEmbed{Title: e.Title, Description: e.Description, Color: e.Color}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		if e.Footer != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		out = append(out, embed)
	}
	return out
}

// ToComponents renders buttons (five per row) and the optional select.
func ToComponents(msg platform.Message) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	if msg.Select != nil {
		options := make([]discordgo.SelectMenuOption, 0, len(msg.Select.Options))
		for _, o := range msg.Select.Options {
			options = append(options, discordgo.SelectMenuOption{Label: o.Label, Value: o.Value, Description: o.Description})
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    msg.Select.CustomID,
				Placeholder: msg.Select.Placeholder,
				Options:     options,
				Disabled:    msg.Select.Disabled,
			},
		}})
	}
	for start := 0; start < len(msg.Buttons); start += maxButtonsPerRow {
		end := min(start+maxButtonsPerRow, len(msg.Buttons))
		row := discordgo.ActionsRow{}
		for _, b := range msg.Buttons[start:end] {
			btn := discordgo.Button{Label: b.Label, Style: buttonStyle(b.Style), Disabled: b.Disabled}
			if b.Style == platform.ButtonLink {
				btn.URL = b.URL
			} else {
				btn.CustomID = b.CustomID
			}
			row.Components = append(row.Components, btn)
		}
		rows = append(rows, row)
	}
	return rows
}

func buttonStyle(s platform.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case platform.ButtonSecondary:
		return discordgo.SecondaryButton
	case platform.ButtonSuccess:
		return discordgo.SuccessButton
	case platform.ButtonDanger:
		return discordgo.DangerButton
	case platform.ButtonLink:
		return discordgo.LinkButton
	default:
		return discordgo.PrimaryButton
	}
}
