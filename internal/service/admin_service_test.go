package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
	"github.com/spec-kit/access-ticket-bot/internal/repository"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

func TestStatusIsOwnerOnly(t *testing.T) {
	h := newHarness(t)
	h.open("u1")
	closeWithGrant(t, h, "u2")

	_, err := h.svc.Status(context.Background(), operator)
	requireCode(t, err, apperrors.CodeNotAuthorized)

	status, err := h.svc.Status(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, status.Flags.CreationEnabled)
	assert.True(t, status.WindowOpen)
	assert.Equal(t, "14:00 to 23:59 IST", status.Window)
	assert.Equal(t, 1, status.OpenTickets)
	require.Len(t, status.ActiveCooldowns, 1)
	assert.Equal(t, "u2", status.ActiveCooldowns[0].UserID)
	assert.Equal(t, 15, status.Now.Hour())
}

func TestListOpenTickets(t *testing.T) {
	h := newHarness(t)
	first := h.open("u1")
	second := h.open("u2")
	_, err := h.svc.CloseTicket(context.Background(), second.ID, domain.Actor{UserID: "u2"}, false)
	require.NoError(t, err)

	_, err = h.svc.ListOpenTickets(context.Background(), alice)
	requireCode(t, err, apperrors.CodeNotAuthorized)

	open, err := h.svc.ListOpenTickets(context.Background(), operator)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, first.ID, open[0].ID)
}

func TestCatalogManagement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.UpsertReward(ctx, alice, domain.RewardEntry{Key: "netflix", Link: "https://n"})
	requireCode(t, err, apperrors.CodeNotAuthorized)

	_, err = h.svc.UpsertReward(ctx, operator, domain.RewardEntry{Key: " ", Link: ""})
	requireCode(t, err, apperrors.CodeValidation)

	entry, err := h.svc.UpsertReward(ctx, operator, domain.RewardEntry{Key: " Netflix ", Link: " https://n "})
	require.NoError(t, err)
	assert.Equal(t, "netflix", entry.Key)
	assert.Equal(t, "https://n", entry.Link)
	_, ok := h.catalog.Get("netflix")
	assert.True(t, ok)

	require.NoError(t, h.svc.RemoveReward(ctx, operator, "NETFLIX"))
	err = h.svc.RemoveReward(ctx, operator, "netflix")
	requireCode(t, err, apperrors.CodeRewardNotFound)
	assert.Len(t, h.svc.Rewards(), len(h.catalog.All()))
}

func TestDMPreferenceSuppressesDeliveryDM(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.SetDMPreference(context.Background(), "u1", false))
	ticket := h.open("u1")
	res, err := h.submit(ticket, "RASH TECH vpn", "https://cdn/p.png")
	require.NoError(t, err)
	_, err = h.svc.DecideProof(context.Background(), res.ReviewID, true, operator)
	require.NoError(t, err)

	res, err = h.submit(ticket, "VPN KEY", "https://cdn/p2.png")
	require.NoError(t, err)

	assert.Equal(t, DeliverySuppressed, res.Delivery.Outcome)
	assert.Empty(t, h.fake.DMsTo("u1"))
	sent := h.fake.SentTo(ticket.ChannelID)
	var linkPosted bool
	for _, m := range sent {
		for _, b := range m.Message.Buttons {
			if b.URL != "" {
				linkPosted = true
			}
		}
	}
	assert.True(t, linkPosted)
}

func TestBlockedDMIsChannelFailed(t *testing.T) {
	h := newHarness(t)
	h.fake.FailDM = platform.ErrForbidden
	ticket := h.open("u1")
	res, err := h.submit(ticket, "RASH TECH vpn", "https://cdn/p.png")
	require.NoError(t, err)
	_, err = h.svc.DecideProof(context.Background(), res.ReviewID, true, operator)
	require.NoError(t, err)

	res, err = h.submit(ticket, "VPN KEY", "https://cdn/p2.png")
	require.NoError(t, err)

	assert.Equal(t, DeliveryChannelFailed, res.Delivery.Outcome)
	assert.Equal(t, domain.TicketStateDelivered, h.state(ticket))
}

func TestDeliverRewardConsumesPendingReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open("u1")
	res, err := h.submit(ticket, "RASH TECH hotstar", "https://cdn/p.png")
	require.NoError(t, err)

	_, err = h.svc.DeliverReward(ctx, alice, "u1", "hotstar")
	requireCode(t, err, apperrors.CodeNotAuthorized)
	_, err = h.svc.DeliverReward(ctx, operator, "u9", "hotstar")
	requireCode(t, err, apperrors.CodeNotFound)

	delivery, err := h.svc.DeliverReward(ctx, operator, "u1", "hotstar")
	require.NoError(t, err)
	assert.True(t, delivery.Manual)
	assert.Equal(t, domain.TicketStateDelivered, h.state(ticket))

	_, err = h.svc.DecideProof(ctx, res.ReviewID, true, operator)
	requireCode(t, err, apperrors.CodeAlreadyDecided)
	_, err = h.svc.DeliverReward(ctx, operator, "u1", "hotstar")
	requireCode(t, err, apperrors.CodeInvalidState)

	closed, err := h.svc.CloseTicket(ctx, ticket.ID, alice, true)
	require.NoError(t, err)
	assert.True(t, closed.GrantApplied)
}

func TestArchiveQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open("u1")
	_, err := h.svc.CloseTicket(ctx, ticket.ID, alice, false)
	require.NoError(t, err)

	owner := "u1"
	list, err := h.svc.ArchivedTickets(ctx, repository.TicketFilter{OwnerID: &owner})
	require.NoError(t, err)
	require.Len(t, list, 1)

	stranger := "u9"
	list, err = h.svc.ArchivedTickets(ctx, repository.TicketFilter{OwnerID: &stranger})
	require.NoError(t, err)
	assert.Empty(t, list)

	archived, err := h.svc.ArchivedTicket(ctx, ticket.ExternalKey)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, archived.Ticket.ID)
	assert.Len(t, archived.Transcript, 1)
	assert.NotEmpty(t, archived.History)
}

func TestArchiveQueriesWithoutArchive(t *testing.T) {
	h := newHarness(t, func(d *TicketDependencies) {
		d.TicketRepo = nil
		d.HistoryRepo = nil
	})

	_, err := h.svc.ArchivedTickets(context.Background(), repository.TicketFilter{})
	requireCode(t, err, apperrors.CodeSystemClosed)
	h.open("u1")
}
