package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/observability"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

func TestOpenTicketCreatesThreadAndArmsInactivity(t *testing.T) {
	h := newHarness(t)

	ticket := h.open("u1")

	assert.Equal(t, domain.TicketStateOpen, ticket.State)
	assert.Equal(t, "ticket-u1", ticket.ChannelName)
	assert.True(t, strings.HasPrefix(ticket.ExternalKey, "TCK-"))
	require.Len(t, h.fake.Threads, 1)
	assert.Equal(t, panelChannel, h.fake.Threads[0].ParentID)
	assert.True(t, h.clock.Pending(inactivityKey(ticket.ID)))

	welcome := h.fake.SentTo(ticket.ChannelID)
	require.NotEmpty(t, welcome)
	require.NotNil(t, welcome[0].Message.Select)
	assert.Equal(t, ComponentSelectReward+ticket.ID, welcome[0].Message.Select.CustomID)
	assert.Len(t, welcome[0].Message.Select.Options, len(h.catalog.All()))

	_, archived := h.archive.get(ticket.ID)
	assert.True(t, archived)
}

func TestOpenTicketCreationDisabledCreatesNothing(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ToggleCreation(context.Background(), owner)
	require.NoError(t, err)

	_, err = h.svc.OpenTicket(context.Background(), OpenTicketInput{UserID: "u1"})

	requireCode(t, err, apperrors.CodeSystemClosed)
	assert.Equal(t, 0, h.fake.ThreadCount())
	open, err := h.svc.ListOpenTickets(context.Background(), operator)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOpenTicketOutsideWindowNeedsBypass(t *testing.T) {
	h := newHarness(t)
	// 07:30 IST
	h.clock.Set(time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC))

	_, err := h.svc.OpenTicket(context.Background(), OpenTicketInput{UserID: "u1"})
	requireCode(t, err, apperrors.CodeSystemClosed)

	_, err = h.svc.ToggleBypass(context.Background(), operator)
	requireCode(t, err, apperrors.CodeNotAuthorized)

	flags, err := h.svc.ToggleBypass(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, flags.OperationalHoursBypass)
	h.open("u1")
}

func TestOpenTicketDuplicate(t *testing.T) {
	h := newHarness(t)
	first := h.open("u1")

	_, err := h.svc.OpenTicket(context.Background(), OpenTicketInput{UserID: "u1"})

	requireCode(t, err, apperrors.CodeDuplicateTicket)
	assert.Equal(t, first.ChannelID, apperrors.ToDomainError(err).Details["channel_id"])
	assert.Equal(t, 1, h.fake.ThreadCount())
}

func TestOpenTicketThreadRefusedLeavesNoTicket(t *testing.T) {
	h := newHarness(t)
	h.fake.FailCreateThread = platform.ErrForbidden

	_, err := h.svc.OpenTicket(context.Background(), OpenTicketInput{UserID: "u1"})
	requireCode(t, err, apperrors.CodePermissionDenied)

	h.fake.FailCreateThread = nil
	h.open("u1")
}

func TestOneStageFlowGrantsAndCooldownBlocksUntilRelease(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open("u1")

	_, err := h.svc.SelectReward(ctx, ticket.ID, alice, "spotify")
	require.NoError(t, err)
	h.fake.PostUserMessage(ticket.ChannelID, "u1", "alice", "RASH TECH spotify", "https://cdn/proof.png")

	res, err := h.submit(ticket, "RASH TECH spotify", "https://cdn/proof.png")
	require.NoError(t, err)
	assert.Equal(t, domain.ProofStageFirst, res.Stage)
	assert.Equal(t, domain.TicketStateAwaitingProofReview, res.Ticket.State)
	assert.False(t, h.clock.Pending(inactivityKey(ticket.ID)))

	prompts := h.fake.SentTo(verifyChannel)
	require.Len(t, prompts, 1)
	assert.Equal(t, ComponentProofApprove+res.ReviewID, prompts[0].Message.Buttons[0].CustomID)

	review, err := h.svc.DecideProof(ctx, res.ReviewID, true, operator)
	require.NoError(t, err)
	assert.Equal(t, domain.ProofDecisionApproved, review.Decision)
	assert.Equal(t, domain.TicketStateDelivered, h.state(ticket))
	require.Len(t, h.fake.DMsTo("u1"), 1)
	require.NotEmpty(t, h.fake.Edits)
	assert.True(t, h.fake.Edits[0].Message.Buttons[0].Disabled)

	closed, err := h.svc.CloseTicket(ctx, ticket.ID, alice, true)
	require.NoError(t, err)
	assert.True(t, closed.GrantApplied)
	assert.Equal(t, domain.TicketStateClosed, closed.Ticket.State)
	assert.Equal(t, 1, closed.TranscriptChunks)
	assert.True(t, h.fake.HoldsRole("u1", roleID))
	assert.False(t, h.fake.CategoryVisible(categoryID, "u1"))
	assert.Equal(t, []string{ticket.ChannelID}, h.fake.Archived)
	assert.True(t, h.cooldowns.has("u1"))

	_, err = h.svc.OpenTicket(ctx, OpenTicketInput{UserID: "u1"})
	requireCode(t, err, apperrors.CodeCooldownActive)

	h.clock.Advance(3 * time.Hour)
	assert.False(t, h.fake.HoldsRole("u1", roleID))
	assert.False(t, h.fake.CategoryVisible(categoryID, "u1"))
	_, err = h.svc.OpenTicket(ctx, OpenTicketInput{UserID: "u1"})
	requireCode(t, err, apperrors.CodeCooldownActive)

	h.clock.Advance(165 * time.Hour)
	assert.True(t, h.fake.CategoryVisible(categoryID, "u1"))
	assert.False(t, h.cooldowns.has("u1"))
	dms := h.fake.DMsTo("u1")
	require.Len(t, dms, 2)
	assert.Contains(t, dms[1].Message.Content, "168-hour access cooldown has expired")
	h.open("u1")

	snap := h.metrics.Snapshot()
	assert.Equal(t, int64(2), snap.Tickets[observability.TicketOpened])
	assert.Equal(t, int64(1), snap.Tickets[observability.TicketClosed])
	assert.Equal(t, int64(1), snap.Tickets[observability.TicketGrantApplied])
	assert.Equal(t, int64(1), snap.Deliveries[string(DeliveryDelivered)])
}

func TestCloseLogsTranscriptAndArchives(t *testing.T) {
	h := newHarness(t)
	ticket := h.deliveredTicket("u1", "youtube")
	h.fake.PostUserMessage(ticket.ChannelID, "u1", "alice", "thanks!")

	_, err := h.svc.CloseTicket(context.Background(), ticket.ChannelID, alice, true)
	require.NoError(t, err)

	logs := h.fake.SentTo(logChannel)
	var titles []string
	for _, m := range logs {
		if len(m.Message.Embeds) > 0 {
			titles = append(titles, m.Message.Embeds[0].Title)
		} else {
			titles = append(titles, m.Message.Content)
		}
	}
	require.GreaterOrEqual(t, len(titles), 3)
	assert.Contains(t, titles[0], "Ticket transcript log")
	assert.Equal(t, "📄 Transcript part 1", titles[1])
	assert.Contains(t, titles[len(titles)-1], "archived/locked")

	archived, ok := h.archive.get(ticket.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TicketStateClosed, archived.State)
	assert.True(t, archived.GrantApplied)
	require.Len(t, h.archive.transcripts[ticket.ID], 1)
	assert.Contains(t, h.archive.transcripts[ticket.ID][0], "alice (u1): thanks!")

	hist, err := h.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	var grants int
	for _, e := range hist {
		if e.ChangeType == domain.ChangeTypeGrant {
			grants++
		}
	}
	assert.Equal(t, 1, grants)
}

func TestDecideProofTwiceIsAlreadyDecided(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	res, err := h.submit(ticket, "rash tech spotify", "https://cdn/p.png")
	require.NoError(t, err)

	_, err = h.svc.DecideProof(context.Background(), res.ReviewID, true, operator)
	require.NoError(t, err)
	_, err = h.svc.DecideProof(context.Background(), res.ReviewID, false, owner)

	requireCode(t, err, apperrors.CodeAlreadyDecided)
	assert.Len(t, h.fake.DMsTo("u1"), 1)
	assert.Equal(t, domain.TicketStateDelivered, h.state(ticket))
}

func TestDecideProofRequiresOperator(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	res, err := h.submit(ticket, "RASH TECH spotify", "https://cdn/p.png")
	require.NoError(t, err)

	_, err = h.svc.DecideProof(context.Background(), res.ReviewID, true, alice)
	requireCode(t, err, apperrors.CodeNotAuthorized)

	_, err = h.svc.DecideProof(context.Background(), "missing", true, operator)
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestDecideProofMissingCatalogEntryKeepsReviewPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open("u1")
	res, err := h.submit(ticket, "RASH TECH castle", "https://cdn/p.png")
	require.NoError(t, err)
	entry, _ := h.catalog.Get("castle")
	_, err = h.catalog.Delete("castle")
	require.NoError(t, err)

	_, err = h.svc.DecideProof(ctx, res.ReviewID, true, operator)
	requireCode(t, err, apperrors.CodeRewardNotFound)
	assert.Equal(t, domain.TicketStateAwaitingProofReview, h.state(ticket))

	require.NoError(t, h.catalog.Set(entry))
	_, err = h.svc.DecideProof(ctx, res.ReviewID, true, operator)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateDelivered, h.state(ticket))
}

func TestDeniedProofReturnsToOpenAndRearmsTimer(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	res, err := h.submit(ticket, "RASH TECH spotify", "https://cdn/p.png")
	require.NoError(t, err)
	h.clock.Advance(30 * time.Minute)
	assert.Equal(t, domain.TicketStateAwaitingProofReview, h.state(ticket))

	_, err = h.svc.DecideProof(context.Background(), res.ReviewID, false, operator)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateOpen, h.state(ticket))
	assert.True(t, h.clock.Pending(inactivityKey(ticket.ID)))

	res, err = h.submit(ticket, "RASH TECH spotify", "https://cdn/p2.png")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ReviewID)
}

func TestSubmitProofKeywordIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")

	res, err := h.submit(ticket, "here you go, Rash Tech -- YouTube", "https://cdn/p.png")

	require.NoError(t, err)
	assert.Equal(t, "youtube", res.Ticket.RewardKey)
	assert.Equal(t, domain.TicketStateAwaitingProofReview, res.Ticket.State)
}

func TestSubmitProofRejectionsLeaveStateUnchanged(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")

	_, err := h.submit(ticket, "RASH TECH spotify")
	requireCode(t, err, apperrors.CodeAttachmentMissing)

	_, err = h.submit(ticket, "spotify please", "https://cdn/p.png")
	requireCode(t, err, apperrors.CodeKeywordMissing)
	assert.Equal(t, []string{"RASH TECH"}, apperrors.ToDomainError(err).Details["required"])

	_, err = h.submit(ticket, "hello?")
	assert.ErrorIs(t, err, ErrNoRewardMatched)

	_, err = h.svc.SubmitProof(context.Background(), SubmitProofInput{ChannelID: ticket.ChannelID, UserID: "u2", Text: "RASH TECH spotify", Attachments: []string{"x"}})
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = h.svc.SubmitProof(context.Background(), SubmitProofInput{ChannelID: "elsewhere", UserID: "u1"})
	assert.ErrorIs(t, err, ErrNotTicketChannel)

	assert.Equal(t, domain.TicketStateOpen, h.state(ticket))
	assert.Empty(t, h.fake.SentTo(verifyChannel))
}

func TestSubmitProofUsesSelectedReward(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	_, err := h.svc.SelectReward(context.Background(), ticket.ID, alice, "kinemaster")
	require.NoError(t, err)

	res, err := h.submit(ticket, "rash tech done", "https://cdn/p.png")

	require.NoError(t, err)
	assert.Equal(t, "kinemaster", res.Ticket.RewardKey)
}

func TestSelectedRewardIgnoresPlainChat(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	_, err := h.svc.SelectReward(context.Background(), ticket.ID, alice, "spotify")
	require.NoError(t, err)

	_, err = h.submit(ticket, "hi, how long does this usually take?")
	assert.ErrorIs(t, err, ErrNoRewardMatched)

	_, err = h.submit(ticket, "here is my rash tech proof")
	requireCode(t, err, apperrors.CodeAttachmentMissing)

	_, err = h.submit(ticket, "", "https://cdn/p.png")
	requireCode(t, err, apperrors.CodeKeywordMissing)

	current, err := h.svc.TicketByChannel(context.Background(), ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateOpen, current.State)
	assert.Equal(t, "spotify", current.RewardKey)
}

func TestSelectRewardRules(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")

	_, err := h.svc.SelectReward(context.Background(), ticket.ID, domain.Actor{UserID: "u2"}, "spotify")
	requireCode(t, err, apperrors.CodeNotAuthorized)

	_, err = h.svc.SelectReward(context.Background(), ticket.ID, alice, "netflix")
	requireCode(t, err, apperrors.CodeRewardNotFound)

	entry, err := h.svc.SelectReward(context.Background(), ticket.ID, alice, "VPN")
	require.NoError(t, err)
	assert.True(t, entry.TwoStage)
	sent := h.fake.SentTo(ticket.ChannelID)
	last := sent[len(sent)-1].Message
	require.Len(t, last.Embeds, 1)
	assert.Len(t, last.Embeds[0].Fields, 3)
}

func TestTwoStageVPNFlowDeliversWithoutSecondReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open("u1")

	res, err := h.submit(ticket, "RASH TECH vpn", "https://cdn/p1.png")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateAwaitingProofReview, res.Ticket.State)

	_, err = h.svc.DecideProof(ctx, res.ReviewID, true, operator)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateAwaitingSecondStepProof, h.state(ticket))
	assert.Empty(t, h.fake.DMsTo("u1"))

	_, err = h.submit(ticket, "VPN KEY: ABC123")
	requireCode(t, err, apperrors.CodeAttachmentMissing)

	_, err = h.submit(ticket, "done", "https://cdn/p2.png")
	requireCode(t, err, apperrors.CodeKeywordMissing)
	assert.Equal(t, []string{"VPN KEY"}, apperrors.ToDomainError(err).Details["required"])

	res, err = h.submit(ticket, "vpn key: ABC123", "https://cdn/p2.png")
	require.NoError(t, err)
	assert.Equal(t, domain.ProofStageSecond, res.Stage)
	assert.Empty(t, res.ReviewID)
	require.NotNil(t, res.Delivery)
	assert.Equal(t, DeliveryDelivered, res.Delivery.Outcome)
	assert.Equal(t, domain.TicketStateDelivered, h.state(ticket))

	verify := h.fake.SentTo(verifyChannel)
	require.Len(t, verify, 2)
	assert.Empty(t, verify[1].Message.Buttons)
}

func TestInactivityClosesOpenTicketWithoutGrant(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")

	h.clock.Advance(10 * time.Minute)

	archived, ok := h.archive.get(ticket.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TicketStateClosed, archived.State)
	assert.Equal(t, "system", archived.ClosedByID)
	assert.False(t, archived.GrantApplied)
	assert.False(t, h.fake.HoldsRole("u1", roleID))
	assert.Equal(t, 0, h.svc.Grants().Registry().Len())
	assert.Equal(t, int64(1), h.metrics.Snapshot().Tickets[observability.TicketAutoClosed])
	h.open("u1")
}

func TestInactivityDoesNotCloseTicketUnderReview(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	_, err := h.submit(ticket, "RASH TECH spotify", "https://cdn/p.png")
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)

	assert.Equal(t, domain.TicketStateAwaitingProofReview, h.state(ticket))
}

func TestDeliveredTicketAutoClosesWithGrant(t *testing.T) {
	h := newHarness(t)
	ticket := h.deliveredTicket("u1", "spotify")

	h.clock.Advance(10 * time.Minute)

	archived, _ := h.archive.get(ticket.ID)
	assert.Equal(t, domain.TicketStateClosed, archived.State)
	assert.True(t, archived.GrantApplied)
	assert.True(t, h.fake.HoldsRole("u1", roleID))
	assert.True(t, h.svc.Grants().Registry().IsBlocked("u1", h.clock.Now()))
}

func TestCloseTicketWithoutDeliveryNeverGrants(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")

	res, err := h.svc.CloseTicket(context.Background(), ticket.ID, alice, true)

	require.NoError(t, err)
	assert.False(t, res.GrantApplied)
	assert.False(t, h.fake.HoldsRole("u1", roleID))
	assert.Equal(t, 0, h.svc.Grants().Registry().Len())
}

func TestCloseTicketTwiceIsAlreadyClosed(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	_, err := h.svc.CloseTicket(context.Background(), ticket.ID, alice, false)
	require.NoError(t, err)

	_, err = h.svc.CloseTicket(context.Background(), ticket.ID, alice, false)
	requireCode(t, err, apperrors.CodeAlreadyClosed)

	_, err = h.svc.CloseTicket(context.Background(), h.open("u2").ID, alice, false)
	requireCode(t, err, apperrors.CodeNotAuthorized)
}

func TestCloseTicketTranscriptFailureLeavesTicketUntouched(t *testing.T) {
	h := newHarness(t)
	ticket := h.deliveredTicket("u1", "spotify")
	h.fake.FailHistory = errors.New("gateway timeout")

	_, err := h.svc.CloseTicket(context.Background(), ticket.ID, alice, true)

	requireCode(t, err, apperrors.CodeClosureFailed)
	assert.Equal(t, domain.TicketStateDelivered, h.state(ticket))
	assert.True(t, h.clock.Pending(inactivityKey(ticket.ID)))
	assert.False(t, h.fake.HoldsRole("u1", roleID))
	assert.Empty(t, h.fake.Archived)

	h.fake.FailHistory = nil
	res, err := h.svc.CloseTicket(context.Background(), ticket.ID, alice, true)
	require.NoError(t, err)
	assert.True(t, res.GrantApplied)
}

func TestCloseTicketMissingChannelStillCloses(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	h.fake.FailHistory = platform.ErrNotFound

	res, err := h.svc.CloseTicket(context.Background(), ticket.ID, alice, false)

	require.NoError(t, err)
	assert.Equal(t, 0, res.TranscriptChunks)
	assert.Equal(t, domain.TicketStateClosed, res.Ticket.State)
}

func TestCloseTicketArchiveFailureReportsButCloses(t *testing.T) {
	h := newHarness(t)
	ticket := h.deliveredTicket("u1", "spotify")
	h.fake.FailArchive = platform.ErrForbidden

	res, err := h.svc.CloseTicket(context.Background(), ticket.ID, alice, true)

	requireCode(t, err, apperrors.CodeClosureFailed)
	require.NotNil(t, res)
	assert.True(t, res.GrantApplied)
	assert.Equal(t, domain.TicketStateClosed, h.state(ticket))
	_, err = h.svc.CloseTicket(context.Background(), ticket.ID, alice, true)
	requireCode(t, err, apperrors.CodeAlreadyClosed)
}

func TestCloseTicketDeletesChannelWhenConfigured(t *testing.T) {
	h := newHarness(t, func(d *TicketDependencies) { d.Ticket.DeleteOnClose = true })
	ticket := h.open("u1")

	_, err := h.svc.CloseTicket(context.Background(), ticket.ID, alice, false)

	require.NoError(t, err)
	assert.Equal(t, []string{ticket.ChannelID}, h.fake.Deleted)
	assert.Empty(t, h.fake.Archived)
}

func TestForceCloseNeverGrants(t *testing.T) {
	h := newHarness(t)
	ticket := h.deliveredTicket("u1", "spotify")

	_, err := h.svc.ForceClose(context.Background(), ticket.ChannelID, alice)
	requireCode(t, err, apperrors.CodeNotAuthorized)

	res, err := h.svc.ForceClose(context.Background(), ticket.ChannelID, operator)
	require.NoError(t, err)
	assert.False(t, res.GrantApplied)
	assert.False(t, h.fake.HoldsRole("u1", roleID))
	assert.Equal(t, int64(1), h.metrics.Snapshot().Tickets[observability.TicketForceClosed])
}

func TestClosingTicketUnderReviewWithdrawsPrompt(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	res, err := h.submit(ticket, "RASH TECH spotify", "https://cdn/p.png")
	require.NoError(t, err)

	_, err = h.svc.CloseTicket(context.Background(), ticket.ID, alice, false)
	require.NoError(t, err)
	require.Len(t, h.fake.Edits, 1)
	assert.True(t, h.fake.Edits[0].Message.Buttons[1].Disabled)

	_, err = h.svc.DecideProof(context.Background(), res.ReviewID, true, operator)
	requireCode(t, err, apperrors.CodeAlreadyClosed)
	assert.Empty(t, h.fake.DMsTo("u1"))
}

func TestReviewPromptFailureKeepsTicketOpen(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	h.fake.FailSendTo = map[string]error{verifyChannel: platform.ErrForbidden}

	_, err := h.submit(ticket, "RASH TECH spotify", "https://cdn/p.png")

	requireCode(t, err, apperrors.CodePermissionDenied)
	assert.Equal(t, domain.TicketStateOpen, h.state(ticket))
	assert.True(t, h.clock.Pending(inactivityKey(ticket.ID)))
}

func TestCloseReadsHistoryOutsideTheLoop(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	var seen []domain.TicketState
	h.fake.BeforeHistory = func(channelID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		current, err := h.svc.TicketByChannel(ctx, channelID)
		require.NoError(t, err)
		seen = append(seen, current.State)
	}

	_, err := h.svc.CloseTicket(context.Background(), ticket.ID, alice, false)
	require.NoError(t, err)

	second := h.open("u2")
	h.clock.Advance(10 * time.Minute)
	archived, ok := h.archive.get(second.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TicketStateClosed, archived.State)

	assert.Equal(t, []domain.TicketState{domain.TicketStateOpen, domain.TicketStateOpen}, seen)
}

func TestInactivitySkipsTicketClosedWhileHistoryLoads(t *testing.T) {
	h := newHarness(t)
	ticket := h.open("u1")
	h.fake.BeforeHistory = func(string) {
		h.fake.BeforeHistory = nil
		_, err := h.svc.ForceClose(context.Background(), ticket.ID, operator)
		require.NoError(t, err)
	}

	h.clock.Advance(10 * time.Minute)

	archived, ok := h.archive.get(ticket.ID)
	require.True(t, ok)
	assert.Equal(t, "op", archived.ClosedByID)
	assert.Equal(t, int64(1), h.metrics.Snapshot().Tickets[observability.TicketForceClosed])
	assert.Zero(t, h.metrics.Snapshot().Tickets[observability.TicketAutoClosed])
}

func TestClosedTicketLeavesLiveIndexes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open("u1")
	res, err := h.submit(ticket, "RASH TECH spotify", "https://cdn/p.png")
	require.NoError(t, err)

	_, err = h.svc.CloseTicket(ctx, ticket.ExternalKey, alice, false)
	require.NoError(t, err)

	require.NoError(t, h.loop.Do(ctx, func(context.Context) error {
		assert.Empty(t, h.svc.tickets)
		assert.Empty(t, h.svc.byChannel)
		assert.Empty(t, h.svc.byKey)
		assert.Empty(t, h.svc.byOwner)
		assert.Empty(t, h.svc.reviews)
		assert.Equal(t, 1, h.svc.closed.len())
		return nil
	}))

	assert.Equal(t, domain.TicketStateClosed, h.state(ticket))
	_, err = h.svc.CloseTicket(ctx, ticket.ExternalKey, alice, false)
	requireCode(t, err, apperrors.CodeAlreadyClosed)
	_, err = h.svc.ForceClose(ctx, ticket.ChannelID, operator)
	requireCode(t, err, apperrors.CodeAlreadyClosed)
	_, err = h.svc.DecideProof(ctx, res.ReviewID, true, operator)
	requireCode(t, err, apperrors.CodeAlreadyClosed)
	_, err = h.submit(ticket, "RASH TECH spotify", "https://cdn/p2.png")
	requireCode(t, err, apperrors.CodeAlreadyClosed)

	_, err = h.svc.CloseTicket(ctx, "no-such-ticket", operator, false)
	requireCode(t, err, apperrors.CodeNotFound)
}
