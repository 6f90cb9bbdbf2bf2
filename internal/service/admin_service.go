package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/cooldown"
	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/repository"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

// Status is the owner status panel.
type Status struct {
	Flags           Flags            `json:"flags"`
	Now             time.Time        `json:"now"`
	WindowOpen      bool             `json:"window_open"`
	Window          string           `json:"window"`
	OpenTickets     int              `json:"open_tickets"`
	ActiveCooldowns []cooldown.Entry `json:"active_cooldowns"`
}

// ArchivedTicket is a closed ticket as stored in the archive.
type ArchivedTicket struct {
	Ticket     domain.Ticket            `json:"ticket"`
	Transcript []domain.TranscriptChunk `json:"transcript"`
	History    []domain.TicketHistory   `json:"history"`
}

// Flags returns the current global switches.
func (s *TicketService) Flags(ctx context.Context) (Flags, error) {
	var out Flags
	err := s.loop.Do(ctx, func(context.Context) error {
		out = s.flags
		return nil
	})
	return out, err
}

// ToggleCreation flips the ticket creation switch.
func (s *TicketService) ToggleCreation(ctx context.Context, actor domain.Actor) (Flags, error) {
	return s.updateFlags(ctx, actor, func(f *Flags) { f.CreationEnabled = !f.CreationEnabled })
}

// ToggleBypass flips the operational hours bypass.
func (s *TicketService) ToggleBypass(ctx context.Context, actor domain.Actor) (Flags, error) {
	return s.updateFlags(ctx, actor, func(f *Flags) { f.OperationalHoursBypass = !f.OperationalHoursBypass })
}

func (s *TicketService) updateFlags(ctx context.Context, actor domain.Actor, mutate func(*Flags)) (Flags, error) {
	if !actor.Owner {
		return Flags{}, apperrors.NewNotAuthorized("only the bot owner can change global flags")
	}
	var out Flags
	err := s.loop.Do(ctx, func(context.Context) error {
		mutate(&s.flags)
		out = s.flags
		return nil
	})
	if err == nil {
		s.logger.Info("flags updated",
			zap.String("actor_id", actor.UserID),
			zap.Bool("creation_enabled", out.CreationEnabled),
			zap.Bool("operational_hours_bypass", out.OperationalHoursBypass))
	}
	return out, err
}

// Status reports flags, the window and the live counts.
func (s *TicketService) Status(ctx context.Context, actor domain.Actor) (Status, error) {
	if !actor.Owner {
		return Status{}, apperrors.NewNotAuthorized("only the bot owner can view the status panel")
	}
	var out Status
	err := s.loop.Do(ctx, func(context.Context) error {
		now := s.clock.Now()
		out = Status{
			Flags:       s.flags,
			Now:         now.In(s.window.Location()),
			WindowOpen:  s.window.Allows(now),
			Window:      s.window.Describe(),
			OpenTickets: len(s.openTickets()),
		}
		for _, entry := range s.grants.registry.Entries() {
			if entry.ExpiresAt.After(now) {
				out.ActiveCooldowns = append(out.ActiveCooldowns, entry)
			}
		}
		return nil
	})
	return out, err
}

// ListOpenTickets returns every ticket that is not closed, oldest first.
func (s *TicketService) ListOpenTickets(ctx context.Context, actor domain.Actor) ([]domain.Ticket, error) {
	if !actor.Privileged() {
		return nil, apperrors.NewNotAuthorized("viewing tickets requires the manage channels permission")
	}
	var out []domain.Ticket
	err := s.loop.Do(ctx, func(context.Context) error {
		out = s.openTickets()
		return nil
	})
	return out, err
}

func (s *TicketService) openTickets() []domain.Ticket {
	out := make([]domain.Ticket, 0, len(s.byOwner))
	for _, id := range s.byOwner {
		if t := s.tickets[id]; t != nil && !t.State.IsTerminal() {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// TicketByChannel resolves a ticket from its thread.
func (s *TicketService) TicketByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := s.loop.Do(ctx, func(context.Context) error {
		if id, ok := s.byChannel[channelID]; ok {
			out = cloneTicket(s.tickets[id])
			return nil
		}
		if t, ok := s.closed.lookup(channelID); ok && t.ChannelID == channelID {
			out = cloneTicket(t)
			return nil
		}
		return apperrors.NewNotFound("ticket", map[string]any{"channel_id": channelID})
	})
	return out, err
}

// Rewards lists the catalog.
func (s *TicketService) Rewards() []domain.RewardEntry {
	return s.catalog.All()
}

// UpsertReward adds or replaces a catalog entry.
func (s *TicketService) UpsertReward(ctx context.Context, actor domain.Actor, entry domain.RewardEntry) (domain.RewardEntry, error) {
	if !actor.Operator && !actor.Owner {
		return domain.RewardEntry{}, apperrors.NewNotAuthorized("managing rewards requires the manage server permission")
	}
	entry.Key = domain.NormalizeRewardKey(entry.Key)
	entry.Link = strings.TrimSpace(entry.Link)
	entry.SecondStepLink = strings.TrimSpace(entry.SecondStepLink)
	details := map[string]any{}
	if entry.Key == "" {
		details["key"] = "required"
	}
	if entry.Link == "" {
		details["link"] = "required"
	}
	if len(details) > 0 {
		return domain.RewardEntry{}, apperrors.NewValidationError("invalid reward entry", details)
	}

	err := s.loop.Do(ctx, func(context.Context) error {
		return s.catalog.Set(entry)
	})
	if err != nil {
		return domain.RewardEntry{}, err
	}
	s.logger.Info("reward saved", zap.String("reward_key", entry.Key), zap.Bool("two_stage", entry.TwoStage), zap.String("actor_id", actor.UserID))
	return entry, nil
}

// RemoveReward deletes a catalog entry.
func (s *TicketService) RemoveReward(ctx context.Context, actor domain.Actor, key string) error {
	if !actor.Operator && !actor.Owner {
		return apperrors.NewNotAuthorized("managing rewards requires the manage server permission")
	}
	key = domain.NormalizeRewardKey(key)
	return s.loop.Do(ctx, func(context.Context) error {
		removed, err := s.catalog.Delete(key)
		if err != nil {
			return err
		}
		if !removed {
			return apperrors.NewRewardNotFound(key)
		}
		s.logger.Info("reward removed", zap.String("reward_key", key), zap.String("actor_id", actor.UserID))
		return nil
	})
}

// SetDMPreference records whether the user wants DM copies of notices.
func (s *TicketService) SetDMPreference(ctx context.Context, userID string, enabled bool) error {
	if s.prefs == nil {
		return apperrors.NewInternalError(errors.New("preference store not configured"))
	}
	return s.loop.Do(ctx, func(context.Context) error {
		prefs := s.prefs.Get(userID)
		prefs.DMNotificationsEnabled = enabled
		return s.prefs.Set(userID, prefs)
	})
}

// DeliverReward sends a catalog link into a user's open ticket by operator
// command, bypassing the proof gate. A pending review is consumed so it
// cannot be approved a second time.
func (s *TicketService) DeliverReward(ctx context.Context, actor domain.Actor, userID, key string) (*DeliveryResult, error) {
	if !actor.Operator && !actor.Owner {
		return nil, apperrors.NewNotAuthorized("sending rewards requires the manage server permission")
	}
	var out *DeliveryResult
	err := s.loop.Do(ctx, func(ctx context.Context) error {
		t := s.openTicketFor(userID)
		if t == nil {
			return apperrors.NewNotFound("ticket", map[string]any{"user_id": userID})
		}
		entry, ok := s.catalog.Get(key)
		if !ok {
			return apperrors.NewRewardNotFound(key)
		}
		if t.State == domain.TicketStateDelivered {
			return apperrors.NewInvalidState("a reward was already delivered in this ticket", map[string]any{"state": t.State})
		}

		now := s.clock.Now()
		if review, ok := s.reviews[t.ReviewID]; ok && review.Decide(true, actor.UserID, now) {
			if err := s.platform.EditMessage(ctx, review.PromptChannelID, review.PromptMessageID, decidedPrompt(t, review, actor)); err != nil {
				s.logger.Warn("disable review prompt", zap.String("review_id", review.ID), zap.Error(err))
			}
			t.ReviewID = ""
		}
		s.clock.Cancel(inactivityKey(t.ID))

		result := s.deliver(ctx, t, entry, true)
		out = &result
		return nil
	})
	return out, err
}

// ArchivedTickets queries closed tickets from the archive.
func (s *TicketService) ArchivedTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if s.archive == nil {
		return nil, apperrors.NewSystemClosed("ticket archive is not configured")
	}
	return s.archive.ListWithFilter(ctx, filter)
}

// ArchivedTicket loads one archived ticket with its transcript and history.
func (s *TicketService) ArchivedTicket(ctx context.Context, id string) (*ArchivedTicket, error) {
	if s.archive == nil {
		return nil, apperrors.NewSystemClosed("ticket archive is not configured")
	}
	t, err := s.archive.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, err
	}
	out := &ArchivedTicket{Ticket: *t}
	if out.Transcript, err = s.archive.ListTranscript(ctx, t.ID); err != nil {
		return nil, err
	}
	if s.history != nil {
		if out.History, err = s.history.ListByTicket(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
