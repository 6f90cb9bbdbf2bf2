package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/events"
)

// DeliveryOutcome tells apart the three ways a delivery attempt can end.
type DeliveryOutcome string

const (
	DeliveryDelivered     DeliveryOutcome = "delivered"
	DeliverySuppressed    DeliveryOutcome = "suppressed_by_preference"
	DeliveryChannelFailed DeliveryOutcome = "channel_failed"
)

// DeliveryResult reports one delivery attempt.
type DeliveryResult struct {
	TicketID  string          `json:"ticket_id"`
	UserID    string          `json:"user_id"`
	RewardKey string          `json:"reward_key"`
	Outcome   DeliveryOutcome `json:"outcome"`
	Manual    bool            `json:"manual"`
}

// deliver posts the reward link in the ticket, mirrors it by DM when the
// user allows it, prompts for closure and arms the delivered-ticket timer.
// It runs once per approval; the caller has already left the review state.
func (s *TicketService) deliver(ctx context.Context, t *domain.Ticket, entry domain.RewardEntry, manual bool) DeliveryResult {
	result := DeliveryResult{TicketID: t.ID, UserID: t.OwnerID, RewardKey: entry.Key, Manual: manual}

	if _, err := s.platform.SendMessage(ctx, t.ChannelID, deliveryMessage(t, entry)); err != nil {
		s.logger.Warn("post reward link in ticket", zap.String("ticket_id", t.ID), zap.Error(err))
	}

	if !s.preferences(t.OwnerID).DMNotificationsEnabled {
		result.Outcome = DeliverySuppressed
	} else if err := s.platform.SendDM(ctx, t.OwnerID, deliveryDM(entry, s.discord)); err != nil {
		s.logger.Warn("reward DM failed", zap.String("user_id", t.OwnerID), zap.Error(err))
		result.Outcome = DeliveryChannelFailed
	} else {
		result.Outcome = DeliveryDelivered
	}

	if _, err := s.platform.SendMessage(ctx, t.ChannelID, closePrompt(t)); err != nil {
		s.logger.Warn("post close prompt", zap.String("ticket_id", t.ID), zap.Error(err))
	}

	previous := t.State
	now := s.clock.Now()
	t.State = domain.TicketStateDelivered
	t.RewardKey = entry.Key
	t.DeliveredAt = &now
	t.UpdatedAt = now
	s.armInactivity(t)

	s.saveArchive(ctx, t)
	s.recordStateChange(ctx, t, "", previous, t.State)
	s.recordChange(ctx, t, "", domain.ChangeTypeDelivery, nil, map[string]any{
		"reward_key": entry.Key, "outcome": result.Outcome, "manual": manual,
	})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventRewardDelivered,
		TicketID: t.ID,
		UserID:   t.OwnerID,
		Actor:    events.Actor{UserID: "system", System: true},
		Payload:  events.RewardDeliveredPayload{RewardKey: entry.Key, Outcome: string(result.Outcome), Manual: manual},
	})
	s.logger.Info("reward delivered",
		zap.String("ticket_id", t.ID),
		zap.String("reward_key", entry.Key),
		zap.String("outcome", string(result.Outcome)),
		zap.Bool("manual", manual))
	return result
}

func (s *TicketService) preferences(userID string) domain.UserPreferences {
	if s.prefs == nil {
		return domain.DefaultUserPreferences()
	}
	return s.prefs.Get(userID)
}
