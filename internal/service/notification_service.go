package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/config"
	"github.com/spec-kit/access-ticket-bot/internal/events"
	"github.com/spec-kit/access-ticket-bot/internal/observability"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
)

// NotificationService reacts to domain events: it counts outcomes, writes
// the grant audit line to the log channel and tells users when their
// cooldown is over.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	platform   platform.Platform
	prefs      PreferenceStore
	discord    config.DiscordConfig
	cfg        config.TicketConfig
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Platform    platform.Platform
	Preferences PreferenceStore
	Discord     config.DiscordConfig
	Ticket      config.TicketConfig
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("notifications"),
		metrics:    deps.Metrics,
		platform:   deps.Platform,
		prefs:      deps.Preferences,
		discord:    deps.Discord,
		cfg:        deps.Ticket,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketOpened, n.handleTicketOpened)
	n.dispatcher.Subscribe(events.EventProofDecided, n.handleProofDecided)
	n.dispatcher.Subscribe(events.EventRewardDelivered, n.handleRewardDelivered)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	n.dispatcher.Subscribe(events.EventGrantApplied, n.handleGrantApplied)
	n.dispatcher.Subscribe(events.EventRoleExpired, n.handleRoleExpired)
	n.dispatcher.Subscribe(events.EventCooldownReleased, n.handleCooldownReleased)
}

func (n *NotificationService) handleTicketOpened(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketOpened", zap.String("ticket_id", event.TicketID), zap.String("user_id", event.UserID))
	n.metrics.RecordTicket(observability.TicketOpened)
	return nil
}

func (n *NotificationService) handleProofDecided(ctx context.Context, event events.Event) error {
	n.logger.Info("ProofDecided", zap.String("ticket_id", event.TicketID), zap.String("operator_id", event.Actor.UserID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleRewardDelivered(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.RewardDeliveredPayload)
	n.logger.Info("RewardDelivered",
		zap.String("ticket_id", event.TicketID),
		zap.String("reward_key", payload.RewardKey),
		zap.String("outcome", payload.Outcome))
	n.metrics.RecordDelivery(payload.Outcome)
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketClosedPayload)
	n.logger.Info("TicketClosed",
		zap.String("ticket_id", event.TicketID),
		zap.String("previous_state", string(payload.PreviousState)),
		zap.Bool("grant_applied", payload.GrantApplied),
		zap.Duration("duration", payload.Duration))
	switch {
	case payload.Forced:
		n.metrics.RecordTicket(observability.TicketForceClosed)
	case event.Actor.System:
		n.metrics.RecordTicket(observability.TicketAutoClosed)
	default:
		n.metrics.RecordTicket(observability.TicketClosed)
	}
	return nil
}

func (n *NotificationService) handleGrantApplied(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.GrantAppliedPayload)
	n.metrics.RecordTicket(observability.TicketGrantApplied)
	if n.discord.TicketLogChannelID == "" || n.platform == nil {
		return nil
	}
	msg := GrantAuditMessage(event.UserID, payload.RoleHeld, payload.CategoryLocked, payload.CooldownExpiresAt)
	if _, err := n.platform.SendMessage(ctx, n.discord.TicketLogChannelID, msg); err != nil {
		n.logger.Warn("post grant audit", zap.String("user_id", event.UserID), zap.Error(err))
	}
	return nil
}

func (n *NotificationService) handleRoleExpired(ctx context.Context, event events.Event) error {
	n.logger.Info("RoleExpired", zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleCooldownReleased(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CooldownReleasedPayload)
	n.logger.Info("CooldownReleased", zap.String("user_id", event.UserID), zap.String("reason", string(payload.Reason)))
	if payload.Reason != events.ReleaseExpired || n.platform == nil {
		return nil
	}
	if n.prefs != nil && !n.prefs.Get(event.UserID).DMNotificationsEnabled {
		return nil
	}
	if err := n.platform.SendDM(ctx, event.UserID, CooldownExpiredMessage(n.cfg.CooldownDuration())); err != nil {
		n.logger.Warn("cooldown expiry DM failed", zap.String("user_id", event.UserID), zap.Error(err))
	}
	return nil
}
