package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/config"
	"github.com/spec-kit/access-ticket-bot/internal/cooldown"
	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/events"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
	"github.com/spec-kit/access-ticket-bot/internal/repository"
	"github.com/spec-kit/access-ticket-bot/internal/scheduler"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

// GrantService applies and unwinds the role + category lock + cooldown bundle
// given to a user whose delivered ticket closes.
type GrantService struct {
	loop       Executor
	clock      scheduler.Scheduler
	platform   platform.Platform
	registry   *cooldown.Registry
	store      repository.CooldownRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	discord    config.DiscordConfig
	cfg        config.TicketConfig

	grants map[string]*domain.AccessGrant
}

type grantDependencies struct {
	loop       Executor
	clock      scheduler.Scheduler
	platform   platform.Platform
	registry   *cooldown.Registry
	store      repository.CooldownRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	discord    config.DiscordConfig
	cfg        config.TicketConfig
}

func newGrantService(deps grantDependencies) *GrantService {
	return &GrantService{
		loop:       deps.loop,
		clock:      deps.clock,
		platform:   deps.platform,
		registry:   deps.registry,
		store:      deps.store,
		dispatcher: deps.dispatcher,
		logger:     deps.logger,
		discord:    deps.discord,
		cfg:        deps.cfg,
		grants:     make(map[string]*domain.AccessGrant),
	}
}

// Registry exposes the cooldown registry for read-only checks.
func (g *GrantService) Registry() *cooldown.Registry {
	return g.registry
}

// grantAccess runs on the loop. Each step is best effort: a failed role or
// permission change is logged and the remaining steps still run.
func (g *GrantService) grantAccess(ctx context.Context, userID, ticketID string) *domain.AccessGrant {
	now := g.clock.Now()
	grant := &domain.AccessGrant{
		UserID:            userID,
		TicketID:          ticketID,
		GrantedAt:         now,
		RoleExpiresAt:     now.Add(g.cfg.TempRoleDuration()),
		CooldownExpiresAt: now.Add(g.cfg.CooldownDuration()),
	}

	g.registry.Set(userID, grant.CooldownExpiresAt)
	g.persist(ctx, cooldown.Entry{UserID: userID, ExpiresAt: grant.CooldownExpiresAt}, now)

	if g.discord.TempRoleID != "" {
		if err := g.platform.AddRole(ctx, userID, g.discord.TempRoleID); err != nil {
			g.logger.Warn("add temporary role", zap.String("user_id", userID), zap.Error(err))
		} else {
			grant.RoleHeld = true
		}
	}
	if g.discord.ActivationCategoryID != "" {
		if err := g.platform.SetCategoryPermission(ctx, g.discord.ActivationCategoryID, userID, false); err != nil {
			g.logger.Warn("lock activation category", zap.String("user_id", userID), zap.Error(err))
		} else {
			grant.CategoryLocked = true
		}
	}

	g.scheduleRelease(userID, g.cfg.CooldownDuration())
	if grant.RoleHeld {
		g.scheduleRoleRemoval(userID, g.cfg.TempRoleDuration())
	}
	g.grants[userID] = grant

	g.publish(ctx, events.Event{
		Type:     events.EventGrantApplied,
		TicketID: ticketID,
		UserID:   userID,
		Actor:    events.Actor{UserID: "system", System: true},
		Payload: events.GrantAppliedPayload{
			RoleHeld:          grant.RoleHeld,
			CategoryLocked:    grant.CategoryLocked,
			RoleExpiresAt:     grant.RoleExpiresAt,
			CooldownExpiresAt: grant.CooldownExpiresAt,
		},
	})
	g.logger.Info("access granted",
		zap.String("user_id", userID),
		zap.String("ticket_id", ticketID),
		zap.Bool("role_held", grant.RoleHeld),
		zap.Bool("category_locked", grant.CategoryLocked),
		zap.Time("cooldown_expires_at", grant.CooldownExpiresAt))
	cp := *grant
	return &cp
}

// ReleaseCooldownLock ends a user's cooldown if it has expired.
func (g *GrantService) ReleaseCooldownLock(ctx context.Context, userID string) error {
	return g.loop.Do(ctx, func(ctx context.Context) error {
		return g.releaseCooldownLock(ctx, userID)
	})
}

func (g *GrantService) releaseCooldownLock(ctx context.Context, userID string) error {
	exp, ok := g.registry.Expiry(userID)
	if !ok {
		return nil
	}
	now := g.clock.Now()
	if exp.After(now) {
		g.scheduleRelease(userID, exp.Sub(now))
		return nil
	}

	g.registry.Delete(userID)
	g.forget(ctx, userID)
	g.restoreCategory(ctx, userID)
	if grant, ok := g.grants[userID]; ok {
		grant.CategoryLocked = false
		if !grant.Active() {
			delete(g.grants, userID)
		}
	}

	g.publish(ctx, events.Event{
		Type:    events.EventCooldownReleased,
		UserID:  userID,
		Actor:   events.Actor{UserID: "system", System: true},
		Payload: events.CooldownReleasedPayload{ExpiresAt: exp, Reason: events.ReleaseExpired},
	})
	g.logger.Info("cooldown released", zap.String("user_id", userID), zap.Time("expired_at", exp))
	return nil
}

// RemoveTemporaryRole takes the temporary role away if the user still has it.
func (g *GrantService) RemoveTemporaryRole(ctx context.Context, userID string) error {
	return g.loop.Do(ctx, func(ctx context.Context) error {
		return g.removeTemporaryRole(ctx, userID)
	})
}

func (g *GrantService) removeTemporaryRole(ctx context.Context, userID string) error {
	roleID := g.discord.TempRoleID
	if roleID == "" {
		return nil
	}
	held, err := g.platform.HasRole(ctx, userID, roleID)
	if err != nil {
		g.logger.Warn("check temporary role", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	if held {
		if err := g.platform.RemoveRole(ctx, userID, roleID); err != nil {
			g.logger.Warn("remove temporary role", zap.String("user_id", userID), zap.Error(err))
			return err
		}
	}
	if grant, ok := g.grants[userID]; ok {
		grant.RoleHeld = false
		if !grant.Active() {
			delete(g.grants, userID)
		}
	}

	g.publish(ctx, events.Event{
		Type:    events.EventRoleExpired,
		UserID:  userID,
		Actor:   events.Actor{UserID: "system", System: true},
		Payload: events.RoleExpiredPayload{RoleID: roleID, Removed: held},
	})
	g.logger.Info("temporary role expired", zap.String("user_id", userID), zap.Bool("removed", held))
	return nil
}

// ClearCooldown is the operator override: it lifts the cooldown, restores
// category access and removes the role without waiting for the timers.
func (g *GrantService) ClearCooldown(ctx context.Context, userID string, actor domain.Actor) error {
	if !actor.Operator && !actor.Owner {
		return apperrors.NewNotAuthorized("only operators can clear cooldowns")
	}
	return g.loop.Do(ctx, func(ctx context.Context) error {
		exp, hadEntry := g.registry.Expiry(userID)
		grant, hadGrant := g.grants[userID]
		if !hadEntry && !hadGrant {
			return apperrors.NewNotFound("cooldown", map[string]any{"user_id": userID})
		}

		g.clock.Cancel(cooldownKey(userID))
		g.clock.Cancel(roleKey(userID))
		g.registry.Delete(userID)
		g.forget(ctx, userID)
		g.restoreCategory(ctx, userID)
		if g.discord.TempRoleID != "" && (!hadGrant || grant.RoleHeld) {
			if err := g.platform.RemoveRole(ctx, userID, g.discord.TempRoleID); err != nil {
				g.logger.Warn("remove temporary role", zap.String("user_id", userID), zap.Error(err))
			}
		}
		delete(g.grants, userID)

		g.publish(ctx, events.Event{
			Type:    events.EventCooldownReleased,
			UserID:  userID,
			Actor:   events.ActorFrom(actor),
			Payload: events.CooldownReleasedPayload{ExpiresAt: exp, Reason: events.ReleaseOperator},
		})
		g.logger.Info("cooldown cleared", zap.String("user_id", userID), zap.String("operator_id", actor.UserID))
		return nil
	})
}

// RestoreCooldowns reloads persisted cooldowns after a restart and re-arms
// their timers. Entries that lapsed while the bot was down are released now.
func (g *GrantService) RestoreCooldowns(ctx context.Context) (int, error) {
	if g.store == nil {
		return 0, nil
	}
	entries, err := g.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	err = g.loop.Do(ctx, func(ctx context.Context) error {
		now := g.clock.Now()
		for _, entry := range entries {
			g.registry.Set(entry.UserID, entry.ExpiresAt)
			if !entry.ExpiresAt.After(now) {
				if err := g.removeTemporaryRole(ctx, entry.UserID); err != nil {
					g.logger.Warn("remove lapsed temporary role", zap.String("user_id", entry.UserID), zap.Error(err))
				}
				if err := g.releaseCooldownLock(ctx, entry.UserID); err != nil {
					g.logger.Warn("release lapsed cooldown", zap.String("user_id", entry.UserID), zap.Error(err))
				}
				continue
			}

			roleExpires := entry.ExpiresAt.Add(-g.cfg.CooldownDuration()).Add(g.cfg.TempRoleDuration())
			grant := &domain.AccessGrant{
				UserID:            entry.UserID,
				GrantedAt:         entry.ExpiresAt.Add(-g.cfg.CooldownDuration()),
				CategoryLocked:    g.discord.ActivationCategoryID != "",
				RoleExpiresAt:     roleExpires,
				CooldownExpiresAt: entry.ExpiresAt,
			}
			g.grants[entry.UserID] = grant
			g.scheduleRelease(entry.UserID, entry.ExpiresAt.Sub(now))

			if g.discord.TempRoleID == "" {
				continue
			}
			if roleExpires.After(now) {
				grant.RoleHeld = true
				g.scheduleRoleRemoval(entry.UserID, roleExpires.Sub(now))
			} else if err := g.removeTemporaryRole(ctx, entry.UserID); err != nil {
				g.logger.Warn("remove lapsed temporary role", zap.String("user_id", entry.UserID), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	g.logger.Info("cooldowns restored", zap.Int("count", len(entries)))
	return len(entries), nil
}

// ActiveGrants lists grants that still hold a role or a category lock.
func (g *GrantService) ActiveGrants(ctx context.Context) ([]domain.AccessGrant, error) {
	var out []domain.AccessGrant
	err := g.loop.Do(ctx, func(ctx context.Context) error {
		for _, grant := range g.grants {
			out = append(out, *grant)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CooldownExpiresAt.Before(out[j].CooldownExpiresAt) })
	return out, err
}

func (g *GrantService) scheduleRelease(userID string, delay time.Duration) {
	g.clock.Schedule(cooldownKey(userID), delay, func() {
		if err := g.ReleaseCooldownLock(context.Background(), userID); err != nil {
			g.logger.Warn("cooldown release timer", zap.String("user_id", userID), zap.Error(err))
		}
	})
}

func (g *GrantService) scheduleRoleRemoval(userID string, delay time.Duration) {
	g.clock.Schedule(roleKey(userID), delay, func() {
		if err := g.RemoveTemporaryRole(context.Background(), userID); err != nil {
			g.logger.Warn("role expiry timer", zap.String("user_id", userID), zap.Error(err))
		}
	})
}

func (g *GrantService) restoreCategory(ctx context.Context, userID string) {
	if g.discord.ActivationCategoryID == "" {
		return
	}
	if err := g.platform.SetCategoryPermission(ctx, g.discord.ActivationCategoryID, userID, true); err != nil {
		g.logger.Warn("restore activation category", zap.String("user_id", userID), zap.Error(err))
	}
}

func (g *GrantService) persist(ctx context.Context, entry cooldown.Entry, now time.Time) {
	if g.store == nil {
		return
	}
	if err := g.store.Save(ctx, entry, now); err != nil {
		g.logger.Warn("persist cooldown", zap.String("user_id", entry.UserID), zap.Error(err))
	}
}

func (g *GrantService) forget(ctx context.Context, userID string) {
	if g.store == nil {
		return
	}
	if err := g.store.Delete(ctx, userID); err != nil {
		g.logger.Warn("delete persisted cooldown", zap.String("user_id", userID), zap.Error(err))
	}
}

func (g *GrantService) publish(ctx context.Context, event events.Event) {
	if g.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = g.clock.Now()
	}
	if err := g.dispatcher.Publish(ctx, event); err != nil {
		g.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func cooldownKey(userID string) string {
	return "cooldown:" + userID
}

func roleKey(userID string) string {
	return "role:" + userID
}
