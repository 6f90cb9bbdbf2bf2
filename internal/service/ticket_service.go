package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/config"
	"github.com/spec-kit/access-ticket-bot/internal/cooldown"
	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/events"
	"github.com/spec-kit/access-ticket-bot/internal/platform"
	"github.com/spec-kit/access-ticket-bot/internal/proof"
	"github.com/spec-kit/access-ticket-bot/internal/repository"
	"github.com/spec-kit/access-ticket-bot/internal/scheduler"
	"github.com/spec-kit/access-ticket-bot/internal/transcript"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

var (
	// ErrNotTicketChannel is returned for messages outside any ticket.
	ErrNotTicketChannel = errors.New("channel is not a ticket")
	// ErrNoRewardMatched marks a ticket message that is ordinary chat rather
	// than a proof submission.
	ErrNoRewardMatched = errors.New("no reward key in message")
	// ErrNotOwner is returned for messages from someone other than the owner.
	ErrNotOwner = errors.New("message author does not own the ticket")
)

// TicketService is the ticket state machine. All state lives on the executor
// goroutine; every exported method hops onto it.
type TicketService struct {
	loop        Executor
	clock       scheduler.Scheduler
	platform    platform.Platform
	catalog     RewardCatalog
	prefs       PreferenceStore
	grants      *GrantService
	gate        proof.Gate
	transcripts transcript.Builder
	archive     repository.TicketRepository
	history     repository.TicketHistoryRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	discord     config.DiscordConfig
	cfg         config.TicketConfig
	window      config.WindowConfig

	flags     Flags
	tickets   map[string]*domain.Ticket
	byChannel map[string]string
	byKey     map[string]string
	byOwner   map[string]string
	reviews   map[string]*domain.ProofReview
	closed    *closedTickets
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Loop         Executor
	Clock        scheduler.Scheduler
	Platform     platform.Platform
	Catalog      RewardCatalog
	Preferences  PreferenceStore
	Cooldowns    *cooldown.Registry
	CooldownRepo repository.CooldownRepository
	TicketRepo   repository.TicketRepository
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Discord      config.DiscordConfig
	Ticket       config.TicketConfig
	Window       config.WindowConfig
}

// OpenTicketInput describes who is opening a ticket and from where.
type OpenTicketInput struct {
	UserID          string
	UserName        string
	OriginChannelID string
}

// SubmitProofInput is a message posted in a ticket channel.
type SubmitProofInput struct {
	ChannelID   string
	UserID      string
	Text        string
	Attachments []string
}

// ProofResult reports what an accepted proof led to.
type ProofResult struct {
	Ticket   domain.Ticket
	Stage    domain.ProofStage
	ReviewID string
	Delivery *DeliveryResult
}

// CloseResult reports a completed closure.
type CloseResult struct {
	Ticket           domain.Ticket
	GrantApplied     bool
	Grant            *domain.AccessGrant
	TranscriptChunks int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := deps.Cooldowns
	if registry == nil {
		registry = cooldown.NewRegistry()
	}
	s := &TicketService{
		loop:        deps.Loop,
		clock:       deps.Clock,
		platform:    deps.Platform,
		catalog:     deps.Catalog,
		prefs:       deps.Preferences,
		gate:        proof.NewGate(deps.Ticket.FirstStagePhrase),
		transcripts: transcript.NewBuilder(deps.Ticket.TranscriptChunkSize, time.UTC),
		archive:     deps.TicketRepo,
		history:     deps.HistoryRepo,
		dispatcher:  deps.Dispatcher,
		logger:      logger.Named("tickets"),
		discord:     deps.Discord,
		cfg:         deps.Ticket,
		window:      deps.Window,
		flags: Flags{
			CreationEnabled:        deps.Ticket.CreationEnabled,
			OperationalHoursBypass: deps.Ticket.OperationalHoursBypass,
		},
		tickets:   make(map[string]*domain.Ticket),
		byChannel: make(map[string]string),
		byKey:     make(map[string]string),
		byOwner:   make(map[string]string),
		reviews:   make(map[string]*domain.ProofReview),
		closed:    newClosedTickets(closedTicketMemory),
	}
	s.grants = newGrantService(grantDependencies{
		loop:       deps.Loop,
		clock:      deps.Clock,
		platform:   deps.Platform,
		registry:   registry,
		store:      deps.CooldownRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("grants"),
		discord:    deps.Discord,
		cfg:        deps.Ticket,
	})
	return s
}

// Grants exposes the access grant workflow.
func (s *TicketService) Grants() *GrantService {
	return s.grants
}

// OpenTicket creates a ticket thread for the user after checking the global
// flags, the operational window, the cooldown and the one-ticket rule.
func (s *TicketService) OpenTicket(ctx context.Context, input OpenTicketInput) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := s.loop.Do(ctx, func(ctx context.Context) error {
		t, err := s.openTicket(ctx, input)
		if err != nil {
			return err
		}
		out = cloneTicket(t)
		return nil
	})
	return out, err
}

func (s *TicketService) openTicket(ctx context.Context, input OpenTicketInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.NewValidationError("user id is required", nil)
	}
	now := s.clock.Now()

	if !s.flags.CreationEnabled {
		return nil, apperrors.NewSystemClosed("ticket creation is currently disabled")
	}
	if !s.flags.OperationalHoursBypass && !s.window.Allows(now) {
		return nil, apperrors.NewSystemClosed("tickets can only be opened between " + s.window.Describe())
	}
	if remaining, blocked := s.grants.registry.Remaining(input.UserID, now); blocked {
		return nil, apperrors.NewCooldownActive(remaining, now.Add(remaining))
	}
	if existing := s.openTicketFor(input.UserID); existing != nil {
		return nil, apperrors.NewDuplicateTicket(existing.ChannelID)
	}

	parent := input.OriginChannelID
	if parent == "" {
		parent = s.discord.TicketPanelChannelID
	}
	name := s.cfg.TicketNamePrefix + input.UserID
	channelID, err := s.platform.CreateThread(ctx, parent, name)
	if err != nil {
		s.logger.Error("create ticket thread", zap.String("user_id", input.UserID), zap.String("parent", parent), zap.Error(err))
		return nil, apperrors.NewPermissionDenied("unable to create a ticket thread in this channel", err)
	}

	t := &domain.Ticket{
		ID:              uuid.NewString(),
		ExternalKey:     generateTicketKey(),
		OwnerID:         input.UserID,
		OwnerName:       input.UserName,
		ChannelID:       channelID,
		ChannelName:     name,
		OriginChannelID: parent,
		State:           domain.TicketStateOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.tickets[t.ID] = t
	s.byChannel[channelID] = t.ID
	s.byKey[t.ExternalKey] = t.ID
	s.byOwner[t.OwnerID] = t.ID

	if _, err := s.platform.SendMessage(ctx, channelID, welcomeMessage(t, s.catalog.All(), s.discord)); err != nil {
		s.logger.Warn("send welcome message", zap.String("ticket_id", t.ID), zap.Error(err))
	}
	s.armInactivity(t)
	s.saveArchive(ctx, t)
	s.recordStateChange(ctx, t, input.UserID, "", t.State)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketOpened,
		TicketID: t.ID,
		UserID:   t.OwnerID,
		Actor:    events.Actor{UserID: input.UserID},
		Payload: events.TicketOpenedPayload{
			ChannelID:       channelID,
			ChannelName:     name,
			OriginChannelID: parent,
		},
	})
	s.logger.Info("ticket opened", zap.String("ticket_id", t.ID), zap.String("user_id", t.OwnerID), zap.String("channel_id", channelID))
	return t, nil
}

// SelectReward records the reward chosen from the ticket's dropdown and
// posts the matching instructions.
func (s *TicketService) SelectReward(ctx context.Context, ticketID string, actor domain.Actor, key string) (domain.RewardEntry, error) {
	var entry domain.RewardEntry
	err := s.loop.Do(ctx, func(ctx context.Context) error {
		t, err := s.liveTicket(ticketID)
		if err != nil {
			return err
		}
		if actor.UserID != t.OwnerID && !actor.Privileged() {
			return apperrors.NewNotAuthorized("only the ticket owner can choose a reward")
		}
		if t.State != domain.TicketStateOpen {
			return apperrors.NewInvalidState("a reward can only be chosen before proof is submitted",
				map[string]any{"state": t.State})
		}
		found, ok := s.catalog.Get(key)
		if !ok {
			return apperrors.NewRewardNotFound(key)
		}
		entry = found

		t.RewardKey = found.Key
		t.UpdatedAt = s.clock.Now()
		if _, err := s.platform.SendMessage(ctx, t.ChannelID, instructionsMessage(t, found, s.gate.FirstStagePhrase(), s.discord)); err != nil {
			s.logger.Warn("send reward instructions", zap.String("ticket_id", t.ID), zap.Error(err))
		}
		s.recordChange(ctx, t, actor.UserID, domain.ChangeTypeReward, nil, map[string]any{"reward_key": found.Key})
		s.publishEvent(ctx, events.Event{
			Type:     events.EventRewardSelected,
			TicketID: t.ID,
			UserID:   t.OwnerID,
			Actor:    events.ActorFrom(actor),
			Payload:  events.RewardSelectedPayload{RewardKey: found.Key, TwoStage: found.TwoStage},
		})
		return nil
	})
	return entry, err
}

// SubmitProof runs a ticket-channel message through the proof gate.
func (s *TicketService) SubmitProof(ctx context.Context, input SubmitProofInput) (*ProofResult, error) {
	var out *ProofResult
	err := s.loop.Do(ctx, func(ctx context.Context) error {
		res, err := s.submitProof(ctx, input)
		out = res
		return err
	})
	return out, err
}

func (s *TicketService) submitProof(ctx context.Context, input SubmitProofInput) (*ProofResult, error) {
	id, ok := s.byChannel[input.ChannelID]
	if !ok {
		if closed, ok := s.closed.lookup(input.ChannelID); ok {
			return nil, apperrors.NewAlreadyClosed(closed.ID)
		}
		return nil, ErrNotTicketChannel
	}
	t := s.tickets[id]
	if t.State.IsTerminal() {
		return nil, apperrors.NewAlreadyClosed(t.ID)
	}
	if input.UserID != t.OwnerID {
		return nil, ErrNotOwner
	}

	entry, err := s.resolveReward(t, input)
	if err != nil {
		return nil, err
	}
	if !t.State.AcceptsProof() {
		if len(input.Attachments) == 0 {
			return nil, ErrNoRewardMatched
		}
		return nil, apperrors.NewInvalidState(proofStateMessage(t.State), map[string]any{"state": t.State})
	}

	verdict := s.gate.Verify(proof.Submission{
		Text:          input.Text,
		HasAttachment: len(input.Attachments) > 0,
		RewardKey:     entry.Key,
		TwoStage:      entry.TwoStage,
		State:         t.State,
	})
	switch verdict.Outcome {
	case proof.OutcomeRejectedAttachment:
		return nil, apperrors.NewAttachmentMissing()
	case proof.OutcomeRejectedKeyword:
		return nil, apperrors.NewKeywordMissing(verdict.Required)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventProofSubmitted,
		TicketID: t.ID,
		UserID:   t.OwnerID,
		Actor:    events.Actor{UserID: input.UserID},
		Payload:  events.ProofSubmittedPayload{RewardKey: entry.Key, Stage: verdict.Stage},
	})

	if verdict.Stage == domain.ProofStageSecond {
		s.recordChange(ctx, t, input.UserID, domain.ChangeTypeProof, nil, map[string]any{"stage": verdict.Stage.String()})
		if s.discord.VerificationChannelID != "" {
			if _, err := s.platform.SendMessage(ctx, s.discord.VerificationChannelID, secondStageNotice(t, entry)); err != nil {
				s.logger.Warn("post final proof notice", zap.String("ticket_id", t.ID), zap.Error(err))
			}
		}
		delivery := s.deliver(ctx, t, entry, false)
		return &ProofResult{Ticket: *cloneTicket(t), Stage: verdict.Stage, Delivery: &delivery}, nil
	}

	review, err := s.queueReview(ctx, t, entry, input)
	if err != nil {
		return nil, err
	}
	return &ProofResult{Ticket: *cloneTicket(t), Stage: verdict.Stage, ReviewID: review.ID}, nil
}

// resolveReward picks the reward a submission is for: the ticket's fixed key
// during the second stage, otherwise a key named in the text, otherwise the
// key chosen from the dropdown. The dropdown key only applies to messages
// that look like proof (an attachment or the first-stage phrase), so plain
// chat in the ticket is not answered.
func (s *TicketService) resolveReward(t *domain.Ticket, input SubmitProofInput) (domain.RewardEntry, error) {
	key := ""
	if t.State == domain.TicketStateAwaitingSecondStepProof {
		key = t.RewardKey
	} else if matched, ok := proof.MatchReward(input.Text, s.catalog.All()); ok {
		key = matched.Key
	} else if len(input.Attachments) > 0 || strings.Contains(strings.ToUpper(input.Text), s.gate.FirstStagePhrase()) {
		key = t.RewardKey
	}
	if key == "" {
		return domain.RewardEntry{}, ErrNoRewardMatched
	}
	entry, ok := s.catalog.Get(key)
	if !ok {
		return domain.RewardEntry{}, apperrors.NewRewardNotFound(key)
	}
	return entry, nil
}

func (s *TicketService) queueReview(ctx context.Context, t *domain.Ticket, entry domain.RewardEntry, input SubmitProofInput) (*domain.ProofReview, error) {
	now := s.clock.Now()
	review := &domain.ProofReview{
		ID:              uuid.NewString(),
		TicketID:        t.ID,
		UserID:          t.OwnerID,
		RewardKey:       entry.Key,
		Stage:           domain.ProofStageFirst,
		SubmittedText:   input.Text,
		AttachmentURL:   input.Attachments[0],
		SubmittedAt:     now,
		Decision:        domain.ProofDecisionPending,
		PromptChannelID: s.discord.VerificationChannelID,
	}

	msgID, err := s.platform.SendMessage(ctx, review.PromptChannelID, reviewPrompt(t, review, entry))
	if err != nil {
		s.logger.Error("post proof for review", zap.String("ticket_id", t.ID), zap.Error(err))
		return nil, apperrors.NewPermissionDenied("unable to forward the proof to the verification team", err)
	}
	review.PromptMessageID = msgID
	s.reviews[review.ID] = review

	previous := t.State
	s.clock.Cancel(inactivityKey(t.ID))
	t.State = domain.TicketStateAwaitingProofReview
	t.RewardKey = entry.Key
	t.ReviewID = review.ID
	t.UpdatedAt = now

	if _, err := s.platform.SendMessage(ctx, t.ChannelID, proofReceivedMessage(entry)); err != nil {
		s.logger.Warn("acknowledge proof", zap.String("ticket_id", t.ID), zap.Error(err))
	}
	s.recordStateChange(ctx, t, input.UserID, previous, t.State)
	s.recordChange(ctx, t, input.UserID, domain.ChangeTypeProof, nil, map[string]any{
		"review_id": review.ID, "stage": review.Stage.String(), "reward_key": entry.Key,
	})
	s.logger.Info("proof queued for review", zap.String("ticket_id", t.ID), zap.String("review_id", review.ID), zap.String("reward_key", entry.Key))
	return review, nil
}

// DecideProof applies an operator's verdict. Only the first decision on a
// review takes effect.
func (s *TicketService) DecideProof(ctx context.Context, reviewID string, approve bool, actor domain.Actor) (*domain.ProofReview, error) {
	var out *domain.ProofReview
	err := s.loop.Do(ctx, func(ctx context.Context) error {
		review, err := s.decideProof(ctx, reviewID, approve, actor)
		if review != nil {
			cp := *review
			out = &cp
		}
		return err
	})
	return out, err
}

func (s *TicketService) decideProof(ctx context.Context, reviewID string, approve bool, actor domain.Actor) (*domain.ProofReview, error) {
	if !actor.Operator && !actor.Owner {
		return nil, apperrors.NewNotAuthorized("only operators can decide proofs")
	}
	review, ok := s.reviews[reviewID]
	if !ok {
		if closed, ok := s.closed.lookup(reviewID); ok {
			return nil, apperrors.NewAlreadyClosed(closed.ID)
		}
		return nil, apperrors.NewNotFound("proof review", map[string]any{"review_id": reviewID})
	}
	if review.Decided() {
		return review, apperrors.NewAlreadyDecided(review.ID)
	}
	t, ok := s.tickets[review.TicketID]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": review.TicketID})
	}
	if t.State.IsTerminal() {
		return review, apperrors.NewAlreadyClosed(t.ID)
	}
	if t.State != domain.TicketStateAwaitingProofReview || t.ReviewID != review.ID {
		return review, apperrors.NewInvalidState("ticket is not awaiting this review", map[string]any{"state": t.State})
	}
	entry, ok := s.catalog.Get(review.RewardKey)
	if approve && !ok {
		return review, apperrors.NewRewardNotFound(review.RewardKey)
	}

	now := s.clock.Now()
	review.Decide(approve, actor.UserID, now)
	t.ReviewID = ""
	t.UpdatedAt = now

	if err := s.platform.EditMessage(ctx, review.PromptChannelID, review.PromptMessageID, decidedPrompt(t, review, actor)); err != nil {
		s.logger.Warn("disable review prompt", zap.String("review_id", review.ID), zap.Error(err))
	}
	s.recordChange(ctx, t, actor.UserID, domain.ChangeTypeDecision, nil, map[string]any{
		"review_id": review.ID, "decision": review.Decision,
	})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventProofDecided,
		TicketID: t.ID,
		UserID:   t.OwnerID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.ProofDecidedPayload{ReviewID: review.ID, RewardKey: review.RewardKey, Approved: approve},
	})

	switch {
	case !approve:
		s.transition(ctx, t, actor.UserID, domain.TicketStateOpen)
		s.armInactivity(t)
		if _, err := s.platform.SendMessage(ctx, t.ChannelID, deniedMessage(t, s.gate.FirstStagePhrase())); err != nil {
			s.logger.Warn("send denial", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	case entry.TwoStage:
		s.transition(ctx, t, actor.UserID, domain.TicketStateAwaitingSecondStepProof)
		if _, err := s.platform.SendMessage(ctx, t.ChannelID, secondStageMessage(t, entry)); err != nil {
			s.logger.Warn("send second stage instructions", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	default:
		s.deliver(ctx, t, entry, false)
	}
	s.logger.Info("proof decided", zap.String("review_id", review.ID), zap.Bool("approved", approve), zap.String("operator_id", actor.UserID))
	return review, nil
}

// CloseTicket closes a ticket on behalf of its owner or a privileged actor.
// applyGrant only takes effect for a ticket whose reward was delivered.
func (s *TicketService) CloseTicket(ctx context.Context, ticketID string, actor domain.Actor, applyGrant bool) (*CloseResult, error) {
	return s.closeByRef(ctx, ticketID, actor, applyGrant, false, func(t *domain.Ticket) error {
		if actor.UserID != t.OwnerID && !actor.Privileged() {
			return apperrors.NewNotAuthorized("only the ticket owner or an operator can close this ticket")
		}
		return nil
	})
}

// ForceClose is the operator close; it never applies a grant.
func (s *TicketService) ForceClose(ctx context.Context, ticketID string, actor domain.Actor) (*CloseResult, error) {
	if !actor.Privileged() {
		return nil, apperrors.NewNotAuthorized("force close requires the manage channels permission")
	}
	return s.closeByRef(ctx, ticketID, actor, false, true, func(*domain.Ticket) error { return nil })
}

// closeByRef takes three hops: resolve and authorize on the loop, read the
// channel history off the loop, then close on the loop. A ticket closed in
// between is reported as already closed.
func (s *TicketService) closeByRef(ctx context.Context, ref string, actor domain.Actor, applyGrant, forced bool, authorize func(*domain.Ticket) error) (*CloseResult, error) {
	var id, channelID string
	err := s.loop.Do(ctx, func(context.Context) error {
		t, err := s.ticketByIDOrChannel(ref)
		if err != nil {
			return err
		}
		if err := authorize(t); err != nil {
			return err
		}
		if t.State.IsTerminal() {
			return apperrors.NewAlreadyClosed(t.ID)
		}
		id, channelID = t.ID, t.ChannelID
		return nil
	})
	if err != nil {
		return nil, err
	}

	history := s.prefetchHistory(ctx, channelID)

	var out *CloseResult
	err = s.loop.Do(ctx, func(ctx context.Context) error {
		t, err := s.liveTicket(id)
		if err != nil {
			return err
		}
		var closeErr error
		out, closeErr = s.closeTicket(ctx, t, actor, applyGrant, forced, history)
		return closeErr
	})
	return out, err
}

// prefetchHistory reads a channel's history and replays it to the
// transcript builder later.
func (s *TicketService) prefetchHistory(ctx context.Context, channelID string) transcript.HistoryFunc {
	messages, err := s.platform.FetchHistory(ctx, channelID)
	return func(context.Context) ([]domain.TicketMessage, error) {
		return messages, err
	}
}

// closeTicket captures the transcript, logs it, applies the grant when due,
// marks the ticket closed and finally archives the thread. A transcript
// failure aborts with the ticket untouched; an archival failure is reported
// after the ticket is already closed.
func (s *TicketService) closeTicket(ctx context.Context, t *domain.Ticket, actor domain.Actor, applyGrant, forced bool, history transcript.HistoryFunc) (*CloseResult, error) {
	if t.State.IsTerminal() {
		return nil, apperrors.NewAlreadyClosed(t.ID)
	}
	grant := applyGrant && t.State == domain.TicketStateDelivered
	if applyGrant && !grant {
		s.logger.Warn("grant requested for undelivered ticket; closing without grant",
			zap.String("ticket_id", t.ID), zap.String("state", string(t.State)))
	}

	chunks, err := transcript.Collect(s.transcripts.Build(ctx, history))
	if err != nil {
		if !errors.Is(err, platform.ErrNotFound) {
			s.logger.Error("build transcript", zap.String("ticket_id", t.ID), zap.Error(err))
			return nil, apperrors.NewClosureFailed(err)
		}
		s.logger.Warn("ticket channel gone; closing without transcript", zap.String("ticket_id", t.ID))
		chunks = nil
	}

	now := s.clock.Now()
	s.clock.Cancel(inactivityKey(t.ID))
	previous := t.State

	closing := *t
	closing.State = domain.TicketStateClosed
	closing.ClosedAt = &now
	closing.ClosedByID = actor.UserID
	s.logClosure(ctx, &closing, actor, chunks)

	result := &CloseResult{TranscriptChunks: len(chunks)}
	if grant {
		result.Grant = s.grants.grantAccess(ctx, t.OwnerID, t.ID)
		result.GrantApplied = true
		s.recordChange(ctx, t, actor.UserID, domain.ChangeTypeGrant, nil, map[string]any{
			"role_held":           result.Grant.RoleHeld,
			"category_locked":     result.Grant.CategoryLocked,
			"cooldown_expires_at": result.Grant.CooldownExpiresAt,
		})
	}

	t.State = domain.TicketStateClosed
	t.ClosedAt = &now
	t.ClosedByID = actor.UserID
	t.GrantApplied = result.GrantApplied
	t.UpdatedAt = now
	if review, ok := s.reviews[t.ReviewID]; ok && !review.Decided() {
		if err := s.platform.EditMessage(ctx, review.PromptChannelID, review.PromptMessageID, withdrawnPrompt(t, review)); err != nil {
			s.logger.Warn("withdraw review prompt", zap.String("review_id", review.ID), zap.Error(err))
		}
	}
	s.retire(t)

	s.saveArchive(ctx, t)
	s.saveTranscript(ctx, t, chunks)
	s.recordStateChange(ctx, t, actor.UserID, previous, t.State)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: t.ID,
		UserID:   t.OwnerID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketClosedPayload{
			PreviousState:    previous,
			ChannelName:      t.ChannelName,
			GrantApplied:     result.GrantApplied,
			Forced:           forced,
			Duration:         t.Duration(now),
			TranscriptChunks: len(chunks),
		},
	})
	result.Ticket = *cloneTicket(t)
	s.logger.Info("ticket closed",
		zap.String("ticket_id", t.ID),
		zap.String("closed_by", actor.UserID),
		zap.Bool("grant_applied", result.GrantApplied),
		zap.Bool("forced", forced))

	if err := s.destroyChannel(ctx, t); err != nil {
		s.logger.Error("archive ticket channel", zap.String("ticket_id", t.ID), zap.Error(err))
		return result, apperrors.NewClosureFailed(err)
	}
	return result, nil
}

func (s *TicketService) destroyChannel(ctx context.Context, t *domain.Ticket) error {
	if s.cfg.DeleteOnClose {
		if err := s.platform.DeleteChannel(ctx, t.ChannelID); err != nil {
			return err
		}
		s.sendLog(ctx, platform.Text(fmt.Sprintf("✅ Ticket channel **%s** deleted.", t.ChannelName)))
		return nil
	}
	if err := s.platform.ArchiveThread(ctx, t.ChannelID); err != nil {
		return err
	}
	s.sendLog(ctx, platform.Text(fmt.Sprintf("✅ Ticket thread **%s** archived/locked.", t.ChannelName)))
	return nil
}

func (s *TicketService) logClosure(ctx context.Context, t *domain.Ticket, closer domain.Actor, chunks []string) {
	s.sendLog(ctx, closureLogMessage(t, closer))
	for i, chunk := range chunks {
		s.sendLog(ctx, transcriptPartMessage(i+1, chunk))
	}
}

func (s *TicketService) sendLog(ctx context.Context, msg platform.Message) {
	if s.discord.TicketLogChannelID == "" {
		return
	}
	if _, err := s.platform.SendMessage(ctx, s.discord.TicketLogChannelID, msg); err != nil {
		s.logger.Warn("send to log channel", zap.Error(err))
	}
}

// armInactivity (re)arms the ticket's single timer. While Open it closes the
// ticket without a grant; once Delivered it closes with the grant.
func (s *TicketService) armInactivity(t *domain.Ticket) {
	ticketID := t.ID
	s.clock.Schedule(inactivityKey(ticketID), s.cfg.InactivityTimeout(), func() {
		if err := s.closeInactive(context.Background(), ticketID); err != nil && !apperrors.HasCode(err, apperrors.CodeAlreadyClosed) {
			s.logger.Warn("inactivity close", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	})
}

// closeInactive mirrors closeByRef for the inactivity timer. The close is
// skipped when the ticket moved on or the timer was re-armed meanwhile.
func (s *TicketService) closeInactive(ctx context.Context, ticketID string) error {
	var channelID string
	var state domain.TicketState
	err := s.loop.Do(ctx, func(context.Context) error {
		if t, ok := s.tickets[ticketID]; ok {
			channelID, state = t.ChannelID, t.State
		}
		return nil
	})
	if err != nil || !closesOnInactivity(state) {
		return err
	}

	history := s.prefetchHistory(ctx, channelID)

	return s.loop.Do(ctx, func(ctx context.Context) error {
		t, ok := s.tickets[ticketID]
		if !ok || t.State != state || s.clock.Pending(inactivityKey(ticketID)) {
			return nil
		}
		if t.State == domain.TicketStateOpen {
			if _, err := s.platform.SendMessage(ctx, t.ChannelID, inactivityMessage(s.cfg.InactivityMinutes)); err != nil {
				s.logger.Warn("send inactivity notice", zap.String("ticket_id", t.ID), zap.Error(err))
			}
		}
		_, err := s.closeTicket(ctx, t, domain.SystemActor(), t.State == domain.TicketStateDelivered, false, history)
		return err
	})
}

func closesOnInactivity(state domain.TicketState) bool {
	return state == domain.TicketStateOpen || state == domain.TicketStateDelivered
}

func (s *TicketService) transition(ctx context.Context, t *domain.Ticket, actorID string, next domain.TicketState) {
	previous := t.State
	if !isValidTransition(previous, next) {
		s.logger.Error("invalid ticket transition", zap.String("ticket_id", t.ID),
			zap.String("from", string(previous)), zap.String("to", string(next)))
		return
	}
	t.State = next
	t.UpdatedAt = s.clock.Now()
	s.recordStateChange(ctx, t, actorID, previous, next)
}

func (s *TicketService) openTicketFor(userID string) *domain.Ticket {
	id, ok := s.byOwner[userID]
	if !ok {
		return nil
	}
	t := s.tickets[id]
	if t == nil || t.State.IsTerminal() {
		return nil
	}
	return t
}

func (s *TicketService) liveTicket(id string) (*domain.Ticket, error) {
	t, err := s.ticketByIDOrChannel(id)
	if err != nil {
		return nil, err
	}
	if t.State.IsTerminal() {
		return nil, apperrors.NewAlreadyClosed(t.ID)
	}
	return t, nil
}

// ticketByIDOrChannel accepts a ticket ID, external key or channel ID.
// Recently closed tickets still resolve.
func (s *TicketService) ticketByIDOrChannel(ref string) (*domain.Ticket, error) {
	if t, ok := s.tickets[ref]; ok {
		return t, nil
	}
	if id, ok := s.byChannel[ref]; ok {
		return s.tickets[id], nil
	}
	if id, ok := s.byKey[ref]; ok {
		return s.tickets[id], nil
	}
	if t, ok := s.closed.lookup(ref); ok {
		return t, nil
	}
	return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket": ref})
}

// retire moves a closed ticket and its reviews out of the live indexes.
func (s *TicketService) retire(t *domain.Ticket) {
	var reviewIDs []string
	for id, review := range s.reviews {
		if review.TicketID == t.ID {
			reviewIDs = append(reviewIDs, id)
			delete(s.reviews, id)
		}
	}
	delete(s.tickets, t.ID)
	delete(s.byChannel, t.ChannelID)
	delete(s.byKey, t.ExternalKey)
	if s.byOwner[t.OwnerID] == t.ID {
		delete(s.byOwner, t.OwnerID)
	}
	s.closed.add(t, reviewIDs)
}

func (s *TicketService) saveArchive(ctx context.Context, t *domain.Ticket) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Save(ctx, cloneTicket(t)); err != nil {
		s.logger.Warn("archive ticket", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (s *TicketService) saveTranscript(ctx context.Context, t *domain.Ticket, chunks []string) {
	if s.archive == nil || len(chunks) == 0 {
		return
	}
	if err := s.archive.SaveTranscript(ctx, t.ID, chunks); err != nil {
		s.logger.Warn("archive transcript", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

var allowedTransitions = map[domain.TicketState][]domain.TicketState{
	domain.TicketStateOpen:                    {domain.TicketStateAwaitingProofReview, domain.TicketStateDelivered, domain.TicketStateClosed},
	domain.TicketStateAwaitingProofReview:     {domain.TicketStateOpen, domain.TicketStateAwaitingSecondStepProof, domain.TicketStateDelivered, domain.TicketStateClosed},
	domain.TicketStateAwaitingSecondStepProof: {domain.TicketStateAwaitingProofReview, domain.TicketStateDelivered, domain.TicketStateClosed},
	domain.TicketStateDelivered:               {domain.TicketStateClosed},
	domain.TicketStateClosed:                  {},
}

func isValidTransition(current, next domain.TicketState) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s *TicketService) recordStateChange(ctx context.Context, t *domain.Ticket, actorID string, oldState, newState domain.TicketState) {
	s.recordChange(ctx, t, actorID, domain.ChangeTypeState,
		map[string]any{"state": oldState},
		map[string]any{"state": newState})
}

func (s *TicketService) recordChange(ctx context.Context, t *domain.Ticket, actorID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:    t.ID,
		ChangedByID: actorID,
		ChangeType:  change,
		OldValue:    oldValue,
		NewValue:    newValue,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record ticket history", zap.String("ticket_id", t.ID), zap.String("change", string(change)), zap.Error(err))
	}
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func inactivityKey(ticketID string) string {
	return "inactivity:" + ticketID
}

func proofStateMessage(state domain.TicketState) string {
	switch state {
	case domain.TicketStateAwaitingProofReview:
		return "your proof is already under review"
	case domain.TicketStateDelivered:
		return "your reward was already delivered; close the ticket to finish"
	default:
		return "this ticket is not accepting proof"
	}
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	cp := *t
	return &cp
}
