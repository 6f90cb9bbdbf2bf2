package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/access-ticket-bot/internal/api/dto"
	"github.com/spec-kit/access-ticket-bot/internal/auth"
	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/observability"
	"github.com/spec-kit/access-ticket-bot/internal/repository"
	"github.com/spec-kit/access-ticket-bot/internal/service"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

// AdminHandler exposes the operator console.
type AdminHandler struct {
	service *service.TicketService
	metrics *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(ticketService *service.TicketService, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{service: ticketService, metrics: metrics}
}

// Status GET /admin/status.
func (h *AdminHandler) Status(c *fiber.Ctx) error {
	actor, err := consoleActor(c)
	if err != nil {
		return err
	}
	status, err := h.service.Status(c.UserContext(), actor)
	if err != nil {
		return err
	}
	resp := dto.StatusResponse{
		Flags:           flagsResponse(status.Flags),
		Now:             status.Now,
		WindowOpen:      status.WindowOpen,
		Window:          status.Window,
		OpenTickets:     status.OpenTickets,
		ActiveCooldowns: make([]dto.CooldownResponse, 0, len(status.ActiveCooldowns)),
	}
	for _, entry := range status.ActiveCooldowns {
		resp.ActiveCooldowns = append(resp.ActiveCooldowns, dto.CooldownResponse{UserID: entry.UserID, ExpiresAt: entry.ExpiresAt})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ToggleCreation POST /admin/flags/creation.
func (h *AdminHandler) ToggleCreation(c *fiber.Ctx) error {
	actor, err := consoleActor(c)
	if err != nil {
		return err
	}
	flags, err := h.service.ToggleCreation(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": flagsResponse(flags)})
}

// ToggleBypass POST /admin/flags/bypass.
func (h *AdminHandler) ToggleBypass(c *fiber.Ctx) error {
	actor, err := consoleActor(c)
	if err != nil {
		return err
	}
	flags, err := h.service.ToggleBypass(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": flagsResponse(flags)})
}

// ListTickets GET /admin/tickets.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := consoleActor(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListOpenTickets(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ForceClose POST /admin/tickets/:id/force-close.
func (h *AdminHandler) ForceClose(c *fiber.Ctx) error {
	actor, err := consoleActor(c)
	if err != nil {
		return err
	}
	result, err := h.service.ForceClose(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CloseResponse{
		Ticket:           ticketResponse(&result.Ticket),
		TranscriptChunks: result.TranscriptChunks,
	}})
}

// ClearCooldown DELETE /admin/cooldowns/:userID.
func (h *AdminHandler) ClearCooldown(c *fiber.Ctx) error {
	actor, err := consoleActor(c)
	if err != nil {
		return err
	}
	if err := h.service.Grants().ClearCooldown(c.UserContext(), c.Params("userID"), actor); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListCatalog GET /admin/catalog.
func (h *AdminHandler) ListCatalog(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.service.Rewards()})
}

// UpsertReward PUT /admin/catalog/:key.
func (h *AdminHandler) UpsertReward(c *fiber.Ctx) error {
	actor, err := consoleActor(c)
	if err != nil {
		return err
	}
	var req dto.RewardRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.service.UpsertReward(c.UserContext(), actor, domain.RewardEntry{
		Key:            c.Params("key"),
		Link:           req.Link,
		TwoStage:       req.TwoStage,
		SecondStepLink: req.SecondStepLink,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entry})
}

// RemoveReward DELETE /admin/catalog/:key.
func (h *AdminHandler) RemoveReward(c *fiber.Ctx) error {
	actor, err := consoleActor(c)
	if err != nil {
		return err
	}
	if err := h.service.RemoveReward(c.UserContext(), actor, c.Params("key")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Metrics GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

// ListArchive GET /admin/archive.
func (h *AdminHandler) ListArchive(c *fiber.Ctx) error {
	query := parseArchiveQuery(c)
	filter := repository.TicketFilter{
		States:       query.States,
		GrantApplied: query.GrantApplied,
		CreatedFrom:  query.CreatedFrom,
		CreatedTo:    query.CreatedTo,
		Limit:        query.PageSize,
		Offset:       (query.Page - 1) * query.PageSize,
	}
	if query.OwnerID != "" {
		filter.OwnerID = &query.OwnerID
	}
	if query.RewardKey != "" {
		key := domain.NormalizeRewardKey(query.RewardKey)
		filter.RewardKey = &key
	}
	tickets, err := h.service.ArchivedTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetArchived GET /admin/archive/:id.
func (h *AdminHandler) GetArchived(c *fiber.Ctx) error {
	archived, err := h.service.ArchivedTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	resp := dto.ArchivedTicketResponse{
		TicketResponse: ticketResponse(&archived.Ticket),
		Transcript:     make([]dto.TranscriptChunkResponse, 0, len(archived.Transcript)),
		History:        historyResponses(archived.History),
	}
	for _, chunk := range archived.Transcript {
		resp.Transcript = append(resp.Transcript, dto.TranscriptChunkResponse{Sequence: chunk.Sequence, Body: chunk.Body})
	}
	return c.JSON(fiber.Map{"data": resp})
}

func consoleActor(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("operator required")
	}
	return principal.Actor(), nil
}

func parseArchiveQuery(c *fiber.Ctx) dto.ArchiveQuery {
	query := dto.ArchiveQuery{
		OwnerID:     c.Query("owner_id"),
		RewardKey:   c.Query("reward_key"),
		CreatedFrom: parseTime(c.Query("created_from")),
		CreatedTo:   parseTime(c.Query("created_to")),
		Page:        parseInt(c.Query("page"), 1),
		PageSize:    parseInt(c.Query("page_size"), 20),
	}
	if stateStr := c.Query("state"); stateStr != "" {
		for _, part := range strings.Split(stateStr, ",") {
			query.States = append(query.States, domain.TicketState(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if granted, err := strconv.ParseBool(c.Query("grant_applied")); err == nil {
		query.GrantApplied = &granted
	}
	return query
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func flagsResponse(f service.Flags) dto.FlagsResponse {
	return dto.FlagsResponse{CreationEnabled: f.CreationEnabled, OperationalHoursBypass: f.OperationalHoursBypass}
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           t.ID,
		ExternalKey:  t.ExternalKey,
		OwnerID:      t.OwnerID,
		OwnerName:    t.OwnerName,
		ChannelID:    t.ChannelID,
		ChannelName:  t.ChannelName,
		State:        t.State,
		RewardKey:    t.RewardKey,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		DeliveredAt:  t.DeliveredAt,
		ClosedAt:     t.ClosedAt,
		ClosedByID:   t.ClosedByID,
		GrantApplied: t.GrantApplied,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	out := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, dto.TicketHistoryResponse{
			ID:          h.ID,
			ChangedByID: h.ChangedByID,
			ChangeType:  h.ChangeType,
			OldValue:    h.OldValue,
			NewValue:    h.NewValue,
			CreatedAt:   h.CreatedAt,
		})
	}
	return out
}
