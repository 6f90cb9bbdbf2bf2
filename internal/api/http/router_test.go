package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/access-ticket-bot/internal/auth"
	"github.com/spec-kit/access-ticket-bot/internal/config"
	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/observability"
	"github.com/spec-kit/access-ticket-bot/internal/platform/platformtest"
	"github.com/spec-kit/access-ticket-bot/internal/scheduler"
	"github.com/spec-kit/access-ticket-bot/internal/service"
	"github.com/spec-kit/access-ticket-bot/internal/store"
	"github.com/spec-kit/access-ticket-bot/internal/worker"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	t     *testing.T
	app   *fiber.App
	svc   *service.TicketService
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := scheduler.NewManualClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	fake := platformtest.New()
	fake.Now = clock.Now
	loop := worker.NewEventLoop(nil, 8)
	loop.Start()
	t.Cleanup(loop.Stop)

	svc := service.NewTicketService(service.TicketDependencies{
		Loop:     loop,
		Clock:    clock,
		Platform: fake,
		Catalog:  store.NewMemoryCatalog(store.DefaultCatalog()),
		Discord: config.DiscordConfig{
			TicketPanelChannelID:  "panel",
			TicketLogChannelID:    "log",
			VerificationChannelID: "verify",
			ActivationCategoryID:  "cat",
			TempRoleID:            "role",
		},
		Ticket: config.TicketConfig{
			CooldownHours:       168,
			TempRoleHours:       3,
			InactivityMinutes:   10,
			FirstStagePhrase:    "RASH TECH",
			TranscriptChunkSize: 4000,
			CreationEnabled:     true,
			TicketNamePrefix:    "ticket-",
		},
		Window: config.WindowConfig{StartHour: 14, EndHour: 24, TZOffsetMinutes: 330, TZName: "IST"},
	})

	hash, err := auth.HashPassword("hunter2", 4)
	require.NoError(t, err)
	tokens := auth.NewTokenManager("secret", 5)
	authService := service.NewAuthService(config.AuthConfig{OperatorUsername: "op", OperatorPasswordHash: hash}, tokens, nil)
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("access-ticket-bot", "test", nil, nil),
		Auth:           handlers.NewAuthHandler(authService),
		Admin:          handlers.NewAdminHandler(svc, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{t: t, app: app, svc: svc}
}

func (s *testServer) do(method, path string, body any) (int, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	if len(raw) > 0 {
		require.NoError(s.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) login() {
	s.t.Helper()
	status, env := s.do(nethttp.MethodPost, "/auth/operator/login", map[string]string{"username": "op", "password": "hunter2"})
	require.Equal(s.t, nethttp.StatusOK, status)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(s.t, out.Token)
	s.token = out.Token
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	status, _ := srv.do(nethttp.MethodGet, "/health/live", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	req := httptest.NewRequest(nethttp.MethodGet, "/health/ready", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "skipped", body.Dependencies["postgres"])
	assert.Equal(t, "skipped", body.Dependencies["redis"])
}

func TestLoginAndAdminGuard(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(nethttp.MethodPost, "/auth/operator/login", map[string]string{"username": "op", "password": "nope"})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = srv.do(nethttp.MethodPost, "/auth/operator/login", map[string]string{"username": "op"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = srv.do(nethttp.MethodGet, "/admin/status", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	srv.login()
	status, env = srv.do(nethttp.MethodGet, "/admin/status", nil)
	require.Equal(t, nethttp.StatusOK, status)
	var panel struct {
		WindowOpen bool `json:"window_open"`
		Flags      struct {
			CreationEnabled bool `json:"creation_enabled"`
		} `json:"flags"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &panel))
	assert.True(t, panel.WindowOpen)
	assert.True(t, panel.Flags.CreationEnabled)
}

func TestAdminFlagsAndCatalog(t *testing.T) {
	srv := newTestServer(t)
	srv.login()

	status, env := srv.do(nethttp.MethodPost, "/admin/flags/creation", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.JSONEq(t, `{"creation_enabled":false,"operational_hours_bypass":false}`, string(env.Data))

	status, _ = srv.do(nethttp.MethodPut, "/admin/catalog/Netflix", map[string]any{"link": "https://example.com/nf", "two_stage": false})
	require.Equal(t, nethttp.StatusOK, status)

	status, env = srv.do(nethttp.MethodGet, "/admin/catalog", nil)
	require.Equal(t, nethttp.StatusOK, status)
	var entries []domain.RewardEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Contains(t, entries, domain.RewardEntry{Key: "netflix", Link: "https://example.com/nf"})

	status, env = srv.do(nethttp.MethodPut, "/admin/catalog/empty", map[string]any{"link": " "})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, _ = srv.do(nethttp.MethodDelete, "/admin/catalog/netflix", nil)
	assert.Equal(t, nethttp.StatusNoContent, status)
	status, env = srv.do(nethttp.MethodDelete, "/admin/catalog/netflix", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "REWARD_NOT_FOUND", env.Error.Code)
}

func TestAdminTicketsAndCooldowns(t *testing.T) {
	srv := newTestServer(t)
	srv.login()

	ticket, err := srv.svc.OpenTicket(context.Background(), service.OpenTicketInput{UserID: "u1", UserName: "alice"})
	require.NoError(t, err)

	status, env := srv.do(nethttp.MethodGet, "/admin/tickets", nil)
	require.Equal(t, nethttp.StatusOK, status)
	var open []struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &open))
	require.Len(t, open, 1)
	assert.Equal(t, ticket.ID, open[0].ID)

	status, env = srv.do(nethttp.MethodPost, "/admin/tickets/"+ticket.ID+"/force-close", nil)
	require.Equal(t, nethttp.StatusOK, status)
	var closed struct {
		Ticket struct {
			State        string `json:"state"`
			GrantApplied bool   `json:"grant_applied"`
		} `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &closed))
	assert.Equal(t, string(domain.TicketStateClosed), closed.Ticket.State)
	assert.False(t, closed.Ticket.GrantApplied)

	status, env = srv.do(nethttp.MethodPost, "/admin/tickets/"+ticket.ID+"/force-close", nil)
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "ALREADY_CLOSED", env.Error.Code)

	status, env = srv.do(nethttp.MethodDelete, "/admin/cooldowns/u1", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestAdminArchiveAndUnknownRoutes(t *testing.T) {
	srv := newTestServer(t)
	srv.login()

	status, env := srv.do(nethttp.MethodGet, "/admin/archive?state=closed", nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, status)
	assert.Equal(t, "SYSTEM_CLOSED", env.Error.Code)

	status, env = srv.do(nethttp.MethodGet, "/nope", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = srv.do(nethttp.MethodGet, "/admin/metrics", nil)
	require.Equal(t, nethttp.StatusOK, status)
	var snap observability.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.NotEmpty(t, snap.Requests)
}
