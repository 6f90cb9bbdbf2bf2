package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/access-ticket-bot/internal/config"
	"github.com/spec-kit/access-ticket-bot/internal/cooldown"
	"github.com/spec-kit/access-ticket-bot/internal/domain"
	"github.com/spec-kit/access-ticket-bot/internal/events"
	"github.com/spec-kit/access-ticket-bot/internal/observability"
	"github.com/spec-kit/access-ticket-bot/internal/platform/platformtest"
	"github.com/spec-kit/access-ticket-bot/internal/repository"
	"github.com/spec-kit/access-ticket-bot/internal/scheduler"
	"github.com/spec-kit/access-ticket-bot/internal/store"
	"github.com/spec-kit/access-ticket-bot/internal/worker"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

// 15:30 IST, inside the default 14..24 window.
var epoch = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

var (
	owner    = domain.Actor{UserID: "owner", Owner: true}
	operator = domain.Actor{UserID: "op", Operator: true}
	alice    = domain.Actor{UserID: "u1", DisplayName: "alice"}
)

const (
	logChannel    = "log"
	verifyChannel = "verify"
	panelChannel  = "panel"
	categoryID    = "cat"
	roleID        = "role"
)

type harness struct {
	t          *testing.T
	clock      *scheduler.ManualClock
	fake       *platformtest.Fake
	loop       *worker.EventLoop
	svc        *TicketService
	catalog    *store.CatalogStore
	prefs      *store.PreferenceStore
	metrics    *observability.Metrics
	cooldowns  *memCooldowns
	archive    *memArchive
	history    *memHistory
	dispatcher events.Dispatcher
	ticketCfg  config.TicketConfig
}

type harnessOption func(*TicketDependencies)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	clock := scheduler.NewManualClock(epoch)
	fake := platformtest.New()
	fake.Now = clock.Now
	loop := worker.NewEventLoop(nil, 16)
	loop.Start()
	t.Cleanup(loop.Stop)

	prefs, err := store.OpenPreferences("")
	require.NoError(t, err)

	h := &harness{
		t:          t,
		clock:      clock,
		fake:       fake,
		loop:       loop,
		catalog:    store.NewMemoryCatalog(store.DefaultCatalog()),
		prefs:      prefs,
		metrics:    observability.NewMetrics(),
		cooldowns:  newMemCooldowns(),
		archive:    newMemArchive(),
		history:    &memHistory{},
		dispatcher: events.NewInMemoryDispatcher(),
		ticketCfg: config.TicketConfig{
			CooldownHours:       168,
			TempRoleHours:       3,
			InactivityMinutes:   10,
			FirstStagePhrase:    "RASH TECH",
			TranscriptChunkSize: 4000,
			CreationEnabled:     true,
			TicketNamePrefix:    "ticket-",
		},
	}
	deps := TicketDependencies{
		Loop:         loop,
		Clock:        clock,
		Platform:     fake,
		Catalog:      h.catalog,
		Preferences:  prefs,
		CooldownRepo: h.cooldowns,
		TicketRepo:   h.archive,
		HistoryRepo:  h.history,
		Dispatcher:   h.dispatcher,
		Discord: config.DiscordConfig{
			TicketPanelChannelID:  panelChannel,
			TicketLogChannelID:    logChannel,
			VerificationChannelID: verifyChannel,
			ActivationCategoryID:  categoryID,
			TempRoleID:            roleID,
		},
		Ticket: h.ticketCfg,
		Window: config.WindowConfig{StartHour: 14, EndHour: 24, TZOffsetMinutes: 330, TZName: "IST"},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.ticketCfg = deps.Ticket
	h.svc = NewTicketService(deps)

	notifications := NewNotificationService(NotificationDependencies{
		Dispatcher:  h.dispatcher,
		Metrics:     h.metrics,
		Platform:    fake,
		Preferences: prefs,
		Discord:     deps.Discord,
		Ticket:      deps.Ticket,
	})
	worker.StartNotificationWorker(notifications)
	return h
}

func (h *harness) open(userID string) *domain.Ticket {
	h.t.Helper()
	ticket, err := h.svc.OpenTicket(context.Background(), OpenTicketInput{UserID: userID, UserName: "name-" + userID})
	require.NoError(h.t, err)
	return ticket
}

func (h *harness) submit(ticket *domain.Ticket, text string, attachments ...string) (*ProofResult, error) {
	return h.svc.SubmitProof(context.Background(), SubmitProofInput{
		ChannelID:   ticket.ChannelID,
		UserID:      ticket.OwnerID,
		Text:        text,
		Attachments: attachments,
	})
}

// deliveredTicket drives a one-stage reward up to the Delivered state.
func (h *harness) deliveredTicket(userID, reward string) *domain.Ticket {
	h.t.Helper()
	ticket := h.open(userID)
	res, err := h.submit(ticket, "RASH TECH "+reward, "https://cdn/proof.png")
	require.NoError(h.t, err)
	_, err = h.svc.DecideProof(context.Background(), res.ReviewID, true, operator)
	require.NoError(h.t, err)
	require.Equal(h.t, domain.TicketStateDelivered, h.state(ticket))
	return ticket
}

func (h *harness) state(ticket *domain.Ticket) domain.TicketState {
	h.t.Helper()
	current, err := h.svc.TicketByChannel(context.Background(), ticket.ChannelID)
	require.NoError(h.t, err)
	return current.State
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, code), "want %s, got %v", code, err)
}

type memCooldowns struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newMemCooldowns() *memCooldowns {
	return &memCooldowns{entries: make(map[string]time.Time)}
}

func (m *memCooldowns) Save(_ context.Context, entry cooldown.Entry, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.UserID] = entry.ExpiresAt
	return nil
}

func (m *memCooldowns) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

func (m *memCooldowns) LoadAll(_ context.Context) ([]cooldown.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cooldown.Entry, 0, len(m.entries))
	for id, exp := range m.entries {
		out = append(out, cooldown.Entry{UserID: id, ExpiresAt: exp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memCooldowns) has(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[userID]
	return ok
}

type memArchive struct {
	mu          sync.Mutex
	tickets     map[string]domain.Ticket
	transcripts map[string][]string
}

func newMemArchive() *memArchive {
	return &memArchive{tickets: make(map[string]domain.Ticket), transcripts: make(map[string][]string)}
}

func (m *memArchive) Save(_ context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[ticket.ID] = *ticket
	return nil
}

func (m *memArchive) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.ID == id || t.ExternalKey == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("ticket", nil)
}

func (m *memArchive) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, t := range m.tickets {
		if filter.OwnerID != nil && t.OwnerID != *filter.OwnerID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memArchive) SaveTranscript(_ context.Context, ticketID string, chunks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts[ticketID] = append([]string(nil), chunks...)
	return nil
}

func (m *memArchive) ListTranscript(_ context.Context, ticketID string) ([]domain.TranscriptChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TranscriptChunk
	for i, body := range m.transcripts[ticketID] {
		out = append(out, domain.TranscriptChunk{TicketID: ticketID, Sequence: i + 1, Body: body})
	}
	return out, nil
}

func (m *memArchive) get(id string) (domain.Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	return t, ok
}

type memHistory struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (m *memHistory) Create(_ context.Context, entry *domain.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TicketHistory
	for _, e := range m.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}
