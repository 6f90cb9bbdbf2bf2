package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	gateway "github.com/spec-kit/access-ticket-bot/internal/api/discord"
	httptransport "github.com/spec-kit/access-ticket-bot/internal/api/http"
	"github.com/spec-kit/access-ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/access-ticket-bot/internal/auth"
	"github.com/spec-kit/access-ticket-bot/internal/config"
	"github.com/spec-kit/access-ticket-bot/internal/events"
	"github.com/spec-kit/access-ticket-bot/internal/observability"
	"github.com/spec-kit/access-ticket-bot/internal/persistence"
	discordplatform "github.com/spec-kit/access-ticket-bot/internal/platform/discord"
	"github.com/spec-kit/access-ticket-bot/internal/repository"
	"github.com/spec-kit/access-ticket-bot/internal/scheduler"
	"github.com/spec-kit/access-ticket-bot/internal/service"
	"github.com/spec-kit/access-ticket-bot/internal/store"
	"github.com/spec-kit/access-ticket-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	catalog, err := store.OpenCatalog(cfg.Ticket.CatalogPath, logger)
	if err != nil {
		logger.Fatal("failed to open reward catalog", zap.Error(err))
	}
	prefs, err := store.OpenPreferences(cfg.Ticket.PreferencesPath)
	if err != nil {
		logger.Fatal("failed to open preferences", zap.Error(err))
	}

	var (
		ticketRepo   repository.TicketRepository
		historyRepo  repository.TicketHistoryRepository
		cooldownRepo repository.CooldownRepository
	)
	if pg.Enabled() {
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
		historyRepo = repository.NewTicketHistoryRepository(pg.PoolHandle())
	}
	if redis.Enabled() {
		cooldownRepo = repository.NewCooldownRepository(redis.Client, redis.KeyPrefix)
	}

	loop := worker.NewEventLoop(logger, 256)
	loop.Start()
	defer loop.Stop()

	timers := scheduler.NewTimers()
	defer timers.Stop()

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}
	client := discordplatform.NewClient(discordplatform.ClientDependencies{
		Session:         session,
		GuildID:         cfg.Discord.GuildID,
		AutoArchiveMins: cfg.Ticket.ThreadAutoArchiveMinute,
		Logger:          logger.Named("discord"),
	})

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	tickets := service.NewTicketService(service.TicketDependencies{
		Loop:         loop,
		Clock:        timers,
		Platform:     client,
		Catalog:      catalog,
		Preferences:  prefs,
		CooldownRepo: cooldownRepo,
		TicketRepo:   ticketRepo,
		HistoryRepo:  historyRepo,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Discord:      cfg.Discord,
		Ticket:       cfg.Ticket,
		Window:       cfg.Window,
	})
	notifications := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
		Platform:    client,
		Preferences: prefs,
		Discord:     cfg.Discord,
		Ticket:      cfg.Ticket,
	})
	worker.StartNotificationWorker(notifications)

	if restored, err := tickets.Grants().RestoreCooldowns(ctx); err != nil {
		logger.Error("failed to restore cooldowns", zap.Error(err))
	} else {
		logger.Info("cooldowns restored", zap.Int("count", restored))
	}

	bot := gateway.NewHandler(gateway.HandlerDependencies{
		Tickets:  tickets,
		Platform: client,
		Discord:  cfg.Discord,
		Logger:   logger,
	})
	bot.Register(session)
	if err := session.Open(); err != nil {
		logger.Fatal("failed to open discord gateway", zap.Error(err))
	}
	defer session.Close() //nolint:errcheck

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(cfg.Auth, tokens, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Admin:          handlers.NewAdminHandler(tickets, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
