package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App      AppConfig
	Discord  DiscordConfig
	Ticket   TicketConfig
	Window   WindowConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
}

// AppConfig controls the keep-alive / operator HTTP server.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// DiscordConfig holds the bot token and the guild object IDs the bot works with.
type DiscordConfig struct {
	Token                 string
	GuildID               string
	TicketPanelChannelID  string
	TicketLogChannelID    string
	VerificationChannelID string
	InstructionsChannelID string
	FeedbackChannelID     string
	ActivationCategoryID  string
	TempRoleID            string
	ProofChannelURL       string
}

// TicketConfig holds the ticket lifecycle tunables.
type TicketConfig struct {
	CooldownHours           int
	TempRoleHours           int
	InactivityMinutes       int
	FirstStagePhrase        string
	TranscriptChunkSize     int
	CatalogPath             string
	PreferencesPath         string
	CreationEnabled         bool
	OperationalHoursBypass  bool
	TicketNamePrefix        string
	ThreadAutoArchiveMinute int
	DeleteOnClose           bool
}

// WindowConfig is the daily hour range during which tickets may be opened.
type WindowConfig struct {
	StartHour       int
	EndHour         int
	TZOffsetMinutes int
	TZName          string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
	Service  string
}

// AuthConfig defines operator console authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorUsername      string
	OperatorPasswordHash  string
	BcryptCost            int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "access-ticket-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Discord: DiscordConfig{
			Token:                 os.Getenv("DISCORD_TOKEN"),
			GuildID:               os.Getenv("GUILD_ID"),
			TicketPanelChannelID:  os.Getenv("TICKET_PANEL_CHANNEL_ID"),
			TicketLogChannelID:    os.Getenv("TICKET_LOG_CHANNEL_ID"),
			VerificationChannelID: os.Getenv("VERIFICATION_CHANNEL_ID"),
			InstructionsChannelID: os.Getenv("INSTRUCTIONS_CHANNEL_ID"),
			FeedbackChannelID:     os.Getenv("FEEDBACK_CHANNEL_ID"),
			ActivationCategoryID:  os.Getenv("ACTIVATION_CATEGORY_ID"),
			TempRoleID:            os.Getenv("TEMP_ROLE_ID"),
			ProofChannelURL:       os.Getenv("YOUTUBE_CHANNEL_URL"),
		},
		Ticket: TicketConfig{
			CooldownHours:           getEnvAsInt("COOLDOWN_HOURS", 168),
			TempRoleHours:           getEnvAsInt("TEMP_ROLE_DURATION_HOURS", 3),
			InactivityMinutes:       getEnvAsInt("TICKET_INACTIVITY_MINUTES", 10),
			FirstStagePhrase:        getEnv("FIRST_STAGE_PHRASE", "RASH TECH"),
			TranscriptChunkSize:     getEnvAsInt("TRANSCRIPT_CHUNK_SIZE", 4000),
			CatalogPath:             getEnv("CATALOG_PATH", "apps.json"),
			PreferencesPath:         getEnv("PREFERENCES_PATH", "preferences.json"),
			CreationEnabled:         getEnvAsBool("TICKET_CREATION_ENABLED", true),
			OperationalHoursBypass:  getEnvAsBool("OPERATIONAL_HOURS_BYPASS", false),
			TicketNamePrefix:        getEnv("TICKET_NAME_PREFIX", "ticket-"),
			ThreadAutoArchiveMinute: getEnvAsInt("THREAD_AUTO_ARCHIVE_MINUTES", 60),
			DeleteOnClose:           getEnvAsBool("TICKET_DELETE_ON_CLOSE", false),
		},
		Window: WindowConfig{
			StartHour:       getEnvAsInt("TICKET_START_HOUR", 14),
			EndHour:         getEnvAsInt("TICKET_END_HOUR", 24),
			TZOffsetMinutes: getEnvAsInt("TICKET_TZ_OFFSET_MINUTES", 330),
			TZName:          getEnv("TICKET_TZ_NAME", "IST"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ticketbot"),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
			Service:  getEnv("APP_NAME", "access-ticket-bot"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorUsername:      getEnv("OPERATOR_USERNAME", "operator"),
			OperatorPasswordHash:  os.Getenv("OPERATOR_PASSWORD_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
	}

	return cfg, nil
}

// Validate checks the invariants the ticket workflow depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	if c.Discord.GuildID == "" {
		errs = append(errs, errors.New("GUILD_ID is required"))
	}
	if err := c.Ticket.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Window.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks duration ordering and bounds.
func (t TicketConfig) Validate() error {
	var errs []error
	if t.CooldownHours <= 0 || t.TempRoleHours <= 0 || t.InactivityMinutes <= 0 {
		errs = append(errs, errors.New("cooldown, temp role and inactivity durations must be positive"))
	}
	if t.TempRoleDuration() >= t.CooldownDuration() {
		errs = append(errs, fmt.Errorf("temp role duration %s must be shorter than cooldown %s",
			t.TempRoleDuration(), t.CooldownDuration()))
	}
	if t.TranscriptChunkSize < 1 {
		errs = append(errs, errors.New("TRANSCRIPT_CHUNK_SIZE must be at least 1"))
	}
	if t.FirstStagePhrase == "" {
		errs = append(errs, errors.New("FIRST_STAGE_PHRASE must not be empty"))
	}
	return errors.Join(errs...)
}

// CooldownDuration is how long a user is barred after a grant.
func (t TicketConfig) CooldownDuration() time.Duration {
	return time.Duration(t.CooldownHours) * time.Hour
}

// TempRoleDuration is how long the temporary role is held after a grant.
func (t TicketConfig) TempRoleDuration() time.Duration {
	return time.Duration(t.TempRoleHours) * time.Hour
}

// InactivityTimeout is the delay before an untouched ticket is closed.
func (t TicketConfig) InactivityTimeout() time.Duration {
	return time.Duration(t.InactivityMinutes) * time.Minute
}

// Validate checks the hour bounds.
func (w WindowConfig) Validate() error {
	if w.StartHour < 0 || w.StartHour > 24 || w.EndHour < 0 || w.EndHour > 24 {
		return fmt.Errorf("ticket window hours must be within 0..24, got %d..%d", w.StartHour, w.EndHour)
	}
	return nil
}

// Location returns the fixed-offset zone of the window.
func (w WindowConfig) Location() *time.Location {
	return time.FixedZone(w.TZName, w.TZOffsetMinutes*60)
}

// Allows reports whether now falls in [StartHour, EndHour) in the window's zone.
// A start after the end wraps past midnight.
func (w WindowConfig) Allows(now time.Time) bool {
	hour := now.In(w.Location()).Hour()
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// Describe renders the window for user-facing messages, e.g. "14:00 to 23:59 IST".
func (w WindowConfig) Describe() string {
	end := w.EndHour - 1
	if end < 0 {
		end = 23
	}
	return fmt.Sprintf("%d:00 to %d:59 %s", w.StartHour, end, w.TZName)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
