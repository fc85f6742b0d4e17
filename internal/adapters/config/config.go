package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"oidworker/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
	Control       ControlConfig
	Schedule      ScheduleConfig
	Session       SessionConfig
	Options       OptionsConfig
	Retention     RetentionConfig
	Alerts        AlertConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"oidworker"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig configures the optional analytics mirror
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"analytics"`
}

// RedisConfig configures the optional cross-replica run lock
type RedisConfig struct {
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL  time.Duration `envconfig:"REDIS_JOB_LOCK_TTL" default:"15m"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig configures optional event publishing
type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
}

// TelegramConfig configures failure alerts
type TelegramConfig struct {
	Enabled  bool   `envconfig:"TELEGRAM_ALERTS_ENABLED" default:"false"`
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_ALERT_CHAT_ID"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// ControlConfig configures the control HTTP surface
type ControlConfig struct {
	Port   int    `envconfig:"WORKER_CONTROL_PORT" default:"4100"`
	Secret string `envconfig:"WORKER_CONTROL_SECRET"`
	// RunNowPerMinute throttles POST /run-now; 0 disables throttling
	RunNowPerMinute int `envconfig:"WORKER_RUN_NOW_PER_MINUTE" default:"6"`
}

// ScheduleConfig holds cron specs, evaluated in Timezone
type ScheduleConfig struct {
	Timezone      string `envconfig:"WORKER_SCHEDULE_TIMEZONE" default:"Asia/Bangkok"`
	RelationCron  string `envconfig:"WORKER_CRON_RELATION" default:"*/30 * * * *"`
	OptionsCron   string `envconfig:"WORKER_CRON_CME" default:"*/30 * * * *"`
	RetentionCron string `envconfig:"WORKER_RETENTION_CRON" default:"15 6 * * *"`
}

// SessionConfig holds market calendar overrides
type SessionConfig struct {
	VenueTimezone   string   `envconfig:"CME_SESSION_TIMEZONE" default:"America/Chicago"`
	HolidayClosures []string `envconfig:"CME_HOLIDAY_CLOSURES"`
	VenueForceOpen  bool     `envconfig:"CME_SESSION_FORCE_OPEN" default:"false"`
	ModeXAUUSD      string   `envconfig:"SYMBOL_SESSION_MODE_XAUUSD" default:"auto"`
	ModeTHBUSD      string   `envconfig:"SYMBOL_SESSION_MODE_THBUSD" default:"auto"`
	ModeBTCUSD      string   `envconfig:"SYMBOL_SESSION_MODE_BTCUSD" default:"auto"`
}

// SymbolModes returns the raw per-symbol session mode settings
func (c SessionConfig) SymbolModes() map[string]string {
	return map[string]string{
		"XAUUSD": c.ModeXAUUSD,
		"THBUSD": c.ModeTHBUSD,
		"BTCUSD": c.ModeBTCUSD,
	}
}

// Holidays returns the trimmed, non-empty holiday dates
func (c SessionConfig) Holidays() []string {
	out := make([]string, 0, len(c.HolidayClosures))
	for _, d := range c.HolidayClosures {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// OptionsConfig configures chart extraction
type OptionsConfig struct {
	DevToolsURL         string `envconfig:"CME_DEVTOOLS_URL" default:"http://localhost:9222"`
	TimeoutMs           int    `envconfig:"CME_TIMEOUT_MS" default:"45000"`
	RenderWaitMs        int    `envconfig:"CME_RENDER_WAIT_MS" default:"4000"`
	ExtractMaxAttempts  int    `envconfig:"CME_EXTRACT_MAX_ATTEMPTS" default:"3"`
	ExtractRetryDelayMs int    `envconfig:"CME_EXTRACT_RETRY_DELAY_MS" default:"1200"`
	RequirePositiveDTE  bool   `envconfig:"CME_REQUIRE_POSITIVE_DTE" default:"true"`
	// SessionsPerMinute caps browser sessions opened by the extractor
	SessionsPerMinute int `envconfig:"CME_SESSIONS_PER_MINUTE" default:"12"`
}

func (c OptionsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c OptionsConfig) RetryDelay() time.Duration {
	return time.Duration(c.ExtractRetryDelayMs) * time.Millisecond
}

func (c OptionsConfig) RenderWait() time.Duration {
	return time.Duration(c.RenderWaitMs) * time.Millisecond
}

// RetentionConfig holds per-table retention windows in days
type RetentionConfig struct {
	StructuredDays  int `envconfig:"STRUCTURED_RETENTION_DAYS" default:"45"`
	JobRunsDays     int `envconfig:"JOB_RUNS_RETENTION_DAYS" default:"30"`
	SeriesLinksDays int `envconfig:"CME_SERIES_LINKS_RETENTION_DAYS" default:"90"`
	WebhookLogDays  int `envconfig:"WEBHOOK_LOG_RETENTION_DAYS" default:"7"`
}

// AlertConfig holds staleness thresholds used by health details
type AlertConfig struct {
	RelationStaleMinutes int `envconfig:"RELATION_STALE_MINUTES" default:"35"`
	OptionsStaleMinutes  int `envconfig:"CME_STALE_MINUTES" default:"35"`
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present (local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	// PORT wins over WORKER_CONTROL_PORT on platforms that inject it
	if port := os.Getenv("PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			cfg.Control.Port = p
		}
	}

	return &cfg, nil
}
