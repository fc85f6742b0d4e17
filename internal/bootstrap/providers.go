package bootstrap

import (
	"context"
	"time"

	"oidworker/internal/adapters/chartsource"
	chclient "oidworker/internal/adapters/clickhouse"
	"oidworker/internal/adapters/config"
	errnoop "oidworker/internal/adapters/errors/noop"
	"oidworker/internal/adapters/errors/sentry"
	"oidworker/internal/adapters/kafka"
	pgclient "oidworker/internal/adapters/postgres"
	redisclient "oidworker/internal/adapters/redis"
	"oidworker/internal/adapters/telegram"
	"oidworker/internal/api"
	"oidworker/internal/api/control"
	"oidworker/internal/api/health"
	"oidworker/internal/domain/jobrun"
	"oidworker/internal/events"
	"oidworker/internal/metrics"
	chrepo "oidworker/internal/repository/clickhouse"
	pgrepo "oidworker/internal/repository/postgres"
	redisrepo "oidworker/internal/repository/redis"
	"oidworker/internal/session"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// connectTimeout bounds each data store handshake at startup
const connectTimeout = 15 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	c.ReportLoc, err = time.LoadLocation(session.BangkokZone)
	if err != nil {
		c.Log.Fatalf("failed to load reporting timezone: %v", err)
	}
	c.ScheduleLoc, err = time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		c.Log.Fatalf("failed to load schedule timezone %q: %v", cfg.Schedule.Timezone, err)
	}
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects Postgres, and ClickHouse and Redis when enabled
func (c *Container) MustInitInfrastructure() {
	var err error

	c.Log.Info("Connecting to PostgreSQL...")
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
	cancel()
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		cancel()
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	} else {
		c.Log.Info("ClickHouse mirror disabled")
	}

	if c.Config.Redis.Enabled {
		c.Log.Info("Connecting to Redis...")
		ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
		c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
		cancel()
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	} else {
		c.Log.Info("Redis job lock disabled, overlap protection is per process")
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories creates the Postgres stores
func (c *Container) MustInitRepositories() {
	db := c.PG.DB()
	c.Repos.Ticks = pgrepo.NewTickRepository(db)
	c.Repos.Relation = pgrepo.NewRelationRepository(db, c.ReportLoc)
	c.Repos.Options = pgrepo.NewOptionsRepository(db)
	c.Repos.JobRuns = pgrepo.NewJobRunRepository(db)
	c.Repos.Links = pgrepo.NewLinkRepository(db)
	c.Repos.Retention = pgrepo.NewRetentionRepository(db)
	c.Log.Info("✓ Repositories initialized")
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters creates the chart extractor and the optional sinks
func (c *Container) MustInitAdapters() {
	venueLoc, err := time.LoadLocation(c.Config.Session.VenueTimezone)
	if err != nil {
		c.Log.Fatalf("failed to load venue timezone: %v", err)
	}
	c.Adapters.Extractor = chartsource.New(chartsource.Config{
		DevToolsURL:        c.Config.Options.DevToolsURL,
		Timeout:            c.Config.Options.Timeout(),
		RenderWait:         c.Config.Options.RenderWait(),
		RequirePositiveDTE: c.Config.Options.RequirePositiveDTE,
		SessionsPerMinute:  c.Config.Options.SessionsPerMinute,
		VenueLocation:      venueLoc,
	})
	c.Log.Infow("✓ Chart extractor ready", "devtools", c.Config.Options.DevToolsURL)

	if c.Config.Kafka.Enabled {
		c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
		c.Adapters.Publisher = events.NewPublisher(c.Adapters.KafkaProducer)
	}

	if c.CH != nil {
		c.Adapters.Mirror = chrepo.NewMirror(c.CH)
	}

	if c.Redis != nil {
		c.Adapters.JobLock = redisrepo.NewJobLock(c.Redis, c.Config.Redis.LockTTL)
	}

	c.Adapters.TelegramBot, c.Adapters.FailureAlerts = provideTelegramAlerts(c.Config, c.Log)
}

// ========================================
// Phase 5: Domain Services
// ========================================

// MustInitServices creates the audit log service and the session calendar
func (c *Container) MustInitServices() {
	runs := jobrun.NewService(c.Repos.JobRuns, metrics.RunObserver{})
	if observer, ok := c.ErrorTracker.(jobrun.Observer); ok {
		runs.AddObserver(observer)
	}
	if c.Adapters.FailureAlerts != nil {
		runs.AddObserver(c.Adapters.FailureAlerts)
	}
	if c.Adapters.Publisher != nil {
		runs.AddObserver(c.Adapters.Publisher)
	}
	c.Services.JobRuns = runs

	calendar, err := session.NewCalendar(session.Config{
		VenueTimezone: c.Config.Session.VenueTimezone,
		Holidays:      c.Config.Session.Holidays(),
		ForceOpen:     c.Config.Session.VenueForceOpen,
		SymbolModes:   c.Config.Session.SymbolModes(),
	})
	if err != nil {
		c.Log.Fatalf("failed to build session calendar: %v", err)
	}
	c.Services.Calendar = calendar

	gate, err := session.NewGate(calendar, c.Repos.Links)
	if err != nil {
		c.Log.Fatalf("failed to build extraction gate: %v", err)
	}
	c.Services.Gate = gate

	c.Log.Infow("✓ Services initialized", "symbol_modes", calendar.Modes())
}

// ========================================
// Phase 6: Application Layer
// ========================================

// MustInitApplication builds the control surface and registers metrics
func (c *Container) MustInitApplication() {
	metrics.Init()
	metrics.RegisterJobCollector(metrics.NewJobCollector(c.Services.JobRuns, c.Jobs.Orchestrator))

	checks := map[string]health.Pinger{"postgres": c.PG}
	if c.CH != nil {
		checks["clickhouse"] = c.CH
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}

	c.Application.HealthHandler = health.New(
		health.Config{
			ServiceName:          c.Config.App.Name,
			Version:              c.Config.App.Version,
			RelationStaleMinutes: c.Config.Alerts.RelationStaleMinutes,
			OptionsStaleMinutes:  c.Config.Alerts.OptionsStaleMinutes,
		},
		c.Services.JobRuns,
		c.Jobs.Orchestrator,
		c.Services.Calendar,
		checks,
	)
	c.Application.ControlHandler = control.NewHandler(c.Jobs.Orchestrator, c.Config.Control.RunNowPerMinute)

	if c.Config.Control.Secret == "" {
		c.Log.Warn("WORKER_CONTROL_SECRET is empty, secured endpoints will answer 500")
	}

	c.Application.HTTPServer = api.NewServer(
		api.ServerConfig{
			Port:   c.Config.Control.Port,
			Secret: c.Config.Control.Secret,
		},
		c.Application.HealthHandler,
		c.Application.ControlHandler,
		c.Log,
	)
	c.Log.Infow("✓ Control server configured", "port", c.Config.Control.Port)
}

// ========================================
// Providers
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Info("Initializing Kafka producer...")
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("Kafka brokers not configured, using default localhost:9092")
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		WriteTimeout: 10 * time.Second,
	})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers, "topics", kafka.AllTopics())
	return producer
}

// provideTelegramAlerts returns nils when alerts are disabled or the bot cannot authorize.
// A broken alert channel must not stop the worker.
func provideTelegramAlerts(cfg *config.Config, log *logger.Logger) (*telegram.Bot, *telegram.FailureAlerts) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}
	if cfg.Telegram.ChatID == 0 {
		log.Warn("Telegram alerts enabled without TELEGRAM_ALERT_CHAT_ID, alerts disabled")
		return nil, nil
	}

	bot, err := telegram.NewBot(telegram.Config{Token: cfg.Telegram.BotToken})
	if err != nil {
		log.Warnw("Failed to initialize Telegram bot, alerts disabled", "error", err)
		return nil, nil
	}

	log.Infow("✓ Telegram failure alerts enabled", "chat_id", cfg.Telegram.ChatID)
	return bot, telegram.NewFailureAlerts(bot, cfg.Telegram.ChatID)
}
