package bootstrap

import (
	"context"
	"sync"
	"time"

	"oidworker/internal/adapters/chartsource"
	chclient "oidworker/internal/adapters/clickhouse"
	"oidworker/internal/adapters/config"
	"oidworker/internal/adapters/kafka"
	pgclient "oidworker/internal/adapters/postgres"
	redisclient "oidworker/internal/adapters/redis"
	"oidworker/internal/adapters/telegram"
	"oidworker/internal/api"
	"oidworker/internal/api/control"
	"oidworker/internal/api/health"
	"oidworker/internal/domain/jobrun"
	"oidworker/internal/events"
	"oidworker/internal/options"
	"oidworker/internal/relation"
	chrepo "oidworker/internal/repository/clickhouse"
	pgrepo "oidworker/internal/repository/postgres"
	redisrepo "oidworker/internal/repository/redis"
	"oidworker/internal/retention"
	"oidworker/internal/session"
	"oidworker/internal/workers"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Reporting (Bangkok) and schedule timezones
	ReportLoc   *time.Location
	ScheduleLoc *time.Location

	// Infrastructure Layer (Data stores). CH and Redis are nil when disabled.
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Jobs        *Jobs
	Application *Application

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the Postgres stores
type Repositories struct {
	Ticks     *pgrepo.TickRepository
	Relation  *pgrepo.RelationRepository
	Options   *pgrepo.OptionsRepository
	JobRuns   *pgrepo.JobRunRepository
	Links     *pgrepo.LinkRepository
	Retention *pgrepo.RetentionRepository
}

// Adapters groups external adapters. Optional ones stay nil when disabled.
type Adapters struct {
	Extractor     *chartsource.Extractor
	KafkaProducer *kafka.Producer
	Publisher     *events.Publisher
	Mirror        *chrepo.Mirror
	JobLock       *redisrepo.JobLock
	TelegramBot   *telegram.Bot
	FailureAlerts *telegram.FailureAlerts
}

// Services groups domain services shared by jobs and endpoints
type Services struct {
	JobRuns  *jobrun.Service
	Calendar *session.Calendar
	Gate     *session.Gate
}

// Jobs groups managed jobs and their orchestration
type Jobs struct {
	Relation     *relation.Job
	Options      *options.Job
	Retention    *retention.Job
	Registry     *workers.Registry
	Orchestrator *workers.Orchestrator
	Scheduler    *workers.Scheduler
}

// Application groups the control surface
type Application struct {
	HTTPServer     *api.Server
	HealthHandler  *health.Handler
	ControlHandler *control.Handler
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Jobs:        &Jobs{},
		Application: &Application{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInitCore initializes everything needed to run jobs, without the HTTP surface.
// Used directly by one-shot commands.
func (c *Container) MustInitCore() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitJobs()
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitCore()
	c.MustInitScheduler()
	c.MustInitApplication()
}

// Start starts the control server and the scheduler
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorw("HTTP server failed", "error", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	if err := c.Jobs.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}

	for job, next := range c.Jobs.Scheduler.Next() {
		c.Log.Infow("Next scheduled run", "job", job, "at", next.In(c.ScheduleLoc).Format(time.RFC3339))
	}

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")
	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.Application.HTTPServer,
		c.Jobs.Scheduler,
		c.Adapters.KafkaProducer,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}

// Close releases resources after a one-shot command
func (c *Container) Close() {
	c.Cancel()
	c.Lifecycle.Shutdown(
		c.WG,
		nil,
		nil,
		c.Adapters.KafkaProducer,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}
