package bootstrap

import (
	"oidworker/internal/domain/jobrun"
	domainoptions "oidworker/internal/domain/options"
	"oidworker/internal/metrics"
	"oidworker/internal/options"
	"oidworker/internal/relation"
	"oidworker/internal/retention"
	"oidworker/internal/workers"
)

// MustInitJobs builds the managed jobs and the orchestrator that runs them
func (c *Container) MustInitJobs() {
	c.Log.Info("Initializing jobs...")

	var relationSinks []relation.Sink
	var optionsSinks []options.Sink
	if c.Adapters.Mirror != nil {
		relationSinks = append(relationSinks, c.Adapters.Mirror)
		optionsSinks = append(optionsSinks, c.Adapters.Mirror)
	}
	if c.Adapters.Publisher != nil {
		relationSinks = append(relationSinks, c.Adapters.Publisher)
		optionsSinks = append(optionsSinks, c.Adapters.Publisher)
	}

	c.Jobs.Relation = relation.NewJob(
		c.Repos.Ticks,
		c.Repos.Relation,
		c.Services.Calendar,
		c.Services.JobRuns,
		c.ReportLoc,
		relationSinks...,
	)

	c.Jobs.Options = options.NewJob(
		c.Services.Gate,
		c.Adapters.Extractor,
		c.Repos.Ticks,
		c.Repos.Options,
		c.Services.JobRuns,
		options.Config{
			MaxAttempts: c.Config.Options.ExtractMaxAttempts,
			RetryDelay:  c.Config.Options.RetryDelay(),
			Timeout:     c.Config.Options.Timeout(),
		},
		c.ReportLoc,
		optionsSinks...,
	)
	c.Jobs.Options.OnExtractAttempt(func(view domainoptions.ViewType, attempt int, err error) {
		metrics.RecordExtractionAttempt(string(view), err)
	})

	c.Jobs.Retention = retention.NewJob(c.Repos.Retention, c.Services.JobRuns, retention.Windows{
		StructuredDays:  c.Config.Retention.StructuredDays,
		JobRunsDays:     c.Config.Retention.JobRunsDays,
		SeriesLinksDays: c.Config.Retention.SeriesLinksDays,
		WebhookLogDays:  c.Config.Retention.WebhookLogDays,
	})

	registry, err := workers.NewRegistry(c.Jobs.Relation, c.Jobs.Options, c.Jobs.Retention)
	if err != nil {
		c.Log.Fatalf("failed to register jobs: %v", err)
	}
	c.Jobs.Registry = registry

	c.Jobs.Orchestrator = workers.NewOrchestrator(registry, c.Services.JobRuns, c.ScheduleLoc)
	if c.Adapters.JobLock != nil {
		c.Jobs.Orchestrator.WithLocker(c.Adapters.JobLock)
	}

	c.Log.Infow("✓ Jobs initialized",
		"jobs", registry.Names(),
		"relation_sinks", len(relationSinks),
		"options_sinks", len(optionsSinks),
		"distributed_lock", c.Adapters.JobLock != nil,
	)
}

// MustInitScheduler registers cron specs for every managed job
func (c *Container) MustInitScheduler() {
	c.Jobs.Scheduler = workers.NewScheduler(c.Jobs.Orchestrator, c.ScheduleLoc)

	specs := map[jobrun.JobName]string{
		jobrun.JobRelation:  c.Config.Schedule.RelationCron,
		jobrun.JobOptions:   c.Config.Schedule.OptionsCron,
		jobrun.JobRetention: c.Config.Schedule.RetentionCron,
	}
	for _, job := range jobrun.Jobs {
		if err := c.Jobs.Scheduler.Add(specs[job], job); err != nil {
			c.Log.Fatalf("failed to schedule %s: %v", job, err)
		}
	}

	c.Log.Infow("✓ Scheduler configured", "timezone", c.ScheduleLoc.String())
}
