package health

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"oidworker/internal/domain/jobrun"
	"oidworker/internal/session"
	"oidworker/pkg/logger"
)

// recentRuns is how many job runs are scanned for the latest run per job
const recentRuns = 30

// RunLister lists recent job runs, newest first
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]jobrun.Run, error)
}

// RunningJobs reports in-flight job names
type RunningJobs interface {
	Running() []string
}

// Sessions reports per-symbol session state and configured modes
type Sessions interface {
	Symbols(at time.Time) []session.SymbolState
	Modes() map[string]string
}

// Pinger checks one backend
type Pinger interface {
	Health(ctx context.Context) error
}

// Config holds staleness thresholds
type Config struct {
	ServiceName          string
	Version              string
	RelationStaleMinutes int
	OptionsStaleMinutes  int
}

// Handler provides health check endpoints
type Handler struct {
	cfg       Config
	runs      RunLister
	running   RunningJobs
	sessions  Sessions
	checks    map[string]Pinger
	startTime time.Time
	now       func() time.Time
	log       *logger.Logger
}

// New creates a new health check handler. checks may be empty.
func New(cfg Config, runs RunLister, running RunningJobs, sessions Sessions, checks map[string]Pinger) *Handler {
	return &Handler{
		cfg:       cfg,
		runs:      runs,
		running:   running,
		sessions:  sessions,
		checks:    checks,
		startTime: time.Now(),
		now:       time.Now,
		log:       logger.Get().With("component", "health"),
	}
}

// Alerts flags stale jobs for operators
type Alerts struct {
	RelationStale      bool    `json:"relation_stale"`
	OptionsStale       bool    `json:"cme_stale"`
	RelationAgeMin     *int64  `json:"relation_age_min"`
	OptionsAgeMin      *int64  `json:"cme_age_min"`
	RelationLastStatus *string `json:"relation_last_status"`
	OptionsLastStatus  *string `json:"cme_last_status"`
	RelationSkipReason *string `json:"relation_skip_reason"`
	OptionsSkipReason  *string `json:"cme_skip_reason"`
}

// Details is the body of GET /health/details
type Details struct {
	OK                 bool                  `json:"ok"`
	NowUTC             time.Time             `json:"now_utc"`
	RunningJobs        []string              `json:"running_jobs"`
	LatestJobs         []jobrun.Run          `json:"latest_jobs"`
	Alerts             Alerts                `json:"alerts"`
	SymbolSessions     []session.SymbolState `json:"symbol_sessions"`
	SymbolSessionModes map[string]string     `json:"symbol_session_modes"`
}

// ComponentHealth represents health of a single backend
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WithClock overrides the time source
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// HandleHealth is the unauthenticated liveness probe
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleDetails reports running jobs, the latest run per job and session states
func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	details, err := h.Details(ctx)
	if err != nil {
		h.log.Errorw("Health details failed", "error", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":           false,
			"error":        err.Error(),
			"running_jobs": h.running.Running(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

// Details builds the health details document
func (h *Handler) Details(ctx context.Context) (*Details, error) {
	runs, err := h.runs.Recent(ctx, recentRuns)
	if err != nil {
		return nil, err
	}

	now := h.now().UTC()
	latest := jobrun.LatestByJob(runs)

	// newest first, one per job
	ordered := make([]jobrun.Run, 0, len(latest))
	seen := make(map[jobrun.JobName]bool, len(latest))
	for _, r := range runs {
		if !seen[r.JobName] {
			seen[r.JobName] = true
			ordered = append(ordered, r)
		}
	}

	relation, hasRelation := latest[jobrun.JobRelation]
	opts, hasOptions := latest[jobrun.JobOptions]

	alerts := Alerts{}
	alerts.RelationStale, alerts.RelationAgeMin, alerts.RelationLastStatus, alerts.RelationSkipReason =
		staleness(now, relation, hasRelation, jobrun.ReasonRelationMarketClosed, h.cfg.RelationStaleMinutes)
	alerts.OptionsStale, alerts.OptionsAgeMin, alerts.OptionsLastStatus, alerts.OptionsSkipReason =
		staleness(now, opts, hasOptions, jobrun.ReasonVenueSessionClosed, h.cfg.OptionsStaleMinutes)

	return &Details{
		OK:                 true,
		NowUTC:             now,
		RunningJobs:        h.running.Running(),
		LatestJobs:         ordered,
		Alerts:             alerts,
		SymbolSessions:     h.sessions.Symbols(now),
		SymbolSessionModes: h.sessions.Modes(),
	}, nil
}

// staleness evaluates one job. A skip for a closed market is never stale; a job that never ran is.
func staleness(now time.Time, run jobrun.Run, ok bool, closedReason string, staleMinutes int) (stale bool, age *int64, status, reason *string) {
	if !ok {
		return true, nil, nil, nil
	}

	minutes := int64(math.Max(0, math.Round(now.Sub(run.StartedAt).Minutes())))
	age = &minutes

	s := string(run.Status)
	status = &s

	if r := run.Metadata.Reason(); r != "" {
		reason = &r
	}

	if run.Status == jobrun.StatusSkipped && reason != nil && *reason == closedReason {
		return false, age, status, reason
	}
	return minutes > int64(staleMinutes), age, status, reason
}

// HandleReadiness pings every configured backend
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]ComponentHealth, len(h.checks))
	allHealthy := true
	for name, p := range h.checks {
		c := check(ctx, p)
		checks[name] = c
		if c.Status != "healthy" {
			allHealthy = false
		}
	}

	status := map[string]interface{}{
		"status":    "healthy",
		"service":   h.cfg.ServiceName,
		"version":   h.cfg.Version,
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}

	code := http.StatusOK
	if !allHealthy {
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", checks)
	}
	WriteJSON(w, code, status)
}

func check(ctx context.Context, p Pinger) ComponentHealth {
	start := time.Now()
	err := p.Health(ctx)
	elapsed := time.Since(start)

	if err != nil {
		return ComponentHealth{Status: "unhealthy", ResponseTime: elapsed.String(), Error: err.Error()}
	}
	return ComponentHealth{Status: "healthy", ResponseTime: elapsed.String()}
}

// WriteJSON writes v with the given status code
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
