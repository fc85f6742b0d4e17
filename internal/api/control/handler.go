package control

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"oidworker/internal/api/health"
	"oidworker/internal/workers"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// SecretHeader carries the shared control secret
const SecretHeader = "x-worker-secret"

// Runner runs one run-now target synchronously
type Runner interface {
	RunNow(ctx context.Context, target string) error
}

// RequireSecret rejects requests without the configured secret.
// An empty secret disables the secured routes entirely.
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				health.WriteJSON(w, http.StatusInternalServerError, errorBody("worker control secret not configured"))
				return
			}
			got := r.Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				health.WriteJSON(w, http.StatusUnauthorized, errorBody(errors.ErrUnauthorized.Error()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func errorBody(msg string) map[string]interface{} {
	return map[string]interface{}{"ok": false, "error": msg}
}

type runNowRequest struct {
	Job string `json:"job"`
}

// Handler serves POST /run-now
type Handler struct {
	runner  Runner
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewHandler creates the run-now handler. perMinute <= 0 disables throttling.
func NewHandler(runner Runner, perMinute int) *Handler {
	h := &Handler{
		runner: runner,
		log:    logger.Get().With("component", "control"),
	}
	if perMinute > 0 {
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return h
}

// HandleRunNow runs the requested target and reports the outcome
func (h *Handler) HandleRunNow(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		health.WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": errors.Wrap(errors.ErrRateLimitExceeded, "run-now").Error()})
		return
	}

	var req runNowRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		health.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			health.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
			return
		}
	}

	if _, err := workers.Resolve(req.Job); err != nil {
		health.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": workers.TargetsHint()})
		return
	}

	h.log.Infow("Run-now requested", "job", req.Job, "remote", r.RemoteAddr)

	// a client disconnect must not abort the run or its audit row
	if err := h.runner.RunNow(context.WithoutCancel(r.Context()), req.Job); err != nil {
		if errors.Is(err, errors.ErrInvalidInput) {
			health.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.log.Errorw("Run-now failed", "job", req.Job, "error", err)
		health.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	health.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "job": req.Job})
}
