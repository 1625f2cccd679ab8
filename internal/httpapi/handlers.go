package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skyshield/interceptor/internal/logging"
)

// StatusProvider exposes the controller state the operational endpoints report.
type StatusProvider interface {
	Uptime() time.Duration
	TelemetryClients() int
	LiveTracks() int
	StartupError() error
}

// SessionFlusher forces buffered telemetry artifacts onto disk.
type SessionFlusher interface {
	FlushSession(ctx context.Context) (string, error)
}

// SessionFlusherFunc adapts a function into a SessionFlusher.
type SessionFlusherFunc func(ctx context.Context) (string, error)

// FlushSession implements SessionFlusher.
func (f SessionFlusherFunc) FlushSession(ctx context.Context) (string, error) { return f(ctx) }

// Limiter gates how frequently sensitive operations may be invoked.
type Limiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger     *logging.Logger
	Status     StatusProvider
	Flusher    SessionFlusher
	Limiter    Limiter
	Metrics    http.Handler
	TimeSource func() time.Time
}

// HandlerSet bundles the daemon's operational HTTP handlers.
type HandlerSet struct {
	logger  *logging.Logger
	status  StatusProvider
	flusher SessionFlusher
	limiter Limiter
	metrics http.Handler
	now     func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	return &HandlerSet{
		logger:  logger,
		status:  opts.Status,
		flusher: opts.Flusher,
		limiter: opts.Limiter,
		metrics: metrics,
		now:     now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.HealthHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.Handle("/metrics", h.metrics)
	mux.HandleFunc("/v1/session/flush", h.SessionFlushHandler())
}

// HealthHandler reports that the HTTP server is reachable.
func (h *HandlerSet) HealthHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports controller readiness, including loop health and
// the current tracking load.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status           string  `json:"status"`
		Message          string  `json:"message,omitempty"`
		UptimeSeconds    float64 `json:"uptime_seconds"`
		TelemetryClients int     `json:"telemetry_clients"`
		LiveTracks       int     `json:"live_tracks"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.status != nil {
			resp.TelemetryClients = h.status.TelemetryClients()
			resp.LiveTracks = h.status.LiveTracks()
			resp.UptimeSeconds = h.status.Uptime().Seconds()
			if err := h.status.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// SessionFlushHandler forces the telemetry recorder to persist its buffers.
func (h *HandlerSet) SessionFlushHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "session_flush"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.limiter != nil && !h.limiter.Allow() {
			reqLogger.Warn("session flush denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.flusher == nil {
			reqLogger.Warn("session flush denied: no recorder configured")
			http.Error(w, "session recording is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.flusher.FlushSession(r.Context())
		if err != nil {
			reqLogger.Error("session flush failed", logging.Error(err))
			http.Error(w, "failed to flush session", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("session flushed")
		writeJSON(w, http.StatusOK, response{Status: "flushed", Location: location})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
