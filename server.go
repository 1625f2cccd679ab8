package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skyshield/interceptor/internal/httpapi"
	"skyshield/interceptor/internal/logging"
)

// newHandler assembles the daemon HTTP surface: operational endpoints plus
// the vision ingress and telemetry fan-out websockets.
func newHandler(app *App, log *logging.Logger) http.Handler {
	mux := http.NewServeMux()
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:  log,
		Status:  app,
		Flusher: httpapi.SessionFlusherFunc(app.flushSession),
		Limiter: httpapi.NewThrottle(1, 3, time.Now),
		Metrics: promhttp.Handler(),
	})
	handlers.Register(mux)
	mux.HandleFunc("/v1/vision", app.handleVision)
	mux.HandleFunc("/v1/telemetry", app.handleTelemetry)
	mux.HandleFunc("/v1/commands", handleCommands)
	return logging.HTTPTraceMiddleware(log)(mux)
}

// newUpgrader builds a websocket upgrader honoring the configured origin
// allowlist. An empty list admits every origin, matching bench tooling that
// rarely sets the header.
func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, candidate := range allowed {
				if strings.EqualFold(candidate, origin) {
					return true
				}
			}
			return false
		},
	}
}

// handleTelemetry upgrades a viewer connection and hands it to the hub, which
// owns its pumps and applies the client cap.
func (a *App) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	upgrader := newUpgrader(a.cfg.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("telemetry upgrade failed", logging.Error(err))
		return
	}
	a.hub.Attach(conn, r.RemoteAddr)
}
