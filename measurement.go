package main

import (
	"net/http"

	"github.com/gorilla/websocket"

	"skyshield/interceptor/internal/logging"
	"skyshield/interceptor/internal/metrics"
	"skyshield/interceptor/internal/vision"
)

// handleVision authenticates and upgrades a vision collaborator, then streams
// its measurement frames into the vision loop.
func (a *App) handleVision(w http.ResponseWriter, r *http.Request) {
	if a.visionAuth != nil {
		if _, err := a.visionAuth.Verify(r.URL.Query().Get("auth_token")); err != nil {
			a.log.Warn("vision feed rejected",
				logging.String("remote", r.RemoteAddr),
				logging.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	upgrader := newUpgrader(a.cfg.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("vision upgrade failed", logging.Error(err))
		return
	}
	go a.visionReadPump(conn)
}

// visionReadPump decodes and validates measurement frames, handing the good
// ones to the vision loop. The channel never blocks the socket: a full
// backlog drops the frame and counts it.
func (a *App) visionReadPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(a.cfg.MaxPayloadBytes)
	log := a.log.With(logging.String("remote", conn.RemoteAddr().String()))
	log.Info("vision feed connected")
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Info("vision feed closed", logging.Error(err))
			return
		}
		m, err := vision.DecodeMeasurement(raw)
		if err != nil {
			metrics.MeasurementDropped("malformed")
			log.Debug("measurement frame unreadable", logging.Error(err))
			continue
		}
		if err := m.Validate(); err != nil {
			metrics.MeasurementDropped("invalid")
			log.Debug("measurement frame rejected", logging.Error(err))
			continue
		}
		select {
		case a.measurements <- m:
		default:
			//1.- The vision loop is behind; losing a frame beats stalling the socket.
			metrics.MeasurementDropped("backpressure")
		}
	}
}
