package robotlink

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skyshield/interceptor/internal/auth"
	"skyshield/interceptor/internal/logging"
)

const (
	bridgeTokenTTL   = 5 * time.Minute
	bridgeAudience   = "robot"
	bridgeSubject    = "interceptor-controller"
	defaultRedial    = 500 * time.Millisecond
	bridgeWriteLimit = 2 * time.Second
)

// ErrNotConnected signals the bridge has no live connection and the redial
// window has not elapsed yet.
var ErrNotConnected = errors.New("robot bridge not connected")

// commandFrame is the torque command sent to the arm controller.
type commandFrame struct {
	SchemaVersion string    `json:"schema_version"`
	Seq           uint64    `json:"seq"`
	Torque        []float64 `json:"torque"`
	PeriodMs      float64   `json:"period_ms"`
}

// sensorFrame mirrors the joint state stream published by the arm controller.
type sensorFrame struct {
	SchemaVersion string    `json:"schema_version"`
	Time          float64   `json:"t"`
	Q             []float64 `json:"q"`
	DQ            []float64 `json:"dq"`
}

// BridgeLink speaks the arm controller's websocket protocol: torque commands
// out, joint sensor frames in. Reads and writes run on the caller's cadence,
// so a dropped connection surfaces as an Apply error and the next call past
// the redial window dials again.
type BridgeLink struct {
	mu       sync.Mutex
	endpoint string
	issuer   *auth.TokenIssuer
	log      *logging.Logger
	dialer   *websocket.Dialer
	conn     *websocket.Conn
	seq      uint64
	lastDial time.Time
	redial   time.Duration
	closed   bool

	stateMu  sync.RWMutex
	q        []float64
	dq       []float64
	sensedAt float64
	hasState bool
}

// NewBridgeLink dials the arm controller at endpoint, authenticating with an
// HMAC token minted from secret. An empty secret skips the auth query
// parameter for bench setups without a verifier.
func NewBridgeLink(endpoint, secret string, log *logging.Logger) (*BridgeLink, error) {
	if endpoint == "" {
		return nil, errors.New("robot bridge endpoint required")
	}
	if log == nil {
		log = logging.L()
	}
	link := &BridgeLink{
		endpoint: endpoint,
		log:      log.With(logging.String("component", "robot_bridge")),
		dialer:   &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		redial:   defaultRedial,
	}
	if secret != "" {
		issuer, err := auth.NewTokenIssuer(secret, bridgeTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("configure bridge auth: %w", err)
		}
		link.issuer = issuer
	}
	link.mu.Lock()
	err := link.dialLocked()
	link.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return link, nil
}

// State returns the latest joint state received from the arm controller.
func (b *BridgeLink) State() ([]float64, []float64, error) {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	if !b.hasState {
		return nil, nil, ErrNoSensors
	}
	q := append([]float64(nil), b.q...)
	dq := append([]float64(nil), b.dq...)
	return q, dq, nil
}

// SensedAt reports the controller timestamp of the latest joint state.
func (b *BridgeLink) SensedAt() (float64, bool) {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.sensedAt, b.hasState
}

// Apply sends one torque command. A dead connection is redialed at most once
// per redial window; commands in between fail fast with ErrNotConnected.
func (b *BridgeLink) Apply(torque []float64, dt float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("robot bridge closed")
	}
	if b.conn == nil {
		if time.Since(b.lastDial) < b.redial {
			return ErrNotConnected
		}
		if err := b.dialLocked(); err != nil {
			return err
		}
	}
	b.seq++
	frame := commandFrame{
		SchemaVersion: "v1",
		Seq:           b.seq,
		Torque:        append([]float64(nil), torque...),
		PeriodMs:      dt * 1000,
	}
	b.conn.SetWriteDeadline(time.Now().Add(bridgeWriteLimit))
	if err := b.conn.WriteJSON(frame); err != nil {
		b.dropLocked(b.conn)
		return fmt.Errorf("send torque command: %w", err)
	}
	return nil
}

// Close shuts the connection down and stops further redials.
func (b *BridgeLink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.conn == nil {
		return nil
	}
	conn := b.conn
	b.conn = nil
	return conn.Close()
}

// dialLocked connects and starts the sensor reader. Callers hold b.mu.
func (b *BridgeLink) dialLocked() error {
	b.lastDial = time.Now()
	target := b.endpoint
	if b.issuer != nil {
		token, err := b.issuer.Mint(bridgeSubject, bridgeAudience)
		if err != nil {
			return fmt.Errorf("mint bridge token: %w", err)
		}
		u, err := url.Parse(b.endpoint)
		if err != nil {
			return fmt.Errorf("parse bridge endpoint: %w", err)
		}
		query := u.Query()
		query.Set("auth_token", token)
		u.RawQuery = query.Encode()
		target = u.String()
	}
	conn, _, err := b.dialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("dial robot bridge: %w", err)
	}
	b.conn = conn
	go b.readPump(conn)
	b.log.Info("robot bridge connected", logging.String("endpoint", b.endpoint))
	return nil
}

// dropLocked discards conn if it is still the active connection.
func (b *BridgeLink) dropLocked(conn *websocket.Conn) {
	if b.conn != conn {
		return
	}
	b.conn = nil
	conn.Close()
}

// readPump caches incoming joint state until the connection dies.
func (b *BridgeLink) readPump(conn *websocket.Conn) {
	for {
		var frame sensorFrame
		if err := conn.ReadJSON(&frame); err != nil {
			b.mu.Lock()
			closed := b.closed
			b.dropLocked(conn)
			b.mu.Unlock()
			if !closed {
				b.log.Warn("robot bridge read failed", logging.Error(err))
			}
			return
		}
		if len(frame.Q) == 0 || len(frame.Q) != len(frame.DQ) {
			b.log.Warn("robot bridge sensor frame malformed",
				logging.Int("q_len", len(frame.Q)),
				logging.Int("dq_len", len(frame.DQ)))
			continue
		}
		b.stateMu.Lock()
		b.q = append(b.q[:0], frame.Q...)
		b.dq = append(b.dq[:0], frame.DQ...)
		b.sensedAt = frame.Time
		b.hasState = true
		b.stateMu.Unlock()
	}
}
