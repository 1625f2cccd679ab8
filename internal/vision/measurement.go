package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"skyshield/interceptor/internal/ballistics"
	"skyshield/interceptor/internal/geom"
)

var (
	errMeasurementEmptyPayload   = errors.New("empty measurement payload")
	errMeasurementMissingVersion = errors.New("measurement missing schema version")
	errMeasurementBadID          = errors.New("measurement projectile id must be positive")
	errMeasurementBadTime        = errors.New("measurement timestamp is not finite")
	errMeasurementBadPosition    = errors.New("measurement position is not finite")
)

// Measurement mirrors the JSON layout of one vision sample on the wire.
type Measurement struct {
	SchemaVersion string     `json:"schema_version"`
	ProjectileID  int        `json:"projectile_id"`
	Time          float64    `json:"t"`
	Position      [3]float64 `json:"position"`
}

// DecodeMeasurement parses a websocket frame into a structured sample.
func DecodeMeasurement(raw []byte) (*Measurement, error) {
	//1.- Ensure we have data to decode before hitting JSON parsing.
	if len(raw) == 0 {
		return nil, errMeasurementEmptyPayload
	}
	var payload Measurement
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Validate enforces required metadata and finite numerics on the payload.
func (m *Measurement) Validate() error {
	if m == nil {
		return errors.New("measurement payload is nil")
	}
	if m.SchemaVersion == "" {
		return errMeasurementMissingVersion
	}
	if m.ProjectileID <= 0 {
		return fmt.Errorf("%w: %d", errMeasurementBadID, m.ProjectileID)
	}
	if math.IsNaN(m.Time) || math.IsInf(m.Time, 0) || m.Time < 0 {
		return fmt.Errorf("%w: %v", errMeasurementBadTime, m.Time)
	}
	for _, v := range m.Position {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", errMeasurementBadPosition, m.Position)
		}
	}
	return nil
}

// Observation converts the payload into the estimator's sample type.
func (m *Measurement) Observation() (int, ballistics.Observation) {
	return m.ProjectileID, ballistics.Observation{
		Time:     m.Time,
		Position: geom.Vec3{X: m.Position[0], Y: m.Position[1], Z: m.Position[2]},
	}
}
