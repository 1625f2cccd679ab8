package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the interceptor service listens on.
	DefaultAddr = ":43117"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 64

	// DefaultControlRateHz paces the control loop.
	DefaultControlRateHz = 500
	// DefaultRobotRateHz paces command dispatch to real hardware.
	DefaultRobotRateHz = 100
	// DefaultVisionRateHz paces measurement ingest in simulation mode.
	DefaultVisionRateHz = 120
	// DefaultTelemetryInterval paces snapshot broadcast and recording.
	DefaultTelemetryInterval = 250 * time.Millisecond
	// DefaultTelemetryDir is where session recordings are written.
	DefaultTelemetryDir = "sessions"

	// DefaultExpiryWindow drops tracks unseen for this many sim seconds.
	DefaultExpiryWindow = 0.5
	// DefaultCommitWindow is how close to the intercept time the arm commits.
	DefaultCommitWindow = 0.25
	// DefaultResidualGate rejects trajectory fits with a worse RMS residual.
	DefaultResidualGate = 0.15
	// DefaultReadyTolerance is the joint error under which the arm counts as re-armed.
	DefaultReadyTolerance = 0.05

	// DefaultLaunchPeriod is the mean gap between simulated launches in seconds.
	DefaultLaunchPeriod = 1.5
	// DefaultLaunchSpeed is the mean simulated launch speed in m/s.
	DefaultLaunchSpeed = 5.0
	// DefaultLaunchSeed fixes the simulated launch stream.
	DefaultLaunchSeed uint64 = 1

	// DefaultWorkspaceInner is the reachable shell's inner radius in meters.
	DefaultWorkspaceInner = 0.35
	// DefaultWorkspaceOuter is the reachable shell's outer radius in meters.
	DefaultWorkspaceOuter = 0.95
	// DefaultWorkspaceFloor is the lowest interceptable height in meters.
	DefaultWorkspaceFloor = 0.15

	// DefaultLogLevel controls verbosity for service logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "interceptor.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the interceptor service.
type Config struct {
	Address         string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int

	Simulation  bool
	StartPaused bool

	ControlRateHz     int
	RobotRateHz       int
	VisionRateHz      int
	TelemetryInterval time.Duration
	TelemetryDir      string
	SessionID         string

	ExpiryWindow   float64
	CommitWindow   float64
	ResidualGate   float64
	ReadyTolerance float64

	// TorqueLimits and the joint bound vectors override the arm model's
	// factory values when set; lengths must match the joint count.
	TorqueLimits []float64
	JointLower   []float64
	JointUpper   []float64
	// GainOverrides replaces individual compiled-in control gains by name.
	GainOverrides map[string]float64

	RobotURL    string
	RobotToken  string
	VisionToken string

	LaunchPeriod float64
	LaunchSpeed  float64
	LaunchSeed   uint64

	WorkspaceInner float64
	WorkspaceOuter float64
	WorkspaceFloor float64
	BasePosition   [3]float64

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the service configuration from environment variables, applying
// sane defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:           getString("INTERCEPTOR_ADDR", DefaultAddr),
		AllowedOrigins:    parseList(os.Getenv("INTERCEPTOR_ALLOWED_ORIGINS")),
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		PingInterval:      DefaultPingInterval,
		MaxClients:        DefaultMaxClients,
		Simulation:        true,
		ControlRateHz:     DefaultControlRateHz,
		RobotRateHz:       DefaultRobotRateHz,
		VisionRateHz:      DefaultVisionRateHz,
		TelemetryInterval: DefaultTelemetryInterval,
		TelemetryDir:      getString("INTERCEPTOR_TELEMETRY_DIR", DefaultTelemetryDir),
		SessionID:         strings.TrimSpace(os.Getenv("INTERCEPTOR_SESSION_ID")),
		ExpiryWindow:      DefaultExpiryWindow,
		CommitWindow:      DefaultCommitWindow,
		ResidualGate:      DefaultResidualGate,
		ReadyTolerance:    DefaultReadyTolerance,
		RobotURL:          strings.TrimSpace(os.Getenv("INTERCEPTOR_ROBOT_URL")),
		RobotToken:        strings.TrimSpace(os.Getenv("INTERCEPTOR_ROBOT_TOKEN")),
		VisionToken:       strings.TrimSpace(os.Getenv("INTERCEPTOR_VISION_TOKEN")),
		LaunchPeriod:      DefaultLaunchPeriod,
		LaunchSpeed:       DefaultLaunchSpeed,
		LaunchSeed:        DefaultLaunchSeed,
		WorkspaceInner:    DefaultWorkspaceInner,
		WorkspaceOuter:    DefaultWorkspaceOuter,
		WorkspaceFloor:    DefaultWorkspaceFloor,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("INTERCEPTOR_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("INTERCEPTOR_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_SIMULATION")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_SIMULATION must be a boolean value, got %q", raw))
		} else {
			cfg.Simulation = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_PAUSED")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_PAUSED must be a boolean value, got %q", raw))
		} else {
			cfg.StartPaused = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	parseRate := func(key string, target *int) {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			value, err := strconv.Atoi(raw)
			if err != nil || value <= 0 {
				problems = append(problems, fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
			} else {
				*target = value
			}
		}
	}
	parseRate("INTERCEPTOR_CONTROL_RATE_HZ", &cfg.ControlRateHz)
	parseRate("INTERCEPTOR_ROBOT_RATE_HZ", &cfg.RobotRateHz)
	parseRate("INTERCEPTOR_VISION_RATE_HZ", &cfg.VisionRateHz)

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_TELEMETRY_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_TELEMETRY_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.TelemetryInterval = duration
		}
	}

	parseSeconds := func(key string, target *float64) {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil || value <= 0 {
				problems = append(problems, fmt.Sprintf("%s must be a positive number, got %q", key, raw))
			} else {
				*target = value
			}
		}
	}
	parseSeconds("INTERCEPTOR_EXPIRY_WINDOW", &cfg.ExpiryWindow)
	parseSeconds("INTERCEPTOR_COMMIT_WINDOW", &cfg.CommitWindow)
	parseSeconds("INTERCEPTOR_RESIDUAL_GATE", &cfg.ResidualGate)
	parseSeconds("INTERCEPTOR_READY_TOLERANCE", &cfg.ReadyTolerance)
	parseSeconds("INTERCEPTOR_LAUNCH_PERIOD", &cfg.LaunchPeriod)
	parseSeconds("INTERCEPTOR_LAUNCH_SPEED", &cfg.LaunchSpeed)
	parseSeconds("INTERCEPTOR_WORKSPACE_INNER", &cfg.WorkspaceInner)
	parseSeconds("INTERCEPTOR_WORKSPACE_OUTER", &cfg.WorkspaceOuter)
	parseSeconds("INTERCEPTOR_WORKSPACE_FLOOR", &cfg.WorkspaceFloor)

	parseVector := func(key string, target *[]float64) {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			values, err := parseFloatList(raw)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s must be comma separated numbers, got %q", key, raw))
			} else {
				*target = values
			}
		}
	}
	parseVector("INTERCEPTOR_TORQUE_LIMITS", &cfg.TorqueLimits)
	parseVector("INTERCEPTOR_JOINT_LOWER", &cfg.JointLower)
	parseVector("INTERCEPTOR_JOINT_UPPER", &cfg.JointUpper)

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_GAINS")); raw != "" {
		overrides, err := parseAssignments(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_GAINS must be comma separated name=value pairs, got %q", raw))
		} else {
			cfg.GainOverrides = overrides
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_LAUNCH_SEED")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_LAUNCH_SEED must be an unsigned integer, got %q", raw))
		} else {
			cfg.LaunchSeed = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_BASE_POSITION")); raw != "" {
		position, err := parseVec3(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_BASE_POSITION must be three comma separated numbers, got %q", raw))
		} else {
			cfg.BasePosition = position
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("INTERCEPTOR_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("INTERCEPTOR_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	//1.- Cross-field checks run after every individual override is applied.
	if cfg.WorkspaceInner >= cfg.WorkspaceOuter {
		problems = append(problems, fmt.Sprintf(
			"INTERCEPTOR_WORKSPACE_INNER (%v) must be smaller than INTERCEPTOR_WORKSPACE_OUTER (%v)",
			cfg.WorkspaceInner, cfg.WorkspaceOuter))
	}
	if !cfg.Simulation && cfg.RobotURL == "" {
		problems = append(problems, "INTERCEPTOR_ROBOT_URL must be set when INTERCEPTOR_SIMULATION is false")
	}
	if len(cfg.JointLower) != len(cfg.JointUpper) {
		problems = append(problems, fmt.Sprintf(
			"INTERCEPTOR_JOINT_LOWER and INTERCEPTOR_JOINT_UPPER must be set together with equal lengths, got %d/%d",
			len(cfg.JointLower), len(cfg.JointUpper)))
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}

func parseVec3(raw string) ([3]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return [3]float64{}, fmt.Errorf("expected 3 components, got %d", len(parts))
	}
	var out [3]float64
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [3]float64{}, err
		}
		out[i] = value
	}
	return out, nil
}

func parseFloatList(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}

func parseAssignments(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(raw, ",") {
		name, rawValue, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("missing '=' in %q", part)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("empty name in %q", part)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}
