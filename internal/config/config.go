// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Keys are flat snake_case so they map 1:1 onto KITCHENBEAT_* env vars.
//   - Durations are expressed in milliseconds (suffix _ms).
//   - Nested tables (score weights, mapping) are set from the YAML file;
//     env vars reach them with a double underscore, e.g.
//     KITCHENBEAT_SCORE_WEIGHTS__PERFECT.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the raw message queue between transports and workers.
	QueueSize int `koanf:"queue_size"`

	// InboxSize bounds the normalized event queue feeding the session loop.
	InboxSize int `koanf:"inbox_size"`

	// WorkerCount sets the number of normalization workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the redelivery cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ChartPath points at the chart file loaded at startup.
	ChartPath string `koanf:"chart_path"`

	TickIntervalMS    int `koanf:"tick_interval_ms"`
	DisplayIntervalMS int `koanf:"display_interval_ms"`
	CountdownMS       int `koanf:"countdown_ms"`
	LaneLookaheadMS   int `koanf:"lane_lookahead_ms"`

	// Timing tolerances.
	PerfectToleranceMS int     `koanf:"perfect_tolerance_ms"`
	GoodToleranceMS    int     `koanf:"good_tolerance_ms"`
	EarlyWindowMS      int     `koanf:"early_window_ms"`
	LateWindowMS       int     `koanf:"late_window_ms"`
	HoldGraceMS        int     `koanf:"hold_grace_ms"`
	HoldGoodCoverage   float64 `koanf:"hold_good_coverage"`

	// Node clock estimation.
	ClockSkewThresholdMS int     `koanf:"clock_skew_threshold_ms"`
	ClockSmoothing       float64 `koanf:"clock_smoothing"`
	LivenessTimeoutMS    int     `koanf:"liveness_timeout_ms"`

	// Prometheus naming and the runtime sampling period.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	MetricsRefreshMS int    `koanf:"metrics_refresh_ms"`

	// MaxScoreboardLimit caps GET /scoreboard?limit.
	MaxScoreboardLimit int `koanf:"max_scoreboard_limit"`

	ScoreWeights ScoreWeights `koanf:"score_weights"`

	// MQTT transport. An empty broker disables it.
	MQTTBroker        string `koanf:"mqtt_broker"`
	MQTTClientID      string `koanf:"mqtt_client_id"`
	MQTTUsername      string `koanf:"mqtt_username"`
	MQTTPassword      string `koanf:"mqtt_password"`
	MQTTQoS           int    `koanf:"mqtt_qos"`
	MQTTPlaybackTopic string `koanf:"mqtt_playback_topic"`
	MQTTDisplayTopic  string `koanf:"mqtt_display_topic"`

	Mapping MappingConfig `koanf:"mapping"`
}

// ScoreWeights are the points awarded per grade.
type ScoreWeights struct {
	Perfect float64 `koanf:"perfect"`
	Good    float64 `koanf:"good"`
	Miss    float64 `koanf:"miss"`
}

// MappingConfig is the static mapping table from node topics and action
// identifiers to tracks and sounds.
type MappingConfig struct {
	// Topics maps a node topic to a track.
	Topics map[string]string `koanf:"topics"`
	// Actions maps track -> action id -> action details.
	Actions map[string]map[string]ActionConfig `koanf:"actions"`
}

// ActionConfig describes one action of a track.
type ActionConfig struct {
	Sound    string `koanf:"sound"`
	Category string `koanf:"category"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		QueueSize:            4096,
		InboxSize:            1024,
		WorkerCount:          runtime.NumCPU(),
		DedupeSize:           4096,
		ChartPath:            "charts/demo.yaml",
		TickIntervalMS:       5,
		DisplayIntervalMS:    100,
		CountdownMS:          3000,
		LaneLookaheadMS:      3000,
		PerfectToleranceMS:   50,
		GoodToleranceMS:      150,
		EarlyWindowMS:        200,
		LateWindowMS:         200,
		HoldGraceMS:          150,
		HoldGoodCoverage:     0.9,
		ClockSkewThresholdMS: 250,
		ClockSmoothing:       0.1,
		LivenessTimeoutMS:    5000,
		MetricsNamespace:     "kitchenbeat",
		MetricsSubsystem:     "game",
		MetricsRefreshMS:     10000,
		MaxScoreboardLimit:   100,
		ScoreWeights:         ScoreWeights{Perfect: 2, Good: 1, Miss: 0},
		MQTTQoS:              1,
		MQTTPlaybackTopic:    "kitchenbeat/playback",
		MQTTDisplayTopic:     "kitchenbeat/display",
		Mapping:              DefaultMapping(),
	}
}

// DefaultMapping returns the mapping for the stock kitchen instruments.
func DefaultMapping() MappingConfig {
	return MappingConfig{
		Topics: map[string]string{
			"kitchen/pan":           "stove",
			"kitchen/cutting_board": "board",
			"kitchen/mixing_bowl":   "bowl",
		},
		Actions: map[string]map[string]ActionConfig{
			"stove": {
				"low":  {Sound: "pan_sizzle", Category: "sustained"},
				"high": {Sound: "pan_sizzle_high", Category: "sustained"},
			},
			"board": {
				"chop": {Sound: "knife_stab_pull", Category: "strike"},
			},
			"bowl": {
				"cw":  {Sound: "whisking", Category: "strike"},
				"ccw": {Sound: "whisking_reverse", Category: "strike"},
			},
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0 || c.InboxSize <= 0:
		return fmt.Errorf("%w: queue sizes must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.TickIntervalMS <= 0 || c.DisplayIntervalMS <= 0:
		return fmt.Errorf("%w: tick and display intervals must be positive", ErrInvalidConfig)
	case c.CountdownMS < 0:
		return fmt.Errorf("%w: countdown_ms must not be negative", ErrInvalidConfig)
	case c.PerfectToleranceMS < 0 || c.GoodToleranceMS < c.PerfectToleranceMS:
		return fmt.Errorf("%w: need 0 <= perfect_tolerance_ms <= good_tolerance_ms", ErrInvalidConfig)
	case c.EarlyWindowMS <= 0 || c.LateWindowMS <= 0:
		return fmt.Errorf("%w: match windows must be positive", ErrInvalidConfig)
	case c.HoldGoodCoverage <= 0 || c.HoldGoodCoverage > 1:
		return fmt.Errorf("%w: hold_good_coverage must be in (0,1]", ErrInvalidConfig)
	case c.ClockSmoothing <= 0 || c.ClockSmoothing > 1:
		return fmt.Errorf("%w: clock_smoothing must be in (0,1]", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	case c.MQTTQoS < 0 || c.MQTTQoS > 2:
		return fmt.Errorf("%w: mqtt_qos must be 0, 1 or 2", ErrInvalidConfig)
	case len(c.Mapping.Topics) == 0:
		return fmt.Errorf("%w: mapping.topics must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Millis converts a millisecond setting to a duration.
func Millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
