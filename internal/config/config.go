// Package config loads the daemon configuration from a YAML file with
// environment variable overrides and fills defaults during validation.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete iris configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id" env:"IRIS_INSTANCE_ID"`
	LogLevel         string         `yaml:"log_level"   env:"IRIS_LOG_LEVEL"` // debug, info, warn, error
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s" env:"IRIS_SHUTDOWN_TIMEOUT_S"`
	Sensor           SensorConfig   `yaml:"sensor"`
	Analysis         AnalysisConfig `yaml:"analysis"`
	Still            StillConfig    `yaml:"still"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Events           EventsConfig   `yaml:"events"`
}

// SensorConfig contains sensor driver settings
type SensorConfig struct {
	Driver        string `yaml:"driver" env:"IRIS_SENSOR_DRIVER"` // v4l2, gstreamer, sim
	Device        string `yaml:"device" env:"IRIS_SENSOR_DEVICE"`
	Format        string `yaml:"format" env:"IRIS_SENSOR_FORMAT"` // yuyv, mjpeg, rgb24
	Width         int    `yaml:"width"  env:"IRIS_SENSOR_WIDTH"`
	Height        int    `yaml:"height" env:"IRIS_SENSOR_HEIGHT"`
	FPS           int    `yaml:"fps"    env:"IRIS_SENSOR_FPS"`
	Rotation      int    `yaml:"rotation" env:"IRIS_SENSOR_ROTATION"` // 0, 90, 180, 270
	Strategy      string `yaml:"strategy" env:"IRIS_SENSOR_STRATEGY"` // closest-higher, closest-lower, exact, largest
	StillWidth    int    `yaml:"still_width"  env:"IRIS_SENSOR_STILL_WIDTH"`  // 0 = largest supported
	StillHeight   int    `yaml:"still_height" env:"IRIS_SENSOR_STILL_HEIGHT"` // 0 = largest supported
	ChannelBuffer int    `yaml:"channel_buffer"`
}

// AnalysisConfig contains analysis pipeline settings
type AnalysisConfig struct {
	TargetWidth  int `yaml:"target_width"  env:"IRIS_ANALYSIS_TARGET_WIDTH"`
	TargetHeight int `yaml:"target_height" env:"IRIS_ANALYSIS_TARGET_HEIGHT"`
	JPEGQuality  int `yaml:"jpeg_quality"  env:"IRIS_ANALYSIS_JPEG_QUALITY"`
}

// StillConfig contains still capture persistence settings
type StillConfig struct {
	OutputDir   string `yaml:"output_dir"   env:"IRIS_STILL_OUTPUT_DIR"`
	JPEGQuality int    `yaml:"jpeg_quality" env:"IRIS_STILL_JPEG_QUALITY"`
	CCMWaitMs   int    `yaml:"ccm_wait_ms"  env:"IRIS_STILL_CCM_WAIT_MS"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string          `yaml:"broker"    env:"IRIS_MQTT_BROKER"`
	ClientID string          `yaml:"client_id" env:"IRIS_MQTT_CLIENT_ID"`
	Topics   MQTTTopics      `yaml:"topics"`
	QoS      map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `yaml:"control" env:"IRIS_MQTT_TOPIC_CONTROL"`
	Events  string `yaml:"events"  env:"IRIS_MQTT_TOPIC_EVENTS"`
	Preview string `yaml:"preview" env:"IRIS_MQTT_TOPIC_PREVIEW"`
	Health  string `yaml:"health"  env:"IRIS_MQTT_TOPIC_HEALTH"`
}

// EventsConfig contains event egress settings
type EventsConfig struct {
	BusBuffer         int `yaml:"bus_buffer"          env:"IRIS_EVENTS_BUS_BUFFER"`
	PreviewIntervalMs int `yaml:"preview_interval_ms" env:"IRIS_EVENTS_PREVIEW_INTERVAL_MS"`
	HealthIntervalS   int `yaml:"health_interval_s"   env:"IRIS_EVENTS_HEALTH_INTERVAL_S"`
}

// Load reads a YAML configuration file, overlays IRIS_* environment
// variables and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse yaml: %w", err)
	}

	// Environment variables override file values
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SlogLevel maps the configured log level onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
