package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills defaults in place.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("config: instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("config: instance_id must match pattern [a-z0-9-]+")
	}

	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", cfg.LogLevel)
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateSensor(&cfg.Sensor); err != nil {
		return err
	}
	validateAnalysis(&cfg.Analysis)
	validateStill(&cfg.Still)
	if err := validateMQTT(cfg); err != nil {
		return err
	}
	validateEvents(&cfg.Events)

	return nil
}

func validateSensor(sc *SensorConfig) error {
	switch sc.Driver {
	case "":
		sc.Driver = "v4l2"
	case "v4l2", "gstreamer", "sim":
	default:
		return fmt.Errorf("config: unknown sensor.driver %q", sc.Driver)
	}

	if sc.Driver != "sim" && sc.Device == "" {
		sc.Device = "/dev/video0"
	}

	switch sc.Format {
	case "":
		sc.Format = "yuyv"
	case "yuyv", "mjpeg", "rgb24":
	default:
		return fmt.Errorf("config: unknown sensor.format %q", sc.Format)
	}

	if sc.Width <= 0 || sc.Height <= 0 {
		sc.Width = 1280
		sc.Height = 720
	}
	if sc.FPS <= 0 {
		sc.FPS = 30
	}

	switch sc.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("config: sensor.rotation must be 0, 90, 180 or 270, got %d", sc.Rotation)
	}

	switch sc.Strategy {
	case "", "closest-higher", "closest-lower", "exact", "largest":
	default:
		return fmt.Errorf("config: unknown sensor.strategy %q", sc.Strategy)
	}

	if sc.ChannelBuffer <= 0 {
		sc.ChannelBuffer = 8
	}

	return nil
}

func validateAnalysis(ac *AnalysisConfig) {
	if ac.TargetWidth <= 0 || ac.TargetHeight <= 0 {
		ac.TargetWidth = 640
		ac.TargetHeight = 480
	}
	if ac.JPEGQuality <= 0 || ac.JPEGQuality > 100 {
		ac.JPEGQuality = 85
	}
}

func validateStill(sc *StillConfig) {
	if sc.OutputDir == "" {
		sc.OutputDir = "/var/lib/iris/stills"
	}
	if sc.JPEGQuality <= 0 || sc.JPEGQuality > 100 {
		sc.JPEGQuality = 85
	}
	if sc.CCMWaitMs <= 0 {
		sc.CCMWaitMs = 500
	}
}

func validateMQTT(cfg *Config) error {
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required")
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = fmt.Sprintf("iris-%s", cfg.InstanceID)
	}

	// Topic templates default to the instance-scoped iris namespace
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("iris/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Events == "" {
		cfg.MQTT.Topics.Events = fmt.Sprintf("iris/events/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Preview == "" {
		cfg.MQTT.Topics.Preview = fmt.Sprintf("iris/preview/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = fmt.Sprintf("iris/health/%s", cfg.InstanceID)
	}

	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control": 1,
			"events":  1,
			"preview": 0,
			"health":  0,
		}
	}

	return nil
}

func validateEvents(ec *EventsConfig) {
	if ec.BusBuffer <= 0 {
		ec.BusBuffer = 64
	}
	if ec.PreviewIntervalMs <= 0 {
		ec.PreviewIntervalMs = 200
	}
	if ec.HealthIntervalS <= 0 {
		ec.HealthIntervalS = 30
	}
}
