package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/care/iris/internal/analysis"
	"github.com/care/iris/internal/config"
	"github.com/care/iris/internal/control"
	"github.com/care/iris/internal/emitter"
	"github.com/care/iris/internal/eventbus"
	"github.com/care/iris/internal/health"
	"github.com/care/iris/internal/imaging"
	"github.com/care/iris/internal/sensor"
	"github.com/care/iris/internal/session"
	"github.com/care/iris/internal/still"
)

// daemon owns the service components and their lifecycle order:
// bus and sensor feed the session controller, the analysis pipeline
// renders previews, and MQTT carries control in and events, previews
// and health out.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	bus        eventbus.Bus
	controller *session.Controller
	pipeline   *analysis.Pipeline
	emitter    *emitter.Emitter
	handler    *control.Handler
	reporter   *health.Reporter

	wg sync.WaitGroup
}

func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, logger: logger}

	d.bus = eventbus.New()

	drv, err := buildSensor(cfg.Sensor, logger)
	if err != nil {
		return nil, err
	}

	stills, err := still.NewWriter(cfg.Still.OutputDir, logger)
	if err != nil {
		return nil, err
	}

	strategy, err := sensor.ParseStrategy(cfg.Sensor.Strategy)
	if err != nil {
		return nil, err
	}

	d.controller, err = session.NewController(session.Config{
		Want:         sensor.Size{Width: cfg.Sensor.Width, Height: cfg.Sensor.Height},
		Strategy:     strategy,
		FPS:          float64(cfg.Sensor.FPS),
		Rotation:     cfg.Sensor.Rotation,
		StillSize:    sensor.Size{Width: cfg.Sensor.StillWidth, Height: cfg.Sensor.StillHeight},
		StillQuality: cfg.Still.JPEGQuality,
		CCMWait:      time.Duration(cfg.Still.CCMWaitMs) * time.Millisecond,
		Stills:       stills,
	}, drv, d.bus, logger)
	if err != nil {
		return nil, err
	}

	d.emitter = emitter.NewEmitter(emitter.Config{
		Broker:          cfg.MQTT.Broker,
		ClientID:        cfg.MQTT.ClientID,
		EventsTopic:     cfg.MQTT.Topics.Events,
		PreviewTopic:    cfg.MQTT.Topics.Preview,
		HealthTopic:     cfg.MQTT.Topics.Health,
		QoS:             cfg.MQTT.QoS,
		PreviewInterval: time.Duration(cfg.Events.PreviewIntervalMs) * time.Millisecond,
	}, logger)

	d.pipeline, err = analysis.NewPipeline(analysis.Config{
		AnalysisSize: sensor.Size{Width: cfg.Analysis.TargetWidth, Height: cfg.Analysis.TargetHeight},
		Quality:      cfg.Analysis.JPEGQuality,
	}, d.publishPreview, logger)
	if err != nil {
		return nil, err
	}

	d.reporter = health.NewReporter(cfg.InstanceID, health.Sources{
		Controller: d.controller.Stats,
		Pipeline:   d.pipeline.Stats,
		Bus:        d.bus.Stats,
		Emitter:    d.emitter.Stats,
	})

	return d, nil
}

// buildSensor selects the driver named in the configuration.
func buildSensor(sc config.SensorConfig, logger *slog.Logger) (sensor.Sensor, error) {
	switch sc.Driver {
	case "v4l2":
		return sensor.NewV4L2(sensor.V4L2Config{
			DevicePath:    sc.Device,
			Format:        pixelFormat(sc.Format),
			FPS:           uint32(sc.FPS),
			ChannelBuffer: sc.ChannelBuffer,
		}, logger)
	case "gstreamer":
		return sensor.NewGStreamer(sensor.GStreamerConfig{
			DevicePath:    sc.Device,
			FPS:           sc.FPS,
			ChannelBuffer: sc.ChannelBuffer,
		}, logger)
	case "sim":
		return sensor.NewSim(sensor.SimConfig{
			FPS:           float64(sc.FPS),
			ChannelBuffer: sc.ChannelBuffer,
		}, logger), nil
	default:
		return nil, fmt.Errorf("daemon: unknown sensor driver %q", sc.Driver)
	}
}

func pixelFormat(name string) imaging.PixelFormat {
	switch name {
	case "mjpeg":
		return imaging.FormatMJPEG
	case "rgb24":
		return imaging.FormatRGB24
	default:
		return imaging.FormatYUYV
	}
}

// run brings the components up and blocks until ctx is canceled. The
// event egress subscription is placed before the session opens so the
// open and ready events reach the broker.
func (d *daemon) run(ctx context.Context) error {
	if err := d.pipeline.Start(ctx); err != nil {
		return err
	}
	if err := d.controller.Bind(d.pipeline); err != nil {
		return err
	}

	if err := d.emitter.Connect(ctx); err != nil {
		return err
	}

	handler, err := control.NewHandler(control.Config{
		Topic: d.cfg.MQTT.Topics.Control,
		QoS:   d.cfg.MQTT.QoS["control"],
	}, d.emitter.Client, d.commandCallbacks(ctx), d.logger)
	if err != nil {
		return err
	}
	if err := handler.Start(ctx); err != nil {
		return err
	}
	d.handler = handler

	events, err := d.bus.Subscribe("mqtt-egress", d.cfg.Events.BusBuffer)
	if err != nil {
		return err
	}
	d.wg.Add(1)
	go d.forwardEvents(events)

	if err := d.controller.Open(ctx); err != nil {
		return fmt.Errorf("daemon: failed to open session: %w", err)
	}

	d.wg.Add(1)
	go d.publishHealth(ctx)

	d.logger.Info("daemon: running",
		"instance_id", d.cfg.InstanceID,
		"control_topic", d.cfg.MQTT.Topics.Control)

	<-ctx.Done()
	return nil
}

// shutdown stops the components in reverse order of run. Safe after a
// partial startup.
func (d *daemon) shutdown(ctx context.Context) error {
	var firstErr error

	if d.handler != nil {
		if err := d.handler.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := d.controller.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := d.pipeline.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := d.bus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	d.wg.Wait()

	if err := d.emitter.Disconnect(); err != nil && firstErr == nil {
		firstErr = err
	}

	d.logger.Info("daemon: stopped")
	return firstErr
}

// forwardEvents copies bus events to the MQTT emitter until the bus
// closes the subscription.
func (d *daemon) forwardEvents(events <-chan eventbus.Event) {
	defer d.wg.Done()

	for ev := range events {
		if err := d.emitter.PublishEvent(ev); err != nil {
			d.logger.Debug("daemon: event publish failed",
				"error", err,
				"type", string(ev.Type))
		}
	}
}

// publishHealth publishes a health document on the configured interval.
func (d *daemon) publishHealth(ctx context.Context) {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Events.HealthIntervalS) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := d.reporter.JSON()
			if err != nil {
				d.logger.Error("daemon: failed to render health document", "error", err)
				continue
			}
			if err := d.emitter.PublishHealth(payload); err != nil {
				d.logger.Debug("daemon: health publish failed", "error", err)
			}
		}
	}
}

// publishPreview is the analysis pipeline callback; the emitter applies
// the preview rate limit.
func (d *daemon) publishPreview(res analysis.Result) {
	if err := d.emitter.PublishPreview(res.JPEG); err != nil {
		d.logger.Debug("daemon: preview publish failed", "error", err)
	}
}

// commandCallbacks wires control commands onto the session controller
// and the health reporter.
func (d *daemon) commandCallbacks(ctx context.Context) control.CommandCallbacks {
	return control.CommandCallbacks{
		OnGetStatus:    d.reporter.Fields,
		OnStartSession: func() error { return d.controller.Open(ctx) },
		OnStopSession:  func() error { return d.controller.Close(ctx) },
		OnCaptureStill: func(fileName string, quality int) (map[string]any, error) {
			res, err := d.controller.CaptureStill(ctx, session.StillRequest{
				FileName: fileName,
				Quality:  quality,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"path":        res.Path,
				"bytes":       res.Bytes,
				"duration_ms": res.Duration.Milliseconds(),
			}, nil
		},
		OnSetColorTemperature: d.controller.SetColorTemperature,
		OnSetWBPreset:         d.controller.SetWhiteBalancePreset,
		OnGetWBPresets:        d.controller.SupportedWhiteBalancePresets,
		OnSetAutoFocus:        d.controller.SetAutoFocus,
		OnSetExposure:         d.controller.SetExposure,
		OnGetResolution: func() map[string]any {
			stream, capture := d.controller.Resolution()
			return map[string]any{
				"stream": map[string]any{"width": stream.Width, "height": stream.Height},
				"still":  map[string]any{"width": capture.Width, "height": capture.Height},
			}
		},
	}
}
