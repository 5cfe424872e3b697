// Package control bridges the MQTT control topic to the session
// controller. Commands arrive as JSON, are queued, and run one at a
// time on a processor goroutine; every command gets a JSON response on
// the response topic, including unknown ones.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Command is one control plane request.
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response is the acknowledgement for one command.
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"` // ok, error
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// CommandCallbacks contains the functions commands dispatch to. A nil
// callback makes its command answer "not implemented"; the daemon wires
// in the controller without this package importing it.
type CommandCallbacks struct {
	OnGetStatus           func() map[string]any
	OnStartSession        func() error
	OnStopSession         func() error
	OnCaptureStill        func(fileName string, quality int) (map[string]any, error)
	OnSetColorTemperature func(kelvin int) error
	OnSetWBPreset         func(preset string) error
	OnGetWBPresets        func() []string
	OnSetAutoFocus        func(enabled bool) error
	OnSetExposure         func(exposureNs int64, iso int) error
	OnGetResolution       func() map[string]any
}

// Config tunes the handler.
type Config struct {
	// Topic is the command subscription topic. Required.
	Topic string
	// ResponseTopic receives acknowledgements. Empty defaults to
	// Topic + "/response".
	ResponseTopic string
	// QoS applies to both the subscription and responses.
	QoS byte
	// QueueSize bounds the command queue. Zero defaults to 10.
	QueueSize int
}

// Stats is a point-in-time handler snapshot.
type Stats struct {
	Received  uint64
	Processed uint64
	Dropped   uint64
}

// Handler subscribes to the control topic and executes commands.
type Handler struct {
	cfg       Config
	client    mqtt.Client
	callbacks CommandCallbacks
	logger    *slog.Logger

	commands chan Command
	wg       sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
}

// NewHandler validates the configuration and returns a handler that is
// not yet subscribed.
func NewHandler(cfg Config, client mqtt.Client, callbacks CommandCallbacks, logger *slog.Logger) (*Handler, error) {
	if client == nil {
		return nil, errors.New("control: mqtt client is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("control: command topic is required")
	}
	if cfg.ResponseTopic == "" {
		cfg.ResponseTopic = cfg.Topic + "/response"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		cfg:       cfg,
		client:    client,
		callbacks: callbacks,
		logger:    logger,
		commands:  make(chan Command, cfg.QueueSize),
	}, nil
}

// Start subscribes to the command topic and spawns the processor
// goroutine.
func (h *Handler) Start(ctx context.Context) error {
	token := h.client.Subscribe(h.cfg.Topic, h.cfg.QoS, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("control: subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: subscription failed: %w", err)
	}

	h.wg.Add(1)
	go h.processCommands(ctx)

	h.logger.Info("control: handler started",
		"topic", h.cfg.Topic,
		"response_topic", h.cfg.ResponseTopic,
		"qos", h.cfg.QoS)
	return nil
}

// Stop unsubscribes and drains the processor. Idempotent.
func (h *Handler) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	if h.client.IsConnected() {
		token := h.client.Unsubscribe(h.cfg.Topic)
		token.WaitTimeout(2 * time.Second)
	}

	close(h.commands)
	h.wg.Wait()

	h.logger.Info("control: handler stopped",
		"received", h.received.Load(),
		"processed", h.processed.Load(),
		"dropped", h.dropped.Load())
	return nil
}

// Stats returns a point-in-time snapshot.
func (h *Handler) Stats() Stats {
	return Stats{
		Received:  h.received.Load(),
		Processed: h.processed.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// messageHandler parses and enqueues one raw control message. A full
// queue drops the command rather than blocking the MQTT client.
func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.logger.Error("control: failed to parse command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	h.logger.Info("control: command received", "command", cmd.Command)
	h.received.Add(1)

	// The queue send runs under the read lock so Stop cannot close the
	// channel out from under it.
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		h.dropped.Add(1)
		return
	}
	select {
	case h.commands <- cmd:
	default:
		h.dropped.Add(1)
		h.logger.Warn("control: command queue full, dropping", "command", cmd.Command)
	}
}

// processCommands executes queued commands until the queue closes or
// the context ends.
func (h *Handler) processCommands(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
			h.processed.Add(1)
		}
	}
}

// handleCommand executes one command and sends its response.
func (h *Handler) handleCommand(cmd Command) {
	var resp Response
	resp.CommandAck = cmd.Command

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus != nil {
			resp.Status = "ok"
			resp.Data = h.callbacks.OnGetStatus()
		} else {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
		}

	case "start_session":
		if h.callbacks.OnStartSession != nil {
			if err := h.callbacks.OnStartSession(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "ok"
				resp.Data = map[string]any{"session_active": true}
			}
		} else {
			resp.Status = "error"
			resp.Error = "start_session not implemented"
		}

	case "stop_session":
		if h.callbacks.OnStopSession != nil {
			if err := h.callbacks.OnStopSession(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "ok"
				resp.Data = map[string]any{"session_active": false}
			}
		} else {
			resp.Status = "error"
			resp.Error = "stop_session not implemented"
		}

	case "capture_still":
		if h.callbacks.OnCaptureStill != nil {
			fileName, _ := cmd.Params["file_name"].(string)
			if fileName == "" {
				fileName = fmt.Sprintf("still-%s.jpg", uuid.NewString())
			}
			quality := 0
			if q, ok := cmd.Params["quality"].(float64); ok {
				quality = int(q)
			}
			data, err := h.callbacks.OnCaptureStill(fileName, quality)
			if err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "ok"
				resp.Data = data
			}
		} else {
			resp.Status = "error"
			resp.Error = "capture_still not implemented"
		}

	case "set_color_temperature":
		if h.callbacks.OnSetColorTemperature != nil {
			kelvin, ok := cmd.Params["kelvin"].(float64)
			if !ok {
				resp.Status = "error"
				resp.Error = "missing or invalid 'kelvin' parameter (expected number)"
			} else if err := h.callbacks.OnSetColorTemperature(int(kelvin)); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "ok"
				resp.Data = map[string]any{
					"kelvin":  int(kelvin),
					"wb_mode": "manual",
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "set_color_temperature not implemented"
		}

	case "set_wb_preset":
		if h.callbacks.OnSetWBPreset != nil {
			preset, ok := cmd.Params["preset"].(string)
			if !ok || preset == "" {
				resp.Status = "error"
				resp.Error = "missing or invalid 'preset' parameter (expected string)"
			} else if err := h.callbacks.OnSetWBPreset(preset); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "ok"
				resp.Data = map[string]any{
					"preset":  preset,
					"wb_mode": "preset",
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "set_wb_preset not implemented"
		}

	case "get_wb_presets":
		if h.callbacks.OnGetWBPresets != nil {
			presets := h.callbacks.OnGetWBPresets()
			resp.Status = "ok"
			resp.Data = map[string]any{
				"presets": presets,
				"count":   len(presets),
			}
		} else {
			resp.Status = "error"
			resp.Error = "get_wb_presets not implemented"
		}

	case "set_autofocus":
		if h.callbacks.OnSetAutoFocus != nil {
			enabled, ok := cmd.Params["enabled"].(bool)
			if !ok {
				resp.Status = "error"
				resp.Error = "missing or invalid 'enabled' parameter (expected boolean)"
			} else if err := h.callbacks.OnSetAutoFocus(enabled); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "ok"
				resp.Data = map[string]any{"auto_focus_enabled": enabled}
			}
		} else {
			resp.Status = "error"
			resp.Error = "set_autofocus not implemented"
		}

	case "set_exposure":
		if h.callbacks.OnSetExposure != nil {
			exposureNs, _ := cmd.Params["exposure_ns"].(float64)
			iso, _ := cmd.Params["iso"].(float64)
			if err := h.callbacks.OnSetExposure(int64(exposureNs), int(iso)); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "ok"
				resp.Data = map[string]any{
					"exposure_ns":   int64(exposureNs),
					"iso":           int(iso),
					"exposure_auto": exposureNs == 0 || iso == 0,
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "set_exposure not implemented"
		}

	case "get_resolution":
		if h.callbacks.OnGetResolution != nil {
			resp.Status = "ok"
			resp.Data = h.callbacks.OnGetResolution()
		} else {
			resp.Status = "error"
			resp.Error = "get_resolution not implemented"
		}

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

// sendResponse publishes one acknowledgement to the response topic.
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("control: failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.cfg.ResponseTopic, h.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		h.logger.Error("control: response publish timeout", "command_ack", resp.CommandAck)
		return
	}
	if err := token.Error(); err != nil {
		h.logger.Error("control: failed to publish response", "error", err)
		return
	}

	h.logger.Debug("control: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
