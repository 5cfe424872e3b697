// Package emitter publishes bus events, preview frames and health
// documents to the MQTT broker. Events go out as JSON on a subtopic per
// event type; previews are raw JPEG bytes rate-limited to a configured
// interval; health is an opaque payload built by the caller.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/care/iris/internal/eventbus"
)

// Config tunes the emitter.
type Config struct {
	// Broker is the host:port of the MQTT broker. Required.
	Broker string
	// ClientID identifies this daemon on the broker. Required.
	ClientID string
	// EventsTopic is the base topic for bus events; the event type is
	// appended as a subtopic.
	EventsTopic string
	// PreviewTopic receives JPEG preview frames.
	PreviewTopic string
	// HealthTopic receives health documents.
	HealthTopic string
	// QoS maps a topic kind (events, preview, health) to its QoS level.
	// Missing kinds publish at QoS 0.
	QoS map[string]byte
	// PreviewInterval is the minimum spacing between preview publishes.
	// Zero disables rate limiting.
	PreviewInterval time.Duration
}

// Stats contains emitter statistics.
type Stats struct {
	Connected       bool
	Published       map[string]uint64
	Errors          uint64
	PreviewsSkipped uint64
}

// Emitter publishes to the MQTT broker.
type Emitter struct {
	cfg    Config
	logger *slog.Logger
	Client mqtt.Client // Exported so the daemon can share the connection with the control handler

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool

	lastPreviewNs   atomic.Int64
	previewsSkipped atomic.Uint64
}

// NewEmitter creates an emitter that is not yet connected.
func NewEmitter(cfg Config, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		cfg:       cfg,
		logger:    logger,
		published: make(map[string]uint64),
	}
}

// Connect establishes the connection to the MQTT broker. The client
// auto-reconnects after transient failures; connection state changes
// are logged and reflected in Stats.
func (e *Emitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		e.logger.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		e.logger.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker)
	}

	e.Client = mqtt.NewClient(opts)

	e.logger.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("emitter: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// PublishEvent publishes one bus event as JSON on the events topic with
// the event type as subtopic.
func (e *Emitter) PublishEvent(ev eventbus.Event) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("emitter: mqtt not connected")
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.EventsTopic, ev.Type)
	qos := e.getQoS("events")

	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: failed to marshal event: %w", err)
	}

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("emitter: event published",
		"topic", topic,
		"type", ev.Type,
		"qos", qos,
		"size", len(payload))

	return nil
}

// PublishPreview publishes one JPEG preview frame as a binary payload.
// Frames arriving faster than the configured interval are skipped and
// counted, not errors: the preview stream is best-effort.
func (e *Emitter) PublishPreview(jpeg []byte) error {
	if e.cfg.PreviewInterval > 0 {
		now := time.Now().UnixNano()
		last := e.lastPreviewNs.Load()
		if now-last < e.cfg.PreviewInterval.Nanoseconds() || !e.lastPreviewNs.CompareAndSwap(last, now) {
			e.previewsSkipped.Add(1)
			return nil
		}
	}

	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("emitter: mqtt not connected")
	}

	topic := e.cfg.PreviewTopic
	qos := e.getQoS("preview")

	token := e.Client.Publish(topic, qos, false, jpeg)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("emitter: preview published", "topic", topic, "size", len(jpeg))

	return nil
}

// PublishHealth publishes a health document.
func (e *Emitter) PublishHealth(payload []byte) error {
	if !e.isConnected() {
		return fmt.Errorf("emitter: mqtt not connected")
	}

	topic := e.cfg.HealthTopic
	qos := e.getQoS("health")

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	return nil
}

// Disconnect closes the MQTT connection.
func (e *Emitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		e.logger.Info("emitter: mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats returns emitter statistics.
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected:       e.connected,
		Published:       published,
		Errors:          e.errors,
		PreviewsSkipped: e.previewsSkipped.Load(),
	}
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// getQoS returns the QoS level for a topic kind, defaulting to 0.
func (e *Emitter) getQoS(kind string) byte {
	if qos, ok := e.cfg.QoS[kind]; ok {
		return qos
	}
	return 0
}
