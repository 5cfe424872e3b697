package emitter

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/care/iris/internal/eventbus"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishRecord struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu         sync.Mutex
	records    []publishRecord
	publishErr error
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token    { return &fakeToken{} }
func (c *fakeClient) Disconnect(uint)        {}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	c.mu.Lock()
	c.records = append(c.records, publishRecord{topic: topic, qos: qos, payload: data})
	c.mu.Unlock()
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token { return &fakeToken{} }

func (c *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) published() []publishRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]publishRecord, len(c.records))
	copy(out, c.records)
	return out
}

func testConfig() Config {
	return Config{
		Broker:       "localhost:1883",
		ClientID:     "iris-test",
		EventsTopic:  "iris/events/cam-1",
		PreviewTopic: "iris/preview/cam-1",
		HealthTopic:  "iris/health/cam-1",
		QoS:          map[string]byte{"events": 1, "health": 1},
	}
}

// connectedEmitter wires a fake client in place of a broker connection.
func connectedEmitter(cfg Config) (*Emitter, *fakeClient) {
	client := &fakeClient{}
	e := NewEmitter(cfg, nil)
	e.Client = client
	e.connected = true
	return e, client
}

func TestPublishEventNotConnected(t *testing.T) {
	e := NewEmitter(testConfig(), nil)

	err := e.PublishEvent(eventbus.NewEvent(eventbus.TypeWarning, eventbus.SeverityWarning, 1, nil))
	if err == nil {
		t.Fatal("Expected error when not connected")
	}
	if got := e.Stats().Errors; got != 1 {
		t.Errorf("Expected 1 error counted, got %d", got)
	}
}

func TestPublishEvent(t *testing.T) {
	e, client := connectedEmitter(testConfig())

	ev := eventbus.NewEvent(eventbus.TypeStreamStarted, eventbus.SeverityInfo, 3, map[string]any{
		"width": 1280,
	})
	if err := e.PublishEvent(ev); err != nil {
		t.Fatalf("PublishEvent failed: %v", err)
	}

	records := client.published()
	if len(records) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(records))
	}
	if records[0].topic != "iris/events/cam-1/stream.started" {
		t.Errorf("Expected event type subtopic, got %q", records[0].topic)
	}
	if records[0].qos != 1 {
		t.Errorf("Expected configured QoS 1, got %d", records[0].qos)
	}

	var decoded eventbus.Event
	if err := json.Unmarshal(records[0].payload, &decoded); err != nil {
		t.Fatalf("Decoding published event: %v", err)
	}
	if decoded.ID != ev.ID || decoded.Type != ev.Type || decoded.Session != 3 {
		t.Errorf("Published event does not match: %+v", decoded)
	}

	stats := e.Stats()
	if stats.Published["iris/events/cam-1/stream.started"] != 1 {
		t.Errorf("Expected per-topic counter, got %v", stats.Published)
	}
	if stats.Errors != 0 {
		t.Errorf("Expected no errors, got %d", stats.Errors)
	}
}

func TestPublishEventQoSFallback(t *testing.T) {
	cfg := testConfig()
	cfg.QoS = nil
	e, client := connectedEmitter(cfg)

	if err := e.PublishEvent(eventbus.NewEvent(eventbus.TypeError, eventbus.SeverityError, 1, nil)); err != nil {
		t.Fatalf("PublishEvent failed: %v", err)
	}
	if records := client.published(); records[0].qos != 0 {
		t.Errorf("Expected fallback QoS 0, got %d", records[0].qos)
	}
}

func TestPublishEventBrokerError(t *testing.T) {
	e, client := connectedEmitter(testConfig())
	client.publishErr = errors.New("connection reset")

	err := e.PublishEvent(eventbus.NewEvent(eventbus.TypeWarning, eventbus.SeverityWarning, 1, nil))
	if err == nil {
		t.Fatal("Expected publish error")
	}

	stats := e.Stats()
	if stats.Errors != 1 {
		t.Errorf("Expected 1 error counted, got %d", stats.Errors)
	}
	if len(stats.Published) != 0 {
		t.Errorf("Expected no publish counted on failure, got %v", stats.Published)
	}
}

func TestPublishPreviewRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.PreviewInterval = 50 * time.Millisecond
	e, client := connectedEmitter(cfg)

	jpegA := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01}
	jpegB := []byte{0xff, 0xd8, 0xff, 0xe0, 0x02}

	if err := e.PublishPreview(jpegA); err != nil {
		t.Fatalf("First preview failed: %v", err)
	}
	// The second frame arrives inside the interval: skipped, not an error.
	if err := e.PublishPreview(jpegB); err != nil {
		t.Fatalf("Rate-limited preview returned error: %v", err)
	}

	records := client.published()
	if len(records) != 1 {
		t.Fatalf("Expected 1 publish inside the interval, got %d", len(records))
	}
	if records[0].topic != "iris/preview/cam-1" {
		t.Errorf("Unexpected preview topic %q", records[0].topic)
	}
	if !bytes.Equal(records[0].payload, jpegA) {
		t.Error("Expected raw JPEG bytes as payload")
	}
	if got := e.Stats().PreviewsSkipped; got != 1 {
		t.Errorf("Expected 1 skipped preview, got %d", got)
	}

	time.Sleep(60 * time.Millisecond)
	if err := e.PublishPreview(jpegB); err != nil {
		t.Fatalf("Preview after interval failed: %v", err)
	}
	if records := client.published(); len(records) != 2 {
		t.Errorf("Expected 2 publishes after the interval elapsed, got %d", len(records))
	}
}

func TestPublishPreviewUnlimited(t *testing.T) {
	e, client := connectedEmitter(testConfig())

	for i := 0; i < 3; i++ {
		if err := e.PublishPreview([]byte{0xff, 0xd8, byte(i)}); err != nil {
			t.Fatalf("PublishPreview failed: %v", err)
		}
	}
	if records := client.published(); len(records) != 3 {
		t.Errorf("Expected every preview published without an interval, got %d", len(records))
	}
	if got := e.Stats().PreviewsSkipped; got != 0 {
		t.Errorf("Expected no skips, got %d", got)
	}
}

func TestPublishHealth(t *testing.T) {
	e, client := connectedEmitter(testConfig())

	doc := []byte(`{"status":"healthy"}`)
	if err := e.PublishHealth(doc); err != nil {
		t.Fatalf("PublishHealth failed: %v", err)
	}

	records := client.published()
	if len(records) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(records))
	}
	if records[0].topic != "iris/health/cam-1" || records[0].qos != 1 {
		t.Errorf("Unexpected health publish %q qos %d", records[0].topic, records[0].qos)
	}
	if !bytes.Equal(records[0].payload, doc) {
		t.Error("Expected health payload passed through unchanged")
	}
}

func TestDisconnectWithoutConnect(t *testing.T) {
	e := NewEmitter(testConfig(), nil)
	if err := e.Disconnect(); err != nil {
		t.Fatalf("Disconnect on a never-connected emitter failed: %v", err)
	}
	if e.Stats().Connected {
		t.Error("Expected disconnected state")
	}
}

func TestStatsSnapshotIsCopy(t *testing.T) {
	e, _ := connectedEmitter(testConfig())

	if err := e.PublishHealth([]byte("{}")); err != nil {
		t.Fatalf("PublishHealth failed: %v", err)
	}

	snap := e.Stats()
	snap.Published["iris/health/cam-1"] = 99

	if got := e.Stats().Published["iris/health/cam-1"]; got != 1 {
		t.Errorf("Expected internal counters unaffected by snapshot mutation, got %d", got)
	}
}
