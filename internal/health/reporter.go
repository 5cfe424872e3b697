// Package health aggregates per-stage statistics into a JSON document
// for periodic publishing and the get_status command.
package health

import (
	"encoding/json"
	"time"

	"github.com/care/iris/internal/analysis"
	"github.com/care/iris/internal/emitter"
	"github.com/care/iris/internal/eventbus"
	"github.com/care/iris/internal/session"
)

// SessionHealth mirrors the session controller statistics.
type SessionHealth struct {
	State             string  `json:"state"`
	Generation        uint64  `json:"generation"`
	Streaming         bool    `json:"streaming"`
	ControlsApplied   uint64  `json:"controls_applied"`
	ControlsCoalesced uint64  `json:"controls_coalesced"`
	ControlsRejected  uint64  `json:"controls_rejected"`
	LastApplyMS       float64 `json:"last_apply_ms"`
	StillsCaptured    uint64  `json:"stills_captured"`
	FramesForwarded   uint64  `json:"frames_forwarded"`
	FramesDiscarded   uint64  `json:"frames_discarded"`
}

// PipelineHealth mirrors the analysis pipeline statistics.
type PipelineHealth struct {
	Submitted     uint64  `json:"submitted"`
	Processed     uint64  `json:"processed"`
	Dropped       uint64  `json:"dropped"`
	Failures      uint64  `json:"failures"`
	DropRate      float64 `json:"drop_rate"`
	LastLatencyMS float64 `json:"last_latency_ms"`
}

// BusHealth mirrors the event bus statistics.
type BusHealth struct {
	Published   uint64 `json:"published"`
	Sent        uint64 `json:"sent"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// EmitterHealth mirrors the MQTT emitter statistics.
type EmitterHealth struct {
	Connected       bool              `json:"connected"`
	Published       map[string]uint64 `json:"published,omitempty"`
	Errors          uint64            `json:"errors"`
	PreviewsSkipped uint64            `json:"previews_skipped"`
}

// Document is one point-in-time health snapshot.
type Document struct {
	Status        string         `json:"status"` // healthy, degraded, unhealthy
	InstanceID    string         `json:"instance_id"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Timestamp     string         `json:"timestamp"`
	Session       SessionHealth  `json:"session"`
	Pipeline      PipelineHealth `json:"pipeline"`
	Bus           BusHealth      `json:"bus"`
	Emitter       EmitterHealth  `json:"emitter"`
}

// Sources supplies the statistics snapshots the reporter aggregates.
// A nil source reads as that stage being down.
type Sources struct {
	Controller func() session.Stats
	Pipeline   func() analysis.Stats
	Bus        func() eventbus.Stats
	Emitter    func() emitter.Stats
}

// Reporter builds health documents.
type Reporter struct {
	instanceID string
	started    time.Time
	sources    Sources
}

// NewReporter creates a reporter; uptime counts from this call.
func NewReporter(instanceID string, sources Sources) *Reporter {
	return &Reporter{
		instanceID: instanceID,
		started:    time.Now(),
		sources:    sources,
	}
}

// Snapshot aggregates the current statistics into a document.
//
// Status derivation: healthy needs a ready session and a connected
// broker; one of the two down is degraded; both down is unhealthy.
func (r *Reporter) Snapshot() Document {
	doc := Document{
		InstanceID:    r.instanceID,
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	sessionReady := false
	if r.sources.Controller != nil {
		s := r.sources.Controller()
		sessionReady = s.State == session.StateReady.String()
		doc.Session = SessionHealth{
			State:             s.State,
			Generation:        s.Generation,
			Streaming:         s.Streaming,
			ControlsApplied:   s.ControlsApplied,
			ControlsCoalesced: s.ControlsCoalesced,
			ControlsRejected:  s.ControlsRejected,
			LastApplyMS:       s.LastApplyMs,
			StillsCaptured:    s.StillsCaptured,
			FramesForwarded:   s.FramesForwarded,
			FramesDiscarded:   s.FramesDiscarded,
		}
	}

	if r.sources.Pipeline != nil {
		p := r.sources.Pipeline()
		var dropRate float64
		if total := p.Processed + p.Dropped; total > 0 {
			dropRate = float64(p.Dropped) / float64(total)
		}
		doc.Pipeline = PipelineHealth{
			Submitted:     p.Submitted,
			Processed:     p.Processed,
			Dropped:       p.Dropped,
			Failures:      p.Failures,
			DropRate:      dropRate,
			LastLatencyMS: p.LastLatencyMs,
		}
	}

	if r.sources.Bus != nil {
		b := r.sources.Bus()
		doc.Bus = BusHealth{
			Published:   b.TotalPublished,
			Sent:        b.TotalSent,
			Dropped:     b.TotalDropped,
			Subscribers: len(b.Subscribers),
		}
	}

	mqttConnected := false
	if r.sources.Emitter != nil {
		e := r.sources.Emitter()
		mqttConnected = e.Connected
		doc.Emitter = EmitterHealth{
			Connected:       e.Connected,
			Published:       e.Published,
			Errors:          e.Errors,
			PreviewsSkipped: e.PreviewsSkipped,
		}
	}

	switch {
	case sessionReady && mqttConnected:
		doc.Status = "healthy"
	case !sessionReady && !mqttConnected:
		doc.Status = "unhealthy"
	default:
		doc.Status = "degraded"
	}

	return doc
}

// JSON renders the current snapshot.
func (r *Reporter) JSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

// Fields renders the current snapshot as a generic map for command
// responses.
func (r *Reporter) Fields() map[string]any {
	data, _ := json.Marshal(r.Snapshot())
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}
