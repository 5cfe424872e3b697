// Package session owns the sensor lifecycle and the capture parameter
// state. All hardware control writes are serialized onto a single worker
// goroutine; public mutators only update the desired state and signal
// the worker, so rapid repeated changes collapse into at most two
// hardware applies.
//
// Every session runs under a generation number. Open and Close both bump
// it, and every asynchronous completion (apply results, AWB results,
// frames in flight) carries the generation it was issued under. A
// completion whose generation no longer matches the controller's is
// discarded, which is the only cancellation mechanism: Close never chases
// in-flight hardware work, it just makes the results inert.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/care/iris/internal/colorscience"
	"github.com/care/iris/internal/eventbus"
	"github.com/care/iris/internal/sensor"
	"github.com/care/iris/internal/still"
)

// closeGrace bounds how long Close waits for session goroutines to drain.
const closeGrace = 3 * time.Second

// State is the session lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateReady
	StateClosing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Binding consumes the session's live frames. Submit must not block;
// consumers that fall behind are expected to drop internally.
type Binding interface {
	Submit(frame sensor.Frame)
}

// StillWriter persists an encoded still. *still.Writer satisfies it.
type StillWriter interface {
	Save(ctx context.Context, data []byte, req still.Request) (still.Result, error)
}

// StillRequest names the artifact a capture should produce.
type StillRequest struct {
	// FileName is the artifact name inside the writer's directory.
	FileName string
	// Quality overrides the configured JPEG quality when positive.
	Quality int
}

// StillResult reports a persisted still.
type StillResult struct {
	Path     string
	Bytes    int64
	Duration time.Duration
}

// Config tunes a session controller.
type Config struct {
	// Want is the requested streaming size. Required.
	Want sensor.Size
	// Strategy picks the negotiation fallback order.
	Strategy sensor.Strategy
	// FPS is the streaming rate handed to the driver. Zero defaults to 30.
	FPS float64
	// Rotation is the clockwise rotation, in degrees, that makes frames
	// display upright. Stamped on frames and recorded on stills.
	Rotation int
	// StillSize is the still geometry. Zero selects the largest
	// supported size.
	StillSize sensor.Size
	// StillQuality is the default still JPEG quality. Zero defaults to 85.
	StillQuality int
	// CCMWait bounds the pre-capture wait for a live color matrix when
	// white balance is manual. Zero disables the wait.
	CCMWait time.Duration
	// Stills persists captured artifacts. Required for CaptureStill.
	Stills StillWriter
}

// Stats is a point-in-time controller snapshot.
type Stats struct {
	State             string
	Generation        uint64
	Streaming         bool
	ControlsApplied   uint64
	ControlsCoalesced uint64
	ControlsRejected  uint64
	LastApplyMs       float64
	StillsCaptured    uint64
	FramesForwarded   uint64
	FramesDiscarded   uint64
}

// Controller drives one sensor through open, stream, mutate, capture and
// close. Methods are safe for concurrent use.
type Controller struct {
	cfg    Config
	sensor sensor.Sensor
	bus    eventbus.Bus
	logger *slog.Logger

	mu         sync.RWMutex
	state      State
	generation uint64
	caps       sensor.Capabilities
	size       sensor.Size
	stillSize  sensor.Size
	binding    Binding
	streaming  bool
	desired    desiredState

	wb *wbState

	// Single pending-target slot. The worker drains it; mutators that
	// find it already set have been coalesced into the scheduled apply.
	applyMu   sync.Mutex
	applyCond *sync.Cond
	pending   bool
	workerEnd bool

	wg sync.WaitGroup

	applies     atomic.Uint64
	coalesced   atomic.Uint64
	rejected    atomic.Uint64
	lastApplyNs atomic.Int64
	stills      atomic.Uint64
	forwarded   atomic.Uint64
	discarded   atomic.Uint64
}

// NewController validates the collaborators and returns an idle
// controller. The sensor is not touched until Open.
func NewController(cfg Config, s sensor.Sensor, bus eventbus.Bus, logger *slog.Logger) (*Controller, error) {
	if s == nil {
		return nil, errors.New("session: sensor is required")
	}
	if bus == nil {
		return nil, errors.New("session: event bus is required")
	}
	if cfg.Want.Width <= 0 || cfg.Want.Height <= 0 {
		return nil, errors.New("session: capture size is required")
	}
	switch cfg.Rotation {
	case 0, 90, 180, 270:
	default:
		return nil, fmt.Errorf("session: rotation must be 0, 90, 180 or 270, got %d", cfg.Rotation)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.StillQuality <= 0 {
		cfg.StillQuality = 85
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		cfg:     cfg,
		sensor:  s,
		bus:     bus,
		logger:  logger,
		desired: defaultDesired(),
		wb:      newWBState(),
	}
	c.applyCond = sync.NewCond(&c.applyMu)
	return c, nil
}

// Open acquires the sensor, negotiates the streaming resolution, and
// transitions the session to Ready.
//
// This method:
//  1. Acquires the device through the driver.
//  2. Negotiates the streaming size against the driver's supported list
//     and configures it, keeping whatever the hardware echoes back.
//  3. Reads the control capabilities so the first apply is already
//     clamped into the device ranges.
//  4. Pushes the staged desired state to the hardware.
//  5. Starts streaming if a binding was attached before Open.
//
// Opening an already-open controller returns ErrSessionActive.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.state = StateOpening
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	fail := func(err error) error {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.publish(eventbus.TypeError, eventbus.SeverityError, gen, map[string]any{"error": err.Error()})
		return err
	}

	if err := c.sensor.Open(ctx); err != nil {
		return fail(fmt.Errorf("session: failed to acquire sensor: %w", err))
	}
	c.publish(eventbus.TypeSessionOpened, eventbus.SeverityInfo, gen, nil)

	sizes := c.sensor.SupportedSizes()
	size, err := sensor.Negotiate(sizes, c.cfg.Want, c.cfg.Strategy)
	if err != nil {
		c.sensor.Close(ctx)
		return fail(fmt.Errorf("session: failed to negotiate resolution: %w", err))
	}
	actual, err := c.sensor.Configure(size, c.cfg.FPS)
	if err != nil {
		c.sensor.Close(ctx)
		return fail(fmt.Errorf("session: failed to configure sensor: %w", err))
	}

	stillSize := c.cfg.StillSize
	if stillSize.Width <= 0 || stillSize.Height <= 0 {
		stillSize = actual
		if largest, lerr := sensor.Negotiate(sizes, sensor.Size{}, sensor.Largest); lerr == nil {
			stillSize = largest
		}
	}

	caps := c.sensor.Capabilities()
	c.wb.reset(caps.StaticCCM)

	c.mu.Lock()
	c.caps = caps
	c.size = actual
	c.stillSize = stillSize
	c.state = StateReady
	bound := c.binding != nil
	c.mu.Unlock()

	c.startWorker()
	if results := c.sensor.Results(); results != nil {
		c.wg.Add(1)
		go c.awbPump(results, gen)
	}

	c.logger.Info("session: ready",
		"generation", gen,
		"resolution", actual.String(),
		"still_resolution", stillSize.String(),
		"fps", c.cfg.FPS,
		"presets", len(caps.Presets))
	c.publish(eventbus.TypeSessionReady, eventbus.SeverityInfo, gen, map[string]any{
		"width":  actual.Width,
		"height": actual.Height,
	})

	// Staged mutations reach the hardware before the first frame is consumed.
	c.scheduleApply()

	if bound {
		if err := c.startStreaming(gen); err != nil {
			c.Close(ctx)
			return err
		}
	}
	return nil
}

// Bind attaches the frame consumer. The first bind on a ready session
// starts streaming; a bind while streaming replaces the consumer in
// place without restarting the device. Binding before Open is allowed
// and defers the stream start to Open.
func (c *Controller) Bind(b Binding) error {
	if b == nil {
		return errors.New("session: binding is required")
	}

	c.mu.Lock()
	c.binding = b
	needStart := c.state == StateReady && !c.streaming
	gen := c.generation
	c.mu.Unlock()

	if !needStart {
		c.logger.Debug("session: binding attached", "generation", gen, "deferred", true)
		return nil
	}
	return c.startStreaming(gen)
}

// Unbind detaches the consumer and pauses streaming. The negotiated
// configuration stays on the device, so a later Bind resumes without
// renegotiation.
func (c *Controller) Unbind() {
	c.mu.Lock()
	c.binding = nil
	pause := c.streaming && c.state == StateReady
	c.streaming = false
	gen := c.generation
	c.mu.Unlock()

	if !pause {
		return
	}

	if err := c.sensor.StopStream(context.Background()); err != nil {
		c.logger.Warn("session: failed to pause stream", "generation", gen, "error", err)
		return
	}
	c.logger.Info("session: stream paused", "generation", gen)
	c.publish(eventbus.TypeStreamStopped, eventbus.SeverityInfo, gen, map[string]any{"reason": "unbind"})
}

// startStreaming begins frame delivery exactly once per session. The
// streaming flag is claimed before touching the driver so concurrent
// callers cannot double-start.
func (c *Controller) startStreaming(gen uint64) error {
	c.mu.Lock()
	if c.streaming || c.state != StateReady || c.generation != gen {
		c.mu.Unlock()
		return nil
	}
	c.streaming = true
	c.mu.Unlock()

	frames, err := c.sensor.StartStream(context.Background())
	if err != nil {
		c.mu.Lock()
		c.streaming = false
		c.mu.Unlock()
		err = fmt.Errorf("session: failed to start streaming: %w", err)
		c.publish(eventbus.TypeError, eventbus.SeverityError, gen, map[string]any{"error": err.Error()})
		return err
	}

	c.wg.Add(1)
	go c.pump(frames, gen)

	c.logger.Info("session: stream started", "generation", gen)
	c.publish(eventbus.TypeStreamStarted, eventbus.SeverityInfo, gen, nil)
	return nil
}

// pump forwards frames to the current binding, stamping the session
// generation and rotation. Frames that arrive after the generation moved
// on, or while no binding is attached, are released immediately.
func (c *Controller) pump(frames <-chan sensor.Frame, gen uint64) {
	defer c.wg.Done()

	for frame := range frames {
		c.mu.RLock()
		binding := c.binding
		current := c.generation
		c.mu.RUnlock()

		if current != gen || binding == nil {
			frame.Release()
			c.discarded.Add(1)
			continue
		}

		frame.Generation = gen
		if frame.Rotation == 0 {
			frame.Rotation = c.cfg.Rotation
		}
		c.forwarded.Add(1)
		binding.Submit(frame)
	}
}

// awbPump caches live color matrices measured by the driver while a
// preset mode is active. Results from a stale generation are dropped.
func (c *Controller) awbPump(results <-chan sensor.AWBResult, gen uint64) {
	defer c.wg.Done()

	for r := range results {
		c.mu.RLock()
		current := c.generation
		c.mu.RUnlock()

		if current != gen || (r.Generation != 0 && r.Generation != gen) {
			continue
		}
		c.wb.cacheLive(r.CCM)
		c.logger.Debug("session: live ccm cached", "generation", gen)
	}
}

// Close stops streaming, releases the sensor, and bumps the generation
// so in-flight completions are discarded. Close on an idle controller is
// a no-op.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateClosing:
		c.mu.Unlock()
		return nil
	case StateOpening:
		c.mu.Unlock()
		return ErrSessionNotReady
	}
	closedGen := c.generation
	c.generation++
	c.state = StateClosing
	wasStreaming := c.streaming
	c.streaming = false
	c.mu.Unlock()

	c.stopWorker()

	if wasStreaming {
		if err := c.sensor.StopStream(ctx); err != nil {
			c.logger.Warn("session: failed to stop stream", "error", err)
		} else {
			c.publish(eventbus.TypeStreamStopped, eventbus.SeverityInfo, closedGen, map[string]any{"reason": "close"})
		}
	}
	if err := c.sensor.Close(ctx); err != nil {
		c.logger.Warn("session: failed to release sensor", "error", err)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGrace):
		c.logger.Warn("session: goroutines did not drain before deadline")
	case <-ctx.Done():
		c.logger.Warn("session: close interrupted while draining", "error", ctx.Err())
	}

	c.wb.reset(colorscience.Matrix3{})

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	c.logger.Info("session: closed",
		"generation", closedGen,
		"applies", c.applies.Load(),
		"coalesced", c.coalesced.Load(),
		"rejected", c.rejected.Load(),
		"stills", c.stills.Load())
	c.publish(eventbus.TypeSessionClosed, eventbus.SeverityInfo, closedGen, nil)
	return nil
}

// SetColorTemperature switches to manual white balance at the given
// color temperature. The value is clamped into the supported Kelvin
// range and converted to RGGB gains; the color matrix comes from the
// live-static-identity chain at apply time.
func (c *Controller) SetColorTemperature(kelvin int) error {
	k := colorscience.ClampKelvin(kelvin)
	gains := colorscience.KelvinToGains(k)

	if err := c.updateDesired(func(d *desiredState) {
		d.wbAuto = false
		d.preset = ""
		d.kelvin = k
		d.gains = gains
	}); err != nil {
		return err
	}

	c.logger.Debug("session: color temperature set", "kelvin", k, "gain_r", gains.R, "gain_b", gains.B)
	c.publishWB(map[string]any{"mode": "manual", "kelvin": k})
	return nil
}

// SetWhiteBalancePreset switches to preset-driven auto white balance.
// On an open session the preset is validated against the driver's
// supported list; before Open any preset is staged as-is.
func (c *Controller) SetWhiteBalancePreset(preset string) error {
	if preset == "" {
		return errors.New("session: white balance preset is required")
	}

	c.mu.RLock()
	ready := c.state == StateReady
	caps := c.caps
	c.mu.RUnlock()
	if ready && !caps.SupportsPreset(preset) {
		return fmt.Errorf("session: unsupported white balance preset %q", preset)
	}

	if err := c.updateDesired(func(d *desiredState) {
		d.wbAuto = true
		d.preset = preset
		d.kelvin = 0
		d.gains = colorscience.NeutralGains()
	}); err != nil {
		return err
	}

	c.logger.Debug("session: white balance preset set", "preset", preset)
	c.publishWB(map[string]any{"mode": "preset", "preset": preset})
	return nil
}

// SetAutoFocus toggles continuous autofocus. Disabling it holds the lens
// at the desired manual position.
func (c *Controller) SetAutoFocus(enabled bool) error {
	if err := c.updateDesired(func(d *desiredState) {
		d.focusAuto = enabled
	}); err != nil {
		return err
	}
	c.logger.Debug("session: autofocus set", "enabled", enabled)
	return nil
}

// SetExposure sets the manual exposure pair. Passing zero for either
// value selects auto exposure; manual values are clamped into the device
// ranges at apply time.
func (c *Controller) SetExposure(exposureNs int64, iso int) error {
	if exposureNs < 0 || iso < 0 {
		return fmt.Errorf("session: exposure values must not be negative")
	}

	if err := c.updateDesired(func(d *desiredState) {
		d.exposureNs = exposureNs
		d.iso = iso
	}); err != nil {
		return err
	}

	c.logger.Debug("session: exposure set",
		"exposure_ns", exposureNs,
		"iso", iso,
		"auto", exposureNs == 0 || iso == 0)
	return nil
}

// SupportedWhiteBalancePresets lists the driver's presets. Nil unless
// the session is ready.
func (c *Controller) SupportedWhiteBalancePresets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady {
		return nil
	}
	out := make([]string, len(c.caps.Presets))
	copy(out, c.caps.Presets)
	return out
}

// CaptureStill grabs a full-resolution frame and persists it through the
// configured writer. When white balance is manual and a CCM wait is
// configured, the capture first waits (bounded) for a live color matrix;
// on timeout it proceeds with the rest of the chain and publishes a
// warning.
func (c *Controller) CaptureStill(ctx context.Context, req StillRequest) (StillResult, error) {
	c.mu.RLock()
	if c.state != StateReady {
		c.mu.RUnlock()
		return StillResult{}, ErrSessionNotReady
	}
	gen := c.generation
	size := c.stillSize
	manualWB := !c.desired.wbAuto
	c.mu.RUnlock()

	if req.FileName == "" {
		return StillResult{}, errors.New("session: still file name is required")
	}
	if c.cfg.Stills == nil {
		return StillResult{}, errors.New("session: no still writer configured")
	}

	quality := req.Quality
	if quality <= 0 {
		quality = c.cfg.StillQuality
	}

	if c.cfg.CCMWait > 0 && manualWB {
		if err := c.wb.waitForLiveCCM(ctx, c.cfg.CCMWait); err != nil {
			if !errors.Is(err, ErrCCMWaitTimeout) {
				return StillResult{}, err
			}
			c.logger.Warn("session: proceeding without live ccm", "generation", gen, "file", req.FileName)
			c.publish(eventbus.TypeWarning, eventbus.SeverityWarning, gen, map[string]any{
				"reason": "ccm wait timed out",
				"file":   req.FileName,
			})
		}
	}

	start := time.Now()
	data, err := c.sensor.CaptureStill(ctx, size, quality)
	if err != nil {
		c.publish(eventbus.TypeStillFailed, eventbus.SeverityError, gen, map[string]any{
			"error": err.Error(),
			"file":  req.FileName,
		})
		return StillResult{}, fmt.Errorf("session: %w: %v", ErrCaptureFailed, err)
	}

	// The grab may have raced a Close; never persist under a dead session.
	c.mu.RLock()
	stale := c.generation != gen || c.state != StateReady
	c.mu.RUnlock()
	if stale {
		return StillResult{}, ErrSessionNotReady
	}

	saved, err := c.cfg.Stills.Save(ctx, data, still.Request{
		FileName:    req.FileName,
		Orientation: c.cfg.Rotation,
		Quality:     quality,
	})
	if err != nil {
		c.publish(eventbus.TypeStillFailed, eventbus.SeverityError, gen, map[string]any{
			"error": err.Error(),
			"file":  req.FileName,
		})
		return StillResult{}, err
	}
	if saved.TagError != nil {
		c.publish(eventbus.TypeWarning, eventbus.SeverityWarning, gen, map[string]any{
			"reason": "orientation tag failed",
			"path":   saved.Path,
		})
	}

	c.stills.Add(1)
	res := StillResult{Path: saved.Path, Bytes: saved.Bytes, Duration: time.Since(start)}
	c.logger.Info("session: still captured",
		"generation", gen,
		"path", res.Path,
		"bytes", res.Bytes,
		"duration_ms", res.Duration.Milliseconds())
	c.publish(eventbus.TypeStillSaved, eventbus.SeverityInfo, gen, map[string]any{
		"path":  res.Path,
		"bytes": res.Bytes,
	})
	return res, nil
}

// Resolution returns the negotiated streaming size and the still size.
// Both are zero until the session is ready.
func (c *Controller) Resolution() (stream, capture sensor.Size) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady {
		return sensor.Size{}, sensor.Size{}
	}
	return c.size, c.stillSize
}

// Stats returns a point-in-time snapshot.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	state := c.state
	gen := c.generation
	streaming := c.streaming
	c.mu.RUnlock()

	return Stats{
		State:             state.String(),
		Generation:        gen,
		Streaming:         streaming,
		ControlsApplied:   c.applies.Load(),
		ControlsCoalesced: c.coalesced.Load(),
		ControlsRejected:  c.rejected.Load(),
		LastApplyMs:       float64(c.lastApplyNs.Load()) / 1e6,
		StillsCaptured:    c.stills.Load(),
		FramesForwarded:   c.forwarded.Load(),
		FramesDiscarded:   c.discarded.Load(),
	}
}

// updateDesired validates the session state, applies fn to the desired
// state, and signals the worker when the session is ready. Mutations on
// a controller that was never opened are staged for the first apply and
// return nil; mutations after Close return ErrSessionNotReady.
func (c *Controller) updateDesired(fn func(d *desiredState)) error {
	c.mu.Lock()
	switch {
	case c.state == StateReady || c.state == StateOpening:
	case c.state == StateIdle && c.generation == 0:
	default:
		c.mu.Unlock()
		return ErrSessionNotReady
	}
	fn(&c.desired)
	schedule := c.state == StateReady
	c.mu.Unlock()

	if schedule {
		c.scheduleApply()
	}
	return nil
}

// scheduleApply marks the pending-target slot. A mutation that finds the
// slot already marked rides the apply that is about to run; only the
// latest desired state ever reaches the hardware.
func (c *Controller) scheduleApply() {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if c.workerEnd {
		return
	}
	if c.pending {
		c.coalesced.Add(1)
		return
	}
	c.pending = true
	c.applyCond.Signal()
}

func (c *Controller) startWorker() {
	c.applyMu.Lock()
	c.workerEnd = false
	c.pending = false
	c.applyMu.Unlock()

	c.wg.Add(1)
	go c.applyWorker()
}

func (c *Controller) stopWorker() {
	c.applyMu.Lock()
	c.workerEnd = true
	c.pending = false
	c.applyCond.Broadcast()
	c.applyMu.Unlock()
}

// applyWorker is the single goroutine allowed to write controls to the
// driver.
func (c *Controller) applyWorker() {
	defer c.wg.Done()

	for {
		c.applyMu.Lock()
		for !c.pending && !c.workerEnd {
			c.applyCond.Wait()
		}
		if c.workerEnd {
			c.applyMu.Unlock()
			return
		}
		c.pending = false
		c.applyMu.Unlock()

		c.applyOnce()
	}
}

// applyOnce composes one complete control set from the current desired
// state and submits it. A completion whose generation no longer matches
// is discarded without touching counters or publishing events.
func (c *Controller) applyOnce() {
	c.mu.RLock()
	if c.state != StateReady {
		c.mu.RUnlock()
		return
	}
	gen := c.generation
	d := c.desired
	caps := c.caps
	c.mu.RUnlock()

	set := composeControls(d, caps, c.wb.resolve(d))
	set.Generation = gen

	start := time.Now()
	err := c.sensor.Apply(set)
	elapsed := time.Since(start)

	c.mu.RLock()
	stale := c.generation != gen
	c.mu.RUnlock()
	if stale {
		c.logger.Debug("session: discarding stale apply completion", "generation", gen)
		return
	}

	if err != nil {
		wrapped := fmt.Errorf("session: %w: %v", ErrHardwareRejected, err)
		c.rejected.Add(1)
		c.logger.Warn("session: controls rejected", "generation", gen, "error", err)
		c.publish(eventbus.TypeControlsRejected, eventbus.SeverityError, gen, map[string]any{
			"error": wrapped.Error(),
		})
		return
	}

	c.applies.Add(1)
	c.lastApplyNs.Store(elapsed.Nanoseconds())
	c.logger.Debug("session: controls applied",
		"generation", gen,
		"wb_auto", set.WhiteBalanceAuto,
		"preset", set.WhiteBalancePreset,
		"ccm_source", string(set.CCMSource),
		"exposure_auto", set.ExposureAuto,
		"latency_us", elapsed.Microseconds())
	c.publish(eventbus.TypeControlsApplied, eventbus.SeverityInfo, gen, map[string]any{
		"wb_auto":    set.WhiteBalanceAuto,
		"preset":     set.WhiteBalancePreset,
		"ccm_source": string(set.CCMSource),
	})
}

func (c *Controller) publish(t eventbus.Type, sev eventbus.Severity, gen uint64, fields map[string]any) {
	c.bus.Publish(eventbus.NewEvent(t, sev, gen, fields))
}

func (c *Controller) publishWB(fields map[string]any) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()
	c.publish(eventbus.TypeWBChanged, eventbus.SeverityInfo, gen, fields)
}
