package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/care/iris/internal/colorscience"
	"github.com/care/iris/internal/imaging"
	"github.com/google/uuid"
)

// simPresetKelvin maps preset ids to the color temperature the simulated
// AWB converges on.
var simPresetKelvin = map[string]int{
	WBPresetAuto:            5600,
	WBPresetIncandescent:    2700,
	WBPresetFluorescent:     4000,
	WBPresetWarmFluorescent: 3000,
	WBPresetDaylight:        5500,
	WBPresetCloudyDaylight:  6500,
	WBPresetTwilight:        12000,
	WBPresetShade:           7500,
}

// SimConfig configures the simulated driver.
type SimConfig struct {
	// Sizes lists the advertised frame sizes. Empty uses a default ladder.
	Sizes []Size
	// FPS is the synthetic frame rate. Zero defaults to 30.
	FPS float64
	// Rotation is stamped on every frame (0, 90, 180, 270).
	Rotation int
	// StridePad adds bytes of row padding to every plane so consumers
	// exercise stride handling.
	StridePad int
	// ChannelBuffer sizes the frame channel. Zero defaults to 8.
	ChannelBuffer int
	// AWBInterval is the number of frames between AWB results while a
	// preset mode is active. Zero defaults to 10.
	AWBInterval int
	// StaticCCM is advertised as the factory calibration matrix.
	StaticCCM colorscience.Matrix3
}

// Sim generates deterministic synthetic frames and honors the full
// control surface, including color transforms and AWB results. It backs
// tests and hardware-free deployments.
type Sim struct {
	cfg    SimConfig
	logger *slog.Logger

	mu        sync.RWMutex
	open      bool
	streaming bool
	size      Size
	fps       float64
	last      ControlSet
	applied   []ControlSet
	applyErr  error

	framesCh  chan Frame
	resultsCh chan AWBResult
	stopCh    chan struct{}
	wg        sync.WaitGroup

	seq              atomic.Uint64
	frameCount       atomic.Uint64
	framesDropped    atomic.Uint64
	bytesRead        atomic.Uint64
	controlsApplied  atomic.Uint64
	controlsRejected atomic.Uint64
	stillsCaptured   atomic.Uint64
	releasedFrames   atomic.Uint64
}

// NewSim creates a simulated sensor driver.
func NewSim(cfg SimConfig, logger *slog.Logger) *Sim {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 8
	}
	if cfg.AWBInterval <= 0 {
		cfg.AWBInterval = 10
	}
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = []Size{
			{640, 480},
			{1280, 720},
			{1920, 1080},
			{2592, 1944},
			{3840, 2160},
		}
	}

	return &Sim{
		cfg:    cfg,
		logger: logger,
		fps:    cfg.FPS,
	}
}

// Open acquires the simulated device.
func (s *Sim) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return ErrAlreadyOpen
	}

	s.open = true
	s.size = s.cfg.Sizes[0]
	s.resultsCh = make(chan AWBResult, 4)

	s.logger.Info("sim: device opened", "sizes", len(s.cfg.Sizes), "fps", s.fps)

	return nil
}

// Close releases the simulated device. Idempotent.
func (s *Sim) Close(ctx context.Context) error {
	if err := s.StopStream(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}

	s.open = false
	close(s.resultsCh)
	s.resultsCh = nil

	s.logger.Info("sim: device closed", "frames", s.frameCount.Load())

	return nil
}

// SupportedSizes lists the advertised frame sizes.
func (s *Sim) SupportedSizes() []Size {
	sizes := make([]Size, len(s.cfg.Sizes))
	copy(sizes, s.cfg.Sizes)
	return sizes
}

// Capabilities advertises the full control surface.
func (s *Sim) Capabilities() Capabilities {
	return Capabilities{
		Presets: []string{
			WBPresetAuto,
			WBPresetIncandescent,
			WBPresetFluorescent,
			WBPresetWarmFluorescent,
			WBPresetDaylight,
			WBPresetCloudyDaylight,
			WBPresetTwilight,
			WBPresetShade,
		},
		ExposureMinNs:     100_000,        // 100us
		ExposureMaxNs:     1_000_000_000,  // 1s
		ISOMin:            100,
		ISOMax:            3200,
		HasColorTransform: true,
		HasAWBResults:     true,
		HasManualFocus:    true,
		StaticCCM:         s.cfg.StaticCCM,
	}
}

// Configure sets the streaming geometry.
func (s *Sim) Configure(size Size, fps float64) (Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return Size{}, ErrNotOpen
	}
	if s.streaming {
		return Size{}, fmt.Errorf("sim: cannot reconfigure while streaming")
	}
	if size.Width <= 0 || size.Height <= 0 {
		return Size{}, fmt.Errorf("sim: invalid size %s", size)
	}

	s.size = size
	if fps > 0 {
		s.fps = fps
	}

	return size, nil
}

// StartStream begins synthetic frame generation.
func (s *Sim) StartStream(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, ErrNotOpen
	}
	if s.streaming {
		return nil, fmt.Errorf("sim: stream already running")
	}

	s.streaming = true
	s.framesCh = make(chan Frame, s.cfg.ChannelBuffer)
	s.stopCh = make(chan struct{})

	s.logger.Info("sim: stream starting", "size", s.size.String(), "fps", s.fps)

	s.wg.Add(1)
	go s.generate(ctx)

	return s.framesCh, nil
}

// StopStream halts frame generation and closes the frame channel.
func (s *Sim) StopStream(ctx context.Context) error {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return nil
	}
	// Claim the stop under the lock so a concurrent StopStream sees
	// streaming false and cannot close the channel twice.
	s.streaming = false
	stopCh := s.stopCh
	framesCh := s.framesCh
	s.stopCh = nil
	s.framesCh = nil
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()

	close(framesCh)

	s.logger.Info("sim: stream stopped", "frames", s.frameCount.Load())

	return nil
}

// Apply records one complete control set.
func (s *Sim) Apply(set ControlSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		s.controlsRejected.Add(1)
		return ErrNotOpen
	}
	if s.applyErr != nil {
		s.controlsRejected.Add(1)
		return s.applyErr
	}

	s.last = set
	s.applied = append(s.applied, set)
	s.controlsApplied.Add(1)

	s.logger.Debug("sim: controls applied",
		"generation", set.Generation,
		"wb_auto", set.WhiteBalanceAuto,
		"preset", set.WhiteBalancePreset,
		"exposure_auto", set.ExposureAuto,
		"focus_auto", set.FocusAuto,
	)

	return nil
}

// CaptureStill renders one synthetic frame at the requested size.
func (s *Sim) CaptureStill(ctx context.Context, size Size, quality int) ([]byte, error) {
	s.mu.RLock()
	open := s.open
	tick := s.seq.Load()
	s.mu.RUnlock()

	if !open {
		return nil, ErrNotOpen
	}
	if size.IsZero() {
		return nil, fmt.Errorf("sim: invalid still size %s", size)
	}

	buf := renderGradient(size, int(tick), s.cfg.StridePad)
	img, err := imaging.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("sim: failed to render still: %w", err)
	}

	data, err := imaging.EncodeJPEG(img, quality)
	if err != nil {
		return nil, fmt.Errorf("sim: failed to encode still: %w", err)
	}

	s.stillsCaptured.Add(1)

	return data, nil
}

// Results returns the AWB measurement channel.
func (s *Sim) Results() <-chan AWBResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resultsCh
}

// Stats returns current driver statistics.
func (s *Sim) Stats() Stats {
	s.mu.RLock()
	streaming := s.streaming
	size := s.size
	fps := s.fps
	s.mu.RUnlock()

	count := s.frameCount.Load()
	dropped := s.framesDropped.Load()

	var dropRate float64
	if count+dropped > 0 {
		dropRate = float64(dropped) / float64(count+dropped) * 100
	}

	return Stats{
		FrameCount:       count,
		FramesDropped:    dropped,
		DropRate:         dropRate,
		FPSTarget:        fps,
		Resolution:       size.String(),
		BytesRead:        s.bytesRead.Load(),
		IsStreaming:      streaming,
		ControlsApplied:  s.controlsApplied.Load(),
		ControlsRejected: s.controlsRejected.Load(),
		StillsCaptured:   s.stillsCaptured.Load(),
	}
}

// FailApplies forces subsequent Apply calls to return err. Passing nil
// restores normal behavior. Test hook.
func (s *Sim) FailApplies(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyErr = err
}

// AppliedControls returns a copy of every control set applied so far.
// Test hook.
func (s *Sim) AppliedControls() []ControlSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ControlSet, len(s.applied))
	copy(out, s.applied)
	return out
}

// InjectAWBResult delivers a measurement as if the hardware produced it.
// Test hook.
func (s *Sim) InjectAWBResult(r AWBResult) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.resultsCh == nil {
		return
	}
	select {
	case s.resultsCh <- r:
	default:
	}
}

// ReleasedFrames reports how many frame buffers consumers have released.
// Test hook.
func (s *Sim) ReleasedFrames() uint64 {
	return s.releasedFrames.Load()
}

// generate produces frames at the target FPS until stopped.
func (s *Sim) generate(ctx context.Context) {
	defer s.wg.Done()

	s.mu.RLock()
	size := s.size
	fps := s.fps
	framesCh := s.framesCh
	stopCh := s.stopCh
	resultsCh := s.resultsCh
	s.mu.RUnlock()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	sinceResult := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			frame := s.createFrame(size)
			select {
			case framesCh <- frame:
				s.frameCount.Add(1)
				s.bytesRead.Add(uint64(len(frame.Data)))
			default:
				// Channel full - drop frame
				frame.Release()
				s.framesDropped.Add(1)
			}

			sinceResult++
			if sinceResult >= s.cfg.AWBInterval {
				sinceResult = 0
				s.maybeEmitAWB(resultsCh)
			}
		}
	}
}

// maybeEmitAWB publishes a measurement while a preset WB mode is active.
func (s *Sim) maybeEmitAWB(resultsCh chan AWBResult) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if !last.WhiteBalanceAuto {
		return
	}

	kelvin, ok := simPresetKelvin[last.WhiteBalancePreset]
	if !ok {
		kelvin = simPresetKelvin[WBPresetAuto]
	}

	// Slightly off-identity so consumers can tell a live matrix apart
	ccm := colorscience.Identity3()
	ccm[0] = 1.02
	ccm[8] = 0.98

	result := AWBResult{
		Gains:      colorscience.KelvinToGains(kelvin),
		CCM:        ccm,
		Generation: last.Generation,
		At:         time.Now(),
	}

	select {
	case resultsCh <- result:
	default:
	}
}

// createFrame renders the next synthetic frame.
func (s *Sim) createFrame(size Size) Frame {
	seq := s.seq.Add(1) - 1
	buf := renderGradient(size, int(seq), s.cfg.StridePad)

	frame := Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     size.Width,
		Height:    size.Height,
		Format:    imaging.FormatI420,
		YStride:   buf.YStride,
		CStride:   buf.CStride,
		Data:      buf.Data,
		Rotation:  s.cfg.Rotation,
		TraceID:   uuid.NewString(),
	}

	return frame.WithRelease(func() {
		s.releasedFrames.Add(1)
	})
}

// renderGradient builds a moving I420 gradient with optional row padding.
func renderGradient(size Size, tick, pad int) imaging.Buffer {
	w, h := size.Width, size.Height
	cw, ch := (w+1)/2, (h+1)/2
	ys := w + pad
	cs := cw + pad

	data := make([]byte, ys*h+2*cs*ch)

	for row := 0; row < h; row++ {
		base := row * ys
		for col := 0; col < w; col++ {
			data[base+col] = byte((col + row + tick) % 256)
		}
	}
	cbOff := ys * h
	crOff := cbOff + cs*ch
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			data[cbOff+row*cs+col] = byte(128 + (tick+col)%16)
			data[crOff+row*cs+col] = byte(128 - (tick+row)%16)
		}
	}

	return imaging.Buffer{
		Format:  imaging.FormatI420,
		Width:   w,
		Height:  h,
		YStride: ys,
		CStride: cs,
		Data:    data,
	}
}
