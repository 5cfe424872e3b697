package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/care/iris/internal/imaging"
	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Pipeline rebuild backoff schedule: 1s, 2s, 4s, 8s, 16s, capped at 30s.
const (
	maxPipelineRetries    = 5
	pipelineRetryDelay    = 1 * time.Second
	pipelineRetryDelayMax = 30 * time.Second
	stillGrabTimeout      = 5 * time.Second
)

// gstDefaultSizes is the negotiation menu advertised when the config
// does not pin one. videoscale can produce any of these regardless of
// the native sensor mode.
var gstDefaultSizes = []Size{
	{640, 480},
	{1280, 720},
	{1920, 1080},
}

// GStreamerConfig configures the GStreamer driver.
type GStreamerConfig struct {
	// DevicePath is the capture node handed to v4l2src (e.g. /dev/video0).
	DevicePath string
	// Sizes lists the geometries offered for negotiation. Empty means
	// the default 480p/720p/1080p menu.
	Sizes []Size
	// FPS is the capture rate enforced by videorate. Zero defaults to 30.
	FPS int
	// ChannelBuffer sizes the frame channel. Zero defaults to 8.
	ChannelBuffer int
}

// gstElements holds the live pipeline references needed for teardown.
type gstElements struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink
}

// GStreamer drives a camera through a v4l2src capture pipeline.
//
// The pipeline owns the device node end to end, so the driver has no
// control surface: Apply always fails with ErrControlsUnsupported and
// the imaging stack stays in whatever auto mode the hardware defaults
// to. Use the V4L2 driver when parameter control is required.
type GStreamer struct {
	cfg    GStreamerConfig
	logger *slog.Logger

	mu        sync.RWMutex
	open      bool
	streaming bool
	size      Size
	fps       float64
	elements  *gstElements

	monitorCancel context.CancelFunc
	framesCh      chan Frame
	wg            sync.WaitGroup

	seq              atomic.Uint64
	frameCount       atomic.Uint64
	framesDropped    atomic.Uint64
	bytesRead        atomic.Uint64
	controlsRejected atomic.Uint64
	stillsCaptured   atomic.Uint64
	rebuilds         atomic.Uint64

	errorsDevice      atomic.Uint64
	errorsNegotiation atomic.Uint64
	errorsDecode      atomic.Uint64
	errorsUnknown     atomic.Uint64
}

// NewGStreamer creates a GStreamer driver for the configured device node.
func NewGStreamer(cfg GStreamerConfig, logger *slog.Logger) (*GStreamer, error) {
	if cfg.DevicePath == "" {
		return nil, fmt.Errorf("gstreamer: device path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 8
	}
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = gstDefaultSizes
	}

	return &GStreamer{cfg: cfg, logger: logger}, nil
}

// Open verifies the device node is reachable and initializes GStreamer.
// The pipeline itself opens the node lazily at StartStream.
func (g *GStreamer) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return ErrAlreadyOpen
	}

	f, err := os.OpenFile(g.cfg.DevicePath, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("gstreamer: %w: %s", ErrPermissionDenied, g.cfg.DevicePath)
		}
		return fmt.Errorf("gstreamer: failed to open %s: %w", g.cfg.DevicePath, err)
	}
	f.Close()

	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	g.open = true

	g.logger.Info("gstreamer: device opened",
		"path", g.cfg.DevicePath,
		"supported_sizes", len(g.cfg.Sizes),
	)

	return nil
}

// Close releases the driver. Idempotent.
func (g *GStreamer) Close(ctx context.Context) error {
	if err := g.StopStream(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return nil
	}
	g.open = false

	g.logger.Info("gstreamer: device closed", "frames", g.frameCount.Load())

	return nil
}

// SupportedSizes lists the configured negotiation menu.
func (g *GStreamer) SupportedSizes() []Size {
	sizes := make([]Size, len(g.cfg.Sizes))
	copy(sizes, g.cfg.Sizes)
	return sizes
}

// Capabilities reports an empty control surface: the pipeline leaves
// every imaging parameter in the hardware's default auto mode.
func (g *GStreamer) Capabilities() Capabilities {
	return Capabilities{}
}

// Configure records the streaming geometry and rate. videoscale and
// videorate produce the requested output exactly, so the requested size
// is also the actual one.
func (g *GStreamer) Configure(size Size, fps float64) (Size, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return Size{}, ErrNotOpen
	}
	if g.streaming {
		return Size{}, fmt.Errorf("gstreamer: cannot reconfigure while streaming")
	}
	if size.IsZero() {
		return Size{}, fmt.Errorf("gstreamer: size is required")
	}
	if fps <= 0 {
		fps = float64(g.cfg.FPS)
	}

	g.size = size
	g.fps = fps

	g.logger.Info("gstreamer: format configured", "size", size.String(), "fps", fps)

	return size, nil
}

// StartStream builds the live pipeline and begins frame delivery.
func (g *GStreamer) StartStream(ctx context.Context) (<-chan Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return nil, ErrNotOpen
	}
	if g.streaming {
		return nil, fmt.Errorf("gstreamer: stream already running")
	}
	if g.size.IsZero() {
		return nil, fmt.Errorf("gstreamer: not configured")
	}

	elements, err := g.buildLivePipeline(g.size, g.fps)
	if err != nil {
		return nil, err
	}

	framesCh := make(chan Frame, g.cfg.ChannelBuffer)
	if err := g.attachAndPlay(elements, framesCh, g.size); err != nil {
		return nil, err
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	g.elements = elements
	g.framesCh = framesCh
	g.monitorCancel = cancel
	g.streaming = true

	g.wg.Add(1)
	go g.monitor(monitorCtx)

	g.logger.Info("gstreamer: stream started",
		"device", g.cfg.DevicePath,
		"size", g.size.String(),
		"fps", g.fps,
		"note", "frames arrive asynchronously once the pipeline reaches playing",
	)

	return framesCh, nil
}

// StopStream halts delivery and closes the frame channel.
func (g *GStreamer) StopStream(ctx context.Context) error {
	g.mu.Lock()
	if !g.streaming {
		g.mu.Unlock()
		return nil
	}
	// Claiming streaming under the lock keeps a second StopStream from
	// closing the channel twice. The cancel func is nil while a still
	// grab holds the pipeline down.
	cancel := g.monitorCancel
	g.streaming = false
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.wg.Wait()

	g.mu.Lock()
	if g.elements != nil {
		g.elements.pipeline.SetState(gst.StateNull)
		g.elements = nil
	}
	if g.framesCh != nil {
		close(g.framesCh)
		g.framesCh = nil
	}
	g.monitorCancel = nil
	g.mu.Unlock()

	g.logger.Info("gstreamer: stream stopped",
		"frames", g.frameCount.Load(),
		"dropped", g.framesDropped.Load(),
		"rebuilds", g.rebuilds.Load(),
	)

	return nil
}

// buildLivePipeline assembles the capture graph:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
//
// The pipeline is created in the NULL state; the caller starts it.
func (g *GStreamer) buildLivePipeline(size Size, fps float64) (*gstElements, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", g.cfg.DevicePath)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // 0 = auto-detect cores

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)     // Only drop frames, never duplicate
	videorate.SetProperty("skip-to-first", true) // Skip to first frame on start

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildVideoCaps(size, fps)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // No sync with clock (real-time)
	appsink.SetProperty("max-buffers", 1) // Keep only latest frame
	appsink.SetProperty("drop", true)     // Drop old frames
	appsink.SetProperty("qos", true)      // Upstream drop notifications

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)

	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("gstreamer: failed to link pipeline elements: %w", err)
	}

	return &gstElements{pipeline: pipeline, appsink: appsink}, nil
}

// attachAndPlay registers the sample callback and brings the pipeline up.
func (g *GStreamer) attachAndPlay(elements *gstElements, framesCh chan Frame, size Size) error {
	elements.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return g.onSample(sink, framesCh, size)
		},
	})

	if err := elements.pipeline.SetState(gst.StatePlaying); err != nil {
		elements.pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstreamer: failed to start pipeline: %w", err)
	}

	return nil
}

// onSample copies one appsink sample into a frame.
//
// This callback:
//  1. Pulls the sample from the appsink
//  2. Maps the buffer to read pixel data
//  3. Copies data (GStreamer will reuse the buffer)
//  4. Sends the frame non-blocking - drops if the channel is full
func (g *GStreamer) onSample(sink *app.Sink, framesCh chan<- Frame, size Size) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single bad sample should not kill the stream
		g.logger.Warn("gstreamer: failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		g.logger.Warn("gstreamer: sample carried no buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		g.logger.Warn("gstreamer: empty buffer received")
		return gst.FlowOK
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	buffer.Unmap()

	frame := Frame{
		Seq:       g.seq.Add(1) - 1,
		Timestamp: time.Now(),
		Width:     size.Width,
		Height:    size.Height,
		Format:    imaging.FormatRGB24,
		YStride:   rgbStride(len(copied), size),
		Data:      copied,
		TraceID:   uuid.NewString(),
	}

	select {
	case framesCh <- frame:
		g.frameCount.Add(1)
		g.bytesRead.Add(uint64(len(copied)))
	default:
		// Channel full - drop frame
		g.framesDropped.Add(1)
	}

	return gst.FlowOK
}

// monitor watches the pipeline bus and rebuilds the capture graph with
// exponential backoff when it fails. Runs until the context is cancelled
// or the retries are exhausted.
func (g *GStreamer) monitor(ctx context.Context) {
	defer g.wg.Done()

	retries := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		g.mu.RLock()
		elements := g.elements
		g.mu.RUnlock()

		if elements != nil {
			if err := g.watchBus(ctx, elements.pipeline, func() { retries = 0 }); err == nil {
				return
			}
		}

		retries++
		if retries > maxPipelineRetries {
			g.logger.Error("gstreamer: pipeline abandoned after repeated failures",
				"retries", maxPipelineRetries,
				"device", g.cfg.DevicePath,
			)
			return
		}

		delay := pipelineRetryDelay * time.Duration(1<<uint(retries-1))
		if delay > pipelineRetryDelayMax {
			delay = pipelineRetryDelayMax
		}

		g.logger.Warn("gstreamer: rebuilding pipeline",
			"attempt", retries,
			"max_retries", maxPipelineRetries,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		if err := g.rebuildLive(); err != nil {
			g.logger.Error("gstreamer: pipeline rebuild failed", "error", err)
		}
	}
}

// watchBus polls the pipeline bus until the context is cancelled (returns
// nil) or the pipeline reports a fatal condition (returns the error).
func (g *GStreamer) watchBus(ctx context.Context, pipeline *gst.Pipeline, onPlaying func()) error {
	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return nil

		default:
			// Poll with a short timeout for responsive shutdown
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				g.logger.Warn("gstreamer: end of stream",
					"device", g.cfg.DevicePath,
					"frames", g.frameCount.Load(),
				)
				return fmt.Errorf("gstreamer: end of stream")

			case gst.MessageError:
				gerr := msg.ParseError()
				category := classifyGstError(gerr.Error(), gerr.DebugString())
				g.countError(category)

				g.logger.Error("gstreamer: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
					"device", g.cfg.DevicePath,
					"frames", g.frameCount.Load(),
				)
				return fmt.Errorf("gstreamer: pipeline error [%s]: %s", category.String(), gerr.Error())

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					_, newState := msg.ParseStateChanged()
					if newState == gst.StatePlaying {
						onPlaying()
						g.logger.Info("gstreamer: pipeline playing")
					}
				}
			}
		}
	}
}

// rebuildLive replaces a failed capture graph. The frame channel is kept
// so consumers only observe a delivery gap.
func (g *GStreamer) rebuildLive() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.streaming {
		return fmt.Errorf("gstreamer: stream stopped during rebuild")
	}

	if g.elements != nil {
		g.elements.pipeline.SetState(gst.StateNull)
		g.elements = nil
	}

	elements, err := g.buildLivePipeline(g.size, g.fps)
	if err != nil {
		return err
	}

	if err := g.attachAndPlay(elements, g.framesCh, g.size); err != nil {
		return err
	}

	g.elements = elements
	g.rebuilds.Add(1)

	return nil
}

// countError bumps the per-category pipeline error counter.
func (g *GStreamer) countError(category gstErrorCategory) {
	switch category {
	case gstErrDevice:
		g.errorsDevice.Add(1)
	case gstErrNegotiation:
		g.errorsNegotiation.Add(1)
	case gstErrDecode:
		g.errorsDecode.Add(1)
	default:
		g.errorsUnknown.Add(1)
	}
}

// Apply always fails: the pipeline owns the device node end to end, so
// there is no side channel for control writes.
func (g *GStreamer) Apply(set ControlSet) error {
	g.controlsRejected.Add(1)
	g.logger.Debug("gstreamer: controls rejected", "generation", set.Generation)
	return ErrControlsUnsupported
}

// CaptureStill tears down the live graph, runs a one-shot pipeline at
// the still geometry, and restores streaming.
//
// The preview channel observes a gap while the grab runs; it closes
// only if the live graph cannot be rebuilt afterwards.
func (g *GStreamer) CaptureStill(ctx context.Context, size Size, quality int) ([]byte, error) {
	g.mu.Lock()
	if !g.open {
		g.mu.Unlock()
		return nil, ErrNotOpen
	}
	wasStreaming := g.streaming
	g.mu.Unlock()

	if wasStreaming {
		g.pauseLive()
	}

	data, err := g.grabStill(ctx, size)

	if wasStreaming {
		if resumeErr := g.resumeLive(); resumeErr != nil {
			g.logger.Error("gstreamer: failed to resume stream after still", "error", resumeErr)
			if err == nil {
				err = resumeErr
			}
		}
	}
	if err != nil {
		return nil, err
	}

	jpegData, err := g.encodeStill(data, size, quality)
	if err != nil {
		return nil, err
	}

	g.stillsCaptured.Add(1)

	return jpegData, nil
}

// pauseLive halts the live pipeline without closing the frame channel.
func (g *GStreamer) pauseLive() {
	g.mu.Lock()
	cancel := g.monitorCancel
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.wg.Wait()

	g.mu.Lock()
	if g.elements != nil {
		g.elements.pipeline.SetState(gst.StateNull)
		g.elements = nil
	}
	g.monitorCancel = nil
	g.mu.Unlock()
}

// resumeLive rebuilds the live pipeline onto the existing frame channel.
func (g *GStreamer) resumeLive() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.streaming {
		return nil
	}

	elements, err := g.buildLivePipeline(g.size, g.fps)
	if err != nil {
		g.abandonStreamLocked()
		return err
	}

	if err := g.attachAndPlay(elements, g.framesCh, g.size); err != nil {
		g.abandonStreamLocked()
		return err
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	g.elements = elements
	g.monitorCancel = cancel

	g.wg.Add(1)
	go g.monitor(monitorCtx)

	return nil
}

// abandonStreamLocked marks the stream stopped and closes the frame
// channel so consumers do not wait on a stream that cannot resume.
// The caller must hold g.mu with no delivery callbacks active.
func (g *GStreamer) abandonStreamLocked() {
	g.streaming = false
	if g.framesCh != nil {
		close(g.framesCh)
		g.framesCh = nil
	}
}

// grabStill runs a one-shot pipeline at the still geometry and returns
// the raw RGB bytes.
func (g *GStreamer) grabStill(ctx context.Context, size Size) ([]byte, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create still pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", g.cfg.DevicePath)
	src.SetProperty("num-buffers", 1)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create capsfilter: %w", err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", size.Width, size.Height)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)

	pipeline.AddMany(src, converter, scaler, capsfilter, appsink.Element)

	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("gstreamer: failed to link still pipeline: %w", err)
	}

	stillCh := make(chan []byte, 1)
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			sample := sink.PullSample()
			if sample == nil {
				return gst.FlowOK
			}
			buffer := sample.GetBuffer()
			if buffer == nil {
				return gst.FlowOK
			}
			mapInfo := buffer.Map(gst.MapRead)
			data := mapInfo.Bytes()
			copied := make([]byte, len(data))
			copy(copied, data)
			buffer.Unmap()

			select {
			case stillCh <- copied:
			default:
			}
			return gst.FlowOK
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("gstreamer: failed to start still pipeline: %w", err)
	}

	select {
	case data := <-stillCh:
		return data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("gstreamer: still capture cancelled: %w", ctx.Err())
	case <-time.After(stillGrabTimeout):
		return nil, fmt.Errorf("gstreamer: timeout waiting for still frame")
	}
}

// encodeStill converts the raw RGB grab into a JPEG at the given quality.
func (g *GStreamer) encodeStill(data []byte, size Size, quality int) ([]byte, error) {
	img, err := imaging.Decode(imaging.Buffer{
		Format:  imaging.FormatRGB24,
		Width:   size.Width,
		Height:  size.Height,
		YStride: rgbStride(len(data), size),
		Data:    data,
	})
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to decode still: %w", err)
	}

	jpegData, err := imaging.EncodeJPEG(img, quality)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to encode still: %w", err)
	}

	return jpegData, nil
}

// Results returns nil: the pipeline exposes no AWB measurements.
func (g *GStreamer) Results() <-chan AWBResult {
	return nil
}

// Stats returns current driver statistics.
func (g *GStreamer) Stats() Stats {
	g.mu.RLock()
	streaming := g.streaming
	size := g.size
	fps := g.fps
	g.mu.RUnlock()

	count := g.frameCount.Load()
	dropped := g.framesDropped.Load()

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
		BytesRead:        g.bytesRead.Load(),
		IsStreaming:      streaming,
		ControlsRejected: g.controlsRejected.Load(),
		StillsCaptured:   g.stillsCaptured.Load(),
	}
}

// buildVideoCaps builds the capsfilter string with a framerate constraint.
//
// Handles fractional framerates:
//   - fps >= 1.0: framerate = fps/1 (e.g. 5.0 -> 5/1)
//   - fps < 1.0: framerate = 1/(1/fps) (e.g. 0.5 -> 1/2)
func buildVideoCaps(size Size, fps float64) string {
	numerator := 1
	denominator := 1

	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}

	return fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		size.Width, size.Height, numerator, denominator,
	)
}

// rgbStride derives the row stride of a packed RGB buffer. GStreamer
// pads rows to 4-byte boundaries, so the stride can exceed 3*width.
func rgbStride(dataLen int, size Size) int {
	if size.Height > 0 && dataLen%size.Height == 0 {
		return dataLen / size.Height
	}
	return 3 * size.Width
}
