// Package analysis turns the sensor's raw frame stream into preview
// JPEGs and analysis-sized RGBA buffers.
//
// The pipeline is deliberately lossy: a single-slot inbox sits between
// the submitting goroutine and one processing goroutine, and a new
// frame overwrites an unconsumed one. When frames arrive faster than
// they can be processed, only the newest waits; everything older is
// dropped, counted, and its buffer released. Submit never blocks.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/care/iris/internal/imaging"
	"github.com/care/iris/internal/sensor"
)

// Config tunes a pipeline.
type Config struct {
	// AnalysisSize is the RGBA output geometry handed to downstream
	// analyzers. Required.
	AnalysisSize sensor.Size
	// Quality is the preview JPEG quality, in [1,100]. Zero defaults
	// to 80.
	Quality int
}

// Result is one processed frame.
type Result struct {
	Seq        uint64
	Timestamp  time.Time
	Generation uint64

	// Width and Height are the upright (post-rotation) preview
	// dimensions.
	Width  int
	Height int

	// JPEG is the full-size upright preview image.
	JPEG []byte

	// AnalysisRGBA is the frame resampled to the configured analysis
	// size.
	AnalysisRGBA *image.RGBA
}

// Callback receives processed frames. It runs on the processing
// goroutine: a slow callback causes frame drops, never backpressure on
// the sensor.
type Callback func(Result)

// Stats is a point-in-time pipeline snapshot.
type Stats struct {
	Submitted     uint64
	Processed     uint64
	Dropped       uint64
	Failures      uint64
	LastLatencyMs float64
}

// Pipeline is the keep-latest frame processing stage.
//
// Goroutine topology: one processing goroutine, spawned by Start and
// stopped by Stop. Submit is called from the session's frame pump.
//
// Thread-safety: all methods are safe for concurrent use.
type Pipeline struct {
	cfg    Config
	cb     Callback
	logger *slog.Logger

	// Single-slot inbox. nil means consumed; overwriting a non-nil
	// slot drops and releases the displaced frame.
	inboxMu    sync.Mutex
	inboxCond  *sync.Cond
	inboxFrame *sensor.Frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
	running   atomic.Bool

	lastGen       atomic.Uint64
	submitted     atomic.Uint64
	processed     atomic.Uint64
	dropped       atomic.Uint64
	failures      atomic.Uint64
	lastLatencyNs atomic.Int64
}

// NewPipeline validates the configuration and returns a stopped
// pipeline.
func NewPipeline(cfg Config, cb Callback, logger *slog.Logger) (*Pipeline, error) {
	if cb == nil {
		return nil, errors.New("analysis: callback is required")
	}
	if cfg.AnalysisSize.Width <= 0 || cfg.AnalysisSize.Height <= 0 {
		return nil, fmt.Errorf("analysis: invalid analysis size %s", cfg.AnalysisSize)
	}
	if cfg.Quality == 0 {
		cfg.Quality = 80
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		return nil, fmt.Errorf("analysis: jpeg quality must be 1-100, got %d", cfg.Quality)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		cfg:    cfg,
		cb:     cb,
		logger: logger,
	}
	p.inboxCond = sync.NewCond(&p.inboxMu)
	return p, nil
}

// Start spawns the processing goroutine. Starting a running pipeline
// is an error; a cleanly stopped pipeline may be started again.
func (p *Pipeline) Start(ctx context.Context) error {
	p.startedMu.Lock()
	defer p.startedMu.Unlock()

	if p.started {
		return errors.New("analysis: pipeline already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true
	p.running.Store(true)

	p.wg.Add(1)
	go p.processLoop()

	p.logger.Info("analysis: started",
		"analysis_size", p.cfg.AnalysisSize.String(),
		"quality", p.cfg.Quality)
	return nil
}

// Stop shuts the processing goroutine down and releases any frame
// still waiting in the inbox. The drain is bounded by ctx; on
// expiration Stop returns the context error with the goroutine still
// live.
//
// Idempotent: stopping a stopped pipeline returns nil.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.startedMu.Lock()
	if !p.started {
		p.startedMu.Unlock()
		return nil
	}
	p.started = false
	p.startedMu.Unlock()

	p.running.Store(false)
	p.cancel()
	p.inboxCond.Broadcast()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("analysis: stop interrupted while draining", "error", ctx.Err())
		return ctx.Err()
	}

	// A frame that never reached the worker still owns its buffer.
	p.inboxMu.Lock()
	leftover := p.inboxFrame
	p.inboxFrame = nil
	p.inboxMu.Unlock()
	if leftover != nil {
		leftover.Release()
		p.dropped.Add(1)
	}

	p.logger.Info("analysis: stopped",
		"submitted", p.submitted.Load(),
		"processed", p.processed.Load(),
		"dropped", p.dropped.Load(),
		"failures", p.failures.Load())
	return nil
}

// Submit hands a frame to the pipeline. Non-blocking: if the previous
// frame has not been consumed yet it is displaced, counted as dropped,
// and released exactly once. Frames submitted to a stopped pipeline
// are released immediately.
//
// Implements the session Binding contract.
func (p *Pipeline) Submit(frame sensor.Frame) {
	p.submitted.Add(1)

	if !p.running.Load() {
		frame.Release()
		p.dropped.Add(1)
		return
	}

	var displaced *sensor.Frame

	p.inboxMu.Lock()
	if p.inboxFrame != nil {
		displaced = p.inboxFrame
		p.dropped.Add(1)
	}
	p.inboxFrame = &frame
	p.inboxCond.Signal()
	p.inboxMu.Unlock()

	if displaced != nil {
		displaced.Release()
	}
}

// Stats returns a point-in-time snapshot.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted:     p.submitted.Load(),
		Processed:     p.processed.Load(),
		Dropped:       p.dropped.Load(),
		Failures:      p.failures.Load(),
		LastLatencyMs: float64(p.lastLatencyNs.Load()) / 1e6,
	}
}

// processLoop consumes the inbox slot until the pipeline context is
// cancelled.
func (p *Pipeline) processLoop() {
	defer p.wg.Done()

	for {
		p.inboxMu.Lock()
		for p.inboxFrame == nil {
			if p.ctx.Err() != nil {
				p.inboxMu.Unlock()
				return
			}
			p.inboxCond.Wait()
			if p.ctx.Err() != nil {
				p.inboxMu.Unlock()
				return
			}
		}
		frame := p.inboxFrame
		p.inboxFrame = nil
		p.inboxMu.Unlock()

		p.process(*frame)
	}
}

// process renders one frame and delivers it to the callback. The
// frame's buffer is released when processing ends, whatever the
// outcome.
func (p *Pipeline) process(frame sensor.Frame) {
	defer frame.Release()

	// A frame from an older session generation is dropped unprocessed.
	// The slot can hold a frame across a session restart; the first
	// frame of the new generation advances the watermark.
	gen := frame.Generation
	if last := p.lastGen.Load(); gen < last {
		p.dropped.Add(1)
		p.logger.Debug("analysis: dropping stale-generation frame",
			"seq", frame.Seq,
			"frame_generation", gen,
			"generation", last)
		return
	} else if gen > last {
		p.lastGen.Store(gen)
	}

	start := time.Now()

	img, preview, err := p.render(frame)
	if err != nil {
		p.failures.Add(1)
		p.logger.Warn("analysis: failed to process frame", "seq", frame.Seq, "error", err)
		return
	}

	rgba := imaging.Scale(img, p.cfg.AnalysisSize.Width, p.cfg.AnalysisSize.Height)

	elapsed := time.Since(start)
	p.processed.Add(1)
	p.lastLatencyNs.Store(elapsed.Nanoseconds())

	bounds := img.Bounds()
	p.cb(Result{
		Seq:          frame.Seq,
		Timestamp:    frame.Timestamp,
		Generation:   frame.Generation,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		JPEG:         preview,
		AnalysisRGBA: rgba,
	})
}

// render produces the upright image and its JPEG encoding. An MJPEG
// frame that needs no rotation passes its compressed bytes through
// without a re-encode; everything else goes unpack, rotate, encode.
func (p *Pipeline) render(frame sensor.Frame) (image.Image, []byte, error) {
	img, err := imaging.Decode(frame.Buffer())
	if err != nil {
		return nil, nil, fmt.Errorf("analysis: failed to decode frame: %w", err)
	}

	if frame.Format == imaging.FormatMJPEG && frame.Rotation == 0 {
		data := make([]byte, len(frame.Data))
		copy(data, frame.Data)
		return img, data, nil
	}

	if frame.Rotation != 0 {
		img, err = imaging.Rotate(img, frame.Rotation)
		if err != nil {
			return nil, nil, fmt.Errorf("analysis: failed to rotate frame: %w", err)
		}
	}

	data, err := imaging.EncodeJPEG(img, p.cfg.Quality)
	if err != nil {
		return nil, nil, fmt.Errorf("analysis: failed to encode frame: %w", err)
	}
	return img, data, nil
}
