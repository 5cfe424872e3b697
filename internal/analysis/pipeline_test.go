package analysis

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/care/iris/internal/imaging"
	"github.com/care/iris/internal/sensor"
)

// rgb24Frame builds a deterministic gradient frame. pad adds extra
// bytes to every row so stride handling can be exercised.
func rgb24Frame(seq uint64, w, h, pad int, released *atomic.Uint64) sensor.Frame {
	stride := 3*w + pad
	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		row := data[y*stride:]
		for x := 0; x < w; x++ {
			row[3*x+0] = uint8(x * 7)
			row[3*x+1] = uint8(y * 5)
			row[3*x+2] = uint8((x + y) * 3)
		}
	}

	f := sensor.Frame{
		Seq:        seq,
		Timestamp:  time.Now(),
		Width:      w,
		Height:     h,
		Format:     imaging.FormatRGB24,
		YStride:    stride,
		Data:       data,
		Generation: 1,
	}
	if released != nil {
		f = f.WithRelease(func() { released.Add(1) })
	}
	return f
}

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) cb(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) snapshot() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startPipeline(t *testing.T, cfg Config, cb Callback) *Pipeline {
	t.Helper()
	if cfg.AnalysisSize.IsZero() {
		cfg.AnalysisSize = sensor.Size{Width: 32, Height: 24}
	}
	p, err := NewPipeline(cfg, cb, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { p.Stop(context.Background()) })
	return p
}

func TestNewPipelineValidation(t *testing.T) {
	size := sensor.Size{Width: 32, Height: 24}
	cb := func(Result) {}

	tests := []struct {
		name    string
		cfg     Config
		cb      Callback
		wantErr bool
	}{
		{"nil callback", Config{AnalysisSize: size}, nil, true},
		{"zero size", Config{}, cb, true},
		{"quality too high", Config{AnalysisSize: size, Quality: 101}, cb, true},
		{"negative quality", Config{AnalysisSize: size, Quality: -1}, cb, true},
		{"zero quality defaults", Config{AnalysisSize: size}, cb, false},
		{"valid", Config{AnalysisSize: size, Quality: 70}, cb, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline(tt.cfg, tt.cb, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPipeline error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPipelineProcessesFrame(t *testing.T) {
	var released atomic.Uint64
	col := &collector{}
	p := startPipeline(t, Config{AnalysisSize: sensor.Size{Width: 32, Height: 24}}, col.cb)

	p.Submit(rgb24Frame(7, 64, 48, 0, &released))
	waitFor(t, 2*time.Second, func() bool { return col.count() == 1 },
		"Timeout waiting for processed frame")

	res := col.snapshot()[0]
	if res.Seq != 7 {
		t.Errorf("Expected seq 7, got %d", res.Seq)
	}
	if res.Width != 64 || res.Height != 48 {
		t.Errorf("Expected 64x48 preview, got %dx%d", res.Width, res.Height)
	}

	img, err := jpeg.Decode(bytes.NewReader(res.JPEG))
	if err != nil {
		t.Fatalf("Preview is not a valid jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("Expected 64x48 jpeg, got %dx%d", b.Dx(), b.Dy())
	}

	if b := res.AnalysisRGBA.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("Expected 32x24 analysis buffer, got %dx%d", b.Dx(), b.Dy())
	}

	waitFor(t, time.Second, func() bool { return released.Load() == 1 },
		"Timeout waiting for frame release")

	st := p.Stats()
	if st.Submitted != 1 || st.Processed != 1 || st.Dropped != 0 {
		t.Errorf("Unexpected stats %+v", st)
	}
	if st.LastLatencyMs <= 0 {
		t.Errorf("Expected positive latency, got %f", st.LastLatencyMs)
	}
}

func TestPipelineKeepLatestUnderLoad(t *testing.T) {
	var released atomic.Uint64
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once

	col := &collector{}
	blockingCb := func(r Result) {
		col.cb(r)
		once.Do(func() {
			close(entered)
			<-unblock
		})
	}
	p := startPipeline(t, Config{}, blockingCb)

	// The first frame occupies the worker.
	p.Submit(rgb24Frame(1, 16, 12, 0, &released))
	<-entered

	// Three more arrive while the worker is busy: the slot keeps only
	// the newest, displacing the other two.
	p.Submit(rgb24Frame(2, 16, 12, 0, &released))
	p.Submit(rgb24Frame(3, 16, 12, 0, &released))
	p.Submit(rgb24Frame(4, 16, 12, 0, &released))

	waitFor(t, time.Second, func() bool { return released.Load() == 2 },
		"Timeout waiting for displaced frames to be released")
	if got := p.Stats().Dropped; got != 2 {
		t.Errorf("Expected 2 dropped frames, got %d", got)
	}

	close(unblock)
	waitFor(t, 2*time.Second, func() bool { return col.count() == 2 },
		"Timeout waiting for the surviving frame")

	results := col.snapshot()
	if results[0].Seq != 1 || results[1].Seq != 4 {
		t.Errorf("Expected seqs [1 4], got [%d %d]", results[0].Seq, results[1].Seq)
	}

	// Every submitted frame ends up released exactly once.
	waitFor(t, time.Second, func() bool { return released.Load() == 4 },
		"Timeout waiting for all frames to be released")
}

func TestPipelineStaleGenerationDropped(t *testing.T) {
	var released atomic.Uint64
	col := &collector{}
	p := startPipeline(t, Config{}, col.cb)

	fresh := rgb24Frame(1, 16, 12, 0, &released)
	fresh.Generation = 2
	p.Submit(fresh)
	waitFor(t, 2*time.Second, func() bool { return col.count() == 1 },
		"Timeout waiting for first frame")

	// A frame from the previous session is dropped unprocessed.
	stale := rgb24Frame(2, 16, 12, 0, &released)
	stale.Generation = 1
	p.Submit(stale)
	waitFor(t, 2*time.Second, func() bool { return p.Stats().Dropped == 1 },
		"Timeout waiting for stale frame drop")
	waitFor(t, time.Second, func() bool { return released.Load() == 2 },
		"Timeout waiting for stale frame release")
	if col.count() != 1 {
		t.Fatalf("Expected stale frame to skip the callback, got %d results", col.count())
	}

	// The watermark advances with newer generations.
	next := rgb24Frame(3, 16, 12, 0, &released)
	next.Generation = 3
	p.Submit(next)
	waitFor(t, 2*time.Second, func() bool { return col.count() == 2 },
		"Timeout waiting for next-generation frame")
	if got := col.snapshot()[1].Generation; got != 3 {
		t.Errorf("Expected generation 3 result, got %d", got)
	}
}

func TestPipelineStrideEquivalence(t *testing.T) {
	col := &collector{}
	p := startPipeline(t, Config{AnalysisSize: sensor.Size{Width: 16, Height: 12}}, col.cb)

	p.Submit(rgb24Frame(1, 32, 24, 0, nil))
	waitFor(t, 2*time.Second, func() bool { return col.count() == 1 },
		"Timeout waiting for tight-stride frame")

	p.Submit(rgb24Frame(2, 32, 24, 64, nil))
	waitFor(t, 2*time.Second, func() bool { return col.count() == 2 },
		"Timeout waiting for padded-stride frame")

	results := col.snapshot()
	tight, padded := results[0], results[1]

	if !bytes.Equal(tight.JPEG, padded.JPEG) {
		t.Error("Expected identical jpeg output for tight and padded strides")
	}
	if !bytes.Equal(tight.AnalysisRGBA.Pix, padded.AnalysisRGBA.Pix) {
		t.Error("Expected identical analysis pixels for tight and padded strides")
	}
}

func TestPipelineRotationSwapsDimensions(t *testing.T) {
	col := &collector{}
	p := startPipeline(t, Config{}, col.cb)

	f := rgb24Frame(1, 64, 48, 0, nil)
	f.Rotation = 90
	p.Submit(f)
	waitFor(t, 2*time.Second, func() bool { return col.count() == 1 },
		"Timeout waiting for rotated frame")

	res := col.snapshot()[0]
	if res.Width != 48 || res.Height != 64 {
		t.Errorf("Expected 48x64 after 90 degree rotation, got %dx%d", res.Width, res.Height)
	}

	img, err := jpeg.Decode(bytes.NewReader(res.JPEG))
	if err != nil {
		t.Fatalf("Rotated preview is not a valid jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 64 {
		t.Errorf("Expected 48x64 jpeg, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestPipelineMJPEGPassthrough(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("Encoding source jpeg: %v", err)
	}
	compressed := buf.Bytes()

	col := &collector{}
	p := startPipeline(t, Config{AnalysisSize: sensor.Size{Width: 20, Height: 15}}, col.cb)

	// Upright MJPEG keeps its compressed bytes.
	p.Submit(sensor.Frame{
		Seq: 1, Width: 40, Height: 30,
		Format: imaging.FormatMJPEG,
		Data:   compressed,
	})
	waitFor(t, 2*time.Second, func() bool { return col.count() == 1 },
		"Timeout waiting for passthrough frame")

	res := col.snapshot()[0]
	if !bytes.Equal(res.JPEG, compressed) {
		t.Error("Expected upright MJPEG to pass through unchanged")
	}
	if b := res.AnalysisRGBA.Bounds(); b.Dx() != 20 || b.Dy() != 15 {
		t.Errorf("Expected 20x15 analysis buffer, got %dx%d", b.Dx(), b.Dy())
	}

	// Rotated MJPEG is re-encoded upright.
	p.Submit(sensor.Frame{
		Seq: 2, Width: 40, Height: 30,
		Format:   imaging.FormatMJPEG,
		Data:     compressed,
		Rotation: 90,
	})
	waitFor(t, 2*time.Second, func() bool { return col.count() == 2 },
		"Timeout waiting for rotated MJPEG frame")

	rotated := col.snapshot()[1]
	if rotated.Width != 30 || rotated.Height != 40 {
		t.Errorf("Expected 30x40 after rotation, got %dx%d", rotated.Width, rotated.Height)
	}
	if bytes.Equal(rotated.JPEG, compressed) {
		t.Error("Expected rotated MJPEG to be re-encoded")
	}
}

func TestPipelineDecodeFailureCounted(t *testing.T) {
	var released atomic.Uint64
	col := &collector{}
	p := startPipeline(t, Config{}, col.cb)

	f := sensor.Frame{
		Seq: 1, Width: 16, Height: 12,
		Format: imaging.FormatMJPEG,
		Data:   []byte("definitely not a jpeg"),
	}.WithRelease(func() { released.Add(1) })
	p.Submit(f)

	waitFor(t, 2*time.Second, func() bool { return p.Stats().Failures == 1 },
		"Timeout waiting for decode failure")
	waitFor(t, time.Second, func() bool { return released.Load() == 1 },
		"Timeout waiting for failed frame release")
	if col.count() != 0 {
		t.Errorf("Expected no callback for a failed frame, got %d results", col.count())
	}
}

func TestPipelineSubmitAfterStop(t *testing.T) {
	var released atomic.Uint64
	col := &collector{}
	p, err := NewPipeline(Config{AnalysisSize: sensor.Size{Width: 16, Height: 12}}, col.cb, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	// Submissions before Start are dropped and released.
	p.Submit(rgb24Frame(1, 16, 12, 0, &released))
	if released.Load() != 1 {
		t.Fatalf("Expected pre-start frame released, got %d", released.Load())
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Expected idempotent stop, got %v", err)
	}

	p.Submit(rgb24Frame(2, 16, 12, 0, &released))
	if released.Load() != 2 {
		t.Errorf("Expected post-stop frame released, got %d", released.Load())
	}
	if got := p.Stats().Dropped; got != 2 {
		t.Errorf("Expected 2 dropped frames, got %d", got)
	}
	if col.count() != 0 {
		t.Errorf("Expected no results, got %d", col.count())
	}

	// A cleanly stopped pipeline can be restarted.
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	p.Submit(rgb24Frame(3, 16, 12, 0, &released))
	waitFor(t, 2*time.Second, func() bool { return col.count() == 1 },
		"Timeout waiting for frame after restart")
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Final stop failed: %v", err)
	}
}

func TestPipelineDoubleStart(t *testing.T) {
	p, err := NewPipeline(Config{AnalysisSize: sensor.Size{Width: 16, Height: 12}}, func(Result) {}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop(context.Background())

	if err := p.Start(context.Background()); err == nil {
		t.Error("Expected error on double start")
	}
}
