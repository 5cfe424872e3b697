package sensor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestClassifyGstError covers the category priorities.
func TestClassifyGstError(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
		debug  string
		expect gstErrorCategory
	}{
		{
			name:   "missing device node",
			errMsg: "Could not open device '/dev/video0' for reading and writing",
			debug:  "v4l2_calls.c(605): gst_v4l2_open",
			expect: gstErrDevice,
		},
		{
			name:   "device busy",
			errMsg: "Device '/dev/video0' is busy",
			expect: gstErrDevice,
		},
		{
			name:   "caps not negotiated",
			errMsg: "Internal data stream error",
			debug:  "streaming stopped, reason not-negotiated (-4)",
			expect: gstErrNegotiation,
		},
		{
			name:   "missing decoder plugin",
			errMsg: "Your GStreamer installation is missing a plug-in",
			debug:  "no decoder for stream",
			expect: gstErrDecode,
		},
		{
			name:   "device outranks negotiation",
			errMsg: "v4l2 source rejected format",
			expect: gstErrDevice,
		},
		{
			name:   "unclassified",
			errMsg: "something unexpected happened",
			expect: gstErrUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyGstError(tt.errMsg, tt.debug)
			if got != tt.expect {
				t.Errorf("classifyGstError(%q, %q) = %s, want %s",
					tt.errMsg, tt.debug, got, tt.expect)
			}
		})
	}
}

// TestBuildVideoCaps covers integer and fractional framerates.
func TestBuildVideoCaps(t *testing.T) {
	tests := []struct {
		name   string
		size   Size
		fps    float64
		expect string
	}{
		{
			name:   "integer fps",
			size:   Size{1920, 1080},
			fps:    30,
			expect: "video/x-raw,format=RGB,width=1920,height=1080,framerate=30/1",
		},
		{
			name:   "one fps",
			size:   Size{1280, 720},
			fps:    1,
			expect: "video/x-raw,format=RGB,width=1280,height=720,framerate=1/1",
		},
		{
			name:   "fractional fps",
			size:   Size{640, 480},
			fps:    0.5,
			expect: "video/x-raw,format=RGB,width=640,height=480,framerate=1/2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildVideoCaps(tt.size, tt.fps)
			if got != tt.expect {
				t.Errorf("buildVideoCaps(%s, %v) = %q, want %q",
					tt.size, tt.fps, got, tt.expect)
			}
		})
	}
}

// TestRGBStride covers tight, padded and indivisible buffers.
func TestRGBStride(t *testing.T) {
	tests := []struct {
		name    string
		dataLen int
		size    Size
		expect  int
	}{
		{
			name:    "tight rows",
			dataLen: 3 * 640 * 480,
			size:    Size{640, 480},
			expect:  3 * 640,
		},
		{
			name:    "padded rows",
			dataLen: 1936 * 10, // width 645 padded to a 4-byte boundary
			size:    Size{645, 10},
			expect:  1936,
		},
		{
			name:    "indivisible length falls back to tight",
			dataLen: 100,
			size:    Size{6, 7},
			expect:  18,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rgbStride(tt.dataLen, tt.size)
			if got != tt.expect {
				t.Errorf("rgbStride(%d, %s) = %d, want %d",
					tt.dataLen, tt.size, got, tt.expect)
			}
		})
	}
}

// TestNewGStreamerValidation covers config defaults and required fields.
func TestNewGStreamerValidation(t *testing.T) {
	if _, err := NewGStreamer(GStreamerConfig{}, nil); err == nil {
		t.Error("expected error for missing device path")
	}

	g, err := NewGStreamer(GStreamerConfig{DevicePath: "/dev/video9"}, nil)
	if err != nil {
		t.Fatalf("NewGStreamer failed: %v", err)
	}
	if g.cfg.FPS != 30 {
		t.Errorf("default FPS = %d, want 30", g.cfg.FPS)
	}
	if g.cfg.ChannelBuffer != 8 {
		t.Errorf("default ChannelBuffer = %d, want 8", g.cfg.ChannelBuffer)
	}
	if len(g.cfg.Sizes) != len(gstDefaultSizes) {
		t.Errorf("default Sizes = %v, want %v", g.cfg.Sizes, gstDefaultSizes)
	}
}

// TestGStreamerApplyRejectsControls verifies the driver advertises and
// enforces an empty control surface.
func TestGStreamerApplyRejectsControls(t *testing.T) {
	g, err := NewGStreamer(GStreamerConfig{DevicePath: "/dev/video9"}, nil)
	if err != nil {
		t.Fatalf("NewGStreamer failed: %v", err)
	}

	caps := g.Capabilities()
	if len(caps.Presets) != 0 {
		t.Errorf("Presets = %v, want none", caps.Presets)
	}
	if caps.HasColorTransform || caps.HasAWBResults || caps.HasManualFocus {
		t.Error("expected all capability flags off")
	}
	if caps.SupportsPreset(WBPresetAuto) {
		t.Error("SupportsPreset(auto) = true, want false")
	}

	if err := g.Apply(ControlSet{Generation: 3}); !errors.Is(err, ErrControlsUnsupported) {
		t.Errorf("Apply error = %v, want ErrControlsUnsupported", err)
	}
	if err := g.Apply(ControlSet{Generation: 4}); !errors.Is(err, ErrControlsUnsupported) {
		t.Errorf("Apply error = %v, want ErrControlsUnsupported", err)
	}

	if got := g.Stats().ControlsRejected; got != 2 {
		t.Errorf("ControlsRejected = %d, want 2", got)
	}

	if g.Results() != nil {
		t.Error("Results() should be nil for the gstreamer driver")
	}
}

// TestGStreamerLifecycle exercises open, configure and close against a
// plain file standing in for the device node. Streaming needs real
// hardware and is not started here.
func TestGStreamerLifecycle(t *testing.T) {
	ctx := context.Background()

	node := filepath.Join(t.TempDir(), "video0")
	if err := os.WriteFile(node, nil, 0o600); err != nil {
		t.Fatalf("failed to create fake node: %v", err)
	}

	g, err := NewGStreamer(GStreamerConfig{DevicePath: node}, nil)
	if err != nil {
		t.Fatalf("NewGStreamer failed: %v", err)
	}

	if _, err := g.Configure(Size{1280, 720}, 15); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Configure before open = %v, want ErrNotOpen", err)
	}

	if err := g.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := g.Open(ctx); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}

	actual, err := g.Configure(Size{1280, 720}, 15)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if actual != (Size{1280, 720}) {
		t.Errorf("Configure returned %s, want 1280x720", actual)
	}

	sizes := g.SupportedSizes()
	if len(sizes) == 0 {
		t.Error("SupportedSizes returned nothing")
	}
	sizes[0] = Size{1, 1}
	if g.SupportedSizes()[0] == (Size{1, 1}) {
		t.Error("SupportedSizes must return a copy")
	}

	if err := g.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := g.Close(ctx); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

// TestGStreamerOpenMissingNode verifies the early device probe.
func TestGStreamerOpenMissingNode(t *testing.T) {
	g, err := NewGStreamer(GStreamerConfig{
		DevicePath: filepath.Join(t.TempDir(), "absent"),
	}, nil)
	if err != nil {
		t.Fatalf("NewGStreamer failed: %v", err)
	}

	if err := g.Open(context.Background()); err == nil {
		t.Error("Open should fail for a missing device node")
	}
}
