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
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// Control ids beyond the go4vl constant set, values per videodev2.h.
const (
	ctrlRedBalance       uint32 = 0x0098090e
	ctrlBlueBalance      uint32 = 0x0098090f
	ctrlExposureAbsolute uint32 = 0x009a0902
	ctrlFocusAbsolute    uint32 = 0x009a090a
	ctrlFocusAuto        uint32 = 0x009a090c
	ctrlAutoPresetWB     uint32 = 0x009a0914
)

// Menu values of the auto-n-preset white balance control.
const (
	wbMenuManual       = 0
	wbMenuAuto         = 1
	wbMenuIncandescent = 2
	wbMenuFluorescent  = 3
	wbMenuFluorescentH = 4
	wbMenuHorizon      = 5
	wbMenuDaylight     = 6
	wbMenuCloudy       = 8
	wbMenuShade        = 9
)

// Menu values of the exposure auto control. UVC devices report auto
// exposure as aperture priority.
const (
	exposureMenuManual           = 1
	exposureMenuAperturePriority = 3
)

// Hardware unit conversions. Balance and gain scales follow the common
// 1000-per-unit convention of ISP drivers; UVC focus_absolute tops out
// at 1023 on most modules.
const (
	balanceScale     = 1000
	gainUnitsPerISO  = 16 // per ISO 100
	focusAbsoluteMax = 1023
	exposureUnitNs   = 100_000 // exposure_absolute counts 100us steps
)

// v4l2PresetMenu maps preset ids onto the kernel white balance menu.
var v4l2PresetMenu = map[string]int32{
	WBPresetAuto:            wbMenuAuto,
	WBPresetIncandescent:    wbMenuIncandescent,
	WBPresetFluorescent:     wbMenuFluorescent,
	WBPresetWarmFluorescent: wbMenuFluorescentH,
	WBPresetDaylight:        wbMenuDaylight,
	WBPresetCloudyDaylight:  wbMenuCloudy,
	WBPresetTwilight:        wbMenuHorizon,
	WBPresetShade:           wbMenuShade,
}

// probeLadder is the size list tried during capability discovery. The
// device adjusts each request to its nearest supported geometry, so the
// distinct readbacks form the supported set.
var probeLadder = []Size{
	{320, 240},
	{640, 480},
	{1280, 720},
	{1920, 1080},
	{2592, 1944},
	{3280, 2464},
	{3840, 2160},
}

// V4L2Config configures the V4L2 driver.
type V4L2Config struct {
	// DevicePath is the device node (e.g. /dev/video0).
	DevicePath string
	// Format selects the negotiated pixel format. Supported values are
	// FormatYUYV, FormatMJPEG and FormatRGB24. Zero value means YUYV.
	Format imaging.PixelFormat
	// FPS is the capture rate requested at open. Zero defaults to 30.
	FPS uint32
	// BufferSize is the number of mmap buffers. Zero defaults to 4.
	BufferSize uint32
	// ChannelBuffer sizes the frame channel. Zero defaults to 8.
	ChannelBuffer int
}

// V4L2 drives a local camera through the kernel video capture API.
// It is the primary production driver: controls can be rewritten while
// the stream runs, which is what keeps parameter applies cheap.
type V4L2 struct {
	cfg    V4L2Config
	logger *slog.Logger

	mu        sync.RWMutex
	dev       *device.Device
	open      bool
	streaming bool
	size      Size
	sizes     []Size
	stride    int

	streamCancel context.CancelFunc
	framesCh     chan Frame
	wg           sync.WaitGroup

	seq              atomic.Uint64
	frameCount       atomic.Uint64
	framesDropped    atomic.Uint64
	bytesRead        atomic.Uint64
	controlsApplied  atomic.Uint64
	controlsRejected atomic.Uint64
	stillsCaptured   atomic.Uint64
}

// NewV4L2 creates a V4L2 driver for the configured device node.
func NewV4L2(cfg V4L2Config, logger *slog.Logger) (*V4L2, error) {
	if cfg.DevicePath == "" {
		return nil, fmt.Errorf("v4l2: device path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FPS == 0 {
		cfg.FPS = 30
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 4
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 8
	}
	switch cfg.Format {
	case imaging.FormatYUYV, imaging.FormatMJPEG, imaging.FormatRGB24:
	default:
		cfg.Format = imaging.FormatYUYV
	}

	return &V4L2{cfg: cfg, logger: logger}, nil
}

// Open acquires the device node and probes its supported sizes.
func (v *V4L2) Open(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.open {
		return ErrAlreadyOpen
	}

	dev, err := v.openDevice(Size{Width: 1280, Height: 720})
	if err != nil {
		return err
	}

	v.dev = dev
	v.open = true

	if err := v.probeSizes(); err != nil {
		v.logger.Warn("v4l2: size probe incomplete", "error", err)
	}

	v.logger.Info("v4l2: device opened",
		"path", v.cfg.DevicePath,
		"format", v.cfg.Format.String(),
		"supported_sizes", len(v.sizes),
	)

	return nil
}

// openDevice opens the node with the configured format at the given size.
func (v *V4L2) openDevice(size Size) (*device.Device, error) {
	dev, err := device.Open(
		v.cfg.DevicePath,
		device.WithIOType(v4l2.IOTypeMMAP),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: pixelFormatFourCC(v.cfg.Format),
			Width:       uint32(size.Width),
			Height:      uint32(size.Height),
			Field:       v4l2.FieldNone,
		}),
		device.WithBufferSize(v.cfg.BufferSize),
		device.WithFPS(v.cfg.FPS),
	)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("v4l2: %w: %s", ErrPermissionDenied, v.cfg.DevicePath)
		}
		return nil, fmt.Errorf("v4l2: failed to open %s: %w", v.cfg.DevicePath, err)
	}
	return dev, nil
}

// probeSizes walks the ladder and records the distinct geometries the
// device settles on. Must run with the lock held and the stream stopped.
func (v *V4L2) probeSizes() error {
	seen := make(map[Size]bool)
	var sizes []Size

	for _, want := range probeLadder {
		if err := v.dev.SetPixFormat(v4l2.PixFormat{
			PixelFormat: pixelFormatFourCC(v.cfg.Format),
			Width:       uint32(want.Width),
			Height:      uint32(want.Height),
			Field:       v4l2.FieldNone,
		}); err != nil {
			continue
		}
		actual, err := v.dev.GetPixFormat()
		if err != nil {
			return fmt.Errorf("v4l2: failed to read back format: %w", err)
		}
		got := Size{Width: int(actual.Width), Height: int(actual.Height)}
		if !seen[got] {
			seen[got] = true
			sizes = append(sizes, got)
		}
	}

	if len(sizes) == 0 {
		return fmt.Errorf("v4l2: device accepted no probe size")
	}

	v.sizes = sizes
	return nil
}

// Close releases the device. Idempotent.
func (v *V4L2) Close(ctx context.Context) error {
	if err := v.StopStream(ctx); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.open {
		return nil
	}

	if err := v.dev.Close(); err != nil {
		return fmt.Errorf("v4l2: failed to close device: %w", err)
	}
	v.dev = nil
	v.open = false

	v.logger.Info("v4l2: device closed", "frames", v.frameCount.Load())

	return nil
}

// SupportedSizes lists the geometries discovered at open.
func (v *V4L2) SupportedSizes() []Size {
	v.mu.RLock()
	defer v.mu.RUnlock()
	sizes := make([]Size, len(v.sizes))
	copy(sizes, v.sizes)
	return sizes
}

// Capabilities describes the UVC control surface. Local camera modules
// have no color transform stage and report no AWB measurements.
func (v *V4L2) Capabilities() Capabilities {
	presets := make([]string, 0, len(v4l2PresetMenu))
	for preset := range v4l2PresetMenu {
		presets = append(presets, preset)
	}

	return Capabilities{
		Presets:           presets,
		ExposureMinNs:     exposureUnitNs,       // one hardware step
		ExposureMaxNs:     10_000 * exposureUnitNs,
		ISOMin:            100,
		ISOMax:            1600,
		HasColorTransform: false,
		HasAWBResults:     false,
		HasManualFocus:    true,
	}
}

// Configure sets the streaming geometry and returns the size the device
// settled on.
func (v *V4L2) Configure(size Size, fps float64) (Size, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.open {
		return Size{}, ErrNotOpen
	}
	if v.streaming {
		return Size{}, fmt.Errorf("v4l2: cannot reconfigure while streaming")
	}

	if err := v.dev.SetPixFormat(v4l2.PixFormat{
		PixelFormat: pixelFormatFourCC(v.cfg.Format),
		Width:       uint32(size.Width),
		Height:      uint32(size.Height),
		Field:       v4l2.FieldNone,
	}); err != nil {
		return Size{}, fmt.Errorf("v4l2: failed to set format %s: %w", size, err)
	}

	actual, err := v.dev.GetPixFormat()
	if err != nil {
		return Size{}, fmt.Errorf("v4l2: failed to read back format: %w", err)
	}

	v.size = Size{Width: int(actual.Width), Height: int(actual.Height)}
	v.stride = int(actual.BytesPerLine)

	v.logger.Info("v4l2: format configured",
		"requested", size.String(),
		"actual", v.size.String(),
		"stride", v.stride,
	)

	return v.size, nil
}

// StartStream begins frame delivery from the device.
func (v *V4L2) StartStream(ctx context.Context) (<-chan Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.open {
		return nil, ErrNotOpen
	}
	if v.streaming {
		return nil, fmt.Errorf("v4l2: stream already running")
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	if err := v.dev.Start(streamCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("v4l2: failed to start capture: %w", err)
	}

	v.streaming = true
	v.streamCancel = cancel
	v.framesCh = make(chan Frame, v.cfg.ChannelBuffer)

	v.logger.Info("v4l2: stream started", "size", v.size.String(), "fps", v.cfg.FPS)

	v.wg.Add(1)
	go v.consume(v.dev.GetOutput(), v.framesCh, v.size, v.stride)

	return v.framesCh, nil
}

// consume wraps raw device buffers into frames until the output closes.
func (v *V4L2) consume(output <-chan []byte, framesCh chan Frame, size Size, stride int) {
	defer v.wg.Done()

	for data := range output {
		// The device recycles its mmap buffers; hand consumers a copy
		copied := make([]byte, len(data))
		copy(copied, data)

		frame := Frame{
			Seq:       v.seq.Add(1) - 1,
			Timestamp: time.Now(),
			Width:     size.Width,
			Height:    size.Height,
			Format:    v.cfg.Format,
			YStride:   stride,
			Data:      copied,
			TraceID:   uuid.NewString(),
		}

		select {
		case framesCh <- frame:
			v.frameCount.Add(1)
			v.bytesRead.Add(uint64(len(copied)))
		default:
			// Channel full - drop frame
			v.framesDropped.Add(1)
		}
	}
}

// StopStream halts delivery and closes the frame channel.
func (v *V4L2) StopStream(ctx context.Context) error {
	v.mu.Lock()
	if !v.streaming {
		v.mu.Unlock()
		return nil
	}
	// Claim the stop under the lock so a concurrent StopStream sees
	// streaming false and cannot close the channel twice. The cancel
	// func is nil while a still grab holds the stream paused.
	v.streaming = false
	cancel := v.streamCancel
	framesCh := v.framesCh
	v.streamCancel = nil
	v.framesCh = nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	v.wg.Wait()

	close(framesCh)

	v.logger.Info("v4l2: stream stopped",
		"frames", v.frameCount.Load(),
		"dropped", v.framesDropped.Load(),
	)

	return nil
}

// v4l2Control pairs a control id with its target value.
type v4l2Control struct {
	id    uint32
	value int32
	// core controls fail the apply; the rest are best-effort since
	// camera modules vary in which menu controls they expose
	core bool
	name string
}

// Apply writes one complete control set to the device.
//
// V4L2 controls are independent registers, so the set is written as an
// ordered sequence: mode controls first, then the values they gate.
// Controls the module does not expose are skipped at debug level.
func (v *V4L2) Apply(set ControlSet) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.open {
		v.controlsRejected.Add(1)
		return ErrNotOpen
	}

	controls := buildControlWrites(set)

	var coreErr error
	for _, c := range controls {
		if err := v.dev.SetControlValue(c.id, c.value); err != nil {
			if c.core {
				coreErr = fmt.Errorf("v4l2: failed to write %s: %w", c.name, err)
				break
			}
			v.logger.Debug("v4l2: control skipped", "control", c.name, "error", err)
		}
	}

	if coreErr != nil {
		v.controlsRejected.Add(1)
		return coreErr
	}

	v.controlsApplied.Add(1)

	v.logger.Debug("v4l2: controls applied",
		"generation", set.Generation,
		"wb_auto", set.WhiteBalanceAuto,
		"preset", set.WhiteBalancePreset,
		"exposure_auto", set.ExposureAuto,
		"focus_auto", set.FocusAuto,
	)

	return nil
}

// buildControlWrites lowers a control set onto V4L2 register writes.
func buildControlWrites(set ControlSet) []v4l2Control {
	var controls []v4l2Control

	if set.WhiteBalanceAuto {
		menu, ok := v4l2PresetMenu[set.WhiteBalancePreset]
		if !ok {
			menu = wbMenuAuto
		}
		controls = append(controls,
			v4l2Control{id: v4l2.CtrlAutoWhiteBalance, value: 1, core: true, name: "auto_white_balance"},
			v4l2Control{id: ctrlAutoPresetWB, value: menu, name: "white_balance_preset"},
		)
	} else {
		controls = append(controls,
			v4l2Control{id: v4l2.CtrlAutoWhiteBalance, value: 0, core: true, name: "auto_white_balance"},
			v4l2Control{id: ctrlAutoPresetWB, value: wbMenuManual, name: "white_balance_preset"},
			v4l2Control{id: ctrlRedBalance, value: int32(set.Gains.R * balanceScale), name: "red_balance"},
			v4l2Control{id: ctrlBlueBalance, value: int32(set.Gains.B * balanceScale), name: "blue_balance"},
		)
	}

	if set.ExposureAuto {
		controls = append(controls,
			v4l2Control{id: v4l2.CtrlCameraExposureAuto, value: exposureMenuAperturePriority, core: true, name: "exposure_auto"},
		)
	} else {
		controls = append(controls,
			v4l2Control{id: v4l2.CtrlCameraExposureAuto, value: exposureMenuManual, core: true, name: "exposure_auto"},
			v4l2Control{id: ctrlExposureAbsolute, value: int32(set.ExposureTimeNs / exposureUnitNs), name: "exposure_absolute"},
			v4l2Control{id: v4l2.CtrlGain, value: int32(set.ISO * gainUnitsPerISO / 100), name: "gain"},
		)
	}

	if set.FocusAuto {
		controls = append(controls,
			v4l2Control{id: ctrlFocusAuto, value: 1, name: "focus_auto"},
		)
	} else {
		controls = append(controls,
			v4l2Control{id: ctrlFocusAuto, value: 0, name: "focus_auto"},
			v4l2Control{id: ctrlFocusAbsolute, value: int32(set.FocusPosition * focusAbsoluteMax), name: "focus_absolute"},
		)
	}

	return controls
}

// CaptureStill reconfigures the device for one high-resolution grab.
//
// This method:
//  1. Stops the stream if one is running
//  2. Reopens the device at the still geometry and grabs one frame
//  3. Restores the streaming configuration and restarts delivery
//
// The preview channel observes a gap while the grab runs; it closes
// only if the stream cannot be restored afterwards.
func (v *V4L2) CaptureStill(ctx context.Context, size Size, quality int) ([]byte, error) {
	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return nil, ErrNotOpen
	}
	wasStreaming := v.streaming
	streamSize := v.size
	v.mu.Unlock()

	if wasStreaming {
		if err := v.pauseStream(); err != nil {
			return nil, err
		}
	}

	data, actual, stride, err := v.grabStill(ctx, size)

	if restoreErr := v.restore(ctx, streamSize, wasStreaming); restoreErr != nil {
		v.logger.Error("v4l2: failed to restore stream after still", "error", restoreErr)
		if err == nil {
			err = restoreErr
		}
	}
	if err != nil {
		return nil, err
	}

	jpegData, err := v.encodeStill(data, actual, stride, quality)
	if err != nil {
		return nil, err
	}

	v.stillsCaptured.Add(1)

	return jpegData, nil
}

// pauseStream stops delivery without closing the frame channel.
func (v *V4L2) pauseStream() error {
	v.mu.Lock()
	cancel := v.streamCancel
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	v.wg.Wait()

	v.mu.Lock()
	v.streamCancel = nil
	v.mu.Unlock()

	return nil
}

// grabStill reopens the device at the still size and pulls one frame.
func (v *V4L2) grabStill(ctx context.Context, size Size) ([]byte, Size, int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.dev.Close(); err != nil {
		return nil, Size{}, 0, fmt.Errorf("v4l2: failed to release device for still: %w", err)
	}
	v.dev = nil

	dev, err := v.openDevice(size)
	if err != nil {
		return nil, Size{}, 0, err
	}
	v.dev = dev

	actualFmt, err := dev.GetPixFormat()
	if err != nil {
		return nil, Size{}, 0, fmt.Errorf("v4l2: failed to read still format: %w", err)
	}
	actual := Size{Width: int(actualFmt.Width), Height: int(actualFmt.Height)}
	stride := int(actualFmt.BytesPerLine)

	grabCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := dev.Start(grabCtx); err != nil {
		return nil, Size{}, 0, fmt.Errorf("v4l2: failed to start still capture: %w", err)
	}

	select {
	case data, ok := <-dev.GetOutput():
		if !ok {
			return nil, Size{}, 0, fmt.Errorf("v4l2: device stopped before still frame arrived")
		}
		copied := make([]byte, len(data))
		copy(copied, data)
		return copied, actual, stride, nil
	case <-ctx.Done():
		return nil, Size{}, 0, fmt.Errorf("v4l2: still capture cancelled: %w", ctx.Err())
	case <-time.After(5 * time.Second):
		return nil, Size{}, 0, fmt.Errorf("v4l2: timeout waiting for still frame")
	}
}

// restore puts the device back into its streaming configuration.
func (v *V4L2) restore(ctx context.Context, streamSize Size, resume bool) error {
	v.mu.Lock()

	if v.dev != nil {
		if err := v.dev.Close(); err != nil {
			v.abandonStreamLocked()
			v.mu.Unlock()
			return fmt.Errorf("v4l2: failed to release still device: %w", err)
		}
	}

	dev, err := v.openDevice(streamSize)
	if err != nil {
		v.open = false
		v.abandonStreamLocked()
		v.mu.Unlock()
		return err
	}
	v.dev = dev

	actual, err := dev.GetPixFormat()
	if err == nil {
		v.size = Size{Width: int(actual.Width), Height: int(actual.Height)}
		v.stride = int(actual.BytesPerLine)
	}

	// A concurrent StopStream may have claimed the stream while the
	// grab held it paused; the channel is its to close then.
	if !resume || !v.streaming {
		v.mu.Unlock()
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(streamCtx); err != nil {
		cancel()
		v.abandonStreamLocked()
		v.mu.Unlock()
		return fmt.Errorf("v4l2: failed to resume stream: %w", err)
	}
	v.streamCancel = cancel

	v.wg.Add(1)
	go v.consume(dev.GetOutput(), v.framesCh, v.size, v.stride)
	v.mu.Unlock()

	return nil
}

// abandonStreamLocked marks the stream stopped and closes the frame
// channel so consumers do not wait on a stream that cannot resume.
// The caller must hold v.mu with no delivery goroutine running.
func (v *V4L2) abandonStreamLocked() {
	v.streaming = false
	if v.framesCh != nil {
		close(v.framesCh)
		v.framesCh = nil
	}
}

// encodeStill converts the raw grab into a JPEG at the given quality.
func (v *V4L2) encodeStill(data []byte, size Size, stride, quality int) ([]byte, error) {
	if v.cfg.Format == imaging.FormatMJPEG {
		// Hardware already encoded; quality is fixed by the module
		return data, nil
	}

	img, err := imaging.Decode(imaging.Buffer{
		Format:  v.cfg.Format,
		Width:   size.Width,
		Height:  size.Height,
		YStride: stride,
		Data:    data,
	})
	if err != nil {
		return nil, fmt.Errorf("v4l2: failed to decode still: %w", err)
	}

	jpegData, err := imaging.EncodeJPEG(img, quality)
	if err != nil {
		return nil, fmt.Errorf("v4l2: failed to encode still: %w", err)
	}

	return jpegData, nil
}

// Results returns nil: local camera modules report no AWB measurements.
func (v *V4L2) Results() <-chan AWBResult {
	return nil
}

// Stats returns current driver statistics.
func (v *V4L2) Stats() Stats {
	v.mu.RLock()
	streaming := v.streaming
	size := v.size
	fps := v.cfg.FPS
	v.mu.RUnlock()

	count := v.frameCount.Load()
	dropped := v.framesDropped.Load()

	var dropRate float64
	if count+dropped > 0 {
		dropRate = float64(dropped) / float64(count+dropped) * 100
	}

	return Stats{
		FrameCount:       count,
		FramesDropped:    dropped,
		DropRate:         dropRate,
		FPSTarget:        float64(fps),
		Resolution:       size.String(),
		BytesRead:        v.bytesRead.Load(),
		IsStreaming:      streaming,
		ControlsApplied:  v.controlsApplied.Load(),
		ControlsRejected: v.controlsRejected.Load(),
		StillsCaptured:   v.stillsCaptured.Load(),
	}
}

// pixelFormatFourCC maps the imaging format onto the V4L2 fourcc.
func pixelFormatFourCC(f imaging.PixelFormat) uint32 {
	switch f {
	case imaging.FormatMJPEG:
		return v4l2.PixelFmtMJPEG
	case imaging.FormatRGB24:
		return v4l2.PixelFmtRGB24
	default:
		return v4l2.PixelFmtYUYV
	}
}
