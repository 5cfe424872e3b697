package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/care/iris/internal/colorscience"
	"github.com/care/iris/internal/sensor"
)

// wbResolution is the white balance outcome the composer consumes: either
// an auto preset, or manual gains plus the color matrix the priority
// chain selected.
type wbResolution struct {
	auto   bool
	preset string
	gains  colorscience.Gains
	ccm    colorscience.Matrix3
	source sensor.CCMSource
}

// wbState tracks the color-correction sources for manual white balance.
//
// While a preset mode is active the driver's AWB results keep a live
// matrix cached here. When the session switches to manual gains, the
// resolution chain prefers that live matrix (it reflects the current
// scene), then the factory calibration matrix, then identity.
type wbState struct {
	mu        sync.Mutex
	live      colorscience.Matrix3
	hasLive   bool
	liveReady chan struct{}
	static    colorscience.Matrix3
}

func newWBState() *wbState {
	return &wbState{liveReady: make(chan struct{})}
}

// reset installs the session's factory matrix and clears any live matrix
// cached under a previous generation.
func (w *wbState) reset(static colorscience.Matrix3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.live = colorscience.Matrix3{}
	w.hasLive = false
	w.liveReady = make(chan struct{})
	w.static = static
}

// cacheLive stores a matrix measured by the driver's AWB. The first
// matrix of a session releases waitForLiveCCM callers.
func (w *wbState) cacheLive(ccm colorscience.Matrix3) {
	if ccm.IsZero() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.live = ccm
	if !w.hasLive {
		w.hasLive = true
		close(w.liveReady)
	}
}

// resolve applies the source priority chain.
func (w *wbState) resolve(d desiredState) wbResolution {
	if d.wbAuto {
		return wbResolution{auto: true, preset: d.preset}
	}

	res := wbResolution{gains: d.gains}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.hasLive:
		res.ccm = w.live
		res.source = sensor.CCMLive
	case !w.static.IsZero():
		res.ccm = w.static
		res.source = sensor.CCMStatic
	default:
		res.ccm = colorscience.Identity3()
		res.source = sensor.CCMIdentity
	}
	return res
}

// snapshot reports the currently cached sources without resolving.
func (w *wbState) snapshot() (hasLive bool, static colorscience.Matrix3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasLive, w.static
}

// waitForLiveCCM blocks until the session has cached at least one live
// matrix, the timeout elapses, or ctx is cancelled. Callers fall back to
// the rest of the chain on ErrCCMWaitTimeout.
func (w *wbState) waitForLiveCCM(ctx context.Context, timeout time.Duration) error {
	w.mu.Lock()
	has := w.hasLive
	ready := w.liveReady
	w.mu.Unlock()
	if has {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: ccm wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return ErrCCMWaitTimeout
	}
}
