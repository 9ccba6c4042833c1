package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"
	"golang.org/x/time/rate"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/rimage/transform"
	"go.viam.com/markercam/utils"
	"go.viam.com/markercam/vision/fiducial"
)

// CaptureState is where the capture loop is.
type CaptureState int32

// The states of the capture loop. FailedToOpen is terminal and only reachable from Initializing.
const (
	CaptureInitializing CaptureState = iota
	CaptureCapturing
	CaptureStopping
	CaptureStopped
	CaptureFailedToOpen
)

func (s CaptureState) String() string {
	switch s {
	case CaptureInitializing:
		return "initializing"
	case CaptureCapturing:
		return "capturing"
	case CaptureStopping:
		return "stopping"
	case CaptureStopped:
		return "stopped"
	case CaptureFailedToOpen:
		return "failed_to_open"
	default:
		return fmt.Sprintf("CaptureState(%d)", int32(s))
	}
}

// captureWorker is one session of the capture loop. It borrows the slots and calibration of
// its driver and never outlives it.
type captureWorker struct {
	index     int
	requested rimage.Resolution
	opener    camera.Opener
	// tracker is nil when orientation tracking is off.
	tracker     fiducial.MarkerTracker
	calibration *transform.CameraIntrinsics

	frames *TripleFrameSlot
	poses  *OrientationSlot
	clk    clock.Clock
	logger logging.Logger

	state      atomic.Int32
	text       *atomic.String
	active     *atomic.Pointer[transform.CameraIntrinsics]
	stats      *captureStats
	openFailed func()

	// readFailureLog throttles the warning for a device that keeps failing reads.
	readFailureLog rate.Sometimes

	// consecutiveReadFailures is only touched by the capture goroutine.
	consecutiveReadFailures int
}

// The first few read failures are logged, then at most one per interval.
const (
	readFailureLogFirst    = 3
	readFailureLogInterval = 5 * time.Second
)

// Consecutive read failures back off, doubling from readRetryMin up to readRetryMax.
const (
	readRetryMin = 10 * time.Millisecond
	readRetryMax = 500 * time.Millisecond
)

// readRetryDelay is how long to wait after the given number of consecutive failures.
func readRetryDelay(failures int) time.Duration {
	delay := readRetryMin
	for i := 1; i < failures && delay < readRetryMax; i++ {
		delay *= 2
	}
	return min(delay, readRetryMax)
}

func (w *captureWorker) setState(state CaptureState) {
	w.state.Store(int32(state))
}

func (w *captureWorker) captureState() CaptureState {
	return CaptureState(w.state.Load())
}

func (w *captureWorker) run(ctx context.Context) {
	w.setState(CaptureInitializing)
	w.text.Store("START")
	w.logger.CInfow(ctx, "capture worker starting", "camera_index", w.index, "requested", w.requested.String())

	device, res, intrinsics, err := w.open(ctx)
	if err != nil {
		w.logger.CErrorw(ctx, "cannot open camera, nothing will be captured", "camera_index", w.index, "error", err)
		w.text.Store(fmt.Sprintf("CANNOT OPEN CAMERA %d", w.index))
		w.setState(CaptureFailedToOpen)
		w.openFailed()
		return
	}

	w.setState(CaptureCapturing)
	w.text.Store(fmt.Sprintf("CAPTURING %dx%d", res.Width, res.Height))
	w.logger.CInfow(ctx, "capturing", "resolution", res.String(), "aspect_ratio", res.AspectRatio())
	for ctx.Err() == nil {
		w.captureOnce(ctx, device, res, intrinsics)
	}

	w.setState(CaptureStopping)
	// the session context is done, closing still needs its values
	if err := device.Close(context.WithoutCancel(ctx)); err != nil {
		w.logger.CWarnw(ctx, "error closing camera", "camera_index", w.index, "error", err)
	}
	w.setState(CaptureStopped)
	w.text.Store("STOPPED")
	w.logger.CInfow(ctx, "capture worker stopped", "camera_index", w.index)
}

// open opens the device, negotiates its resolution and sizes the frame buffers and intrinsics
// to what the device granted.
func (w *captureWorker) open(ctx context.Context) (camera.Device, rimage.Resolution, *transform.CameraIntrinsics, error) {
	device, err := w.opener.Open(ctx, w.index)
	if err != nil {
		return nil, rimage.Resolution{}, nil, err
	}
	guard := utils.NewGuard(func() { goutils.UncheckedError(device.Close(ctx)) })
	defer guard.OnFail()

	if err := device.SetResolution(w.requested.Width, w.requested.Height); err != nil {
		w.logger.CWarnw(ctx, "camera refused requested resolution", "requested", w.requested.String(), "error", err)
	}
	res := device.Resolution()
	if res.Empty() {
		return nil, rimage.Resolution{}, nil, errors.Errorf("camera %d reports an empty resolution", w.index)
	}
	if res != w.requested {
		w.logger.CInfow(ctx, "camera granted a different resolution", "requested", w.requested.String(), "granted", res.String())
	}
	intrinsics, err := w.calibration.ScaledTo(res)
	if err != nil {
		return nil, rimage.Resolution{}, nil, err
	}
	if intrinsics != w.calibration {
		hfov, vfov := intrinsics.FOV()
		w.logger.CInfow(ctx, "intrinsics rescaled to granted resolution", "hfov_deg", hfov, "vfov_deg", vfov)
	}

	w.frames.Resize(res)
	w.logger.CDebugw(ctx, "frame buffers allocated",
		"resolution", res.String(), "bytes", units.BytesSize(float64(numRoles*res.Width*res.Height*4)))
	w.active.Store(intrinsics)
	guard.Success()
	return device, res, intrinsics, nil
}

// captureOnce reads, checks, tracks, converts and publishes one frame. Once the read returns the
// iteration runs to completion even if the session is being stopped. A failed read waits before
// returning so a broken device is not polled in a tight loop.
func (w *captureWorker) captureOnce(
	ctx context.Context,
	device camera.Device,
	res rimage.Resolution,
	intrinsics *transform.CameraIntrinsics,
) {
	raw, err := device.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		failures := w.stats.readErrors.Inc()
		w.consecutiveReadFailures++
		delay := readRetryDelay(w.consecutiveReadFailures)
		w.readFailureLog.Do(func() {
			w.logger.CWarnw(ctx, "frame read failed", "failures", failures, "retry_in", delay.String(), "error", err)
		})
		goutils.SelectContextOrWait(ctx, delay)
		return
	}
	w.consecutiveReadFailures = 0
	w.stats.read.Inc()
	// the frame is finished even when a stop arrives from here on
	ctx = context.WithoutCancel(ctx)

	if got := raw.Resolution(); got != res {
		w.stats.skipped.Inc()
		w.logger.CErrorw(ctx, "frame size mismatch, dropping frame",
			"seq", raw.Seq, "expected", res.String(), "got", got.String())
		return
	}

	if w.tracker != nil {
		if pose, ok := w.tracker.Detect(ctx, raw, intrinsics); ok {
			w.poses.Store(pose)
			w.stats.posesFound.Inc()
		} else {
			w.stats.posesMissed.Inc()
		}
	}

	buf := w.frames.WorkerBuffer()
	if err := rimage.ConvertToRGBA(buf, raw); err != nil {
		w.stats.skipped.Inc()
		w.logger.CErrorw(ctx, "cannot convert frame, dropping it", "seq", raw.Seq, "error", err)
		return
	}
	now := w.clk.Now()
	buf.CapturedAt = now
	w.frames.Publish()
	w.stats.lastFrame.Store(now)
}
