package driver

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"
	"golang.org/x/time/rate"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/rimage/transform"
	"go.viam.com/markercam/spatialmath"
	"go.viam.com/markercam/utils"
	"go.viam.com/markercam/vision/fiducial"
)

// ErrAlreadyInitialized is returned when Initialize is called on a running driver.
var ErrAlreadyInitialized = errors.New("capture driver already initialized")

// An Option configures a CaptureDriver.
type Option func(*CaptureDriver)

// WithClock sets the clock frames are timestamped with.
func WithClock(clk clock.Clock) Option {
	return func(d *CaptureDriver) {
		d.clk = clk
	}
}

// CaptureDriver is a Driver reading frames from a camera device on a background goroutine.
type CaptureDriver struct {
	conf    Config
	opener  camera.Opener
	tracker fiducial.MarkerTracker
	store   transform.CalibrationStore
	clk     clock.Clock
	logger  logging.Logger

	frames *TripleFrameSlot
	poses  *OrientationSlot

	// mu serializes Initialize and Shutdown. Consumer reads never take it.
	mu          sync.Mutex
	workers     *goutils.StoppableWorkers
	calibration *transform.CameraIntrinsics

	state     atomic.Int32
	text      atomic.String
	sessionID atomic.String
	active    atomic.Pointer[transform.CameraIntrinsics]
	worker    atomic.Pointer[captureWorker]
	stats     captureStats
}

var _ Driver = (*CaptureDriver)(nil)

// NewCaptureDriver returns a driver for the camera described by conf. Devices are opened with
// opener and calibration files read from store, a JSON store when nil. Orientation is tracked
// with tracker when conf asks for it.
func NewCaptureDriver(
	conf *Config,
	opener camera.Opener,
	tracker fiducial.MarkerTracker,
	store transform.CalibrationStore,
	logger logging.Logger,
	opts ...Option,
) (*CaptureDriver, error) {
	if _, err := conf.Validate("driver"); err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, errors.New("capture driver needs a camera opener")
	}
	if store == nil {
		store = transform.NewJSONCalibrationStore()
	}
	d := &CaptureDriver{
		conf:    *conf,
		opener:  opener,
		tracker: tracker,
		store:   store,
		clk:     clock.New(),
		logger:  logger,
		frames:  NewTripleFrameSlot(conf.Resolution()),
		poses:   NewOrientationSlot(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if conf.TrackOrientation && tracker == nil {
		logger.Warnw("orientation tracking requested without a marker tracker, poses will not be estimated")
	}
	d.state.Store(int32(WorkerCreated))
	return d, nil
}

// Initialize loads the calibration and starts a capture session. A driver that was shut down
// can be initialized again.
func (d *CaptureDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers != nil {
		return ErrAlreadyInitialized
	}

	sessionID := uuid.NewString()
	logger := d.logger.WithFields("session_id", sessionID)
	requested := d.conf.Resolution()
	d.calibration = loadCalibration(ctx, d.store, d.conf.CalibrationFile, d.conf.FallbackCalibrationFile, requested, logger)
	d.active.Store(d.calibration)
	d.frames.Resize(requested)
	d.poses.Reset()

	worker := &captureWorker{
		index:       d.conf.CameraIndex,
		requested:   requested,
		opener:      d.opener,
		calibration: d.calibration,
		frames:      d.frames,
		poses:       d.poses,
		clk:         d.clk,
		logger:      logger,
		text:        &d.text,
		active:      &d.active,
		stats:       &d.stats,
		openFailed: func() {
			// a Shutdown racing the failing open must not hide the failure
			if !d.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerFailedToOpen)) {
				d.state.CompareAndSwap(int32(WorkerStopRequested), int32(WorkerFailedToOpen))
			}
		},
		readFailureLog: rate.Sometimes{First: readFailureLogFirst, Interval: readFailureLogInterval},
	}
	if d.conf.TrackOrientation {
		worker.tracker = d.tracker
		if resetter, ok := d.tracker.(fiducial.Resetter); ok {
			resetter.Reset()
		}
	}
	d.sessionID.Store(sessionID)
	d.state.Store(int32(WorkerRunning))
	d.worker.Store(worker)
	d.workers = goutils.NewBackgroundStoppableWorkers(worker.run)
	logger.CInfow(ctx, "capture driver initialized",
		"model", d.conf.Model, "camera_index", d.conf.CameraIndex, "track_orientation", worker.tracker != nil)
	return nil
}

// Shutdown stops the capture session and waits until its goroutine has returned and the device
// is closed. Shutting down a driver that is not running does nothing.
func (d *CaptureDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers == nil {
		return nil
	}
	d.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerStopRequested))
	// there is no timeout, the in flight read has to return
	stopWaiting := utils.SlowLogger(ctx, d.clk, "waiting for capture worker to stop", d.logger, "session_id", d.sessionID.Load())
	d.workers.Stop()
	stopWaiting()
	d.workers = nil
	d.state.CompareAndSwap(int32(WorkerStopRequested), int32(WorkerStopped))
	d.logger.CInfow(ctx, "capture driver shut down", "session_id", d.sessionID.Load(), "state", d.WorkerState().String())
	return nil
}

// GetFrame returns the latest completed frame.
func (d *CaptureDriver) GetFrame() *rimage.FrameBuffer {
	return d.frames.ClaimLatest()
}

// GetOrientation returns the latest estimated pose, the zero pose before any.
func (d *CaptureDriver) GetOrientation() spatialmath.Pose {
	return d.poses.Load()
}

// IsNewFrameAvailable reports whether GetFrame would return a frame not seen yet.
func (d *CaptureDriver) IsNewFrameAvailable() bool {
	return d.frames.HasNewFrame()
}

// IsNewOrientationAvailable reports whether GetOrientation would return a pose not seen yet.
func (d *CaptureDriver) IsNewOrientationAvailable() bool {
	return d.poses.IsNew()
}

// DiagnosticText is a short description of what the capture goroutine is doing.
func (d *CaptureDriver) DiagnosticText() string {
	return d.text.Load()
}

// WorkerState reports the lifecycle of the current or last capture session.
func (d *CaptureDriver) WorkerState() WorkerState {
	return WorkerState(d.state.Load())
}

// SessionID identifies the current or last capture session, empty before the first one.
func (d *CaptureDriver) SessionID() string {
	return d.sessionID.Load()
}

// Resolution is the size of the frames GetFrame returns.
func (d *CaptureDriver) Resolution() rimage.Resolution {
	return d.frames.Resolution()
}

// AspectRatio is the width over height of the frames GetFrame returns.
func (d *CaptureDriver) AspectRatio() float64 {
	return d.Resolution().AspectRatio()
}

// Intrinsics returns the intrinsics poses are estimated with, scaled to the granted resolution
// once the device is open. It is nil before the first Initialize.
func (d *CaptureDriver) Intrinsics() *transform.CameraIntrinsics {
	return d.active.Load()
}

// CameraFOV returns the horizontal and vertical field of view in degrees.
func (d *CaptureDriver) CameraFOV() (float64, float64) {
	intrinsics := d.Intrinsics()
	if intrinsics == nil {
		return 0, 0
	}
	return intrinsics.FOV()
}

// Stats returns the driver's counters.
func (d *CaptureDriver) Stats() Stats {
	stats := Stats{
		SessionID:     d.SessionID(),
		State:         d.WorkerState(),
		FramesRead:    d.stats.read.Load(),
		FramesSkipped: d.stats.skipped.Load(),
		ReadErrors:    d.stats.readErrors.Load(),
		PosesFound:    d.stats.posesFound.Load(),
		PosesMissed:   d.stats.posesMissed.Load(),
		Frames:        d.frames.Stats(),
		Orientations:  d.poses.Stores(),
		LastFrameAt:   d.stats.lastFrame.Load(),
	}
	if worker := d.worker.Load(); worker != nil {
		stats.Capture = worker.captureState()
	}
	return stats
}
