package driver

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/components/camera/fake"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/rimage/transform"
	"go.viam.com/markercam/spatialmath"
	"go.viam.com/markercam/utils"
	"go.viam.com/markercam/vision/fiducial"
)

type readResult struct {
	frame *rimage.RawFrame
	err   error
}

// scriptedDevice returns exactly the frames the test sends it.
type scriptedDevice struct {
	res    rimage.Resolution
	reads  chan readResult
	closed atomic.Bool
}

func newScriptedDevice(res rimage.Resolution) *scriptedDevice {
	return &scriptedDevice{res: res, reads: make(chan readResult)}
}

func (d *scriptedDevice) SetResolution(width, height int) error {
	return errors.New("fixed resolution")
}

func (d *scriptedDevice) Resolution() rimage.Resolution {
	return d.res
}

func (d *scriptedDevice) Read(ctx context.Context) (*rimage.RawFrame, error) {
	select {
	case r := <-d.reads:
		return r.frame, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *scriptedDevice) Close(ctx context.Context) error {
	d.closed.Store(true)
	return nil
}

func (d *scriptedDevice) opener() camera.Opener {
	return camera.OpenerFunc(func(ctx context.Context, index int) (camera.Device, error) {
		return d, nil
	})
}

var scriptedRes = rimage.Resolution{Width: 16, Height: 12}

func newScriptedDriver(t *testing.T, dev *scriptedDevice, tracker fiducial.MarkerTracker) (*CaptureDriver, logging.Logger) {
	t.Helper()
	logger, _ := logging.NewObservedTestLogger(t)
	d, err := NewCaptureDriver(
		&Config{Model: "scripted", Width: scriptedRes.Width, Height: scriptedRes.Height, TrackOrientation: tracker != nil},
		dev.opener(), tracker, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	return d, logger
}

func waitForPublished(t *testing.T, d *CaptureDriver, n uint64) {
	t.Helper()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, d.Stats().Frames.Published, test.ShouldEqual, n)
	})
}

func TestNewCaptureDriverValidation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	opener := newScriptedDevice(scriptedRes).opener()

	_, err := NewCaptureDriver(&Config{}, opener, nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewCaptureDriver(&Config{Model: "fake", Width: 10}, opener, nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewCaptureDriver(&Config{Model: "fake", CameraIndex: -1}, opener, nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewCaptureDriver(&Config{Model: "fake"}, nil, nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	d, err := NewCaptureDriver(&Config{Model: "fake"}, opener, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerCreated)
	test.That(t, d.Resolution(), test.ShouldResemble, DefaultResolution)
	test.That(t, d.Intrinsics(), test.ShouldBeNil)
	hfov, vfov := d.CameraFOV()
	test.That(t, hfov, test.ShouldEqual, 0.0)
	test.That(t, vfov, test.ShouldEqual, 0.0)
	test.That(t, d.SessionID(), test.ShouldBeEmpty)
	test.That(t, d.GetFrame().Resolution(), test.ShouldResemble, DefaultResolution)
	test.That(t, d.Shutdown(context.Background()), test.ShouldBeNil)
}

func TestCaptureDriverDropsMismatchedFrame(t *testing.T) {
	ctx := context.Background()
	dev := newScriptedDevice(scriptedRes)
	logger, logs := logging.NewObservedTestLogger(t)
	d, err := NewCaptureDriver(&Config{Model: "scripted", Width: 16, Height: 12}, dev.opener(), nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)
	defer func() {
		test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	}()

	dev.reads <- readResult{frame: fake.Pattern(scriptedRes, rimage.PixelFormatBGR24, 4)}
	waitForPublished(t, d, 1)
	test.That(t, d.IsNewFrameAvailable(), test.ShouldBeTrue)
	frame := d.GetFrame()
	test.That(t, frame.Seq, test.ShouldEqual, uint64(4))
	r, g, b := fake.PatternColor(3, 2, 4)
	test.That(t, frame.Image().RGBAAt(3, 2).R, test.ShouldEqual, r)
	test.That(t, frame.Image().RGBAAt(3, 2).G, test.ShouldEqual, g)
	test.That(t, frame.Image().RGBAAt(3, 2).B, test.ShouldEqual, b)

	dev.reads <- readResult{frame: fake.Pattern(rimage.Resolution{Width: 8, Height: 6}, rimage.PixelFormatBGR24, 5)}
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, d.Stats().FramesSkipped, test.ShouldEqual, uint64(1))
	})
	test.That(t, d.IsNewFrameAvailable(), test.ShouldBeFalse)
	test.That(t, d.GetFrame().Seq, test.ShouldEqual, uint64(4))
	mismatches := logs.FilterMessage("frame size mismatch, dropping frame")
	test.That(t, mismatches.Len(), test.ShouldEqual, 1)
	test.That(t, mismatches.All()[0].ContextMap()["got"], test.ShouldEqual, "8x6")
	test.That(t, mismatches.All()[0].ContextMap()["expected"], test.ShouldEqual, "16x12")

	dev.reads <- readResult{frame: fake.Pattern(scriptedRes, rimage.PixelFormatBGR24, 6)}
	waitForPublished(t, d, 2)
	frame = d.GetFrame()
	test.That(t, frame.Seq, test.ShouldEqual, uint64(6))
	test.That(t, frame.Resolution(), test.ShouldResemble, scriptedRes)

	stats := d.Stats()
	test.That(t, stats.FramesRead, test.ShouldEqual, uint64(3))
	test.That(t, stats.Frames.Published, test.ShouldEqual, uint64(2))
	test.That(t, stats.Capture, test.ShouldEqual, CaptureCapturing)
}

func TestCaptureDriverReadErrors(t *testing.T) {
	ctx := context.Background()
	dev := newScriptedDevice(scriptedRes)
	d, _ := newScriptedDriver(t, dev, nil)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)

	dev.reads <- readResult{err: errors.New("usb hiccup")}
	dev.reads <- readResult{frame: fake.Pattern(scriptedRes, rimage.PixelFormatRGBA32, 1)}
	waitForPublished(t, d, 1)
	test.That(t, d.Stats().ReadErrors, test.ShouldEqual, uint64(1))
	test.That(t, d.GetFrame().Seq, test.ShouldEqual, uint64(1))

	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	test.That(t, dev.closed.Load(), test.ShouldBeTrue)
}

func TestCaptureDriverTracksOrientation(t *testing.T) {
	ctx := context.Background()
	dev := newScriptedDevice(scriptedRes)
	var seen atomic.Pointer[transform.CameraIntrinsics]
	tracker := fiducial.MarkerTrackerFunc(
		func(ctx context.Context, frame *rimage.RawFrame, intrinsics *transform.CameraIntrinsics) (spatialmath.Pose, bool) {
			seen.Store(intrinsics)
			if frame.Seq%2 == 0 {
				return nil, false
			}
			return spatialmath.NewPoseFromPoint(r3.Vector{X: float64(frame.Seq)}), true
		})
	d, _ := newScriptedDriver(t, dev, tracker)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)
	defer func() {
		test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	}()

	test.That(t, d.IsNewOrientationAvailable(), test.ShouldBeFalse)
	test.That(t, spatialmath.PoseAlmostEqual(d.GetOrientation(), spatialmath.NewZeroPose()), test.ShouldBeTrue)

	dev.reads <- readResult{frame: fake.Pattern(scriptedRes, rimage.PixelFormatBGR24, 1)}
	waitForPublished(t, d, 1)
	test.That(t, d.IsNewOrientationAvailable(), test.ShouldBeTrue)
	test.That(t, d.GetOrientation().Point().X, test.ShouldEqual, 1.0)
	test.That(t, d.IsNewOrientationAvailable(), test.ShouldBeFalse)

	dev.reads <- readResult{frame: fake.Pattern(scriptedRes, rimage.PixelFormatBGR24, 2)}
	waitForPublished(t, d, 2)
	test.That(t, d.IsNewOrientationAvailable(), test.ShouldBeFalse)
	test.That(t, d.GetOrientation().Point().X, test.ShouldEqual, 1.0)

	dev.reads <- readResult{frame: fake.Pattern(scriptedRes, rimage.PixelFormatBGR24, 3)}
	waitForPublished(t, d, 3)
	test.That(t, d.GetOrientation().Point().X, test.ShouldEqual, 3.0)

	stats := d.Stats()
	test.That(t, stats.PosesFound, test.ShouldEqual, uint64(2))
	test.That(t, stats.PosesMissed, test.ShouldEqual, uint64(1))
	test.That(t, stats.Orientations, test.ShouldEqual, uint64(2))
	test.That(t, seen.Load(), test.ShouldEqual, d.Intrinsics())
	test.That(t, seen.Load().Resolution(), test.ShouldResemble, scriptedRes)
}

func TestCaptureDriverFailedToOpen(t *testing.T) {
	ctx := context.Background()
	logger, logs := logging.NewObservedTestLogger(t)
	opener := camera.OpenerFunc(func(ctx context.Context, index int) (camera.Device, error) {
		return nil, camera.NewOpenError("scripted", index, errors.New("no such device"))
	})
	d, err := NewCaptureDriver(&Config{Model: "scripted", CameraIndex: 3, Width: 16, Height: 12}, opener, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, d.WorkerState(), test.ShouldEqual, WorkerFailedToOpen)
	})
	test.That(t, d.DiagnosticText(), test.ShouldEqual, "CANNOT OPEN CAMERA 3")
	test.That(t, d.Stats().Capture, test.ShouldEqual, CaptureFailedToOpen)
	test.That(t, d.IsNewFrameAvailable(), test.ShouldBeFalse)
	frame := d.GetFrame()
	test.That(t, frame.Seq, test.ShouldEqual, uint64(0))
	test.That(t, frame.Pix[:4], test.ShouldResemble, []uint8{0, 0, 0, 0xff})
	test.That(t, logs.FilterMessage("cannot open camera, nothing will be captured").Len(), test.ShouldEqual, 1)

	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerFailedToOpen)
	test.That(t, d.IsNewFrameAvailable(), test.ShouldBeFalse)
}

func TestCaptureDriverLifecycle(t *testing.T) {
	ctx := context.Background()
	dev := newScriptedDevice(scriptedRes)
	d, _ := newScriptedDriver(t, dev, nil)

	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)
	test.That(t, d.Initialize(ctx), test.ShouldBeError, ErrAlreadyInitialized)
	first := d.SessionID()
	test.That(t, first, test.ShouldNotBeEmpty)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, d.DiagnosticText(), test.ShouldEqual, "CAPTURING 16x12")
	})
	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerRunning)

	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerStopped)
	test.That(t, d.DiagnosticText(), test.ShouldEqual, "STOPPED")
	test.That(t, d.Stats().Capture, test.ShouldEqual, CaptureStopped)
	test.That(t, dev.closed.Load(), test.ShouldBeTrue)
	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerStopped)

	dev.closed.Store(false)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)
	test.That(t, d.SessionID(), test.ShouldNotEqual, first)
	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerRunning)
	dev.reads <- readResult{frame: fake.Pattern(scriptedRes, rimage.PixelFormatBGR24, 1)}
	waitForPublished(t, d, 1)
	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	test.That(t, dev.closed.Load(), test.ShouldBeTrue)
}

func TestCaptureDriverNegotiatesResolution(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	opener, err := camera.NewOpener(fake.ModelName, utils.AttributeMap{
		"granted_width":  64,
		"granted_height": 48,
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	dir := t.TempDir()
	calibration := writeCalibration(t, dir, "cal.json", `{"width_px": 128, "height_px": 96, "fx": 100, "fy": 100, "ppx": 64, "ppy": 48}`)
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	d, err := NewCaptureDriver(&Config{Model: fake.ModelName, Width: 128, Height: 96, CalibrationFile: calibration},
		opener, nil, nil, logger, WithClock(mock))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, d.IsNewFrameAvailable(), test.ShouldBeTrue)
	})
	frame := d.GetFrame()
	granted := rimage.Resolution{Width: 64, Height: 48}
	test.That(t, frame.Resolution(), test.ShouldResemble, granted)
	test.That(t, frame.CapturedAt.Equal(mock.Now()), test.ShouldBeTrue)
	test.That(t, d.Resolution(), test.ShouldResemble, granted)
	test.That(t, d.AspectRatio(), test.ShouldAlmostEqual, 4.0/3.0)
	test.That(t, d.Intrinsics().Pinhole.Fx, test.ShouldAlmostEqual, 50)
	test.That(t, d.Intrinsics().Pinhole.Ppx, test.ShouldAlmostEqual, 32)
	hfov, _ := d.CameraFOV()
	test.That(t, hfov, test.ShouldAlmostEqual, utils.RadToDeg(2*math.Atan(64.0/100.0)), 1e-9)
	test.That(t, d.Stats().LastFrameAt.Equal(mock.Now()), test.ShouldBeTrue)

	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
}

func TestCaptureDriverFakeMismatchNeverPublished(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	opener, err := camera.NewOpener(fake.ModelName, utils.AttributeMap{"mismatch_frames": []uint64{5}}, logger)
	test.That(t, err, test.ShouldBeNil)
	d, err := NewCaptureDriver(&Config{Model: fake.ModelName, Width: 32, Height: 24}, opener, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)
	defer func() {
		test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
	}()

	var last uint64
	for last < 20 {
		frame := d.GetFrame()
		test.That(t, frame.Seq, test.ShouldNotEqual, uint64(5))
		test.That(t, frame.Resolution(), test.ShouldResemble, rimage.Resolution{Width: 32, Height: 24})
		last = frame.Seq
		time.Sleep(time.Millisecond)
	}
	test.That(t, d.Stats().FramesSkipped, test.ShouldEqual, uint64(1))
}

// brokenDevice fails every read straight away, like an unplugged camera.
type brokenDevice struct {
	*scriptedDevice
}

func (d *brokenDevice) Read(ctx context.Context) (*rimage.RawFrame, error) {
	return nil, errors.New("device unplugged")
}

func TestReadRetryDelay(t *testing.T) {
	test.That(t, readRetryDelay(1), test.ShouldEqual, readRetryMin)
	test.That(t, readRetryDelay(2), test.ShouldEqual, 2*readRetryMin)
	test.That(t, readRetryDelay(3), test.ShouldEqual, 4*readRetryMin)
	test.That(t, readRetryDelay(100), test.ShouldEqual, readRetryMax)
}

func TestCaptureDriverBacksOffOnReadErrors(t *testing.T) {
	ctx := context.Background()
	dev := &brokenDevice{scriptedDevice: newScriptedDevice(scriptedRes)}
	opener := camera.OpenerFunc(func(ctx context.Context, index int) (camera.Device, error) {
		return dev, nil
	})
	logger, logs := logging.NewObservedTestLogger(t)
	d, err := NewCaptureDriver(&Config{Model: "scripted", Width: 16, Height: 12}, opener, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)

	time.Sleep(200 * time.Millisecond)
	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)

	// 10+20+40+80ms of waiting fits in the window, so only a handful of reads happen
	readErrors := d.Stats().ReadErrors
	test.That(t, readErrors, test.ShouldBeGreaterThan, 0)
	test.That(t, readErrors, test.ShouldBeLessThan, 20)
	test.That(t, logs.FilterMessage("frame read failed").Len(), test.ShouldBeLessThanOrEqualTo, readFailureLogFirst)
	test.That(t, d.Stats().Frames.Published, test.ShouldEqual, uint64(0))
	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerStopped)
}

func TestCaptureDriverFinishesFrameDuringShutdown(t *testing.T) {
	ctx := context.Background()
	dev := newScriptedDevice(scriptedRes)
	entered := make(chan struct{})
	release := make(chan struct{})
	tracker := fiducial.MarkerTrackerFunc(
		func(ctx context.Context, frame *rimage.RawFrame, intrinsics *transform.CameraIntrinsics) (spatialmath.Pose, bool) {
			close(entered)
			<-release
			if ctx.Err() != nil {
				return nil, false
			}
			return spatialmath.NewPoseFromPoint(r3.Vector{X: float64(frame.Seq)}), true
		})
	d, _ := newScriptedDriver(t, dev, tracker)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)

	dev.reads <- readResult{frame: fake.Pattern(scriptedRes, rimage.PixelFormatBGR24, 7)}
	<-entered
	done := make(chan error, 1)
	go func() {
		done <- d.Shutdown(ctx)
	}()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, d.WorkerState(), test.ShouldEqual, WorkerStopRequested)
	})
	// let the stop reach the session context before the frame finishes
	time.Sleep(50 * time.Millisecond)
	close(release)
	test.That(t, <-done, test.ShouldBeNil)

	stats := d.Stats()
	test.That(t, stats.PosesFound, test.ShouldEqual, uint64(1))
	test.That(t, stats.Frames.Published, test.ShouldEqual, uint64(1))
	test.That(t, d.GetOrientation().Point().X, test.ShouldEqual, 7.0)
	test.That(t, d.GetFrame().Seq, test.ShouldEqual, uint64(7))
	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerStopped)
}

func TestCaptureDriverShutdownDuringFailingOpen(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	opener := camera.OpenerFunc(func(ctx context.Context, index int) (camera.Device, error) {
		<-release
		return nil, errors.New("no such device")
	})
	d, err := NewCaptureDriver(&Config{Model: "scripted", Width: 16, Height: 12}, opener, nil, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Initialize(ctx), test.ShouldBeNil)

	done := make(chan error, 1)
	go func() {
		done <- d.Shutdown(ctx)
	}()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, d.WorkerState(), test.ShouldEqual, WorkerStopRequested)
	})
	close(release)
	test.That(t, <-done, test.ShouldBeNil)

	test.That(t, d.WorkerState(), test.ShouldEqual, WorkerFailedToOpen)
	test.That(t, d.DiagnosticText(), test.ShouldEqual, "CANNOT OPEN CAMERA 0")
}

// resettableTracker never finds a marker and counts how often it was reset.
type resettableTracker struct {
	resets atomic.Int32
}

func (rt *resettableTracker) Detect(
	ctx context.Context,
	frame *rimage.RawFrame,
	intrinsics *transform.CameraIntrinsics,
) (spatialmath.Pose, bool) {
	return nil, false
}

func (rt *resettableTracker) Reset() {
	rt.resets.Inc()
}

func TestCaptureDriverResetsTrackerPerSession(t *testing.T) {
	ctx := context.Background()
	tracker := &resettableTracker{}
	d, _ := newScriptedDriver(t, newScriptedDevice(scriptedRes), tracker)

	test.That(t, d.Initialize(ctx), test.ShouldBeNil)
	test.That(t, tracker.resets.Load(), test.ShouldEqual, int32(1))
	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)

	test.That(t, d.Initialize(ctx), test.ShouldBeNil)
	test.That(t, tracker.resets.Load(), test.ShouldEqual, int32(2))
	test.That(t, d.Shutdown(ctx), test.ShouldBeNil)
}
