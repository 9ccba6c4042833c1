package fiducial

import (
	"context"

	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/rimage/transform"
	"go.viam.com/markercam/spatialmath"
)

// PlanarTracker estimates the pose between the camera and a board of markers from the
// homography of their detected corners.
type PlanarTracker struct {
	detector CornerDetector
	board    *Board
	filter   *SmoothingFilter
	report   string
	logger   logging.Logger
}

// NewPlanarTracker returns a tracker for the board described by conf, finding markers with detector.
func NewPlanarTracker(conf *Config, detector CornerDetector, logger logging.Logger) (*PlanarTracker, error) {
	if _, err := conf.Validate("tracker"); err != nil {
		return nil, err
	}
	report := conf.Report
	if report == "" {
		report = ReportCamera
	}
	tracker := &PlanarTracker{
		detector: detector,
		board:    conf.NewBoard(),
		report:   report,
		logger:   logger,
	}
	if conf.Smoothing > 0 {
		tracker.filter = NewSmoothingFilter(conf.Smoothing, conf.MaxJumpMM)
	}
	logger.Infow("marker tracker ready",
		"dictionary", conf.DictionaryName(), "marker_size_mm", conf.MarkerSizeMM, "markers", tracker.board.IDs(), "report", report)
	return tracker, nil
}

// Detect finds the board in frame. Without intrinsics nothing can be estimated.
func (t *PlanarTracker) Detect(
	ctx context.Context,
	frame *rimage.RawFrame,
	intrinsics *transform.CameraIntrinsics,
) (spatialmath.Pose, bool) {
	if intrinsics == nil {
		return nil, false
	}
	markers, err := t.detector.DetectCorners(ctx, frame)
	if err != nil {
		t.logger.CWarnw(ctx, "marker detection failed", "seq", frame.Seq, "error", err)
		return nil, false
	}
	boardPts, imagePts, used := t.board.Correspondences(markers)
	if len(used) == 0 {
		return nil, false
	}
	for i, px := range imagePts {
		imagePts[i] = intrinsics.UndistortPixel(px)
	}
	h, err := transform.EstimateHomography(boardPts, imagePts)
	if err != nil {
		t.logger.CDebugw(ctx, "cannot fit board homography", "seq", frame.Seq, "markers", used, "error", err)
		return nil, false
	}
	boardInCamera, err := transform.PlanePoseFromHomography(h, &intrinsics.Pinhole)
	if err != nil {
		t.logger.CDebugw(ctx, "cannot recover board pose", "seq", frame.Seq, "error", err)
		return nil, false
	}
	pose := boardInCamera
	if t.report == ReportCamera {
		pose = spatialmath.PoseInverse(boardInCamera)
	}
	if t.filter != nil {
		pose = t.filter.Apply(pose)
	}
	t.logger.CDebugw(ctx, "markers tracked", "seq", frame.Seq, "markers", used, "pose", pose)
	return pose, true
}

// Reset forgets the smoothed estimate.
func (t *PlanarTracker) Reset() {
	if t.filter != nil {
		t.filter.Reset()
	}
}

// Close closes the corner detector.
func (t *PlanarTracker) Close() error {
	return t.detector.Close()
}
