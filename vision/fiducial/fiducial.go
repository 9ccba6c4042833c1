// Package fiducial estimates the camera pose from square fiducial markers of known size.
package fiducial

import (
	"context"

	"github.com/golang/geo/r2"

	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/rimage/transform"
	"go.viam.com/markercam/spatialmath"
)

// A Marker is one detected square marker. Corners are in pixels, clockwise from the marker's
// top left corner as printed.
type Marker struct {
	ID      int
	Corners [4]r2.Point
}

// A CornerDetector finds the markers visible in a frame.
type CornerDetector interface {
	DetectCorners(ctx context.Context, frame *rimage.RawFrame) ([]Marker, error)
	Close() error
}

// A MarkerTracker estimates a pose from the markers in a frame. It reports false when no
// usable marker was found.
type MarkerTracker interface {
	Detect(ctx context.Context, frame *rimage.RawFrame, intrinsics *transform.CameraIntrinsics) (spatialmath.Pose, bool)
}

// A Resetter is a MarkerTracker that carries state between frames. Reset forgets it so a new
// capture session does not start from the previous session's estimate.
type Resetter interface {
	Reset()
}

// MarkerTrackerFunc adapts a function to a MarkerTracker.
type MarkerTrackerFunc func(ctx context.Context, frame *rimage.RawFrame, intrinsics *transform.CameraIntrinsics) (spatialmath.Pose, bool)

// Detect calls f.
func (f MarkerTrackerFunc) Detect(
	ctx context.Context,
	frame *rimage.RawFrame,
	intrinsics *transform.CameraIntrinsics,
) (spatialmath.Pose, bool) {
	return f(ctx, frame, intrinsics)
}
