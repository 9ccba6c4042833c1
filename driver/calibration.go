package driver

import (
	"context"

	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/rimage/transform"
)

// loadCalibration tries the primary and then the fallback calibration file, logging the outcome
// of each. The primary wins when both load. When neither does, intrinsics are estimated from
// res so tracking degrades instead of stopping.
func loadCalibration(
	ctx context.Context,
	store transform.CalibrationStore,
	primary, fallback string,
	res rimage.Resolution,
	logger logging.Logger,
) *transform.CameraIntrinsics {
	var loaded *transform.CameraIntrinsics
	for _, candidate := range []struct {
		kind, path string
	}{
		{"primary", primary},
		{"fallback", fallback},
	} {
		if candidate.path == "" {
			logger.CDebugw(ctx, "no calibration file configured", "kind", candidate.kind)
			continue
		}
		intrinsics, err := store.Load(candidate.path)
		if err != nil {
			logger.CWarnw(ctx, "calibration load failed", "kind", candidate.kind, "path", candidate.path, "error", err)
			continue
		}
		logger.CInfow(ctx, "calibration loaded", "kind", candidate.kind, "path", candidate.path)
		if loaded == nil {
			loaded = intrinsics
		}
	}
	if loaded == nil {
		loaded = transform.DefaultCameraIntrinsics(res)
		logger.CWarnw(ctx, "no usable calibration, estimating intrinsics", "resolution", res.String())
	}
	logger.CInfow(ctx, "camera intrinsics", loaded.LogFields()...)
	return loaded
}
