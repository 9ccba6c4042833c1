package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/rimage/transform"
)

const (
	primaryCalibration = `{
	"intrinsic_parameters": {"width_px": 1280, "height_px": 720, "fx": 1000, "fy": 1001, "ppx": 640, "ppy": 360},
	"distortion_parameters": {"rk1": 0.1, "rk2": -0.05, "rk3": 0, "tp1": 0, "tp2": 0}
}`
	fallbackCalibration = `{"width_px": 1280, "height_px": 720, "fx": 800, "fy": 800, "ppx": 641, "ppy": 359}`
)

func writeCalibration(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestLoadCalibration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	primary := writeCalibration(t, dir, "primary.json", primaryCalibration)
	fallback := writeCalibration(t, dir, "fallback.json", fallbackCalibration)
	broken := writeCalibration(t, dir, "broken.json", "{not json")
	missing := filepath.Join(dir, "missing.json")
	res := rimage.Resolution{Width: 1280, Height: 720}
	store := transform.NewJSONCalibrationStore()

	t.Run("missing primary uses fallback", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		intrinsics := loadCalibration(ctx, store, missing, fallback, res, logger)
		test.That(t, intrinsics.Pinhole.Fx, test.ShouldEqual, 800.0)
		test.That(t, intrinsics.Distortion, test.ShouldBeNil)
		test.That(t, logs.FilterMessage("calibration load failed").Len(), test.ShouldEqual, 1)
		test.That(t, logs.FilterMessage("calibration loaded").Len(), test.ShouldEqual, 1)
	})

	t.Run("primary preferred", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		intrinsics := loadCalibration(ctx, store, primary, fallback, res, logger)
		test.That(t, intrinsics.Pinhole.Fx, test.ShouldEqual, 1000.0)
		test.That(t, intrinsics.Distortion, test.ShouldNotBeNil)
		// both are attempted and logged
		test.That(t, logs.FilterMessage("calibration loaded").Len(), test.ShouldEqual, 2)
	})

	t.Run("broken primary", func(t *testing.T) {
		intrinsics := loadCalibration(ctx, store, broken, fallback, res, logging.NewTestLogger(t))
		test.That(t, intrinsics.Pinhole.Fx, test.ShouldEqual, 800.0)
	})

	t.Run("both fail", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		intrinsics := loadCalibration(ctx, store, missing, "", rimage.Resolution{Width: 640, Height: 480}, logger)
		test.That(t, intrinsics, test.ShouldResemble, transform.DefaultCameraIntrinsics(rimage.Resolution{Width: 640, Height: 480}))
		test.That(t, logs.FilterMessage("no usable calibration, estimating intrinsics").Len(), test.ShouldEqual, 1)
	})

	t.Run("custom store", func(t *testing.T) {
		var tried []string
		store := transform.CalibrationStoreFunc(func(path string) (*transform.CameraIntrinsics, error) {
			tried = append(tried, path)
			return nil, errors.New("no calibration here")
		})
		loadCalibration(ctx, store, "a", "b", res, logging.NewTestLogger(t))
		test.That(t, tried, test.ShouldResemble, []string{"a", "b"})
	})
}
