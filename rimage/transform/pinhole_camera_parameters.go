// Package transform holds the camera models used to relate pixels to the marker plane.
package transform

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/markercam/rimage"
)

// ErrNoIntrinsics is wrapped by every intrinsics validation failure.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with the reason the intrinsics are unusable.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics is the ideal pinhole model of a camera at one resolution: focal lengths
// and principal point in pixels.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid returns an error wrapping ErrNoIntrinsics when params cannot project points.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("intrinsics are nil")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid size %dx%d", params.Width, params.Height))
	}
	for _, check := range []struct {
		name string
		bad  bool
		val  float64
	}{
		{"focal length Fx", params.Fx <= 0, params.Fx},
		{"focal length Fy", params.Fy <= 0, params.Fy},
		{"principal point Ppx", params.Ppx < 0, params.Ppx},
		{"principal point Ppy", params.Ppy < 0, params.Ppy},
	} {
		if check.bad {
			return NewNoIntrinsicsError(fmt.Sprintf("invalid %s = %v", check.name, check.val))
		}
	}
	return nil
}

// Resolution is the image size the intrinsics were calibrated for.
func (params *PinholeCameraIntrinsics) Resolution() rimage.Resolution {
	return rimage.Resolution{Width: params.Width, Height: params.Height}
}

// PixelToPoint back-projects pixel (x, y) at depth z into camera coordinates.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	return z * (x - params.Ppx) / params.Fx, z * (y - params.Ppy) / params.Fy, z
}

// PointToPixel projects a camera space point onto the image plane without rounding. Points on the
// camera plane map to (-1, -1), which every bounds check rejects.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z == 0 {
		return -1, -1
	}
	return params.Fx*x/z + params.Ppx, params.Fy*y/z + params.Ppy
}

// GetCameraMatrix returns K, the 3x3 upper triangular camera matrix.
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// FieldOfView returns the horizontal and vertical field of view in radians.
func (params *PinholeCameraIntrinsics) FieldOfView() (float64, float64) {
	hfov := 2 * math.Atan(float64(params.Width)/(2*params.Fx))
	vfov := 2 * math.Atan(float64(params.Height)/(2*params.Fy))
	return hfov, vfov
}
