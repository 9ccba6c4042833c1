package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/utils"
)

// CameraIntrinsics is a pinhole model with an optional lens distortion. A value is never
// modified after construction; use ScaledTo to derive one for another resolution.
type CameraIntrinsics struct {
	Pinhole    PinholeCameraIntrinsics
	Distortion *BrownConrady
}

// NewCameraIntrinsics validates pinhole and distortion and returns the combined model.
// A nil distortion means an ideal lens.
func NewCameraIntrinsics(pinhole PinholeCameraIntrinsics, distortion *BrownConrady) (*CameraIntrinsics, error) {
	if err := pinhole.CheckValid(); err != nil {
		return nil, err
	}
	return &CameraIntrinsics{Pinhole: pinhole, Distortion: distortion}, nil
}

// DefaultCameraIntrinsics returns an uncalibrated guess for res: a focal length of one image
// width and the principal point at the image center.
func DefaultCameraIntrinsics(res rimage.Resolution) *CameraIntrinsics {
	return &CameraIntrinsics{Pinhole: PinholeCameraIntrinsics{
		Width:  res.Width,
		Height: res.Height,
		Fx:     float64(res.Width),
		Fy:     float64(res.Width),
		Ppx:    float64(res.Width) / 2,
		Ppy:    float64(res.Height) / 2,
	}}
}

// Resolution is the image size the intrinsics describe.
func (ci *CameraIntrinsics) Resolution() rimage.Resolution {
	return ci.Pinhole.Resolution()
}

// FOV returns the horizontal and vertical field of view in degrees.
func (ci *CameraIntrinsics) FOV() (float64, float64) {
	h, v := ci.Pinhole.FieldOfView()
	return utils.RadToDeg(h), utils.RadToDeg(v)
}

// AspectRatio is the width over height of the calibrated image.
func (ci *CameraIntrinsics) AspectRatio() float64 {
	return ci.Resolution().AspectRatio()
}

// DistortionModel returns the lens model as a Distorter, nil for an ideal lens.
func (ci *CameraIntrinsics) DistortionModel() Distorter {
	if ci.Distortion == nil {
		return nil
	}
	return ci.Distortion
}

// ScaledTo returns intrinsics for the same lens at res. Focal lengths and principal point scale
// with each axis; distortion works on normalized coordinates and is carried over unchanged.
func (ci *CameraIntrinsics) ScaledTo(res rimage.Resolution) (*CameraIntrinsics, error) {
	if res.Empty() {
		return nil, errors.Errorf("cannot scale intrinsics to %s", res)
	}
	if res == ci.Resolution() {
		return ci, nil
	}
	ratioW := float64(res.Width) / float64(ci.Pinhole.Width)
	ratioH := float64(res.Height) / float64(ci.Pinhole.Height)
	scaled := &CameraIntrinsics{
		Pinhole: PinholeCameraIntrinsics{
			Width:  res.Width,
			Height: res.Height,
			Fx:     ci.Pinhole.Fx * ratioW,
			Fy:     ci.Pinhole.Fy * ratioH,
			Ppx:    ci.Pinhole.Ppx * ratioW,
			Ppy:    ci.Pinhole.Ppy * ratioH,
		},
	}
	if ci.Distortion != nil {
		d := *ci.Distortion
		scaled.Distortion = &d
	}
	return scaled, nil
}

// UndistortPixel maps a pixel observed through the lens to where an ideal pinhole camera would see it.
func (ci *CameraIntrinsics) UndistortPixel(px r2.Point) r2.Point {
	if ci.Distortion == nil {
		return px
	}
	p := &ci.Pinhole
	x, y := ci.Distortion.Undistort((px.X-p.Ppx)/p.Fx, (px.Y-p.Ppy)/p.Fy)
	return r2.Point{X: x*p.Fx + p.Ppx, Y: y*p.Fy + p.Ppy}
}

// LogFields returns the intrinsics as key value pairs for structured logging.
func (ci *CameraIntrinsics) LogFields() []interface{} {
	hfov, vfov := ci.FOV()
	fields := []interface{}{
		"width", ci.Pinhole.Width,
		"height", ci.Pinhole.Height,
		"fx", ci.Pinhole.Fx,
		"fy", ci.Pinhole.Fy,
		"ppx", ci.Pinhole.Ppx,
		"ppy", ci.Pinhole.Ppy,
		"hfov_deg", hfov,
		"vfov_deg", vfov,
	}
	if ci.Distortion != nil {
		fields = append(fields, "distortion", ci.Distortion.Parameters())
	}
	return fields
}

func (ci *CameraIntrinsics) String() string {
	return fmt.Sprintf("%s fx=%.2f fy=%.2f ppx=%.2f ppy=%.2f", ci.Resolution(), ci.Pinhole.Fx, ci.Pinhole.Fy, ci.Pinhole.Ppx, ci.Pinhole.Ppy)
}
