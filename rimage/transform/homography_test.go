package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/markercam/spatialmath"
)

func TestEstimateHomography(t *testing.T) {
	truth := &Homography{
		{1.2, 0.1, 30},
		{-0.05, 0.9, 12},
		{0.0004, -0.0002, 1},
	}
	src := []r2.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}, {X: 40, Y: 70}}
	for _, n := range []int{4, 5} {
		dst := make([]r2.Point, n)
		for i := 0; i < n; i++ {
			dst[i] = truth.Apply(src[i])
		}
		h, err := EstimateHomography(src[:n], dst)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				test.That(t, h.At(i, j), test.ShouldAlmostEqual, truth.At(i, j), 1e-6)
			}
		}
		mapped := h.Apply(r2.Point{X: 25, Y: 75})
		expected := truth.Apply(r2.Point{X: 25, Y: 75})
		test.That(t, mapped.X, test.ShouldAlmostEqual, expected.X, 1e-6)
		test.That(t, mapped.Y, test.ShouldAlmostEqual, expected.Y, 1e-6)
	}
}

func TestEstimateHomographyErrors(t *testing.T) {
	pts := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	_, err := EstimateHomography(pts, pts)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = EstimateHomography(append(pts, r2.Point{}), pts)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlanePoseFromHomography(t *testing.T) {
	pinhole := &PinholeCameraIntrinsics{Width: 1280, Height: 720, Fx: 900, Fy: 900, Ppx: 640, Ppy: 360}
	truth := spatialmath.NewPose(
		r3.Vector{X: 40, Y: -25, Z: 600},
		&spatialmath.EulerAngles{Roll: 0.3, Pitch: -0.2, Yaw: 0.5},
	)

	// project the corners of a 100mm square lying in the plane z = 0
	half := 50.0
	plane := []r2.Point{{X: -half, Y: half}, {X: half, Y: half}, {X: half, Y: -half}, {X: -half, Y: -half}}
	pixels := make([]r2.Point, len(plane))
	for i, p := range plane {
		cam := spatialmath.Compose(truth, spatialmath.NewPoseFromPoint(r3.Vector{X: p.X, Y: p.Y})).Point()
		x, y := pinhole.PointToPixel(cam.X, cam.Y, cam.Z)
		pixels[i] = r2.Point{X: x, Y: y}
	}

	h, err := EstimateHomography(plane, pixels)
	test.That(t, err, test.ShouldBeNil)
	pose, err := PlanePoseFromHomography(h, pinhole)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(pose.Point(), truth.Point(), 1e-4), test.ShouldBeTrue)
	between := spatialmath.OrientationBetween(truth.Orientation(), pose.Orientation())
	test.That(t, math.Abs(between.AxisAngles().Theta), test.ShouldBeLessThan, 1e-6)

	_, err = PlanePoseFromHomography(h, &PinholeCameraIntrinsics{})
	test.That(t, err, test.ShouldNotBeNil)
}
