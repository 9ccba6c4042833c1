package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/markercam/spatialmath"
)

// PlanePoseFromHomography recovers the pose of a plane in the camera frame from the homography
// mapping plane coordinates (z = 0, in plane units) to undistorted pixels. The translation is in
// the same units as the plane coordinates; the plane lies in front of the camera (positive z).
func PlanePoseFromHomography(h *Homography, pinhole *PinholeCameraIntrinsics) (spatialmath.Pose, error) {
	if err := pinhole.CheckValid(); err != nil {
		return nil, err
	}
	var kInv mat.Dense
	if err := kInv.Inverse(pinhole.GetCameraMatrix()); err != nil {
		return nil, errors.Wrap(err, "camera matrix is not invertible")
	}
	var m mat.Dense
	m.Mul(&kInv, h.Dense())

	c1 := r3.Vector{X: m.At(0, 0), Y: m.At(1, 0), Z: m.At(2, 0)}
	c2 := r3.Vector{X: m.At(0, 1), Y: m.At(1, 1), Z: m.At(2, 1)}
	c3 := r3.Vector{X: m.At(0, 2), Y: m.At(1, 2), Z: m.At(2, 2)}
	norm := (c1.Norm() + c2.Norm()) / 2
	if norm < 1e-12 {
		return nil, errors.New("degenerate homography")
	}
	lambda := 1 / norm
	if c3.Z < 0 {
		lambda = -lambda
	}
	r1 := c1.Mul(lambda)
	r2 := c2.Mul(lambda)
	t := c3.Mul(lambda)
	r3v := r1.Cross(r2)

	// nearest rotation to [r1 r2 r3] in the Frobenius sense
	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})
	svd := performSVD(approx)
	if svd == nil {
		return nil, errors.New("rotation decomposition failed")
	}
	var rot mat.Dense
	rot.Mul(svd.U, svd.V.T())
	if mat.Det(&rot) < 0 {
		u := mat.DenseCopyOf(svd.U)
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(u, svd.V.T())
	}
	rm, err := spatialmath.NewRotationMatrixFromDense(&rot)
	if err != nil {
		return nil, err
	}
	return spatialmath.NewPose(t, rm), nil
}
