//go:build no_cgo

// Package aruco finds ArUco and AprilTag markers using OpenCV.
package aruco

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/vision/fiducial"
)

var errNoCgo = errors.New("marker detection needs OpenCV, this build has no cgo")

// Dictionaries lists the supported dictionary names, none without cgo.
func Dictionaries() []string {
	return nil
}

// Detector is unavailable without cgo.
type Detector struct{}

// NewDetector always fails without cgo.
func NewDetector(dictionary string) (*Detector, error) {
	return nil, errNoCgo
}

// DetectCorners always fails without cgo.
func (d *Detector) DetectCorners(ctx context.Context, frame *rimage.RawFrame) ([]fiducial.Marker, error) {
	return nil, errNoCgo
}

// Close does nothing.
func (d *Detector) Close() error {
	return nil
}
