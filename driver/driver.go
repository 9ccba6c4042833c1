// Package driver captures frames from a camera on a background goroutine, estimates the marker
// pose on each of them and hands the latest frame and pose to a consumer that never blocks on
// the capture.
package driver

import (
	"context"
	"fmt"

	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/spatialmath"
)

// A Driver supplies video frames and camera poses to a consumer polling at its own rate.
// None of the read methods block on the producer.
type Driver interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	// GetFrame returns the most recently completed frame. The buffer stays valid and unmodified
	// until the next call to GetFrame.
	GetFrame() *rimage.FrameBuffer
	// GetOrientation returns the most recently estimated pose.
	GetOrientation() spatialmath.Pose
	IsNewFrameAvailable() bool
	IsNewOrientationAvailable() bool
	DiagnosticText() string
}

// WorkerState is the lifecycle of the capture goroutine as seen by its driver.
type WorkerState int32

// The states a capture goroutine can be in.
const (
	WorkerCreated WorkerState = iota
	WorkerRunning
	WorkerStopRequested
	WorkerStopped
	// WorkerFailedToOpen means the device could not be opened. The session publishes nothing
	// until the driver is shut down and initialized again.
	WorkerFailedToOpen
)

func (s WorkerState) String() string {
	switch s {
	case WorkerCreated:
		return "created"
	case WorkerRunning:
		return "running"
	case WorkerStopRequested:
		return "stop_requested"
	case WorkerStopped:
		return "stopped"
	case WorkerFailedToOpen:
		return "failed_to_open"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}
