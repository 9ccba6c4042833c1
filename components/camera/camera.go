// Package camera defines the capture devices frames are read from and the registry of device models.
package camera

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/markercam/rimage"
)

// ErrDeviceClosed is returned by a device used after Close.
var ErrDeviceClosed = errors.New("camera device already closed")

// A Device is an open capture source. Only one goroutine uses a device at a time.
type Device interface {
	// SetResolution requests a frame size. The request is advisory; Resolution reports
	// what the device actually negotiated.
	SetResolution(width, height int) error
	Resolution() rimage.Resolution
	// Read blocks until the next frame is available.
	Read(ctx context.Context) (*rimage.RawFrame, error)
	Close(ctx context.Context) error
}

// An Opener opens a device by its index.
type Opener interface {
	Open(ctx context.Context, index int) (Device, error)
}

// OpenerFunc adapts a function to an Opener.
type OpenerFunc func(ctx context.Context, index int) (Device, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, index int) (Device, error) {
	return f(ctx, index)
}

// NewOpenError is used when a device cannot be opened.
func NewOpenError(model string, index int, cause error) error {
	return errors.Wrapf(cause, "cannot open %s camera %d", model, index)
}
