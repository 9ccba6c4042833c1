//go:build !no_cgo

// Package opencv implements a camera device on an OpenCV VideoCapture.
package opencv

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
)

// ModelName is the registered name of the OpenCV device model.
const ModelName = "opencv"

func init() {
	camera.RegisterDeviceModel(ModelName, camera.Registration{
		Open: func(ctx context.Context, index int, conf interface{}, logger logging.Logger) (camera.Device, error) {
			newConf, err := camera.NativeConfig[Config](conf)
			if err != nil {
				return nil, err
			}
			return Open(ctx, index, newConf, logger)
		},
		AttributeMapConverter: camera.ConverterFor[Config](),
	})
}

// Config are the attributes of the OpenCV device.
type Config struct {
	// FrameRate is requested from the device when positive.
	FrameRate float64 `json:"frame_rate,omitempty"`
}

// Validate checks the config.
func (conf *Config) Validate(path string) ([]string, error) {
	if conf.FrameRate < 0 {
		return nil, errors.Errorf("frame_rate cannot be negative, got %v", conf.FrameRate)
	}
	return nil, nil
}

// Device reads frames from a VideoCapture. A Read in progress cannot be interrupted; it returns
// once the device delivers the next frame.
type Device struct {
	mu      sync.Mutex
	index   int
	capture *gocv.VideoCapture
	mat     gocv.Mat
	seq     uint64
	closed  bool
	logger  logging.Logger
}

// Open opens the OpenCV capture device index.
func Open(ctx context.Context, index int, conf *Config, logger logging.Logger) (*Device, error) {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, camera.NewOpenError(ModelName, index, err)
	}
	if !capture.IsOpened() {
		return nil, camera.NewOpenError(ModelName, index, multierr.Combine(errors.New("device did not open"), capture.Close()))
	}
	if conf != nil && conf.FrameRate > 0 {
		capture.Set(gocv.VideoCaptureFPS, conf.FrameRate)
	}
	d := &Device{
		index:   index,
		capture: capture,
		mat:     gocv.NewMat(),
		logger:  logger,
	}
	logger.Infow("opened opencv camera", "index", index, "resolution", d.Resolution().String())
	return d, nil
}

// SetResolution requests a frame size from the driver.
func (d *Device) SetResolution(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return camera.ErrDeviceClosed
	}
	d.capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
	d.capture.Set(gocv.VideoCaptureFrameHeight, float64(height))
	return nil
}

// Resolution reads back the size the driver negotiated.
func (d *Device) Resolution() rimage.Resolution {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return rimage.Resolution{}
	}
	return rimage.Resolution{
		Width:  int(d.capture.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(d.capture.Get(gocv.VideoCaptureFrameHeight)),
	}
}

// Read blocks until the next frame.
func (d *Device) Read(ctx context.Context) (*rimage.RawFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, camera.ErrDeviceClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := d.capture.Read(&d.mat); !ok {
		return nil, errors.Errorf("failed to read frame from opencv camera %d", d.index)
	}
	if d.mat.Empty() {
		return nil, errors.Errorf("opencv camera %d returned an empty frame", d.index)
	}
	var format rimage.PixelFormat
	switch d.mat.Channels() {
	case 3:
		format = rimage.PixelFormatBGR24
	case 4:
		format = rimage.PixelFormatBGRA32
	default:
		return nil, errors.Errorf("unsupported channel count %d", d.mat.Channels())
	}
	d.seq++
	return &rimage.RawFrame{
		Width:  d.mat.Cols(),
		Height: d.mat.Rows(),
		Stride: d.mat.Cols() * d.mat.Channels(),
		Format: format,
		Data:   d.mat.ToBytes(),
		Seq:    d.seq,
	}, nil
}

// Close releases the capture device.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return camera.ErrDeviceClosed
	}
	d.closed = true
	return multierr.Combine(d.mat.Close(), d.capture.Close())
}
