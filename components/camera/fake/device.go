// Package fake implements a synthetic camera device producing a moving test pattern.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
)

// ModelName is the registered name of the fake device model.
const ModelName = "fake"

const (
	initialWidth  = 1280
	initialHeight = 720
)

func init() {
	camera.RegisterDeviceModel(ModelName, camera.Registration{
		Open: func(ctx context.Context, index int, conf interface{}, logger logging.Logger) (camera.Device, error) {
			newConf, err := camera.NativeConfig[Config](conf)
			if err != nil {
				return nil, err
			}
			return Open(ctx, index, newConf, clock.New(), logger)
		},
		AttributeMapConverter: camera.ConverterFor[Config](),
	})
}

// Config are the attributes of the fake device.
type Config struct {
	// GrantedWidth and GrantedHeight, when set, override whatever resolution is requested,
	// like a device that only supports one mode.
	GrantedWidth  int `json:"granted_width,omitempty"`
	GrantedHeight int `json:"granted_height,omitempty"`
	// FrameRate paces Read in frames per second; zero delivers frames as fast as they are read.
	FrameRate   float64 `json:"frame_rate,omitempty"`
	PixelFormat string  `json:"pixel_format,omitempty"`
	// MismatchFrames lists sequence numbers delivered at half the negotiated size.
	MismatchFrames []uint64 `json:"mismatch_frames,omitempty"`
	FailOpen       bool     `json:"fail_open,omitempty"`
}

// Validate checks that the config attributes are valid for a fake device.
func (conf *Config) Validate(path string) ([]string, error) {
	if conf.GrantedHeight%2 != 0 {
		return nil, errors.Errorf("odd-number resolutions cannot be rendered, cannot use a height of %d", conf.GrantedHeight)
	}
	if conf.GrantedWidth%2 != 0 {
		return nil, errors.Errorf("odd-number resolutions cannot be rendered, cannot use a width of %d", conf.GrantedWidth)
	}
	if (conf.GrantedWidth == 0) != (conf.GrantedHeight == 0) {
		return nil, errors.New("granted_width and granted_height must be set together")
	}
	if conf.FrameRate < 0 {
		return nil, errors.Errorf("frame_rate cannot be negative, got %v", conf.FrameRate)
	}
	if _, err := rimage.PixelFormatFromString(conf.PixelFormat); err != nil {
		return nil, err
	}
	return nil, nil
}

// Device is a fake camera device. Frame n is a diagonal gradient shifted n pixels to the right
// so consecutive frames differ.
type Device struct {
	mu         sync.Mutex
	index      int
	conf       Config
	format     rimage.PixelFormat
	res        rimage.Resolution
	mismatches map[uint64]struct{}
	clock      clock.Clock
	lastFrame  time.Time
	seq        uint64
	closed     bool
	logger     logging.Logger
}

// Open opens fake device index. conf.FailOpen makes the open fail.
func Open(ctx context.Context, index int, conf *Config, clk clock.Clock, logger logging.Logger) (*Device, error) {
	if conf == nil {
		conf = &Config{}
	}
	if _, err := conf.Validate(""); err != nil {
		return nil, err
	}
	if conf.FailOpen {
		return nil, camera.NewOpenError(ModelName, index, errors.New("device refused to open"))
	}
	format, err := rimage.PixelFormatFromString(conf.PixelFormat)
	if err != nil {
		return nil, err
	}
	d := &Device{
		index:      index,
		conf:       *conf,
		format:     format,
		res:        rimage.Resolution{Width: initialWidth, Height: initialHeight},
		mismatches: lo.SliceToMap(conf.MismatchFrames, func(seq uint64) (uint64, struct{}) { return seq, struct{}{} }),
		clock:      clk,
		logger:     logger,
	}
	if conf.GrantedWidth > 0 {
		d.res = rimage.Resolution{Width: conf.GrantedWidth, Height: conf.GrantedHeight}
	}
	logger.Debugw("opened fake camera", "index", index, "resolution", d.res.String(), "format", format.String())
	return d, nil
}

// SetResolution requests a resolution. A configured granted resolution wins over the request.
func (d *Device) SetResolution(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return camera.ErrDeviceClosed
	}
	if width <= 0 || height <= 0 {
		return errors.Errorf("cannot set resolution %dx%d", width, height)
	}
	if d.conf.GrantedWidth > 0 {
		if width != d.conf.GrantedWidth || height != d.conf.GrantedHeight {
			d.logger.Debugw("ignoring requested resolution",
				"requested", rimage.Resolution{Width: width, Height: height}.String(), "granted", d.res.String())
		}
		return nil
	}
	d.res = rimage.Resolution{Width: width, Height: height}
	return nil
}

// Resolution returns the negotiated resolution.
func (d *Device) Resolution() rimage.Resolution {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.res
}

// Read waits for the next frame time and returns the next pattern frame.
func (d *Device) Read(ctx context.Context) (*rimage.RawFrame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, camera.ErrDeviceClosed
	}
	wait := d.untilNextFrame()
	d.mu.Unlock()

	if wait > 0 {
		timer := d.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, camera.ErrDeviceClosed
	}
	d.seq++
	d.lastFrame = d.clock.Now()
	res := d.res
	if _, ok := d.mismatches[d.seq]; ok {
		res = rimage.Resolution{Width: res.Width / 2, Height: res.Height / 2}
	}
	return Pattern(res, d.format, d.seq), nil
}

func (d *Device) untilNextFrame() time.Duration {
	if d.conf.FrameRate <= 0 || d.lastFrame.IsZero() {
		return 0
	}
	interval := time.Duration(float64(time.Second) / d.conf.FrameRate)
	return interval - d.clock.Since(d.lastFrame)
}

// Close closes the device.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return camera.ErrDeviceClosed
	}
	d.closed = true
	d.logger.Debugw("closed fake camera", "index", d.index, "frames", d.seq)
	return nil
}

// Pattern renders frame seq of the fake pattern at res in format.
func Pattern(res rimage.Resolution, format rimage.PixelFormat, seq uint64) *rimage.RawFrame {
	bpp := format.BytesPerPixel()
	rf := &rimage.RawFrame{
		Width:  res.Width,
		Height: res.Height,
		Stride: res.Width * bpp,
		Format: format,
		Data:   make([]byte, res.Pixels()*bpp),
		Seq:    seq,
	}
	for y := 0; y < res.Height; y++ {
		row := rf.Data[y*rf.Stride:]
		for x := 0; x < res.Width; x++ {
			r, g, b := PatternColor(x, y, seq)
			p := row[x*bpp:]
			switch format {
			case rimage.PixelFormatBGR24, rimage.PixelFormatBGRA32:
				p[0], p[1], p[2] = b, g, r
			case rimage.PixelFormatRGB24, rimage.PixelFormatRGBA32:
				p[0], p[1], p[2] = r, g, b
			case rimage.PixelFormatUnknown:
			}
			if bpp == 4 {
				p[3] = 0xff
			}
		}
	}
	return rf
}

// PatternColor is the color of pixel (x, y) in frame seq of the fake pattern.
func PatternColor(x, y int, seq uint64) (uint8, uint8, uint8) {
	shifted := uint64(x) + seq
	return uint8(shifted), uint8(y), uint8((shifted + uint64(y)) >> 1)
}
