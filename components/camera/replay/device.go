// Package replay implements a camera device that replays a directory of image files.
package replay

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/utils"
)

// ModelName is the registered name of the replay device model.
const ModelName = "replay"

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

// Config are the attributes of the replay device.
type Config struct {
	Directory   string  `json:"directory"`
	Loop        bool    `json:"loop,omitempty"`
	FrameRate   float64 `json:"frame_rate,omitempty"`
	PixelFormat string  `json:"pixel_format,omitempty"`
	// Preload decodes every image at open instead of on each read.
	Preload bool `json:"preload,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) ([]string, error) {
	if conf.Directory == "" {
		return nil, errors.Errorf("%s: directory is required", path)
	}
	if conf.FrameRate < 0 {
		return nil, errors.Errorf("frame_rate cannot be negative, got %v", conf.FrameRate)
	}
	if _, err := rimage.PixelFormatFromString(conf.PixelFormat); err != nil {
		return nil, err
	}
	return nil, nil
}

// Device replays the image files of a directory in lexical order. The first file fixes the
// resolution; files of another size are delivered as they are.
type Device struct {
	mu        sync.Mutex
	files     []string
	preloaded []image.Image
	next      int
	conf      Config
	format    rimage.PixelFormat
	res       rimage.Resolution
	clock     clock.Clock
	lastFrame time.Time
	seq       uint64
	closed    bool
	logger    logging.Logger
}

// Open lists the images of conf.Directory. The index is ignored.
func Open(ctx context.Context, index int, conf *Config, clk clock.Clock, logger logging.Logger) (*Device, error) {
	if _, err := conf.Validate("replay"); err != nil {
		return nil, err
	}
	format, err := rimage.PixelFormatFromString(conf.PixelFormat)
	if err != nil {
		return nil, err
	}
	files, err := imageFiles(conf.Directory)
	if err != nil {
		return nil, camera.NewOpenError(ModelName, index, err)
	}
	if len(files) == 0 {
		return nil, camera.NewOpenError(ModelName, index, errors.Errorf("no image files in %q", conf.Directory))
	}
	first, err := rimage.ReadImageFromFile(files[0])
	if err != nil {
		return nil, camera.NewOpenError(ModelName, index, err)
	}
	d := &Device{
		files:  files,
		conf:   *conf,
		format: format,
		res:    rimage.Resolution{Width: first.Bounds().Dx(), Height: first.Bounds().Dy()},
		clock:  clk,
		logger: logger,
	}
	if conf.Preload {
		if d.preloaded, err = preload(ctx, files); err != nil {
			return nil, camera.NewOpenError(ModelName, index, err)
		}
	}
	logger.Infow("replaying images",
		"directory", conf.Directory, "count", len(files), "resolution", d.res.String(), "preloaded", conf.Preload)
	return d, nil
}

// preload decodes files concurrently, keeping their order.
func preload(ctx context.Context, files []string) ([]image.Image, error) {
	images := make([]image.Image, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := rimage.ReadImageFromFile(path)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (string, bool) {
		if entry.IsDir() || utils.MimeTypeFromPath(entry.Name()) == "" {
			return "", false
		}
		return filepath.Join(dir, entry.Name()), true
	})
	sort.Strings(files)
	return files, nil
}

// SetResolution is accepted but has no effect; recorded images keep their size.
func (d *Device) SetResolution(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return camera.ErrDeviceClosed
	}
	if width != d.res.Width || height != d.res.Height {
		d.logger.Debugw("replay cannot change resolution",
			"requested", rimage.Resolution{Width: width, Height: height}.String(), "recorded", d.res.String())
	}
	return nil
}

// Resolution is the size of the first image.
func (d *Device) Resolution() rimage.Resolution {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.res
}

// Read decodes the next image. Without Loop, reading past the last image blocks until ctx is done.
func (d *Device) Read(ctx context.Context) (*rimage.RawFrame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, camera.ErrDeviceClosed
	}
	if d.next >= len(d.files) {
		if !d.conf.Loop {
			d.mu.Unlock()
			<-ctx.Done()
			return nil, ctx.Err()
		}
		d.next = 0
	}
	idx := d.next
	d.next++
	var wait time.Duration
	if d.conf.FrameRate > 0 && !d.lastFrame.IsZero() {
		wait = time.Duration(float64(time.Second)/d.conf.FrameRate) - d.clock.Since(d.lastFrame)
	}
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

	img, err := d.image(idx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.lastFrame = d.clock.Now()
	return rimage.NewRawFrameFromImage(img, d.format, d.seq)
}

func (d *Device) image(idx int) (image.Image, error) {
	if d.preloaded != nil {
		return d.preloaded[idx], nil
	}
	return rimage.ReadImageFromFile(d.files[idx])
}

// Close closes the device.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return camera.ErrDeviceClosed
	}
	d.closed = true
	return nil
}
