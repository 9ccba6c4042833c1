package driver

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/utils"
)

// DefaultResolution is requested from the device when the config names none.
var DefaultResolution = rimage.Resolution{Width: 1280, Height: 720}

// Config describes the camera a capture driver opens.
type Config struct {
	CameraIndex int                `json:"camera_index"`
	Model       string             `json:"model"`
	Attributes  utils.AttributeMap `json:"attributes,omitempty"`

	// Width and Height are requested from the device, which may grant another size.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	CalibrationFile         string `json:"calibration_file,omitempty"`
	FallbackCalibrationFile string `json:"fallback_calibration_file,omitempty"`

	TrackOrientation bool `json:"track_orientation,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) ([]string, error) {
	if conf.Model == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError(path, "model")
	}
	if conf.CameraIndex < 0 {
		return nil, errors.Errorf("%s: camera_index cannot be negative, got %d", path, conf.CameraIndex)
	}
	if conf.Width < 0 || conf.Height < 0 {
		return nil, errors.Errorf("%s: cannot request a negative resolution %dx%d", path, conf.Width, conf.Height)
	}
	if (conf.Width == 0) != (conf.Height == 0) {
		return nil, errors.Errorf("%s: width and height must be set together", path)
	}
	return nil, nil
}

// Resolution is the resolution requested from the device.
func (conf *Config) Resolution() rimage.Resolution {
	if conf.Width == 0 {
		return DefaultResolution
	}
	return rimage.Resolution{Width: conf.Width, Height: conf.Height}
}
