// Package config reads the markercam configuration file.
package config

import (
	"path/filepath"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/markercam/driver"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/vision/fiducial"
)

// Config is the whole markercam configuration.
type Config struct {
	Driver  driver.Config    `json:"driver"`
	Tracker *fiducial.Config `json:"tracker,omitempty"`
	Log     LogConfig        `json:"log,omitempty"`

	// ConfigFilePath is the file the config was read from, if any.
	ConfigFilePath string `json:"-"`
}

// Ensure validates the config and resolves file paths relative to the config file.
func (c *Config) Ensure(logger logging.Logger) error {
	if _, err := c.Driver.Validate("driver"); err != nil {
		return err
	}
	if c.Tracker != nil {
		if _, err := c.Tracker.Validate("tracker"); err != nil {
			return err
		}
	} else if c.Driver.TrackOrientation {
		return goutils.NewConfigValidationError("driver",
			errors.New("track_orientation needs a tracker section"))
	}
	if err := c.Log.Validate("log"); err != nil {
		return err
	}

	c.Driver.CalibrationFile = c.resolvePath(c.Driver.CalibrationFile)
	c.Driver.FallbackCalibrationFile = c.resolvePath(c.Driver.FallbackCalibrationFile)
	c.Log.File = c.resolvePath(c.Log.File)
	if c.Driver.CalibrationFile == "" && c.Driver.FallbackCalibrationFile == "" {
		logger.Warnw("no calibration files configured, intrinsics will be estimated")
	}
	return nil
}

func (c *Config) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || c.ConfigFilePath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(c.ConfigFilePath), path)
}
