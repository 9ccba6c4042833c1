package main

import (
	"context"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/config"
	"go.viam.com/markercam/driver"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage/transform"
	"go.viam.com/markercam/vision/fiducial"
	"go.viam.com/markercam/vision/fiducial/aruco"
)

// session is a configured driver and what has to be closed after it.
type session struct {
	cfg     *config.Config
	logger  logging.Logger
	driver  *driver.CaptureDriver
	closers []func() error
}

func newSession(ctx context.Context, c *cli.Context) (*session, error) {
	bootLogger := logging.NewLogger("markercam")
	if c.Bool(flagDebug) {
		bootLogger.SetLevel(logging.DEBUG)
	}
	cfg, err := config.Read(ctx, c.String(flagConfig), bootLogger)
	if err != nil {
		return nil, err
	}
	logger, closeLog := cfg.Log.NewLogger("markercam", c.Bool(flagDebug))
	logging.ReplaceGlobal(logger)
	s := &session{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	d, err := s.newDriver()
	if err != nil {
		return nil, multierr.Combine(err, s.close())
	}
	s.driver = d
	return s, nil
}

func (s *session) newDriver() (*driver.CaptureDriver, error) {
	opener, err := camera.NewOpener(s.cfg.Driver.Model, s.cfg.Driver.Attributes, s.logger)
	if err != nil {
		return nil, err
	}
	var tracker fiducial.MarkerTracker
	if s.cfg.Driver.TrackOrientation {
		detector, err := aruco.NewDetector(s.cfg.Tracker.DictionaryName())
		if err != nil {
			return nil, err
		}
		planar, err := fiducial.NewPlanarTracker(s.cfg.Tracker, detector, s.logger.Sublogger("tracker"))
		if err != nil {
			return nil, multierr.Combine(err, detector.Close())
		}
		s.closers = append(s.closers, planar.Close)
		tracker = planar
	}
	return driver.NewCaptureDriver(&s.cfg.Driver, opener, tracker, transform.NewJSONCalibrationStore(), s.logger.Sublogger("driver"))
}

// close releases everything in reverse order of creation. The driver must be shut down first.
func (s *session) close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Combine(err, s.closers[i]())
	}
	return err
}
