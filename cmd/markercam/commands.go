package main

import (
	"context"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/driver"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/spatialmath"
	"go.viam.com/markercam/vision/fiducial/aruco"
)

const (
	defaultPollInterval    = time.Second / 60
	defaultReportInterval  = 5 * time.Second
	defaultSnapshotTimeout = 10 * time.Second
)

type runSummary struct {
	Polls         uint64            `json:"polls"`
	NewFrames     uint64            `json:"new_frames"`
	NewPoses      uint64            `json:"new_poses"`
	Resolution    rimage.Resolution `json:"resolution"`
	FrameInterval *intervalSummary  `json:"frame_interval,omitempty"`
	Stats         driver.Stats      `json:"stats"`
}

// intervalSummary describes the time between new frames as seen by the consumer.
type intervalSummary struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"mean_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// summarizeIntervals returns nil when there are no samples.
func summarizeIntervals(intervalsMs []float64) (*intervalSummary, error) {
	if len(intervalsMs) == 0 {
		return nil, nil
	}
	data := stats.Float64Data(intervalsMs)
	mean, err := data.Mean()
	if err != nil {
		return nil, err
	}
	p50, err := data.Percentile(50)
	if err != nil {
		return nil, err
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return nil, err
	}
	maxMs, err := data.Max()
	if err != nil {
		return nil, err
	}
	return &intervalSummary{Samples: len(intervalsMs), MeanMs: mean, P50Ms: p50, P95Ms: p95, MaxMs: maxMs}, nil
}

func runAction(c *cli.Context) (err error) {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration(flagDuration); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	s, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.close())
	}()
	if err := s.driver.Initialize(ctx); err != nil {
		return err
	}

	summary, runErr := poll(ctx, s, c.Duration(flagPollInterval), c.Duration(flagReportInterval))
	// the run context may be done already
	if err := s.driver.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return multierr.Combine(runErr, err)
	}
	summary.Stats = s.driver.Stats()
	if runErr != nil {
		return runErr
	}
	return printJSON(c, summary)
}

// poll reads the driver the way a render loop would until ctx is done.
func poll(ctx context.Context, s *session, interval, reportEvery time.Duration) (*runSummary, error) {
	d := s.driver
	summary := &runSummary{}
	lastReport := time.Now()
	var lastFrame time.Time
	var intervalsMs []float64
	var pose spatialmath.Pose
	for goutils.SelectContextOrWait(ctx, interval) {
		summary.Polls++
		if d.WorkerState() == driver.WorkerFailedToOpen {
			return summary, errors.Errorf("capture failed: %s", d.DiagnosticText())
		}
		if d.IsNewFrameAvailable() {
			frame := d.GetFrame()
			summary.Resolution = frame.Resolution()
			summary.NewFrames++
			if !lastFrame.IsZero() {
				intervalsMs = append(intervalsMs, float64(frame.CapturedAt.Sub(lastFrame))/float64(time.Millisecond))
			}
			lastFrame = frame.CapturedAt
		}
		if d.IsNewOrientationAvailable() {
			pose = d.GetOrientation()
			summary.NewPoses++
		}
		if time.Since(lastReport) >= reportEvery {
			lastReport = time.Now()
			snapshot := d.Stats()
			fields := []interface{}{
				"status", d.DiagnosticText(),
				"frames", summary.NewFrames,
				"dropped", snapshot.Frames.Overwritten,
				"skipped", snapshot.FramesSkipped,
				"poses", summary.NewPoses,
			}
			if pose != nil {
				fields = append(fields, "pose", pose)
			}
			s.logger.CInfow(ctx, "capture progress", fields...)
		}
	}
	intervals, err := summarizeIntervals(intervalsMs)
	if err != nil {
		return summary, err
	}
	summary.FrameInterval = intervals
	return summary, nil
}

func snapshotAction(c *cli.Context) (err error) {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration(flagTimeout))
	defer cancel()

	s, err := newSession(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.close())
	}()
	if err := s.driver.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.driver.Shutdown(context.WithoutCancel(ctx)))
	}()

	for !s.driver.IsNewFrameAvailable() {
		if s.driver.WorkerState() == driver.WorkerFailedToOpen {
			return errors.Errorf("capture failed: %s", s.driver.DiagnosticText())
		}
		if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
			return errors.Wrap(ctx.Err(), "no frame captured")
		}
	}
	frame := s.driver.GetFrame()
	output := c.Path(flagOutput)
	if err := rimage.WriteImageToFile(output, fitWidth(frame.Image(), c.Int(flagMaxWidth))); err != nil {
		return err
	}
	fields := []interface{}{"path", output, "seq", frame.Seq, "resolution", frame.Resolution().String()}
	if s.driver.IsNewOrientationAvailable() {
		fields = append(fields, "pose", s.driver.GetOrientation())
	}
	s.logger.CInfow(ctx, "snapshot written", fields...)
	return nil
}

// fitWidth downscales img to maxWidth keeping its aspect ratio. Narrower images and a
// non-positive maxWidth leave img as is.
func fitWidth(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
}

func modelsAction(c *cli.Context) error {
	models := camera.RegisteredDeviceModels()
	dictionaries := aruco.Dictionaries()
	switch format := c.String(flagFormat); format {
	case "json":
		return printJSON(c, map[string][]string{
			"models":       models,
			"dictionaries": dictionaries,
		})
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(c.App.Writer)
		t.AppendHeader(table.Row{"kind", "name"})
		for _, model := range models {
			t.AppendRow(table.Row{"model", model})
		}
		for _, dict := range dictionaries {
			t.AppendRow(table.Row{"dictionary", dict})
		}
		t.Render()
		return nil
	default:
		return errors.Errorf("unknown format %q, expected json or table", format)
	}
}
