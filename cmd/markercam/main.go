// Package main runs the marker tracking camera driver from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	// registers the device models
	_ "go.viam.com/markercam/components/camera/fake"
	_ "go.viam.com/markercam/components/camera/opencv"
	_ "go.viam.com/markercam/components/camera/replay"
)

const (
	// Flags.
	flagConfig         = "config"
	flagDebug          = "debug"
	flagDuration       = "duration"
	flagPollInterval   = "poll-interval"
	flagReportInterval = "report-interval"
	flagOutput         = "output"
	flagTimeout        = "timeout"
	flagMaxWidth       = "max-width"
	flagFormat         = "format"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:     flagConfig,
		Aliases:  []string{"c"},
		Usage:    "load configuration from `FILE`",
		Required: true,
	}
	return &cli.App{
		Name:  "markercam",
		Usage: "capture camera frames and track fiducial markers",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the capture driver and poll it like a render loop",
				Flags: []cli.Flag{
					configFlag,
					&cli.DurationFlag{
						Name:  flagDuration,
						Usage: "stop after this long, zero runs until interrupted",
					},
					&cli.DurationFlag{
						Name:  flagPollInterval,
						Usage: "how often the consumer polls for frames",
						Value: defaultPollInterval,
					},
					&cli.DurationFlag{
						Name:  flagReportInterval,
						Usage: "how often progress is logged",
						Value: defaultReportInterval,
					},
				},
				Action: runAction,
			},
			{
				Name:      "snapshot",
				Usage:     "capture one frame and write it to a file",
				UsageText: "markercam snapshot --config FILE --output frame.png",
				Flags: []cli.Flag{
					configFlag,
					&cli.PathFlag{
						Name:     flagOutput,
						Aliases:  []string{"o"},
						Usage:    "write the frame to `FILE`, the extension picks png, jpeg, qoi, ppm or bmp",
						Required: true,
					},
					&cli.IntFlag{
						Name:  flagMaxWidth,
						Usage: "downscale wider frames to this width, keeping the aspect ratio",
					},
					&cli.DurationFlag{
						Name:  flagTimeout,
						Usage: "give up when no frame arrives within this long",
						Value: defaultSnapshotTimeout,
					},
				},
				Action: snapshotAction,
			},
			{
				Name:  "models",
				Usage: "list the camera device models and marker dictionaries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagFormat,
						Usage: "print as json or table",
						Value: "json",
					},
				},
				Action: modelsAction,
			},
		},
	}
}

func printJSON(c *cli.Context, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}
