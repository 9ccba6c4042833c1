package fiducial

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Pose reference frames a tracker can report.
const (
	// ReportCamera reports the camera pose in the board frame.
	ReportCamera = "camera"
	// ReportBoard reports the board pose in the camera frame.
	ReportBoard = "board"
)

// DefaultDictionary is the marker dictionary used when none is configured.
const DefaultDictionary = "4x4_50"

// BoardMarker places a marker center on the board plane, in millimeters.
type BoardMarker struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Config describes the tracked markers.
type Config struct {
	Dictionary   string        `json:"dictionary,omitempty"`
	MarkerSizeMM float64       `json:"marker_size_mm"`
	Board        []BoardMarker `json:"board,omitempty"`
	// Smoothing is the weight kept from the previous pose, in [0, 1). Zero disables smoothing.
	Smoothing float64 `json:"smoothing,omitempty"`
	// MaxJumpMM resets smoothing when the position moves further than this between frames.
	MaxJumpMM float64 `json:"max_jump_mm,omitempty"`
	Report    string  `json:"report,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) ([]string, error) {
	if conf.MarkerSizeMM <= 0 {
		return nil, goutils.NewConfigValidationFieldRequiredError(path, "marker_size_mm")
	}
	if conf.Smoothing < 0 || conf.Smoothing >= 1 {
		return nil, errors.Errorf("%s: smoothing must be in [0, 1), got %v", path, conf.Smoothing)
	}
	if conf.MaxJumpMM < 0 {
		return nil, errors.Errorf("%s: max_jump_mm cannot be negative, got %v", path, conf.MaxJumpMM)
	}
	switch conf.Report {
	case "", ReportCamera, ReportBoard:
	default:
		return nil, errors.Errorf("%s: unknown report frame %q", path, conf.Report)
	}
	seen := map[int]bool{}
	for _, m := range conf.Board {
		if seen[m.ID] {
			return nil, errors.Errorf("%s: marker %d placed twice on the board", path, m.ID)
		}
		seen[m.ID] = true
	}
	return nil, nil
}

// DictionaryName returns the configured dictionary or the default.
func (conf *Config) DictionaryName() string {
	if conf.Dictionary == "" {
		return DefaultDictionary
	}
	return conf.Dictionary
}

// NewBoard builds the board layout of the config. Without a layout, marker 0 sits at the origin.
func (conf *Config) NewBoard() *Board {
	board := NewBoard(conf.MarkerSizeMM)
	if len(conf.Board) == 0 {
		board.Place(0, 0, 0)
	}
	for _, m := range conf.Board {
		board.Place(m.ID, m.X, m.Y)
	}
	return board
}
