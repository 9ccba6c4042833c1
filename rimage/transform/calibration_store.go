package transform

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// CalibrationStore loads camera intrinsics from a path.
type CalibrationStore interface {
	Load(path string) (*CameraIntrinsics, error)
}

// CalibrationStoreFunc adapts a function to a CalibrationStore.
type CalibrationStoreFunc func(path string) (*CameraIntrinsics, error)

// Load calls f.
func (f CalibrationStoreFunc) Load(path string) (*CameraIntrinsics, error) {
	return f(path)
}

// calibrationFile is the on disk layout. A bare PinholeCameraIntrinsics object is accepted too.
type calibrationFile struct {
	Intrinsics *PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion *BrownConrady            `json:"distortion_parameters"`
}

// JSONCalibrationStore reads calibration files in JSON.
type JSONCalibrationStore struct{}

// NewJSONCalibrationStore returns a store reading JSON calibration files.
func NewJSONCalibrationStore() *JSONCalibrationStore {
	return &JSONCalibrationStore{}
}

// Load reads and validates the calibration file at path.
func (s *JSONCalibrationStore) Load(path string) (*CameraIntrinsics, error) {
	jsonFile, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	intrinsics, err := ReadCameraIntrinsics(jsonFile)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load calibration %q", path)
	}
	return intrinsics, nil
}

// ReadCameraIntrinsics parses a JSON calibration from r.
func ReadCameraIntrinsics(r io.Reader) (*CameraIntrinsics, error) {
	byteValue, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	var file calibrationFile
	if err := json.Unmarshal(byteValue, &file); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if file.Intrinsics == nil {
		file.Intrinsics = &PinholeCameraIntrinsics{}
		if err := json.Unmarshal(byteValue, file.Intrinsics); err != nil {
			return nil, errors.Wrap(err, "error parsing JSON string")
		}
	}
	if file.Distortion != nil {
		if err := file.Distortion.CheckValid(); err != nil {
			return nil, err
		}
	}
	return NewCameraIntrinsics(*file.Intrinsics, file.Distortion)
}
