//go:build !no_cgo

// Package aruco finds ArUco and AprilTag markers using OpenCV.
package aruco

import (
	"context"
	"sort"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gocv.io/x/gocv"

	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/vision/fiducial"
)

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":         gocv.ArucoDict4x4_50,
	"4x4_100":        gocv.ArucoDict4x4_100,
	"4x4_250":        gocv.ArucoDict4x4_250,
	"4x4_1000":       gocv.ArucoDict4x4_1000,
	"5x5_50":         gocv.ArucoDict5x5_50,
	"5x5_100":        gocv.ArucoDict5x5_100,
	"5x5_250":        gocv.ArucoDict5x5_250,
	"5x5_1000":       gocv.ArucoDict5x5_1000,
	"6x6_50":         gocv.ArucoDict6x6_50,
	"6x6_100":        gocv.ArucoDict6x6_100,
	"6x6_250":        gocv.ArucoDict6x6_250,
	"6x6_1000":       gocv.ArucoDict6x6_1000,
	"7x7_50":         gocv.ArucoDict7x7_50,
	"7x7_100":        gocv.ArucoDict7x7_100,
	"7x7_250":        gocv.ArucoDict7x7_250,
	"7x7_1000":       gocv.ArucoDict7x7_1000,
	"original":       gocv.ArucoDictArucoOriginal,
	"apriltag_16h5":  gocv.ArucoDictAprilTag_16h5,
	"apriltag_25h9":  gocv.ArucoDictAprilTag_25h9,
	"apriltag_36h10": gocv.ArucoDictAprilTag_36h10,
	"apriltag_36h11": gocv.ArucoDictAprilTag_36h11,
}

// Dictionaries lists the supported dictionary names.
func Dictionaries() []string {
	names := lo.Keys(dictionaries)
	sort.Strings(names)
	return names
}

// Detector finds markers of one dictionary.
type Detector struct {
	mu       sync.Mutex
	detector gocv.ArucoDetector
	closed   bool
}

// NewDetector returns a detector for the named dictionary.
func NewDetector(dictionary string) (*Detector, error) {
	code, ok := dictionaries[dictionary]
	if !ok {
		return nil, errors.Errorf("unknown marker dictionary %q", dictionary)
	}
	dict := gocv.GetPredefinedDictionary(code)
	params := gocv.NewArucoDetectorParameters()
	return &Detector{detector: gocv.NewArucoDetectorWithParams(dict, params)}, nil
}

// DetectCorners runs marker detection on frame.
func (d *Detector) DetectCorners(ctx context.Context, frame *rimage.RawFrame) ([]fiducial.Marker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := toGray(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("marker detector closed")
	}
	corners, ids, _ := d.detector.DetectMarkers(img)
	markers := make([]fiducial.Marker, 0, len(ids))
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}
		m := fiducial.Marker{ID: id}
		for j, pt := range corners[i] {
			m.Corners[j] = r2.Point{X: float64(pt.X), Y: float64(pt.Y)}
		}
		markers = append(markers, m)
	}
	return markers, nil
}

// Close releases the OpenCV detector.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.detector.Close()
	return nil
}

func toGray(frame *rimage.RawFrame) (gocv.Mat, error) {
	if err := frame.CheckValid(); err != nil {
		return gocv.Mat{}, err
	}
	var (
		matType gocv.MatType
		code    gocv.ColorConversionCode
	)
	switch frame.Format {
	case rimage.PixelFormatBGR24:
		matType, code = gocv.MatTypeCV8UC3, gocv.ColorBGRToGray
	case rimage.PixelFormatRGB24:
		matType, code = gocv.MatTypeCV8UC3, gocv.ColorRGBToGray
	case rimage.PixelFormatBGRA32:
		matType, code = gocv.MatTypeCV8UC4, gocv.ColorBGRAToGray
	case rimage.PixelFormatRGBA32:
		matType, code = gocv.MatTypeCV8UC4, gocv.ColorRGBAToGray
	default:
		return gocv.Mat{}, errors.Errorf("unsupported pixel format %s", frame.Format)
	}

	rowBytes := frame.Width * frame.Format.BytesPerPixel()
	data := frame.Data
	if frame.Stride != rowBytes {
		data = make([]byte, 0, rowBytes*frame.Height)
		for y := 0; y < frame.Height; y++ {
			data = append(data, frame.Data[y*frame.Stride:y*frame.Stride+rowBytes]...)
		}
	}
	color, err := gocv.NewMatFromBytes(frame.Height, frame.Width, matType, data)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "cannot wrap frame")
	}
	defer color.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(color, &gray, code)
	return gray, nil
}
