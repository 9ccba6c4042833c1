//go:build !no_cgo

package aruco

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/vision/fiducial"
)

func TestNewDetector(t *testing.T) {
	_, err := NewDetector("9x9_5")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "9x9_5")
	test.That(t, Dictionaries(), test.ShouldContain, fiducial.DefaultDictionary)

	d, err := NewDetector(fiducial.DefaultDictionary)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Close(), test.ShouldBeNil)
	test.That(t, d.Close(), test.ShouldBeNil)
}

func TestDetectBlankFrame(t *testing.T) {
	d, err := NewDetector("6x6_250")
	test.That(t, err, test.ShouldBeNil)
	defer d.Close()

	frame := &rimage.RawFrame{Width: 64, Height: 48, Stride: 64 * 4, Format: rimage.PixelFormatBGRA32}
	frame.Data = make([]byte, frame.Stride*frame.Height)
	for i := range frame.Data {
		frame.Data[i] = 0xff
	}
	markers, err := d.DetectCorners(context.Background(), frame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, markers, test.ShouldBeEmpty)

	padded := &rimage.RawFrame{Width: 10, Height: 10, Stride: 40, Format: rimage.PixelFormatRGB24, Data: make([]byte, 400)}
	markers, err = d.DetectCorners(context.Background(), padded)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, markers, test.ShouldBeEmpty)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.DetectCorners(ctx, frame)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}
