package rimage

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/markercam/utils"
)

func testPattern() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 60), uint8(y * 30), 90, 255})
		}
	}
	return img
}

func sameImage(t *testing.T, a, b image.Image) {
	t.Helper()
	test.That(t, b.Bounds(), test.ShouldResemble, a.Bounds())
	for y := a.Bounds().Min.Y; y < a.Bounds().Max.Y; y++ {
		for x := a.Bounds().Min.X; x < a.Bounds().Max.X; x++ {
			ar, ag, ab, aa := a.At(x, y).RGBA()
			br, bg, bb, ba := b.At(x, y).RGBA()
			test.That(t, []uint32{br, bg, bb, ba}, test.ShouldResemble, []uint32{ar, ag, ab, aa})
		}
	}
}

func TestLosslessEncodings(t *testing.T) {
	img := testPattern()
	for _, mimeType := range []string{
		utils.MimeTypeRawRGBA,
		utils.MimeTypePNG,
		utils.MimeTypeQOI,
		utils.MimeTypePPM,
		utils.MimeTypeBMP,
	} {
		t.Run(mimeType, func(t *testing.T) {
			data, err := EncodeImage(context.Background(), img, mimeType)
			test.That(t, err, test.ShouldBeNil)
			decoded, err := DecodeImage(context.Background(), data, mimeType)
			test.That(t, err, test.ShouldBeNil)
			sameImage(t, img, decoded)
		})
	}
}

func TestJPEGEncoding(t *testing.T) {
	data, err := EncodeImage(context.Background(), testPattern(), utils.MimeTypeJPEG)
	test.That(t, err, test.ShouldBeNil)
	decoded, err := DecodeImage(context.Background(), data, utils.MimeTypeJPEG)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.Bounds(), test.ShouldResemble, image.Rect(0, 0, 4, 8))
}

func TestRawRGBAHeader(t *testing.T) {
	data, err := EncodeImage(context.Background(), testPattern(), utils.MimeTypeRawRGBA)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(data), test.ShouldEqual, RawRGBAHeaderLength+4*8*4)
	test.That(t, string(data[:4]), test.ShouldEqual, "RGBA")

	_, err = DecodeImage(context.Background(), data[:RawRGBAHeaderLength+3], utils.MimeTypeRawRGBA)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = DecodeImage(context.Background(), []byte("nope"), utils.MimeTypeRawRGBA)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUnknownMimeType(t *testing.T) {
	_, err := EncodeImage(context.Background(), testPattern(), "image/tiff")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = DecodeImage(context.Background(), nil, "image/tiff")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	img := testPattern()
	for _, name := range []string{"a.png", "b.qoi", "c.ppm", "d.bmp"} {
		path := filepath.Join(dir, name)
		test.That(t, WriteImageToFile(path, img), test.ShouldBeNil)
		read, err := ReadImageFromFile(path)
		test.That(t, err, test.ShouldBeNil)
		sameImage(t, img, read)
	}

	test.That(t, WriteImageToFile(filepath.Join(dir, "e.gif"), img), test.ShouldNotBeNil)
	_, err := ReadImageFromFile(filepath.Join(dir, "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}
