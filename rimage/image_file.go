package rimage

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	goutils "go.viam.com/utils"
	"golang.org/x/image/bmp"

	"go.viam.com/markercam/utils"
)

// RawRGBAHeaderLength is the length of the header of an encoded raw rgba image: the magic
// number followed by the big endian width and height.
const RawRGBAHeaderLength = 12

var rawRGBAMagic = []byte("RGBA")

// EncodeImage encodes img in the format named by mimeType.
func EncodeImage(ctx context.Context, img image.Image, mimeType string) ([]byte, error) {
	var buf bytes.Buffer
	switch mimeType {
	case utils.MimeTypeRawRGBA:
		rgba := toRGBA(img)
		header := make([]byte, RawRGBAHeaderLength)
		copy(header, rawRGBAMagic)
		binary.BigEndian.PutUint32(header[4:8], uint32(rgba.Bounds().Dx()))
		binary.BigEndian.PutUint32(header[8:12], uint32(rgba.Bounds().Dy()))
		buf.Write(header)
		buf.Write(rgba.Pix)
	case utils.MimeTypeJPEG:
		if err := jpeg.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	case utils.MimeTypePNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case utils.MimeTypeQOI:
		if err := qoi.Encode(&buf, img); err != nil {
			return nil, err
		}
	case utils.MimeTypePPM:
		if err := ppm.Encode(&buf, img); err != nil {
			return nil, err
		}
	case utils.MimeTypeBMP:
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("do not know how to encode %q", mimeType)
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes data in the format named by mimeType.
func DecodeImage(ctx context.Context, data []byte, mimeType string) (image.Image, error) {
	r := bytes.NewReader(data)
	switch mimeType {
	case utils.MimeTypeRawRGBA:
		if len(data) < RawRGBAHeaderLength || !bytes.Equal(data[:4], rawRGBAMagic) {
			return nil, errors.New("raw rgba data is missing its header")
		}
		w := int(binary.BigEndian.Uint32(data[4:8]))
		h := int(binary.BigEndian.Uint32(data[8:12]))
		if len(data)-RawRGBAHeaderLength != w*h*4 {
			return nil, errors.Errorf("raw rgba data for %dx%d has %d pixel bytes", w, h, len(data)-RawRGBAHeaderLength)
		}
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		copy(img.Pix, data[RawRGBAHeaderLength:])
		return img, nil
	case utils.MimeTypeJPEG:
		return jpeg.Decode(r)
	case utils.MimeTypePNG:
		return png.Decode(r)
	case utils.MimeTypeQOI:
		return qoi.Decode(r)
	case utils.MimeTypePPM:
		return ppm.Decode(r)
	case utils.MimeTypeBMP:
		return bmp.Decode(r)
	default:
		return nil, errors.Errorf("do not know how to decode %q", mimeType)
	}
}

// ReadImageFromFile decodes the image at path, choosing the format from its extension.
func ReadImageFromFile(path string) (image.Image, error) {
	mimeType := utils.MimeTypeFromPath(path)
	if mimeType == "" {
		return nil, errors.Errorf("unknown image type for %q", path)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(context.Background(), data, mimeType)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %q", path)
	}
	return img, nil
}

// WriteImageToFile encodes img to path, choosing the format from its extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	mimeType := utils.MimeTypeFromPath(path)
	if mimeType == "" {
		return errors.Errorf("unknown image type for %q", path)
	}
	data, err := EncodeImage(context.Background(), img, mimeType)
	if err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	_, err = f.Write(data)
	return err
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) && rgba.Stride == 4*rgba.Bounds().Dx() {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}
