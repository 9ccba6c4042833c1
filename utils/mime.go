package utils

import (
	"path/filepath"
	"strings"
)

const (
	// MimeTypeRawRGBA is for go's internal image.RGBA.
	MimeTypeRawRGBA = "image/raw-rgba"

	// MimeTypeJPEG is regular jpgs.
	MimeTypeJPEG = "image/jpeg"

	// MimeTypePNG is regular pngs.
	MimeTypePNG = "image/png"

	// MimeTypeQOI is for .qoi "Quite OK Image" for lossless, fast encoding/decoding.
	MimeTypeQOI = "image/qoi"

	// MimeTypePPM is for binary portable pixmaps.
	MimeTypePPM = "image/x-portable-pixmap"

	// MimeTypeBMP is for windows bitmaps.
	MimeTypeBMP = "image/bmp"
)

var extensionMimeTypes = map[string]string{
	".jpg":  MimeTypeJPEG,
	".jpeg": MimeTypeJPEG,
	".png":  MimeTypePNG,
	".qoi":  MimeTypeQOI,
	".ppm":  MimeTypePPM,
	".bmp":  MimeTypeBMP,
}

// MimeTypeFromPath returns the image MIME type implied by the file extension of path,
// or the empty string if the extension is not a known image type.
func MimeTypeFromPath(path string) string {
	return extensionMimeTypes[strings.ToLower(filepath.Ext(path))]
}
