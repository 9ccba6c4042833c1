package rimage

import (
	"image"
	"image/color"
	"strings"

	"github.com/pkg/errors"
)

// PixelFormat is the byte layout of a raw device frame.
type PixelFormat int

// The pixel formats a device may deliver.
const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatBGR24
	PixelFormatRGB24
	PixelFormatBGRA32
	PixelFormatRGBA32
)

// BytesPerPixel returns how many bytes one pixel occupies, zero for an unknown format.
func (pf PixelFormat) BytesPerPixel() int {
	switch pf {
	case PixelFormatBGR24, PixelFormatRGB24:
		return 3
	case PixelFormatBGRA32, PixelFormatRGBA32:
		return 4
	case PixelFormatUnknown:
		return 0
	default:
		return 0
	}
}

func (pf PixelFormat) String() string {
	switch pf {
	case PixelFormatBGR24:
		return "bgr24"
	case PixelFormatRGB24:
		return "rgb24"
	case PixelFormatBGRA32:
		return "bgra32"
	case PixelFormatRGBA32:
		return "rgba32"
	case PixelFormatUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// PixelFormatFromString parses a pixel format name such as "bgr24". The empty string is BGR24,
// the layout OpenCV devices deliver.
func PixelFormatFromString(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "", "bgr24", "bgr":
		return PixelFormatBGR24, nil
	case "rgb24", "rgb":
		return PixelFormatRGB24, nil
	case "bgra32", "bgra":
		return PixelFormatBGRA32, nil
	case "rgba32", "rgba":
		return PixelFormatRGBA32, nil
	default:
		return PixelFormatUnknown, errors.Errorf("unknown pixel format %q", s)
	}
}

// RawFrame is one frame as delivered by a device, before conversion to RGBA.
type RawFrame struct {
	Width  int
	Height int
	// Stride is the number of bytes per row, at least Width*Format.BytesPerPixel().
	Stride int
	Format PixelFormat
	Data   []byte
	Seq    uint64
}

// Resolution is the size of the frame.
func (rf *RawFrame) Resolution() Resolution {
	return Resolution{Width: rf.Width, Height: rf.Height}
}

// CheckValid returns an error if the frame's data cannot hold its declared size.
func (rf *RawFrame) CheckValid() error {
	bpp := rf.Format.BytesPerPixel()
	if bpp == 0 {
		return errors.Errorf("raw frame has unknown pixel format %d", rf.Format)
	}
	if rf.Width <= 0 || rf.Height <= 0 {
		return errors.Errorf("raw frame has invalid size %dx%d", rf.Width, rf.Height)
	}
	if rf.Stride < rf.Width*bpp {
		return errors.Errorf("raw frame stride %d too small for width %d", rf.Stride, rf.Width)
	}
	if need := rf.Stride*(rf.Height-1) + rf.Width*bpp; len(rf.Data) < need {
		return errors.Errorf("raw frame has %d bytes, need %d", len(rf.Data), need)
	}
	return nil
}

// At returns the color of the pixel at (x, y).
func (rf *RawFrame) At(x, y int) color.RGBA {
	bpp := rf.Format.BytesPerPixel()
	i := y*rf.Stride + x*bpp
	d := rf.Data[i : i+bpp]
	switch rf.Format {
	case PixelFormatBGR24:
		return color.RGBA{d[2], d[1], d[0], 0xff}
	case PixelFormatRGB24:
		return color.RGBA{d[0], d[1], d[2], 0xff}
	case PixelFormatBGRA32:
		return color.RGBA{d[2], d[1], d[0], d[3]}
	case PixelFormatRGBA32:
		return color.RGBA{d[0], d[1], d[2], d[3]}
	case PixelFormatUnknown:
		return color.RGBA{}
	default:
		return color.RGBA{}
	}
}

// NewRawFrameFromImage lays img out in the given pixel format. Alpha is dropped for the 24 bit formats.
func NewRawFrameFromImage(img image.Image, format PixelFormat, seq uint64) (*RawFrame, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, errors.Errorf("cannot lay out image as pixel format %d", format)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	rf := &RawFrame{
		Width:  w,
		Height: h,
		Stride: w * bpp,
		Format: format,
		Data:   make([]byte, w*h*bpp),
		Seq:    seq,
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
			d := rf.Data[y*rf.Stride+x*bpp:]
			switch format {
			case PixelFormatBGR24:
				d[0], d[1], d[2] = c.B, c.G, c.R
			case PixelFormatRGB24:
				d[0], d[1], d[2] = c.R, c.G, c.B
			case PixelFormatBGRA32:
				d[0], d[1], d[2], d[3] = c.B, c.G, c.R, c.A
			case PixelFormatRGBA32:
				d[0], d[1], d[2], d[3] = c.R, c.G, c.B, c.A
			case PixelFormatUnknown:
			}
		}
	}
	return rf, nil
}

// ConvertToRGBA writes src into dst pixel by pixel, reordering channels only. The 24 bit
// formats produce opaque pixels. The sizes of src and dst must match.
func ConvertToRGBA(dst *FrameBuffer, src *RawFrame) error {
	if src.Resolution() != dst.Resolution() {
		return errors.Errorf("raw frame is %s but frame buffer is %s", src.Resolution(), dst.Resolution())
	}
	if err := src.CheckValid(); err != nil {
		return err
	}
	bpp := src.Format.BytesPerPixel()
	for y := 0; y < src.Height; y++ {
		row := src.Data[y*src.Stride : y*src.Stride+src.Width*bpp]
		out := dst.Pix[y*dst.Stride() : (y+1)*dst.Stride()]
		for x := 0; x < src.Width; x++ {
			s := row[x*bpp : x*bpp+bpp]
			o := out[x*4 : x*4+4]
			switch src.Format {
			case PixelFormatBGR24:
				o[0], o[1], o[2], o[3] = s[2], s[1], s[0], 0xff
			case PixelFormatRGB24:
				o[0], o[1], o[2], o[3] = s[0], s[1], s[2], 0xff
			case PixelFormatBGRA32:
				o[0], o[1], o[2], o[3] = s[2], s[1], s[0], s[3]
			case PixelFormatRGBA32:
				copy(o, s)
			case PixelFormatUnknown:
			}
		}
	}
	dst.Seq = src.Seq
	return nil
}
