package rimage

import (
	"image"
	"time"
)

// FrameBuffer owns the RGBA pixels of one video frame. Its pixel slice is always exactly
// Width*Height*4 bytes for the resolution it was allocated with.
type FrameBuffer struct {
	Pix []uint8
	// Seq is the device sequence number of the frame held, zero for a placeholder.
	Seq        uint64
	CapturedAt time.Time
	res        Resolution
}

// NewFrameBuffer allocates a frame buffer for res filled with opaque black.
func NewFrameBuffer(res Resolution) *FrameBuffer {
	fb := &FrameBuffer{
		Pix: make([]uint8, res.Pixels()*4),
		res: res,
	}
	fb.Clear()
	return fb
}

// Resolution is the size the buffer was allocated for.
func (fb *FrameBuffer) Resolution() Resolution {
	return fb.res
}

// Stride is the number of bytes in one row.
func (fb *FrameBuffer) Stride() int {
	return fb.res.Width * 4
}

// Clear resets the buffer to an opaque black placeholder.
func (fb *FrameBuffer) Clear() {
	for i := 0; i < len(fb.Pix); i += 4 {
		fb.Pix[i] = 0
		fb.Pix[i+1] = 0
		fb.Pix[i+2] = 0
		fb.Pix[i+3] = 0xff
	}
	fb.Seq = 0
	fb.CapturedAt = time.Time{}
}

// Image returns an image.RGBA view sharing the buffer's pixels.
func (fb *FrameBuffer) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    fb.Pix,
		Stride: fb.Stride(),
		Rect:   image.Rect(0, 0, fb.res.Width, fb.res.Height),
	}
}
