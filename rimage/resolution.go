// Package rimage holds the frame and image types shared by camera devices, trackers and the capture driver.
package rimage

import "fmt"

// Resolution is the pixel size of a camera stream.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AspectRatio is width over height, zero for an empty resolution.
func (r Resolution) AspectRatio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// Pixels is the number of pixels in a frame of this size.
func (r Resolution) Pixels() int {
	return r.Width * r.Height
}

// Empty reports whether either dimension is non-positive.
func (r Resolution) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}
