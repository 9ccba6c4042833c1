//go:build no_cgo

// Package opencv implements a camera device on an OpenCV VideoCapture. Without cgo the model is
// not registered.
package opencv
