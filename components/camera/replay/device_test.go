package replay

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/markercam/components/camera"
	"go.viam.com/markercam/logging"
	"go.viam.com/markercam/rimage"
	"go.viam.com/markercam/utils"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	for i, name := range names {
		img := image.NewRGBA(image.Rect(0, 0, 6, 4))
		img.Set(0, 0, color.RGBA{uint8(i + 1), 0, 0, 255})
		test.That(t, rimage.WriteImageToFile(filepath.Join(dir, name), img), test.ShouldBeNil)
	}
}

func firstRed(t *testing.T, frame *rimage.RawFrame) uint8 {
	t.Helper()
	return frame.At(0, 0).R
}

func TestReplayOrder(t *testing.T) {
	dir := t.TempDir()
	// written out of order, replayed lexically: b.png is i=0, a.qoi is i=1, c.ppm is i=2
	writeFrames(t, dir, "b.png", "a.qoi", "c.ppm")
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o600), test.ShouldBeNil)
	test.That(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o700), test.ShouldBeNil)

	ctx := context.Background()
	d, err := Open(ctx, 0, &Config{Directory: dir}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Resolution(), test.ShouldResemble, rimage.Resolution{Width: 6, Height: 4})
	test.That(t, d.SetResolution(1280, 720), test.ShouldBeNil)
	test.That(t, d.Resolution(), test.ShouldResemble, rimage.Resolution{Width: 6, Height: 4})

	var reds []uint8
	var seqs []uint64
	for i := 0; i < 3; i++ {
		frame, err := d.Read(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, frame.Format, test.ShouldEqual, rimage.PixelFormatBGR24)
		reds = append(reds, firstRed(t, frame))
		seqs = append(seqs, frame.Seq)
	}
	test.That(t, reds, test.ShouldResemble, []uint8{2, 1, 3})
	test.That(t, seqs, test.ShouldResemble, []uint64{1, 2, 3})

	// without looping the replay holds at the end
	endCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = d.Read(endCtx)
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)

	test.That(t, d.Close(ctx), test.ShouldBeNil)
	_, err = d.Read(ctx)
	test.That(t, err, test.ShouldBeError, camera.ErrDeviceClosed)
}

func TestReplayLoop(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "0.png", "1.png")

	ctx := context.Background()
	d, err := Open(ctx, 0, &Config{Directory: dir, Loop: true, PixelFormat: "rgba32"}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	var reds []uint8
	for i := 0; i < 5; i++ {
		frame, err := d.Read(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, frame.Seq, test.ShouldEqual, uint64(i+1))
		reds = append(reds, firstRed(t, frame))
	}
	test.That(t, reds, test.ShouldResemble, []uint8{1, 2, 1, 2, 1})
	test.That(t, d.Close(ctx), test.ShouldBeNil)
}

func TestReplayOpenErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	_, err := Open(ctx, 0, &Config{}, clock.NewMock(), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Open(ctx, 0, &Config{Directory: t.TempDir()}, clock.NewMock(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no image files")

	_, err = Open(ctx, 2, &Config{Directory: filepath.Join(t.TempDir(), "missing")}, clock.NewMock(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot open replay camera 2")
}

func TestReplayRegistration(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "0.png")
	opener, err := camera.NewOpener(ModelName, utils.AttributeMap{"directory": dir, "loop": true}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	d, err := opener.Open(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Close(context.Background()), test.ShouldBeNil)

	_, err = camera.NewOpener(ModelName, utils.AttributeMap{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReplayPreload(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "0.png", "1.png")

	ctx := context.Background()
	d, err := Open(ctx, 0, &Config{Directory: dir, Loop: true, Preload: true}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	// reads are served from memory once preloaded
	test.That(t, os.RemoveAll(dir), test.ShouldBeNil)

	var reds []uint8
	for i := 0; i < 3; i++ {
		frame, err := d.Read(ctx)
		test.That(t, err, test.ShouldBeNil)
		reds = append(reds, firstRed(t, frame))
	}
	test.That(t, reds, test.ShouldResemble, []uint8{1, 2, 1})
	test.That(t, d.Close(ctx), test.ShouldBeNil)
}

func TestReplayPreloadBadFile(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "0.png")
	test.That(t, os.WriteFile(filepath.Join(dir, "1.png"), []byte("not a png"), 0o600), test.ShouldBeNil)

	_, err := Open(context.Background(), 2, &Config{Directory: dir, Preload: true}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
