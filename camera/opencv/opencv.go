//go:build gocv

// Package opencv implements a camera driver on OpenCV's VideoCapture. It
// needs OpenCV installed and is only built with the gocv build tag.
package opencv

import (
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/photobook/dualcam/camera"

	"gocv.io/x/gocv"
)

// Opts has options for the OpenCV driver.
type Opts struct {
	Verbose bool
	FPS     int // Requested frame rate, 0 leaves the device default.
}

// Driver opens cameras by OpenCV device index.
type Driver struct {
	opts Opts
}

// Check that Driver implements interface camera.Driver.
var _ camera.Driver = (*Driver)(nil)

// NewDriver returns an OpenCV driver.
func NewDriver(opts Opts) *Driver {
	return &Driver{opts}
}

// Device is an opened OpenCV capture.
type Device struct {
	index int
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	mutex sync.Mutex
	done  bool
}

// Open opens device index and requests size. OpenCV silently keeps another
// resolution when the camera does not support the requested one.
func (d *Driver) Open(index int, size image.Point) (camera.Device, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", camera.ErrDeviceOpen, index, err)
	}
	if size.X > 0 && size.Y > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(size.X))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(size.Y))
	}
	if d.opts.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(d.opts.FPS))
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d not opened", camera.ErrDeviceOpen, index)
	}
	if d.opts.Verbose {
		log.Printf("opencv device %d: %vx%v", index, vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))
	}
	return &Device{index: index, vc: vc, mat: gocv.NewMat()}, nil
}

// Read grabs and decodes the next frame. The BGR matrix is converted to an
// RGBA image.
func (dev *Device) Read() (image.Image, error) {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	if dev.done || !dev.vc.IsOpened() {
		return nil, fmt.Errorf("device %d closed", dev.index)
	}
	if !dev.vc.Read(&dev.mat) || dev.mat.Empty() {
		return nil, fmt.Errorf("%w: device %d", camera.ErrNoFrame, dev.index)
	}
	img, err := dev.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame from device %d: %w", dev.index, err)
	}
	return img, nil
}

// Close releases the capture and its frame buffer.
func (dev *Device) Close() error {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	if dev.done {
		return nil
	}
	dev.done = true
	dev.mat.Close()
	return dev.vc.Close()
}
