//go:build linux

// Package v4l implements a camera driver talking to video4linux devices
// directly, without an external program.
package v4l

import (
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/photobook/dualcam/camera"

	"github.com/blackjack/webcam"
)

// Opts has options for the v4l driver.
type Opts struct {
	Verbose     bool
	ReadTimeout time.Duration // Rounded up to whole seconds, the v4l2 poll granularity.
	Buffers     uint32        // Number of mmap buffers, 0 for the device default.
}

// Driver opens /dev/video<index>.
type Driver struct {
	opts Opts
}

// Check that Driver implements the camera interfaces.
var (
	_ camera.Driver = (*Driver)(nil)
	_ camera.Lister = (*Driver)(nil)
)

// NewDriver returns a v4l driver.
func NewDriver(opts Opts) *Driver {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	return &Driver{opts}
}

// Device is a streaming video4linux device.
type Device struct {
	cam     *webcam.Webcam
	path    string
	format  uint32
	width   int
	height  int
	timeout uint32
	mutex   sync.Mutex
	closed  bool
}

// Open opens device index, selects MJPEG (or YUYV when the device has no
// MJPEG) at a resolution close to size, and starts streaming.
func (d *Driver) Open(index int, size image.Point) (dev camera.Device, rerr error) {
	path := fmt.Sprintf("/dev/video%d", index)
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", camera.ErrDeviceOpen, path, err)
	}

	// Ensure cleanup in case of failure.
	defer func() {
		if rerr != nil {
			cam.Close()
		}
	}()

	supported := map[uint32]string{}
	for f, name := range cam.GetSupportedFormats() {
		supported[uint32(f)] = name
	}
	format, ok := chooseFormat(supported)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no mjpeg or yuyv format", camera.ErrDeviceOpen, path)
	}

	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(640, 480)
	}
	f, w, h, err := cam.SetImageFormat(webcam.PixelFormat(format), uint32(size.X), uint32(size.Y))
	if err != nil {
		return nil, fmt.Errorf("%w: setting image format on %s: %v", camera.ErrDeviceOpen, path, err)
	}
	if d.opts.Verbose && (int(w) != size.X || int(h) != size.Y) {
		log.Printf("%s: requested %dx%d, device delivers %dx%d", path, size.X, size.Y, w, h)
	}
	if d.opts.Buffers > 0 {
		if err := cam.SetBufferCount(d.opts.Buffers); err != nil && d.opts.Verbose {
			log.Printf("%s: setting buffer count: %v", path, err)
		}
	}
	if err := cam.StartStreaming(); err != nil {
		return nil, fmt.Errorf("%w: starting stream on %s: %v", camera.ErrDeviceOpen, path, err)
	}

	return &Device{
		cam:     cam,
		path:    path,
		format:  uint32(f),
		width:   int(w),
		height:  int(h),
		timeout: uint32(math.Ceil(d.opts.ReadTimeout.Seconds())),
	}, nil
}

// Read waits for the next frame and decodes it.
func (dev *Device) Read() (image.Image, error) {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	if dev.closed {
		return nil, fmt.Errorf("%s: device closed", dev.path)
	}

	err := dev.cam.WaitForFrame(dev.timeout)
	var timeout *webcam.Timeout
	if errors.As(err, &timeout) {
		return nil, fmt.Errorf("%w: %s timed out", camera.ErrNoFrame, dev.path)
	} else if err != nil {
		return nil, fmt.Errorf("waiting for frame on %s: %w", dev.path, err)
	}

	frame, index, err := dev.cam.GetFrame()
	if err != nil {
		return nil, fmt.Errorf("reading frame from %s: %w", dev.path, err)
	}
	defer dev.cam.ReleaseFrame(index)
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame from %s", camera.ErrNoFrame, dev.path)
	}
	return decodeFrame(dev.format, dev.width, dev.height, frame)
}

// Close stops streaming and closes the device.
func (dev *Device) Close() error {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	if dev.closed {
		return nil
	}
	dev.closed = true
	return dev.cam.Close()
}

// ListDevices returns the video4linux capture devices under /dev.
func (d *Driver) ListDevices() ([]camera.DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	devs := []camera.DeviceInfo{}
	for _, p := range paths {
		index, err := strconv.Atoi(strings.TrimPrefix(p, "/dev/video"))
		if err != nil {
			continue
		}
		cam, err := webcam.Open(p)
		if err != nil {
			// Not a capture device, e.g. a metadata node.
			continue
		}
		name, err := cam.GetName()
		if err != nil {
			name = p
		}
		var caps []camera.DeviceCap
		for f, fname := range cam.GetSupportedFormats() {
			for _, fs := range cam.GetSupportedFrameSizes(f) {
				caps = append(caps, camera.DeviceCap{Type: fname, Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)})
			}
		}
		cam.Close()
		devs = append(devs, camera.DeviceInfo{Index: index, Name: name, ID: p, Caps: caps})
	}
	sort.Slice(devs, func(i, j int) bool {
		return devs[i].Index < devs[j].Index
	})
	if len(devs) == 0 {
		return nil, fmt.Errorf("no devices available")
	}
	return devs, nil
}
