// Package testpattern implements a synthetic camera driver producing colour
// bars. It needs no hardware and is used for demos and tests.
package testpattern

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/photobook/dualcam/camera"
)

// Opts has options for the test pattern driver.
type Opts struct {
	Count     int           // Number of devices, indices [0, Count) exist.
	Size      image.Point   // Native frame size. Zero honours the requested size.
	Delay     time.Duration // Simulated read latency.
	FailOpen  []int         // Indices that exist but cannot be opened.
	FailRead  []int         // Indices that open but never deliver a frame.
	Exclusive bool          // Refuse to open an index that is already open.
}

// Driver is a synthetic camera driver.
type Driver struct {
	opts    Opts
	mutex   sync.Mutex
	open    map[int]int
	failing map[int]bool
}

// Check that Driver implements the camera interfaces.
var (
	_ camera.Driver = (*Driver)(nil)
	_ camera.Lister = (*Driver)(nil)
)

// NewDriver returns a test pattern driver.
func NewDriver(opts Opts) *Driver {
	return &Driver{opts: opts, open: map[int]int{}, failing: map[int]bool{}}
}

var bars = []color.NRGBA{
	{0xc0, 0xc0, 0xc0, 0xff},
	{0xc0, 0xc0, 0x00, 0xff},
	{0x00, 0xc0, 0xc0, 0xff},
	{0x00, 0xc0, 0x00, 0xff},
	{0xc0, 0x00, 0xc0, 0xff},
	{0xc0, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xc0, 0xff},
}

func contains(l []int, v int) bool {
	for _, x := range l {
		if x == v {
			return true
		}
	}
	return false
}

// ListDevices returns the synthetic devices.
func (d *Driver) ListDevices() ([]camera.DeviceInfo, error) {
	devs := []camera.DeviceInfo{}
	for i := 0; i < d.opts.Count; i++ {
		devs = append(devs, camera.DeviceInfo{
			Index: i,
			Name:  fmt.Sprintf("Test pattern %d", i),
			ID:    fmt.Sprintf("testpattern:%d", i),
		})
	}
	return devs, nil
}

// Open opens synthetic device index.
func (d *Driver) Open(index int, size image.Point) (camera.Device, error) {
	if index < 0 || index >= d.opts.Count || contains(d.opts.FailOpen, index) {
		return nil, fmt.Errorf("%w: test pattern %d", camera.ErrDeviceOpen, index)
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.opts.Exclusive && d.open[index] > 0 {
		return nil, fmt.Errorf("%w: test pattern %d busy", camera.ErrDeviceOpen, index)
	}
	d.open[index]++

	if d.opts.Size.X > 0 && d.opts.Size.Y > 0 {
		size = d.opts.Size
	}
	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(640, 480)
	}
	return &Device{driver: d, index: index, size: size}, nil
}

// Handles returns the number of open handles on index.
func (d *Driver) Handles(index int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.open[index]
}

// SetFailing makes reads from index fail, or succeed again, from now on.
// Open devices are affected too.
func (d *Driver) SetFailing(index int, fail bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.failing[index] = fail
}

func (d *Driver) readFails(index int) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.failing[index] || contains(d.opts.FailRead, index)
}

// Device is an opened synthetic camera.
type Device struct {
	driver *Driver
	index  int
	size   image.Point
	frame  int
	mutex  sync.Mutex
	closed bool
}

// Read returns the next colour bar frame. A marker line moves down the
// image by one row per frame.
func (dev *Device) Read() (image.Image, error) {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	if dev.closed {
		return nil, fmt.Errorf("test pattern %d closed", dev.index)
	}
	if dev.driver.opts.Delay > 0 {
		time.Sleep(dev.driver.opts.Delay)
	}
	if dev.driver.readFails(dev.index) {
		return nil, fmt.Errorf("%w: test pattern %d", camera.ErrNoFrame, dev.index)
	}

	w, h := dev.size.X, dev.size.Y
	img := imaging.New(w, h, color.Black)
	n := len(bars)
	for i := 0; i < n; i++ {
		// Bar i covers the columns x with x*n/w == i.
		x0 := (i*w + n - 1) / n
		x1 := ((i+1)*w + n - 1) / n
		if x1 <= x0 {
			continue
		}
		img = imaging.Paste(img, imaging.New(x1-x0, h, bars[(i+dev.index)%n]), image.Pt(x0, 0))
	}
	marker := imaging.New(w, 1, color.NRGBA{0xff, 0xff, 0xff, 0xff})
	img = imaging.Paste(img, marker, image.Pt(0, dev.frame%h))
	dev.frame++
	return img, nil
}

// Close closes the device.
func (dev *Device) Close() error {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	if dev.closed {
		return nil
	}
	dev.closed = true
	dev.driver.mutex.Lock()
	dev.driver.open[dev.index]--
	dev.driver.mutex.Unlock()
	return nil
}
