package camera_test

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/photobook/dualcam/camera"
)

// fakeDriver simulates a set of devices. Indices in open fail to open,
// indices in read fail to read, indices in empty return empty frames.
type fakeDriver struct {
	mutex       sync.Mutex
	count       int
	openErr     map[int]error
	readErr     map[int]bool
	empty       map[int]bool
	opened      map[int]int
	closed      map[int]int
	lastRequest image.Point
}

func newFakeDriver(count int) *fakeDriver {
	return &fakeDriver{
		count:   count,
		openErr: map[int]error{},
		readErr: map[int]bool{},
		empty:   map[int]bool{},
		opened:  map[int]int{},
		closed:  map[int]int{},
	}
}

func (d *fakeDriver) Open(index int, size image.Point) (camera.Device, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.lastRequest = size
	if err, ok := d.openErr[index]; ok {
		return nil, err
	}
	if index >= d.count {
		return nil, fmt.Errorf("no such device %d", index)
	}
	d.opened[index]++
	return &fakeDevice{driver: d, index: index}, nil
}

func (d *fakeDriver) live() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := 0
	for i, o := range d.opened {
		n += o - d.closed[i]
	}
	return n
}

type fakeDevice struct {
	driver *fakeDriver
	index  int
	closed bool
}

func (f *fakeDevice) Read() (image.Image, error) {
	f.driver.mutex.Lock()
	defer f.driver.mutex.Unlock()
	if f.closed {
		return nil, errors.New("device closed")
	}
	if f.driver.readErr[f.index] {
		return nil, errors.New("read failed")
	}
	if f.driver.empty[f.index] {
		return image.NewRGBA(image.Rect(0, 0, 0, 0)), nil
	}
	// Deliver a size other than the requested one, like real devices may.
	return image.NewRGBA(image.Rect(0, 0, 64+f.index, 48)), nil
}

func (f *fakeDevice) Close() error {
	f.driver.mutex.Lock()
	defer f.driver.mutex.Unlock()
	if !f.closed {
		f.closed = true
		f.driver.closed[f.index]++
	}
	return nil
}
