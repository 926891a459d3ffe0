// Package camera implements opening webcams by index, probing which indices
// work, and binding devices to the two camera slots.
package camera

import (
	"errors"
	"image"
)

var (
	// ErrDeviceOpen is returned when a device index could not be opened.
	ErrDeviceOpen = errors.New("device could not be opened")

	// ErrUnavailable is returned when the backend itself cannot run, for
	// example because its executable is not installed. Unlike ErrDeviceOpen
	// it applies to every index.
	ErrUnavailable = errors.New("camera backend unavailable")

	// ErrNotConnected is returned when reading from a slot without a device.
	ErrNotConnected = errors.New("camera not connected")

	// ErrNoFrame is returned when a device did not deliver a frame.
	ErrNoFrame = errors.New("no frame from camera")
)

// DeviceCap describes a capability of a device.
type DeviceCap struct {
	Type      string // "video/x-raw", "image/jpeg", ...
	Width     int
	Height    int
	Framerate int
}

// DeviceInfo describes a camera as reported by a backend's device listing.
type DeviceInfo struct {
	Index int
	Name  string
	ID    string // Backend specific, e.g. /dev/video0.
	Caps  []DeviceCap
}

// Device is an opened camera.
type Device interface {
	// Read returns the next frame. It never waits longer than the backend's
	// own read timeout.
	Read() (image.Image, error)

	// Close releases the device. Close is idempotent.
	Close() error
}

// Driver opens camera devices by index.
type Driver interface {
	// Open opens device index and requests resolution size. The request is
	// a hint, the device may deliver frames of any size. A failed open
	// leaves nothing to clean up.
	Open(index int, size image.Point) (Device, error)
}

// Lister is implemented by drivers that can describe their devices without
// opening them.
type Lister interface {
	ListDevices() ([]DeviceInfo, error)
}
