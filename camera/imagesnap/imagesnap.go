// Package imagesnap implements a camera driver with the imagesnap command
// for macOS.
package imagesnap

import (
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strings"
	"time"

	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/camera/jpegdir"
)

const installHint = "install with: brew install imagesnap"

// Opts has options for the imagesnap driver.
type Opts struct {
	Verbose     bool
	Interval    time.Duration // Time between snapshots.
	ReadTimeout time.Duration
}

// Driver captures with imagesnap. Device index N is the N-th device listed
// by imagesnap -l.
type Driver struct {
	opts Opts
}

// Check that Driver implements the camera interfaces.
var (
	_ camera.Driver = (*Driver)(nil)
	_ camera.Lister = (*Driver)(nil)
)

// NewDriver returns an imagesnap driver.
func NewDriver(opts Opts) *Driver {
	if opts.Interval <= 0 {
		opts.Interval = time.Second / 30
	}
	return &Driver{opts}
}

// ListDevices returns all image capturing devices available to imagesnap.
// ListDevices returns an error if no devices are available.
func (d *Driver) ListDevices() ([]camera.DeviceInfo, error) {
	cmd := exec.Command("imagesnap", "-l")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: imagesnap executable not found, %s", camera.ErrUnavailable, installHint)
		}
		return nil, fmt.Errorf("listing devices with imagesnap -l: %w", err)
	}
	return parseDevices(string(buf))
}

func parseDevices(s string) ([]camera.DeviceInfo, error) {
	devs := []camera.DeviceInfo{}
	add := func(name string) {
		devs = append(devs, camera.DeviceInfo{Index: len(devs), Name: name, ID: name})
	}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "=> ") {
			// Newer format, example: "=> FaceTime HD Camera (Built-in)"
			add(line[len("=> "):])
		} else if strings.HasPrefix(line, "<") {
			// Older format, example: "<AVCaptureDALDevice: 0x7fa2c7852fd0 [FaceTime HD Camera (Built-in)][0x8020000005ac8514]>"
			t := strings.Split(line, "[")
			if len(t) < 2 {
				continue
			}
			add(strings.Split(t[1], "]")[0])
		}
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("no devices available")
	}
	return devs, nil
}

// Open starts imagesnap taking snapshots from device index. imagesnap has no
// way to request a resolution, size is ignored.
func (d *Driver) Open(index int, size image.Point) (camera.Device, error) {
	devs, err := d.ListDevices()
	if err != nil {
		if errors.Is(err, camera.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", camera.ErrDeviceOpen, err)
	}
	if index < 0 || index >= len(devs) {
		return nil, fmt.Errorf("%w: device %d not found", camera.ErrDeviceOpen, index)
	}

	args := func(dir string) []string {
		return []string{
			"-d", devs[index].ID,
			"-t", fmt.Sprintf("%.2f", d.opts.Interval.Seconds()),
		}
	}
	stream, err := jpegdir.Start("imagesnap", args, installHint, jpegdir.Opts{
		Verbose:     d.opts.Verbose,
		ReadTimeout: d.opts.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}
