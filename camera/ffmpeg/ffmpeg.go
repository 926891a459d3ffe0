// Package ffmpeg implements a camera driver that captures with ffmpeg from
// video4linux devices.
package ffmpeg

import (
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/camera/jpegdir"
)

const installHint = "install with: sudo apt install -y ffmpeg v4l-utils"

// Opts has options for the ffmpeg driver.
type Opts struct {
	Verbose     bool
	Interval    time.Duration // Time between frames, 1/fps.
	ReadTimeout time.Duration
}

// Driver opens /dev/video<index> with ffmpeg.
type Driver struct {
	opts Opts
}

// Check that Driver implements the camera interfaces.
var (
	_ camera.Driver = (*Driver)(nil)
	_ camera.Lister = (*Driver)(nil)
)

// NewDriver returns an ffmpeg driver.
func NewDriver(opts Opts) *Driver {
	if opts.Interval <= 0 {
		opts.Interval = time.Second / 30
	}
	return &Driver{opts}
}

// DevicePath returns the video4linux device node for index.
func DevicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// Open starts ffmpeg capturing from device index at the requested size.
func (d *Driver) Open(index int, size image.Point) (camera.Device, error) {
	path := DevicePath(index)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", camera.ErrDeviceOpen, err)
	}
	if fi.Mode()&os.ModeCharDevice == 0 {
		return nil, fmt.Errorf("%w: %s is not a character device", camera.ErrDeviceOpen, path)
	}

	args := func(dir string) []string {
		argv := []string{
			"-loglevel", "error",
			"-f", "v4l2",
			"-framerate", fmt.Sprintf("%d", int(time.Second/d.opts.Interval)),
		}
		if size.X > 0 && size.Y > 0 {
			argv = append(argv, "-video_size", fmt.Sprintf("%dx%d", size.X, size.Y))
		}
		return append(argv,
			"-i", path,
			"-f", "image2",
			"-qscale:v", "2",
			"test%d.jpg",
		)
	}
	stream, err := jpegdir.Start("ffmpeg", args, installHint, jpegdir.Opts{
		Verbose:     d.opts.Verbose,
		Interval:    d.opts.Interval,
		ReadTimeout: d.opts.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// ListDevices returns the video4linux devices reported by v4l2-ctl.
func (d *Driver) ListDevices() ([]camera.DeviceInfo, error) {
	cmd := exec.Command("v4l2-ctl", "--list-devices")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: v4l2-ctl executable not found, %s", camera.ErrUnavailable, installHint)
		}
		return nil, fmt.Errorf("listing devices using v4l2-ctl: %w", err)
	}
	return parseDevices(string(buf))
}

var videoRegexp = regexp.MustCompile(`^/dev/video([0-9]+)$`)

func parseDevices(s string) ([]camera.DeviceInfo, error) {
	var curDevice string
	devices := []camera.DeviceInfo{}
	for _, line := range strings.Split(s, "\n") {
		if !strings.HasPrefix(line, "\t") {
			curDevice = strings.TrimSuffix(strings.TrimSpace(line), ":")
			continue
		}
		if curDevice == "" || strings.HasPrefix(curDevice, "bcm2835-") {
			continue
		}

		line = strings.TrimSpace(line)
		m := videoRegexp.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		devices = append(devices, camera.DeviceInfo{
			Index: index,
			Name:  fmt.Sprintf("%s (%s)", curDevice, line),
			ID:    line,
		})
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no devices available")
	}
	return devices, nil
}
