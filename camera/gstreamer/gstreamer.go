// Package gstreamer implements a camera driver with the gstreamer tools.
package gstreamer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/camera/jpegdir"
)

const installHint = "install with: sudo apt install -y gstreamer1.0-tools gstreamer1.0-plugins-good gstreamer1.0-plugins-base gstreamer1.0-plugins-base-apps"

// Opts has options for the gstreamer driver.
type Opts struct {
	Verbose     bool
	Interval    time.Duration // Time between kept frames, 1/fps.
	ReadTimeout time.Duration
}

// Driver captures from /dev/video<index> with gst-launch-1.0.
type Driver struct {
	opts Opts
}

// Check that Driver implements the camera interfaces.
var (
	_ camera.Driver = (*Driver)(nil)
	_ camera.Lister = (*Driver)(nil)
)

// NewDriver returns a gstreamer driver.
func NewDriver(opts Opts) *Driver {
	return &Driver{opts}
}

type device struct {
	ID          string
	Name        string
	DeviceClass string
	RawCaps     []string
	Caps        []camera.DeviceCap
	inCapMode   bool
}

var widthRegexp = regexp.MustCompile("width=([0-9]+)[^0-9]")
var heightRegexp = regexp.MustCompile("height=([0-9]+)[^0-9]")
var framerateRegexp = regexp.MustCompile("framerate=([0-9]+)[^0-9]")
var videoRegexp = regexp.MustCompile(`^/dev/video([0-9]+)$`)

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

// ListDevices returns the video sources reported by gst-device-monitor-1.0,
// with their raw capabilities sorted by distance to 640x480.
func (d *Driver) ListDevices() ([]camera.DeviceInfo, error) {
	devs, err := listDevices(image.Pt(640, 480))
	if err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("no devices found")
	}
	return devs, nil
}

func listDevices(want image.Point) ([]camera.DeviceInfo, error) {
	cmd := exec.Command("gst-device-monitor-1.0")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: gst-device-monitor-1.0 executable not found, %s", camera.ErrUnavailable, installHint)
		}
		return nil, fmt.Errorf("listing devices using gst-device-monitor-1.0: %w", err)
	}
	return parseDevices(buf, want)
}

func parseDevices(buf []byte, want image.Point) ([]camera.DeviceInfo, error) {
	var r []device
	var d *device
	b := bufio.NewScanner(bytes.NewReader(buf))
	for b.Scan() {
		s := strings.TrimSpace(b.Text())
		if s == "" {
			continue
		}
		if s == "Device found:" {
			if d != nil {
				r = append(r, *d)
			}
			d = &device{RawCaps: []string{}, Caps: []camera.DeviceCap{}}
			continue
		}

		if d == nil {
			continue
		}

		if strings.HasPrefix(s, "name  :") {
			d.Name = strings.TrimSpace(strings.SplitN(s, ":", 2)[1])
			continue
		}
		if strings.HasPrefix(s, "class :") {
			d.DeviceClass = strings.TrimSpace(strings.SplitN(s, ":", 2)[1])
			continue
		}
		if strings.HasPrefix(s, "caps  :") {
			rawCap := strings.TrimSpace(strings.SplitN(s, ":", 2)[1])
			d.RawCaps = append(d.RawCaps, rawCap)
			d.inCapMode = true
			continue
		}
		if strings.HasPrefix(s, "properties:") {
			d.inCapMode = false
			continue
		}
		if d.inCapMode {
			d.RawCaps = append(d.RawCaps, s)
		}
		if strings.HasPrefix(s, "device.path =") {
			d.ID = strings.TrimSpace(strings.SplitN(s, "=", 2)[1])
		}
	}
	if err := b.Err(); err != nil {
		return nil, err
	}

	if d != nil && d.ID != "" {
		r = append(r, *d)
	}

	devs := []camera.DeviceInfo{}
	for _, d := range r {
		if d.DeviceClass != "Video/Source" {
			continue
		}
		m := videoRegexp.FindStringSubmatch(d.ID)
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		for _, rc := range d.RawCaps {
			if !strings.HasPrefix(rc, "video/x-raw") {
				continue
			}
			mw := widthRegexp.FindStringSubmatch(rc)
			mh := heightRegexp.FindStringSubmatch(rc)
			mf := framerateRegexp.FindStringSubmatch(rc)
			if mw == nil || mh == nil || mf == nil {
				continue
			}
			width, werr := strconv.ParseInt(mw[1], 10, 32)
			height, herr := strconv.ParseInt(mh[1], 10, 32)
			framerate, ferr := strconv.ParseInt(mf[1], 10, 32)
			if werr != nil || herr != nil || ferr != nil {
				continue
			}
			if width != 0 && height != 0 && framerate != 0 {
				d.Caps = append(d.Caps, camera.DeviceCap{
					Type:      "video/x-raw",
					Width:     int(width),
					Height:    int(height),
					Framerate: int(framerate),
				})
			}
		}
		if len(d.Caps) == 0 {
			continue
		}

		distance := func(a camera.DeviceCap) int {
			return abs(a.Width-want.X)*abs(a.Height-want.Y) + abs(a.Width-want.X) + abs(a.Height-want.Y)
		}

		sort.SliceStable(d.Caps, func(i, j int) bool {
			return distance(d.Caps[i]) < distance(d.Caps[j])
		})

		devs = append(devs, camera.DeviceInfo{
			Index: index,
			ID:    d.ID,
			Name:  d.Name,
			Caps:  d.Caps,
		})
	}
	return devs, nil
}

// Open starts gstreamer capturing from device index, in the raw format
// closest to size that the device advertises.
func (d *Driver) Open(index int, size image.Point) (camera.Device, error) {
	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(640, 480)
	}
	devices, err := listDevices(size)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	var dev camera.DeviceInfo
	for _, x := range devices {
		if x.Index == index {
			dev = x
			break
		}
	}
	if dev.ID == "" {
		return nil, fmt.Errorf("%w: device %d not found", camera.ErrDeviceOpen, index)
	}

	args := func(dir string) []string {
		return []string{
			"v4l2src",
			"device=" + dev.ID,
			"!",
			fmt.Sprintf("video/x-raw,width=%d,height=%d", dev.Caps[0].Width, dev.Caps[0].Height),
			"!",
			"videoconvert",
			"!",
			"jpegenc",
			"!",
			"multifilesink",
			"location=" + dir + "/test%05d.jpg",
		}
	}
	stream, err := jpegdir.Start("gst-launch-1.0", args, installHint, jpegdir.Opts{
		Verbose:     d.opts.Verbose,
		Interval:    d.opts.Interval,
		ReadTimeout: d.opts.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}
