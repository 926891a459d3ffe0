package ffmpeg

import (
	"image"
	"reflect"
	"testing"

	"github.com/photobook/dualcam/camera"
)

func TestParseDevices(t *testing.T) {
	const s = `bcm2835-codec-decode (platform:bcm2835-codec):
	/dev/video10
	/dev/video11

HD Pro Webcam C920 (usb-0000:00:14.0-1):
	/dev/video0
	/dev/video1
	/dev/media0

USB2.0 Camera (usb-0000:00:14.0-2):
	/dev/video2
`
	devs, err := parseDevices(s)
	if err != nil {
		t.Fatalf("parsing v4l2-ctl output: %v", err)
	}
	exp := []camera.DeviceInfo{
		{Index: 0, Name: "HD Pro Webcam C920 (usb-0000:00:14.0-1) (/dev/video0)", ID: "/dev/video0"},
		{Index: 1, Name: "HD Pro Webcam C920 (usb-0000:00:14.0-1) (/dev/video1)", ID: "/dev/video1"},
		{Index: 2, Name: "USB2.0 Camera (usb-0000:00:14.0-2) (/dev/video2)", ID: "/dev/video2"},
	}
	if !reflect.DeepEqual(devs, exp) {
		t.Fatalf("v4l2-ctl devices, got %v, expected %v", devs, exp)
	}

	if _, err := parseDevices("Dummy:\n\t/dev/media0\n"); err == nil {
		t.Fatalf("missing error for output without video devices")
	}
}

func TestOpenMissingDevice(t *testing.T) {
	d := NewDriver(Opts{})
	if _, err := d.Open(987, image.Pt(640, 480)); err == nil {
		t.Fatalf("missing error opening absent device")
	}
}
