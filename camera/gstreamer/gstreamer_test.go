package gstreamer

import (
	"image"
	"testing"
)

const monitorOutput = `Probing devices...


Device found:

	name  : HD Pro Webcam C920
	class : Video/Source
	caps  : video/x-raw, format=YUY2, width=1920, height=1080, pixel-aspect-ratio=1/1, framerate=5/1;
	        video/x-raw, format=YUY2, width=1280, height=720, pixel-aspect-ratio=1/1, framerate=10/1;
	        video/x-raw, format=YUY2, width=640, height=480, pixel-aspect-ratio=1/1, framerate=30/1;
	        image/jpeg, width=1920, height=1080, pixel-aspect-ratio=1/1, framerate=30/1;
	properties:
		udev-probed = true
		device.bus_path = pci-0000:00:14.0-usb-0:1:1.0
		api.v4l2.path = /dev/video0
		device.path = /dev/video0
	gst-launch-1.0 v4l2src ! ...


Device found:

	name  : Built-in Audio Analog Stereo
	class : Audio/Source
	caps  : audio/x-raw, format=(string){ S16LE, S16BE }, layout=(string)interleaved, rate=(int)[ 1, 2147483647 ], channels=(int)[ 1, 32 ];
	properties:
		device.path = hw:0
`

func TestParseDevices(t *testing.T) {
	devs, err := parseDevices([]byte(monitorOutput), image.Pt(1280, 720))
	if err != nil {
		t.Fatalf("parsing gst-device-monitor output: %v", err)
	}
	if len(devs) != 1 {
		t.Fatalf("expected 1 video device, got %v", devs)
	}
	d := devs[0]
	if d.Index != 0 || d.ID != "/dev/video0" || d.Name != "HD Pro Webcam C920" {
		t.Fatalf("unexpected device %+v", d)
	}
	if len(d.Caps) != 3 {
		t.Fatalf("expected 3 raw caps, got %v", d.Caps)
	}
	if c := d.Caps[0]; c.Width != 1280 || c.Height != 720 || c.Framerate != 10 {
		t.Fatalf("closest cap to 1280x720, got %+v", c)
	}

	devs, err = parseDevices([]byte(monitorOutput), image.Pt(640, 480))
	if err != nil {
		t.Fatalf("parsing gst-device-monitor output: %v", err)
	}
	if c := devs[0].Caps[0]; c.Width != 640 || c.Height != 480 {
		t.Fatalf("closest cap to 640x480, got %+v", c)
	}
}
