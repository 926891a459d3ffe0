package v4l

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// V4L2 pixel format codes, see linux/videodev2.h.
const (
	pixFmtMJPEG uint32 = 0x47504A4D // MJPG
	pixFmtJPEG  uint32 = 0x4745504A // JPEG
	pixFmtYUYV  uint32 = 0x56595559 // YUYV
)

// preferredFormats is the order in which pixel formats are tried.
var preferredFormats = []uint32{pixFmtMJPEG, pixFmtJPEG, pixFmtYUYV}

// chooseFormat returns the first preferred format in supported.
func chooseFormat(supported map[uint32]string) (uint32, bool) {
	for _, f := range preferredFormats {
		if _, ok := supported[f]; ok {
			return f, true
		}
	}
	return 0, false
}

// decodeFrame turns a raw buffer in format into an image. The buffer is not
// retained.
func decodeFrame(format uint32, width, height int, frame []byte) (image.Image, error) {
	switch format {
	case pixFmtMJPEG, pixFmtJPEG:
		return jpeg.Decode(bytes.NewReader(frame))
	case pixFmtYUYV:
		return decodeYUYV(width, height, frame)
	}
	return nil, fmt.Errorf("unsupported pixel format %#x", format)
}

// decodeYUYV converts packed Y0 Cb Y1 Cr data into a 4:2:2 YCbCr image.
func decodeYUYV(width, height int, frame []byte) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("bad yuyv frame size %dx%d", width, height)
	}
	if need := width * height * 2; len(frame) < need {
		return nil, fmt.Errorf("short yuyv frame, %d bytes, expected %d", len(frame), need)
	}
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for i := range img.Cb {
		ii := i * 4
		img.Y[i*2] = frame[ii]
		img.Y[i*2+1] = frame[ii+2]
		img.Cb[i] = frame[ii+1]
		img.Cr[i] = frame[ii+3]
	}
	return img, nil
}
