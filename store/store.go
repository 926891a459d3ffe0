// Package store writes captured frames as timestamped image files.
package store

import (
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/photobook/dualcam/camera"
)

var (
	// ErrDirectory is returned when the destination directory does not exist
	// and cannot be created. Nothing is written in that case.
	ErrDirectory = errors.New("save directory unavailable")

	// ErrWrite is returned when a frame could not be encoded or written.
	ErrWrite = errors.New("writing image failed")
)

const timeLayout = "20060102_150405"

// maxSuffix bounds the -N suffixes tried for names taken within one second.
const maxSuffix = 100

// WriterOpts are options for a Writer.
type WriterOpts struct {
	Verbose      bool
	Format       string // File extension selecting the encoder, default "jpg".
	JPEGQuality  int    // Default 95.
	SingleCamera bool   // Leave the camera number out of file names.
	Now          func() time.Time
}

// Writer saves frames to files named after the local time and the slot.
type Writer struct {
	opts   WriterOpts
	format imaging.Format
}

// NewWriter returns a writer, or an error when the format is not supported.
func NewWriter(opts *WriterOpts) (*Writer, error) {
	var xopts WriterOpts
	if opts != nil {
		xopts = *opts
	}
	xopts.Format = strings.ToLower(strings.TrimPrefix(xopts.Format, "."))
	if xopts.Format == "" {
		xopts.Format = "jpg"
	}
	if xopts.JPEGQuality <= 0 {
		xopts.JPEGQuality = 95
	}
	if xopts.Now == nil {
		xopts.Now = time.Now
	}
	format, err := imaging.FormatFromExtension(xopts.Format)
	if err != nil {
		return nil, fmt.Errorf("image format %q: %w", xopts.Format, err)
	}
	return &Writer{opts: xopts, format: format}, nil
}

// Filename returns the file name for a frame of slot taken at t.
func (w *Writer) Filename(t time.Time, slot camera.Slot) string {
	stamp := t.Local().Format(timeLayout)
	if w.opts.SingleCamera {
		return stamp + "." + w.opts.Format
	}
	return fmt.Sprintf("%s_camera%d.%s", stamp, int(slot), w.opts.Format)
}

// SaveCaptured writes the non-nil frames to dir, creating dir when needed,
// and returns the paths written, slot 1 first. A failure writing one frame
// does not prevent writing the other; the returned error then wraps ErrWrite
// and the paths of the frames that were written are still returned. When dir
// cannot be created the error wraps ErrDirectory and nothing is written.
func (w *Writer) SaveCaptured(dir string, frame1, frame2 image.Image) ([]string, error) {
	logf := func(format string, v ...interface{}) {
		if w.opts.Verbose {
			log.Printf(format, v...)
		}
	}

	frames := []image.Image{frame1, frame2}
	empty := true
	for _, f := range frames {
		if f != nil {
			empty = false
		}
	}
	if empty {
		logf("nothing captured, not saving")
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	now := w.opts.Now()
	var paths []string
	var errs []error
	for i, f := range frames {
		if f == nil {
			continue
		}
		slot := camera.Slots[i]
		p, err := w.write(dir, w.Filename(now, slot), f)
		if err != nil {
			log.Printf("saving %s: %v", slot, err)
			errs = append(errs, fmt.Errorf("saving %s: %w", slot, err))
			continue
		}
		logf("saved %s to %s", slot, p)
		paths = append(paths, p)
	}
	return paths, errors.Join(errs...)
}

// write encodes img into a new file in dir. A file that could not be
// written completely is removed.
func (w *Writer) write(dir, name string, img image.Image) (string, error) {
	f, path, err := create(dir, name)
	if err != nil {
		return "", err
	}
	if err := imaging.Encode(f, img, w.format, imaging.JPEGQuality(w.opts.JPEGQuality)); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: encoding %s: %v", ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: closing %s: %v", ErrWrite, path, err)
	}
	return path, nil
}

// create exclusively creates name in dir. Names already taken get a -N
// suffix before the extension.
func create(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; n <= maxSuffix; n++ {
		path := filepath.Join(dir, name)
		if n > 1 {
			path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrWrite, err)
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("%w: no free file name for %s", ErrWrite, name)
}
