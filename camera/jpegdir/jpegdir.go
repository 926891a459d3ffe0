// Package jpegdir runs a capture program that writes JPEG files into a
// temporary directory, and hands out the newest of those files as frames.
//
// It is the shared plumbing of the ffmpeg, gstreamer and imagesnap drivers.
package jpegdir

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/photobook/dualcam"
	"github.com/photobook/dualcam/camera"

	"github.com/fsnotify/fsnotify"
)

// DefaultReadTimeout is used when Opts.ReadTimeout is zero.
const DefaultReadTimeout = 2 * time.Second

// DefaultCloseTimeout is used when Opts.CloseTimeout is zero.
const DefaultCloseTimeout = 2 * time.Second

// Opts has options for a new Stream.
type Opts struct {
	Verbose     bool
	ReadTimeout time.Duration // How long Read waits for a frame.
	Interval    time.Duration // Minimum time between kept frames, files arriving faster are removed unread.

	// How long Close waits for the killed program to exit. The device is
	// only free again once it has.
	CloseTimeout time.Duration
}

type event struct {
	err error
	img image.Image
}

// Stream is a running capture program and the watcher on its output
// directory. Only the newest decoded frame is kept.
type Stream struct {
	opts    Opts
	program string
	frames  chan event
	exited  chan struct{}
	started bool
	tempDir string
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	once    sync.Once
}

// Check that Stream implements camera.Device.
var _ camera.Device = (*Stream)(nil)

// Start creates a temporary directory, starts watching it, and starts
// program with the arguments returned by args for that directory. A missing
// executable results in an error wrapping camera.ErrUnavailable and hint.
//
// Callers must call Close to clean up.
func Start(program string, args func(dir string) []string, hint string, opts Opts) (stream *Stream, rerr error) {
	s := &Stream{
		opts:    opts,
		program: program,
		frames:  make(chan event, 1),
		exited:  make(chan struct{}),
	}
	if s.opts.ReadTimeout <= 0 {
		s.opts.ReadTimeout = DefaultReadTimeout
	}
	if s.opts.CloseTimeout <= 0 {
		s.opts.CloseTimeout = DefaultCloseTimeout
	}

	// Ensure cleanup in case of failure.
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	tempDir, err := dualcam.TempDir()
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %w", err)
	}
	s.tempDir = tempDir
	s.logf("%s, writing images to tempdir %s", program, s.tempDir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %w", err)
	}
	s.watcher = watcher
	go s.watch()

	if err := watcher.Add(s.tempDir); err != nil {
		return nil, fmt.Errorf("registering file change watcher for temp dir: %w", err)
	}

	argv := args(s.tempDir)
	s.logf("starting %s with args %s", program, strings.Join(argv, " "))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	cmd := exec.CommandContext(ctx, program, argv...)
	cmd.Dir = s.tempDir
	if s.opts.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s executable not found, %s", camera.ErrUnavailable, program, hint)
		}
		return nil, fmt.Errorf("starting %s: %w", program, err)
	}
	s.started = true
	go func() {
		err := cmd.Wait()
		s.logf("%s exited: %v", program, err)
		close(s.exited)
	}()

	return s, nil
}

func (s *Stream) logf(format string, args ...interface{}) {
	if s.opts.Verbose {
		log.Printf(format, args...)
	}
}

// offer replaces any unread event with ev.
func (s *Stream) offer(ev event) {
	for {
		select {
		case s.frames <- ev:
			return
		default:
		}
		select {
		case <-s.frames:
			s.logf("dropping unread frame from %s", s.program)
		default:
		}
	}
}

func (s *Stream) watch() {
	var last time.Time
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !strings.HasSuffix(ev.Name, ".jpg") {
				continue
			}
			now := time.Now()
			if s.opts.Interval > 0 && now.Sub(last) < s.opts.Interval*9/10 {
				if err := os.Remove(ev.Name); err != nil && !os.IsNotExist(err) {
					s.logf("removing skipped image %q: %v", ev.Name, err)
				}
				continue
			}
			f, err := os.Open(ev.Name)
			if err != nil {
				if !os.IsNotExist(err) {
					s.logf("open written file %q: %v", ev.Name, err)
				}
				continue
			}
			img, err := jpeg.Decode(f)
			f.Close()
			if err != nil {
				// Probably partially written, a later write event follows.
				s.logf("decoding jpeg %q: %v (may be partially written)", ev.Name, err)
				continue
			}
			if err := os.Remove(ev.Name); err != nil {
				s.logf("removing image %s: %v", ev.Name, err)
			}
			last = now
			s.offer(event{img: img})

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.offer(event{err: fmt.Errorf("watching for changes: %w", err)})
		}
	}
}

// Read returns the newest frame not returned before, waiting at most the
// read timeout for one to arrive.
func (s *Stream) Read() (image.Image, error) {
	select {
	case ev := <-s.frames:
		return ev.img, ev.err
	default:
	}

	t := time.NewTimer(s.opts.ReadTimeout)
	defer t.Stop()
	select {
	case ev := <-s.frames:
		return ev.img, ev.err
	case <-s.exited:
		return nil, fmt.Errorf("%s exited", s.program)
	case <-t.C:
		return nil, fmt.Errorf("%w: no frame from %s within %v", camera.ErrNoFrame, s.program, s.opts.ReadTimeout)
	}
}

// Close stops the capture program, waits at most the close timeout for it to
// exit, stops watching and removes the temporary directory.
func (s *Stream) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.started {
			t := time.NewTimer(s.opts.CloseTimeout)
			select {
			case <-s.exited:
			case <-t.C:
				log.Printf("%s did not exit within %v", s.program, s.opts.CloseTimeout)
			}
			t.Stop()
		}
		if s.watcher != nil {
			s.watcher.Close()
		}
		if s.tempDir != "" {
			os.RemoveAll(s.tempDir)
		}
	})
	return nil
}
