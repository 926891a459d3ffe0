// Package app ties the camera slots, the preview loop and the image writer
// together behind the operations a user interface offers.
package app

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/photobook/dualcam"
	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/frame"
	"github.com/photobook/dualcam/poll"
	"github.com/photobook/dualcam/store"
)

// ErrNoFrames is returned by Capture when no slot delivered a frame.
var ErrNoFrames = errors.New("no frame captured from any camera")

// Opts are options for a Controller.
type Opts struct {
	Verbose     bool
	SaveDir     string
	DisplaySize int
	CaptureSize image.Point
	Interval    time.Duration // Preview polling interval.
	ProbeCount  int           // Device indices [0, ProbeCount) are probed.
	ProbePause  time.Duration
	StatusReset time.Duration // Success and error statuses return to normal after this.
	Writer      store.WriterOpts
}

// OptsFromConfig returns controller options for cfg.
func OptsFromConfig(cfg *dualcam.Config) *Opts {
	w, h := cfg.CaptureSize()
	return &Opts{
		Verbose:     cfg.Verbose,
		SaveDir:     cfg.SaveDir,
		DisplaySize: cfg.DisplaySize,
		CaptureSize: image.Pt(w, h),
		Interval:    cfg.FrameInterval(),
		ProbeCount:  cfg.ProbeCount,
		ProbePause:  cfg.ProbePause(),
		StatusReset: cfg.StatusReset(),
		Writer: store.WriterOpts{
			Verbose:      cfg.Verbose,
			Format:       cfg.ImageFormat,
			JPEGQuality:  cfg.JPEGQuality,
			SingleCamera: cfg.SingleCamera,
		},
	}
}

// Controller owns the camera slots, the preview loop and the writer.
// Preview updates are sent on Updates and capture status changes on
// Statuses; a user interface should consume both.
type Controller struct {
	driver camera.Driver
	opts   Opts
	source *camera.Source
	loop   *poll.Loop
	writer *store.Writer

	statuses chan StatusEvent

	mutex      sync.Mutex // Serializes Capture and guards fields below.
	saveDir    string
	captured   [2]image.Image
	resetTimer *time.Timer
}

// New returns a controller opening devices through driver. Callers must call
// Close to release the devices.
func New(driver camera.Driver, opts *Opts) (*Controller, error) {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	if xopts.ProbeCount <= 0 {
		xopts.ProbeCount = 10
	}
	if xopts.StatusReset <= 0 {
		xopts.StatusReset = 2 * time.Second
	}
	xopts.Writer.Verbose = xopts.Writer.Verbose || xopts.Verbose

	writer, err := store.NewWriter(&xopts.Writer)
	if err != nil {
		return nil, fmt.Errorf("new writer: %w", err)
	}
	source := camera.NewSource(driver, &camera.SourceOpts{Verbose: xopts.Verbose, Size: xopts.CaptureSize})
	loop := poll.New(source, &poll.Opts{
		Verbose:  xopts.Verbose,
		Size:     xopts.DisplaySize,
		Interval: xopts.Interval,
	})
	return &Controller{
		driver:   driver,
		opts:     xopts,
		source:   source,
		loop:     loop,
		writer:   writer,
		statuses: make(chan StatusEvent, 8),
		saveDir:  xopts.SaveDir,
	}, nil
}

// Devices probes device indices and returns the ones delivering frames.
func (c *Controller) Devices() ([]int, error) {
	return camera.Enumerate(c.driver, c.opts.ProbeCount, &camera.EnumerateOpts{
		Verbose: c.opts.Verbose,
		Pause:   c.opts.ProbePause,
		Size:    c.opts.CaptureSize,
	})
}

// DefaultBindings returns the initial device for each slot: the first device
// for slot 1, the second for slot 2. A device is never bound to both slots,
// so with a single device slot 2 stays unbound.
func DefaultBindings(devices []int) map[camera.Slot]int {
	m := map[camera.Slot]int{}
	if len(devices) >= 1 {
		m[camera.Slot1] = devices[0]
	}
	if len(devices) >= 2 {
		m[camera.Slot2] = devices[1]
	}
	return m
}

// Connect binds device index to slot, replacing the current device.
func (c *Controller) Connect(slot camera.Slot, index int) error {
	return c.source.Connect(slot, index)
}

// SlotStatus returns the binding of slot.
func (c *Controller) SlotStatus(slot camera.Slot) camera.SlotStatus {
	return c.source.Status(slot)
}

// Start starts the preview. See poll.Loop.Start.
func (c *Controller) Start() error {
	return c.loop.Start()
}

// Stop stops the preview. See poll.Loop.Stop.
func (c *Controller) Stop() error {
	return c.loop.Stop()
}

// Running reports whether the preview is running.
func (c *Controller) Running() bool {
	return c.loop.Running()
}

// Rate returns the achieved preview rate in iterations per second.
func (c *Controller) Rate() float64 {
	return c.loop.Rate()
}

// Updates returns the preview updates.
func (c *Controller) Updates() <-chan poll.Update {
	return c.loop.Updates()
}

// Statuses returns the capture status changes. When the consumer falls
// behind, the oldest pending change is dropped.
func (c *Controller) Statuses() <-chan StatusEvent {
	return c.statuses
}

// SetSaveDir sets the directory captures are written to.
func (c *Controller) SetSaveDir(dir string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.saveDir = dir
}

// SaveDir returns the directory captures are written to.
func (c *Controller) SaveDir() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.saveDir
}

// Capture takes the most recent frame of each connected slot, mirrors it
// and writes it to the save directory. While the preview runs, the frame
// last read by the preview is taken; otherwise the device is read directly.
// The two frames are not synchronized. Capture returns the paths written.
func (c *Controller) Capture() ([]string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.setStatus(StatusEvent{Status: StatusSaving})

	streaming := c.loop.Running()
	got := false
	for i, slot := range camera.Slots {
		c.captured[i] = nil
		if !c.source.Connected(slot) {
			continue
		}
		var img image.Image
		if streaming {
			img = c.source.Latest(slot)
		}
		if img == nil {
			var err error
			img, err = c.source.Read(slot)
			if err != nil {
				log.Printf("capturing: %v", err)
				continue
			}
		}
		c.captured[i] = frame.PrepareForSave(img)
		got = true
		if c.opts.Verbose {
			log.Printf("captured %s", slot)
		}
	}
	if !got {
		log.Printf("capturing: %v", ErrNoFrames)
		c.setStatus(StatusEvent{Status: StatusNormal})
		return nil, ErrNoFrames
	}

	paths, err := c.writer.SaveCaptured(c.saveDir, c.captured[0], c.captured[1])
	c.captured = [2]image.Image{}

	ev := StatusEvent{Status: StatusSuccess, Paths: paths, Err: err}
	if len(paths) == 0 {
		ev.Status = StatusError
	}
	c.setStatus(ev)
	c.scheduleReset()
	return paths, err
}

// setStatus sends ev without blocking, dropping the oldest pending event
// when the channel is full.
func (c *Controller) setStatus(ev StatusEvent) {
	for {
		select {
		case c.statuses <- ev:
			return
		default:
		}
		select {
		case <-c.statuses:
		default:
		}
	}
}

// scheduleReset must be called with c.mutex held.
func (c *Controller) scheduleReset() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(c.opts.StatusReset, func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		// A later capture replaced this timer.
		if c.resetTimer != t {
			return
		}
		c.resetTimer = nil
		c.setStatus(StatusEvent{Status: StatusNormal})
	})
	c.resetTimer = t
}

// Close stops the preview and releases both slots.
func (c *Controller) Close() error {
	err := c.loop.Stop()
	c.source.ReleaseAll()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	return err
}
