// Package poll implements the background loop that reads frames from the
// camera slots and turns them into preview updates.
package poll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/frame"
)

var (
	// ErrNoCamera is returned by Start when no slot has a camera.
	ErrNoCamera = errors.New("connect at least one camera")

	// ErrBusy is returned by Start when the poller of a previous run has not
	// exited yet.
	ErrBusy = errors.New("previous poller still running")

	// ErrStopTimeout is returned by Stop when the poller did not exit within
	// the join timeout. The poller exits on its own later.
	ErrStopTimeout = errors.New("poller did not stop in time")
)

// State is what a slot's preview shows.
type State int

const (
	Live          State = iota // Image holds the newest preview.
	NotResponding              // The camera returned no frame this tick.
	Stopped                    // Polling stopped.
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case NotResponding:
		return "not responding"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Update is a preview change for one slot. Image is only set for Live and is
// not modified after it is sent.
type Update struct {
	Slot  camera.Slot
	State State
	Image *image.NRGBA
}

// FrameSource is read by the loop. camera.Source implements it.
type FrameSource interface {
	Connected(slot camera.Slot) bool
	Read(slot camera.Slot) (image.Image, error)
}

// Opts are options for a Loop.
type Opts struct {
	Verbose     bool
	Size        int           // Side of the square preview images.
	Interval    time.Duration // Sleep between two iterations, 1/fps.
	Backoff     time.Duration // Sleep after a failed iteration.
	JoinTimeout time.Duration // How long Stop waits for the poller.
	Buffer      int           // Capacity of the update channel.
}

var optsDefault = Opts{
	Size:        640,
	Interval:    time.Second / 30,
	Backoff:     100 * time.Millisecond,
	JoinTimeout: time.Second,
	Buffer:      8,
}

// Loop polls the connected slots of a FrameSource in a background goroutine
// and sends the results on channel Updates. A Loop is stopped when created.
type Loop struct {
	src     FrameSource
	opts    Opts
	updates chan Update

	mutex  sync.Mutex
	cancel context.CancelFunc // Set while running.
	done   chan struct{}      // Closed when the last poller exited.

	rateMutex sync.Mutex
	rate      *MovingAverage
}

// New returns a stopped loop reading from src. Zero fields in opts get
// default values.
func New(src FrameSource, opts *Opts) *Loop {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Size <= 0 {
		xopts.Size = optsDefault.Size
	}
	if xopts.Interval <= 0 {
		xopts.Interval = optsDefault.Interval
	}
	if xopts.Backoff <= 0 {
		xopts.Backoff = optsDefault.Backoff
	}
	if xopts.JoinTimeout <= 0 {
		xopts.JoinTimeout = optsDefault.JoinTimeout
	}
	if xopts.Buffer <= 0 {
		xopts.Buffer = optsDefault.Buffer
	}
	rate, _ := NewMovingAverage(30)
	return &Loop{
		src:     src,
		opts:    xopts,
		updates: make(chan Update, xopts.Buffer),
		rate:    rate,
	}
}

// Updates returns the channel on which preview updates are sent. When the
// consumer falls behind, the oldest pending update is dropped.
func (l *Loop) Updates() <-chan Update {
	return l.updates
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.cancel != nil
}

// Start starts polling. It returns ErrNoCamera and stays stopped when no
// slot is connected. Starting a running loop does nothing.
func (l *Loop) Start() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.cancel != nil {
		return nil
	}
	if l.done != nil {
		select {
		case <-l.done:
		default:
			return ErrBusy
		}
	}
	connected := false
	for _, slot := range camera.Slots {
		if l.src.Connected(slot) {
			connected = true
		}
	}
	if !connected {
		log.Printf("not starting preview: %v", ErrNoCamera)
		return ErrNoCamera
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.rateMutex.Lock()
	l.rate, _ = NewMovingAverage(30)
	l.rateMutex.Unlock()

	go l.run(ctx, done)
	if l.opts.Verbose {
		log.Printf("preview started")
	}
	return nil
}

// Stop stops polling and waits, at most the join timeout, for the poller to
// exit. Both slots then get a Stopped update.
func (l *Loop) Stop() error {
	l.mutex.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mutex.Unlock()

	var err error
	if cancel != nil {
		cancel()
		t := time.NewTimer(l.opts.JoinTimeout)
		select {
		case <-done:
		case <-t.C:
			err = ErrStopTimeout
			log.Printf("stopping preview: %v", err)
		}
		t.Stop()
		if l.opts.Verbose {
			log.Printf("preview stopped")
		}
	}
	for _, slot := range camera.Slots {
		l.offer(Update{Slot: slot, State: Stopped})
	}
	return err
}

// Rate returns the measured number of iterations per second.
func (l *Loop) Rate() float64 {
	l.rateMutex.Lock()
	defer l.rateMutex.Unlock()
	avg := l.rate.Average()
	if avg <= 0 {
		return 0
	}
	return 1 / avg
}

// offer sends u, dropping the oldest pending update when the channel is
// full. It never blocks.
func (l *Loop) offer(u Update) {
	for {
		select {
		case l.updates <- u:
			return
		default:
		}
		select {
		case <-l.updates:
			if l.opts.Verbose {
				log.Printf("dropping preview update, consumer busy")
			}
		default:
		}
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	t := time.NewTimer(0)
	defer t.Stop()
	<-t.C

	last := time.Now()
	for ctx.Err() == nil {
		delay := l.opts.Interval
		if err := l.tick(ctx); err != nil {
			log.Printf("polling cameras: %v", err)
			delay = l.opts.Backoff
		}

		t.Reset(delay)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		now := time.Now()
		l.rateMutex.Lock()
		l.rate.Add(now.Sub(last).Seconds())
		l.rateMutex.Unlock()
		last = now
	}
}

// tick polls every connected slot once, slot 1 first. A panic while
// reading or processing is returned as an error.
func (l *Loop) tick(ctx context.Context) (rerr error) {
	defer func() {
		if x := recover(); x != nil {
			rerr = fmt.Errorf("panic: %v", x)
		}
	}()

	for _, slot := range camera.Slots {
		if ctx.Err() != nil {
			return nil
		}
		if !l.src.Connected(slot) {
			continue
		}
		u := Update{Slot: slot, State: NotResponding}
		img, err := l.src.Read(slot)
		if err != nil {
			if l.opts.Verbose {
				log.Printf("%v", err)
			}
		} else if disp := frame.ProcessForDisplay(img, l.opts.Size); disp != nil {
			u.State = Live
			u.Image = disp
		}
		// Updates from a cancelled poller would land after the Stopped
		// placeholders.
		if ctx.Err() != nil {
			return nil
		}
		l.offer(u)
	}
	return nil
}
