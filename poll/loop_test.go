package poll_test

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/camera/testpattern"
	"github.com/photobook/dualcam/poll"
)

// fakeSource serves small frames for slot 1. Reads can panic or block.
type fakeSource struct {
	mutex   sync.Mutex
	panics  int           // Panic on this many reads first.
	block   chan struct{} // First read waits until closed, if set.
	reading chan struct{} // Closed when the blocking read started.
	reads   int
}

func (f *fakeSource) Connected(slot camera.Slot) bool {
	return slot == camera.Slot1
}

func (f *fakeSource) Read(slot camera.Slot) (image.Image, error) {
	f.mutex.Lock()
	f.reads++
	first := f.reads == 1
	if f.panics > 0 {
		f.panics--
		f.mutex.Unlock()
		panic("device went away")
	}
	f.mutex.Unlock()

	if first && f.block != nil {
		close(f.reading)
		<-f.block
	}
	return image.NewNRGBA(image.Rect(0, 0, 32, 16)), nil
}

func newTestSource(t *testing.T, opts testpattern.Opts) *camera.Source {
	t.Helper()
	src := camera.NewSource(testpattern.NewDriver(opts), &camera.SourceOpts{Size: image.Pt(160, 120)})
	t.Cleanup(src.ReleaseAll)
	return src
}

func waitUpdate(t *testing.T, l *poll.Loop, match func(poll.Update) bool) poll.Update {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u := <-l.Updates():
			if match(u) {
				return u
			}
		case <-timeout:
			t.Fatalf("timeout waiting for update")
		}
	}
}

func waitStopped(t *testing.T, l *poll.Loop) {
	t.Helper()
	seen := map[camera.Slot]bool{}
	for len(seen) < 2 {
		u := waitUpdate(t, l, func(u poll.Update) bool { return u.State == poll.Stopped })
		if u.Image != nil {
			t.Fatalf("stopped update for %s carries an image", u.Slot)
		}
		seen[u.Slot] = true
	}
}

func TestStartNoCamera(t *testing.T) {
	src := newTestSource(t, testpattern.Opts{Count: 2})
	l := poll.New(src, nil)
	if err := l.Start(); !errors.Is(err, poll.ErrNoCamera) {
		t.Fatalf("start without camera, got %v, expected ErrNoCamera", err)
	}
	if l.Running() {
		t.Fatalf("loop running without camera")
	}
}

func TestLiveUpdates(t *testing.T) {
	src := newTestSource(t, testpattern.Opts{Count: 2})
	if err := src.Connect(camera.Slot1, 0); err != nil {
		t.Fatalf("connect: %v", err)
	}

	l := poll.New(src, &poll.Opts{Size: 64, Interval: 5 * time.Millisecond})
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !l.Running() {
		t.Fatalf("loop not running after start")
	}
	// Starting again is a no-op.
	if err := l.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	for i := 0; i < 5; i++ {
		u := waitUpdate(t, l, func(u poll.Update) bool { return u.State == poll.Live })
		if u.Slot != camera.Slot1 {
			t.Fatalf("live update for %s, expected only %s", u.Slot, camera.Slot1)
		}
		if b := u.Image.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
			t.Fatalf("preview size, got %v, expected 64x64", b)
		}
	}
	if r := l.Rate(); r <= 0 {
		t.Fatalf("rate, got %v, expected > 0", r)
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if l.Running() {
		t.Fatalf("loop running after stop")
	}
	waitStopped(t, l)
}

func TestNotResponding(t *testing.T) {
	src := newTestSource(t, testpattern.Opts{Count: 2, FailRead: []int{1}})
	if err := src.Connect(camera.Slot2, 1); err != nil {
		t.Fatalf("connect: %v", err)
	}

	l := poll.New(src, &poll.Opts{Size: 32, Interval: 5 * time.Millisecond})
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Stop()

	u := waitUpdate(t, l, func(poll.Update) bool { return true })
	if u.Slot != camera.Slot2 || u.State != poll.NotResponding || u.Image != nil {
		t.Fatalf("unexpected update %v %v", u.Slot, u.State)
	}
}

func TestPanicRecovered(t *testing.T) {
	src := &fakeSource{panics: 2}
	l := poll.New(src, &poll.Opts{Size: 32, Interval: time.Millisecond, Backoff: time.Millisecond})
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Stop()

	u := waitUpdate(t, l, func(poll.Update) bool { return true })
	if u.State != poll.Live {
		t.Fatalf("state after recovered panics, got %v", u.State)
	}
	if !l.Running() {
		t.Fatalf("loop stopped after panic")
	}
}

func TestRestart(t *testing.T) {
	src := newTestSource(t, testpattern.Opts{Count: 1})
	if err := src.Connect(camera.Slot1, 0); err != nil {
		t.Fatalf("connect: %v", err)
	}
	l := poll.New(src, &poll.Opts{Size: 32, Interval: 5 * time.Millisecond})
	for i := 0; i < 3; i++ {
		if err := l.Start(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		waitUpdate(t, l, func(u poll.Update) bool { return u.State == poll.Live })
		if err := l.Stop(); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
		waitStopped(t, l)
	}
}

func TestBusyAfterStopTimeout(t *testing.T) {
	src := &fakeSource{block: make(chan struct{}), reading: make(chan struct{})}
	l := poll.New(src, &poll.Opts{Size: 32, Interval: time.Millisecond, JoinTimeout: 20 * time.Millisecond})
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-src.reading

	if err := l.Stop(); !errors.Is(err, poll.ErrStopTimeout) {
		t.Fatalf("stop with stuck poller, got %v, expected ErrStopTimeout", err)
	}
	if err := l.Start(); !errors.Is(err, poll.ErrBusy) {
		t.Fatalf("start with stuck poller, got %v, expected ErrBusy", err)
	}

	close(src.block)
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := l.Start()
		if err == nil {
			break
		}
		if !errors.Is(err, poll.ErrBusy) || time.Now().After(deadline) {
			t.Fatalf("start after poller exited: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
