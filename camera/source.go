package camera

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
)

// cameraSlot is the state of one slot. The mutex serializes Connect, Read
// and Release on the slot, so a device can be swapped while the slot is
// polled.
type cameraSlot struct {
	mutex sync.Mutex
	index int
	dev   Device
	last  image.Image
	state ConnState
}

// SourceOpts are options for a Source.
type SourceOpts struct {
	Verbose bool
	Size    image.Point // Resolution requested on connect, a hint only.
}

// Source owns the devices bound to the two camera slots.
type Source struct {
	driver Driver
	opts   SourceOpts
	slots  [2]cameraSlot
}

// NewSource returns a Source opening devices with driver. Both slots start
// disconnected. Callers must call ReleaseAll to clean up.
func NewSource(driver Driver, opts *SourceOpts) *Source {
	s := &Source{driver: driver}
	if opts != nil {
		s.opts = *opts
	}
	for i := range s.slots {
		s.slots[i].index = -1
	}
	return s
}

func (s *Source) slot(slot Slot) (*cameraSlot, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("invalid slot %d", int(slot))
	}
	return &s.slots[slot-1], nil
}

// Connect binds device index to slot. A device already bound to the slot is
// released first. On failure the slot is left unbound with state
// ConnectFailed and the error wraps ErrDeviceOpen.
func (s *Source) Connect(slot Slot, index int) error {
	cs, err := s.slot(slot)
	if err != nil {
		return err
	}
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.release()

	dev, err := s.driver.Open(index, s.opts.Size)
	if err != nil {
		cs.state = ConnectFailed
		if errors.Is(err, ErrDeviceOpen) {
			return fmt.Errorf("connecting %s to device %d: %w", slot, index, err)
		}
		return fmt.Errorf("connecting %s to device %d: %w: %v", slot, index, ErrDeviceOpen, err)
	}
	cs.dev = dev
	cs.index = index
	cs.state = Connected
	if s.opts.Verbose {
		log.Printf("%s connected to device %d", slot, index)
	}
	return nil
}

// Read reads one frame from the device bound to slot. The frame is also
// kept as the slot's latest frame; a failed read clears it. Read returns ErrNotConnected for an
// unbound slot and an error wrapping ErrNoFrame when the device returned
// nothing.
func (s *Source) Read(slot Slot) (image.Image, error) {
	cs, err := s.slot(slot)
	if err != nil {
		return nil, err
	}
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if cs.dev == nil {
		return nil, ErrNotConnected
	}
	img, err := cs.dev.Read()
	if err != nil {
		cs.last = nil
		return nil, fmt.Errorf("reading %s: %w: %v", slot, ErrNoFrame, err)
	}
	if img == nil || img.Bounds().Empty() {
		cs.last = nil
		return nil, fmt.Errorf("reading %s: %w", slot, ErrNoFrame)
	}
	cs.last = img
	return img, nil
}

// Latest returns the frame of the last read from slot, or nil when that
// read failed.
func (s *Source) Latest(slot Slot) image.Image {
	cs, err := s.slot(slot)
	if err != nil {
		return nil
	}
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	return cs.last
}

// Release closes the device bound to slot, if any. Release is idempotent.
func (s *Source) Release(slot Slot) {
	cs, err := s.slot(slot)
	if err != nil {
		return
	}
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	cs.release()
	cs.state = Disconnected
}

// ReleaseAll releases both slots.
func (s *Source) ReleaseAll() {
	for _, slot := range Slots {
		s.Release(slot)
	}
}

// Status returns the binding of slot.
func (s *Source) Status(slot Slot) SlotStatus {
	cs, err := s.slot(slot)
	if err != nil {
		return SlotStatus{Slot: slot, Index: -1}
	}
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	return SlotStatus{Slot: slot, State: cs.state, Index: cs.index}
}

// Connected reports whether a device is bound to slot.
func (s *Source) Connected(slot Slot) bool {
	return s.Status(slot).State == Connected
}

// AnyConnected reports whether at least one slot has a device.
func (s *Source) AnyConnected() bool {
	for _, slot := range Slots {
		if s.Connected(slot) {
			return true
		}
	}
	return false
}

// release must be called with the slot mutex held.
func (cs *cameraSlot) release() {
	if cs.dev != nil {
		cs.dev.Close()
	}
	cs.dev = nil
	cs.index = -1
	cs.last = nil
}
