package camera

import (
	"fmt"
)

// Slot is one of the two logical camera roles.
type Slot int

const (
	Slot1 Slot = 1
	Slot2 Slot = 2
)

// Slots lists the slots in polling order.
var Slots = []Slot{Slot1, Slot2}

// Valid reports whether s is Slot1 or Slot2.
func (s Slot) Valid() bool {
	return s == Slot1 || s == Slot2
}

func (s Slot) String() string {
	return fmt.Sprintf("camera %d", int(s))
}

// ConnState is the connection state of a slot.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
	ConnectFailed
)

func (c ConnState) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case ConnectFailed:
		return "connect failed"
	}
	return fmt.Sprintf("ConnState(%d)", int(c))
}

// SlotStatus is a snapshot of a slot's binding.
type SlotStatus struct {
	Slot  Slot
	State ConnState
	Index int // Device index, -1 when unbound.
}
