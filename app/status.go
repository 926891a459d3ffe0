package app

import (
	"fmt"
)

// CaptureStatus is the state of the capture action shown to the user.
type CaptureStatus int

const (
	StatusNormal CaptureStatus = iota
	StatusSaving
	StatusSuccess
	StatusError
)

func (s CaptureStatus) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusSaving:
		return "saving"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("CaptureStatus(%d)", int(s))
}

// StatusEvent is a change of the capture status. Paths and Err are set for
// StatusSuccess and StatusError.
type StatusEvent struct {
	Status CaptureStatus
	Paths  []string
	Err    error
}
