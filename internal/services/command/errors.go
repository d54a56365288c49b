package command

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand: the name is not one the device understands. Nothing is sent.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrNotConnected: the event stream is not up, so the device is presumed unreachable.
	ErrNotConnected = errors.New("device not connected")
)

// DeliveryError is a request that reached the transport but did not succeed:
// network failure, non-2xx answer, unreadable body or open breaker.
type DeliveryError struct {
	Op     string // e.g. "POST /command"
	Status int    // HTTP status, 0 when no response was received
	Err    error

	transport bool // no usable answer from the device
}

func (e *DeliveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: device status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
