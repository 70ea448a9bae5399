package bus

import (
	"context"
	"errors"

	"github.com/celltrace/celltrace-go/pkg/frame"
)

// Bus errors.
var (
	ErrClosed   = errors.New("bus closed")
	ErrReadOnly = errors.New("bus is read-only")
)

// Bus is a bidirectional CAN frame stream.
type Bus interface {
	// Receive returns the next frame from the bus. It blocks until a
	// frame arrives, the context is cancelled, or the bus is closed.
	// Returned frames carry a receive timestamp.
	Receive(ctx context.Context) (frame.Frame, error)

	// Send transmits a frame on the bus.
	Send(ctx context.Context, f frame.Frame) error

	// Channel returns the bus channel name, e.g. "slcan0" or "virt".
	Channel() string

	// Close shuts down the bus. Pending and subsequent Receive calls
	// return ErrClosed.
	Close() error
}
