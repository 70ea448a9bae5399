package frame

import (
	"fmt"
	"time"

	"github.com/celltrace/celltrace-go/pkg/candb"
)

// MaxDataLength is the payload size limit for classical CAN.
const MaxDataLength = 8

// Frame is a single CAN bus frame.
type Frame struct {
	// ID is the arbitration identifier (11-bit standard, 29-bit extended).
	ID uint32

	// Extended marks a 29-bit identifier.
	Extended bool

	// RTR marks a remote transmission request (no payload).
	RTR bool

	// Length is the data length code (0..8).
	Length uint8

	// Data is the payload; only Data[:Length] is meaningful.
	Data [MaxDataLength]byte

	// Timestamp records when the frame was received or sent.
	Timestamp time.Time
}

// New builds a frame from an identifier and payload. The identifier is
// masked to 29 bits (11 when standard) and the payload is truncated to
// MaxDataLength.
func New(id uint32, extended bool, data []byte) Frame {
	f := Frame{Extended: extended}
	if extended {
		f.ID = id & candb.MaxExtendedID
	} else {
		f.ID = id & candb.MaxStandardID
	}

	if len(data) > MaxDataLength {
		data = data[:MaxDataLength]
	}
	f.Length = uint8(len(data))
	copy(f.Data[:], data)
	return f
}

// Payload returns the meaningful portion of the data.
func (f Frame) Payload() []byte {
	n := f.Length
	if n > MaxDataLength {
		n = MaxDataLength
	}
	return f.Data[:n]
}

// String formats the frame in candump style: ID#DATA with 3 hex digits for
// standard and 8 for extended identifiers, and #R for remote frames.
func (f Frame) String() string {
	idWidth := 3
	if f.Extended {
		idWidth = 8
	}
	if f.RTR {
		return fmt.Sprintf("%0*X#R", idWidth, f.ID)
	}
	return fmt.Sprintf("%0*X#%X", idWidth, f.ID, f.Payload())
}
