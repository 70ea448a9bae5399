package capture

import (
	"fmt"
	"time"

	"github.com/celltrace/celltrace-go/pkg/frame"
)

// Event represents one captured bus event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the capture session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Channel is the bus channel the event was captured on.
	Channel string `cbor:"3,keyasint,omitempty"`

	// Direction indicates frame flow relative to this host.
	Direction Direction `cbor:"4,keyasint"`

	// Type-specific payload (one of these will be set).
	Frame   *FrameEvent   `cbor:"10,keyasint,omitempty"` // Raw bus frame
	Decoded *DecodedEvent `cbor:"11,keyasint,omitempty"` // Database-decoded message
	State   *StateEvent   `cbor:"12,keyasint,omitempty"` // Bus lifecycle
	Error   *ErrorEvent   `cbor:"13,keyasint,omitempty"` // Errors
}

// Direction indicates the direction of frame flow.
type Direction uint8

const (
	// DirectionRX indicates a frame received from the bus.
	DirectionRX Direction = 0
	// DirectionTX indicates a frame sent by this host.
	DirectionTX Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionRX:
		return "RX"
	case DirectionTX:
		return "TX"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one raw CAN frame.
type FrameEvent struct {
	// ID is the arbitration identifier.
	ID uint32 `cbor:"1,keyasint"`

	// Extended marks a 29-bit identifier.
	Extended bool `cbor:"2,keyasint,omitempty"`

	// RTR marks a remote transmission request.
	RTR bool `cbor:"3,keyasint,omitempty"`

	// Data is the frame payload.
	Data []byte `cbor:"4,keyasint,omitempty"`
}

// AsFrame reconstructs the frame carried by the event, stamped with the
// event timestamp.
func (e *Event) AsFrame() (frame.Frame, bool) {
	if e.Frame == nil {
		return frame.Frame{}, false
	}
	f := frame.New(e.Frame.ID, e.Frame.Extended, e.Frame.Data)
	f.RTR = e.Frame.RTR
	f.Timestamp = e.Timestamp
	return f, true
}

// DecodedEvent captures a database-decoded message.
type DecodedEvent struct {
	// Message is the database message name.
	Message string `cbor:"1,keyasint"`

	// Values maps signal names to physical values.
	Values map[string]float64 `cbor:"2,keyasint,omitempty"`
}

// StateEvent captures bus lifecycle changes (connect, disconnect).
type StateEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEvent captures errors during capture or decode.
type ErrorEvent struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}

// FormatID formats an arbitration ID with candump-style width: 3 hex
// digits for standard identifiers, 8 for extended.
func FormatID(id uint32, extended bool) string {
	if extended {
		return fmt.Sprintf("%08X", id)
	}
	return fmt.Sprintf("%03X", id)
}

// NewFrameEvent builds a frame event from a bus frame. The event timestamp
// is taken from the frame when set, otherwise from the wall clock.
func NewFrameEvent(sessionID, channel string, dir Direction, f frame.Frame) Event {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	fe := &FrameEvent{
		ID:       f.ID,
		Extended: f.Extended,
		RTR:      f.RTR,
	}
	if !f.RTR {
		fe.Data = append([]byte(nil), f.Payload()...)
	}

	return Event{
		Timestamp: ts,
		SessionID: sessionID,
		Channel:   channel,
		Direction: dir,
		Frame:     fe,
	}
}

// NewStateEvent builds a bus lifecycle event.
func NewStateEvent(sessionID, channel, oldState, newState, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Channel:   channel,
		State: &StateEvent{
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewErrorEvent builds an error event.
func NewErrorEvent(sessionID, channel, context string, err error) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Channel:   channel,
		Error: &ErrorEvent{
			Message: err.Error(),
			Context: context,
		},
	}
}
