package candb

import "time"

// Maximum frame identifier values.
const (
	// MaxStandardID is the largest 11-bit CAN identifier.
	MaxStandardID = 0x7FF

	// MaxExtendedID is the largest 29-bit CAN identifier.
	MaxExtendedID = 0x1FFFFFFF
)

// Node is a bus participant that sends or receives messages.
type Node struct {
	// Name identifies the node ("BMS", "INVERTER", ...).
	Name string

	// Comment is free-form documentation.
	Comment string
}

// Message describes one CAN frame layout.
type Message struct {
	// Name is the message name, unique within the database.
	Name string

	// FrameID is the CAN identifier (11-bit standard or 29-bit extended).
	FrameID uint32

	// Extended marks a 29-bit identifier.
	Extended bool

	// Length is the payload length in bytes (1..8 for classical CAN).
	Length int

	// Sender is the name of the transmitting node.
	Sender string

	// Signals are the bit-fields packed into the payload.
	Signals []Signal

	// CycleTime is the nominal transmission period for cyclic messages
	// (zero for event-driven messages).
	CycleTime time.Duration

	// SendType describes how the message is scheduled ("cyclic",
	// "event", ...). Informational.
	SendType string

	// Attributes holds per-message overrides of database attribute
	// defaults, keyed by attribute name.
	Attributes map[string]any

	// Comment is free-form documentation.
	Comment string
}

// Signal returns the signal with the given name.
func (m *Message) Signal(name string) (*Signal, bool) {
	for i := range m.Signals {
		if m.Signals[i].Name == name {
			return &m.Signals[i], true
		}
	}
	return nil, false
}

// AttributeKind is the value type of an attribute definition.
type AttributeKind uint8

const (
	// AttributeInt attributes hold int values.
	AttributeInt AttributeKind = iota
	// AttributeFloat attributes hold float64 values.
	AttributeFloat
	// AttributeString attributes hold string values.
	AttributeString
)

// String returns the attribute kind name.
func (k AttributeKind) String() string {
	switch k {
	case AttributeInt:
		return "int"
	case AttributeFloat:
		return "float"
	case AttributeString:
		return "string"
	default:
		return "unknown"
	}
}

// AttributeDef declares a named attribute with a database-wide default.
// Messages may override the default via Message.Attributes.
type AttributeDef struct {
	// Name identifies the attribute ("CycleTimeMs", "DisplayColor", ...).
	Name string

	// Kind is the value type of the attribute.
	Kind AttributeKind

	// Default is the database-wide default value. Its dynamic type must
	// match Kind.
	Default any
}
