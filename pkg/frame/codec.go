package frame

import (
	"errors"
	"fmt"

	"github.com/celltrace/celltrace-go/pkg/candb"
)

// Codec errors.
var (
	// ErrUnknownFrame indicates the frame ID has no message in the database.
	ErrUnknownFrame = errors.New("unknown frame ID")

	// ErrShortData indicates the payload is shorter than the message layout.
	ErrShortData = errors.New("payload shorter than message length")

	// ErrBadLayout indicates the signal layout is invalid.
	ErrBadLayout = errors.New("invalid signal layout")

	// ErrUnknownSignal indicates a signal name not present in the message.
	ErrUnknownSignal = errors.New("unknown signal")

	// ErrRawOverflow indicates a raw value outside the field's range.
	ErrRawOverflow = errors.New("raw value does not fit signal field")
)

// Value is one decoded signal: the raw bus value, the physical quantity
// after conversion, and the value-table label when one is defined.
type Value struct {
	Raw      int64
	Physical float64
	Unit     string
	Label    string
}

// ExtractSignal reads the raw value of sig from a payload.
func ExtractSignal(data []byte, sig *candb.Signal) (int64, error) {
	positions := sig.BitPositions()
	if positions == nil {
		return 0, fmt.Errorf("%w: %s", ErrBadLayout, sig.Name)
	}

	var raw uint64
	for i, pos := range positions {
		byteIdx := pos / 8
		if byteIdx >= len(data) {
			return 0, fmt.Errorf("%w: %s needs byte %d of %d", ErrShortData, sig.Name, byteIdx, len(data))
		}
		if data[byteIdx]>>(pos%8)&1 == 1 {
			raw |= 1 << i
		}
	}

	if sig.Signed && sig.Length < 64 && raw&(1<<(sig.Length-1)) != 0 {
		raw |= ^uint64(0) << sig.Length
	}
	return int64(raw), nil
}

// InsertSignal writes a raw value into a payload at sig's position.
// The value must fit the field's raw range.
func InsertSignal(data []byte, sig *candb.Signal, raw int64) error {
	positions := sig.BitPositions()
	if positions == nil {
		return fmt.Errorf("%w: %s", ErrBadLayout, sig.Name)
	}

	lo, hi := sig.RawRange()
	if raw < lo || raw > hi {
		return fmt.Errorf("%w: %s=%d outside [%d, %d]", ErrRawOverflow, sig.Name, raw, lo, hi)
	}

	u := uint64(raw) // two's complement representation for negatives
	for i, pos := range positions {
		byteIdx := pos / 8
		if byteIdx >= len(data) {
			return fmt.Errorf("%w: %s needs byte %d of %d", ErrShortData, sig.Name, byteIdx, len(data))
		}
		mask := byte(1) << (pos % 8)
		if u>>i&1 == 1 {
			data[byteIdx] |= mask
		} else {
			data[byteIdx] &^= mask
		}
	}
	return nil
}

// Decode extracts every signal of a message from a payload and applies the
// linear conversions.
func Decode(m *candb.Message, data []byte) (map[string]Value, error) {
	if len(data) < m.Length {
		return nil, fmt.Errorf("%w: %s got %d bytes, layout needs %d",
			ErrShortData, m.Name, len(data), m.Length)
	}

	values := make(map[string]Value, len(m.Signals))
	for i := range m.Signals {
		sig := &m.Signals[i]
		raw, err := ExtractSignal(data, sig)
		if err != nil {
			return nil, err
		}
		v := Value{
			Raw:      raw,
			Physical: sig.Physical(raw),
			Unit:     sig.Unit,
		}
		if label, ok := sig.Label(raw); ok {
			v.Label = label
		}
		values[sig.Name] = v
	}
	return values, nil
}

// Encode packs physical signal values into a fresh payload of the
// message's length. Signals absent from values are left zero.
func Encode(m *candb.Message, values map[string]float64) ([]byte, error) {
	data := make([]byte, m.Length)
	for name, phys := range values {
		sig, ok := m.Signal(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no signal %q", ErrUnknownSignal, m.Name, name)
		}
		if err := InsertSignal(data, sig, sig.Raw(phys)); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// DecodeFrame looks up the frame's message in the database and decodes its
// payload. Returns ErrUnknownFrame if the ID is not in the database.
func DecodeFrame(db *candb.Database, f Frame) (*candb.Message, map[string]Value, error) {
	m, ok := db.MessageByFrameID(f.ID, f.Extended)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFrame, f)
	}
	values, err := Decode(m, f.Payload())
	if err != nil {
		return nil, nil, err
	}
	return m, values, nil
}

// EncodeFrame builds a frame for a named message from physical signal
// values.
func EncodeFrame(db *candb.Database, name string, values map[string]float64) (Frame, error) {
	m, ok := db.MessageByName(name)
	if !ok {
		return Frame{}, fmt.Errorf("%w: no message %q", ErrUnknownFrame, name)
	}
	data, err := Encode(m, values)
	if err != nil {
		return Frame{}, err
	}
	return New(m.FrameID, m.Extended, data), nil
}
