package candb

import "math"

// ByteOrder specifies the bit numbering convention of a signal.
type ByteOrder uint8

const (
	// LittleEndian (Intel) byte order. Start is the bit position of the
	// least significant bit, and the field grows toward higher positions.
	LittleEndian ByteOrder = 0

	// BigEndian (Motorola) byte order. Start is the bit position of the
	// most significant bit, and the field grows downward within each byte,
	// continuing at bit 7 of the following byte.
	BigEndian ByteOrder = 1
)

// String returns the byte order name.
func (b ByteOrder) String() string {
	switch b {
	case LittleEndian:
		return "little_endian"
	case BigEndian:
		return "big_endian"
	default:
		return "unknown"
	}
}

// ValueTable maps raw signal values to human-readable labels.
type ValueTable map[int64]string

// Signal describes one bit-field within a message payload.
//
// Bit positions use LSB-0 numbering: position p refers to bit p%8 of byte
// p/8 of the payload.
type Signal struct {
	// Name is the signal name, unique within its message.
	Name string

	// Start is the start bit position (see ByteOrder for its meaning).
	Start int

	// Length is the field width in bits (1..64).
	Length int

	// ByteOrder selects Intel or Motorola bit numbering.
	ByteOrder ByteOrder

	// Signed marks the raw value as two's complement.
	Signed bool

	// Scale and Offset define the linear conversion to physical units:
	// physical = raw*Scale + Offset. Scale must be non-zero; use 1 for
	// identity conversions.
	Scale  float64
	Offset float64

	// Min and Max bound the physical range. Both zero means unbounded.
	Min float64
	Max float64

	// Unit is the physical unit string ("V", "degC", ...).
	Unit string

	// Receivers lists the node names that consume this signal.
	Receivers []string

	// Choices is an optional value table for enumerated signals.
	Choices ValueTable

	// Comment is free-form documentation.
	Comment string
}

// Physical converts a raw bus value to a physical quantity.
func (s *Signal) Physical(raw int64) float64 {
	return float64(raw)*s.Scale + s.Offset
}

// Raw converts a physical quantity to a raw bus value. The physical value
// is clamped to [Min, Max] when a range is declared, and the result is
// saturated to the representable raw range of the field.
func (s *Signal) Raw(physical float64) int64 {
	if s.Min != 0 || s.Max != 0 {
		physical = math.Min(math.Max(physical, s.Min), s.Max)
	}

	scale := s.Scale
	if scale == 0 {
		scale = 1
	}
	raw := math.Round((physical - s.Offset) / scale)

	lo, hi := s.RawRange()
	if raw < float64(lo) {
		return lo
	}
	if raw > float64(hi) {
		return hi
	}
	return int64(raw)
}

// RawRange returns the minimum and maximum raw values representable in the
// field given its length and signedness.
func (s *Signal) RawRange() (min, max int64) {
	n := s.Length
	if n < 1 {
		n = 1
	}
	if n > 64 {
		n = 64
	}

	if s.Signed {
		if n == 64 {
			return math.MinInt64, math.MaxInt64
		}
		return -(1 << (n - 1)), 1<<(n-1) - 1
	}
	if n == 64 {
		return 0, math.MaxInt64 // raw values are carried as int64
	}
	return 0, 1<<n - 1
}

// Label returns the value-table label for a raw value, if one is defined.
func (s *Signal) Label(raw int64) (string, bool) {
	label, ok := s.Choices[raw]
	return label, ok
}

// BitPositions returns the absolute payload bit positions occupied by the
// signal, ordered from the least significant raw bit upward: raw bit i of
// the field lives at payload position BitPositions()[i].
//
// Returns nil if Length is outside 1..64 or Start is negative; Validator
// reports these as layout errors.
func (s *Signal) BitPositions() []int {
	if s.Length < 1 || s.Length > 64 || s.Start < 0 {
		return nil
	}

	positions := make([]int, s.Length)

	switch s.ByteOrder {
	case LittleEndian:
		for i := 0; i < s.Length; i++ {
			positions[i] = s.Start + i
		}
	case BigEndian:
		// Walk MSB-first with the Motorola sawtooth, then store in
		// LSB-first order.
		pos := s.Start
		for i := s.Length - 1; i >= 0; i-- {
			positions[i] = pos
			if pos%8 == 0 {
				pos += 15
			} else {
				pos--
			}
		}
	default:
		return nil
	}

	return positions
}
