// Package frame provides the CAN frame type and the signal codec.
//
// The codec is driven entirely by candb layouts: ExtractSignal and
// InsertSignal move raw values between frame payloads and integers using
// the signal's start bit, length, byte order, and signedness; Decode and
// Encode work at the message level and apply the linear conversions to
// produce physical values.
//
// Both Intel (little-endian) and Motorola (big-endian) bit numbering are
// supported, including fields that cross byte boundaries. Signed fields
// are two's complement with proper sign extension.
package frame
