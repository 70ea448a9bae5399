// Package bus provides CAN bus access for celltrace.
//
// The central abstraction is the Bus interface: a bidirectional stream
// of CAN frames with context-aware Receive and Send. Three
// implementations are provided:
//
//   - SLCAN: a serial-line CAN adapter (Lawicel slcan protocol), the
//     protocol spoken by common USB-to-CAN dongles presenting a CDC-ACM
//     serial device.
//   - Hub/virtual: an in-process bus for tests and demos, where every
//     endpoint sees every other endpoint's frames.
//   - WithCapture: a decorator that records all traffic crossing any
//     Bus to a capture sink.
//
// All implementations are safe for one concurrent receiver and any
// number of concurrent senders.
package bus
