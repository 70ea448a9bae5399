// Package telemetry turns raw CAN traffic into live battery pack state.
//
// The Pump pulls frames from a bus, decodes them against a signal
// database and fans the decoded values out to handlers. Two standard
// handlers are provided:
//
//   - Snapshot holds the latest value of every cell, segment monitor
//     and pack signal, plus derived aggregates (min/max/mean cell
//     voltage, spread, hottest cell, fault roster).
//   - Series keeps a bounded history of selected signals for trend
//     views.
//
// Recording sessions are tracked by Session and SessionStore, which
// persist a JSON index next to the capture files so recordings can be
// listed and replayed later.
package telemetry
