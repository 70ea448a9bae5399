// Package capture provides structured bus capture logging for celltrace.
//
// This package defines the Sink interface and Event types for recording
// bus activity: raw frames, decoded messages, bus state changes, and
// errors. It is separate from operational logging (slog) - capture
// provides a complete machine-readable record of a session for replay
// and offline analysis.
//
// # Basic Usage
//
// Applications configure capture by providing a Sink implementation:
//
//	// For development: log to console via slog
//	sink := capture.NewSlogAdapter(slog.Default())
//
//	// For recording: write to a binary file
//	sink, _ := capture.NewFileWriter("logs/session.ctlog")
//
//	// Both: use MultiSink
//	sink = capture.NewMultiSink(
//	    capture.NewSlogAdapter(slog.Default()),
//	    fileWriter,
//	)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with .ctlog extension.
// The celltrace-log CLI tool provides viewing, filtering, and export
// capabilities, and the replay package plays captures back with their
// original timing.
//
// # Text Interop
//
// The textlog subpackage reads and writes candump-style text logs for
// interop with SocketCAN tooling.
package capture
