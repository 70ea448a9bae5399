package capture

// Sink is the interface applications implement to receive capture events.
// Pass nil or NoopSink to disable capture.
type Sink interface {
	// Log records a capture event. Implementations must be thread-safe.
	// The event should be processed quickly or queued; blocking slows
	// down the bus reader.
	Log(event Event)
}

// NoopSink discards all events. Use when capture is disabled.
// NoopSink is safe for concurrent use and usable as a zero value.
type NoopSink struct{}

// Log discards the event.
func (NoopSink) Log(Event) {}

// MultiSink sends events to multiple sinks.
// Useful when you want both console output (via SlogAdapter)
// and file output (via FileWriter) simultaneously.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a MultiSink that sends events to all provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Log sends the event to all configured sinks.
func (m *MultiSink) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Sink = NoopSink{}
	_ Sink = (*MultiSink)(nil)
)
