package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// Handler receives decoded traffic from a Pump. Handlers run on the
// pump goroutine and must return quickly.
type Handler interface {
	// HandleDecoded is called for every frame matched in the database.
	HandleDecoded(f frame.Frame, m *candb.Message, values map[string]frame.Value)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(f frame.Frame, m *candb.Message, values map[string]frame.Value)

// HandleDecoded calls the function.
func (fn HandlerFunc) HandleDecoded(f frame.Frame, m *candb.Message, values map[string]frame.Value) {
	fn(f, m, values)
}

// PumpStats are the pump's monotonic counters.
type PumpStats struct {
	// FramesTotal counts all frames received from the bus.
	FramesTotal uint64

	// FramesDecoded counts frames matched in the database.
	FramesDecoded uint64

	// FramesUnknown counts frames with no database entry.
	FramesUnknown uint64

	// DecodeErrors counts frames that matched a message but failed to
	// decode, typically because the payload was too short.
	DecodeErrors uint64
}

// PumpConfig configures a Pump.
type PumpConfig struct {
	// Sink receives decoded events for capture (optional).
	Sink capture.Sink

	// SessionID tags capture events emitted by the pump.
	SessionID string

	// LogDecoded writes a decoded event to the sink per matched frame.
	// Frame events themselves are recorded at the bus layer.
	LogDecoded bool
}

// Pump reads frames from a bus, decodes them and dispatches to handlers.
type Pump struct {
	bus    bus.Bus
	db     *candb.Database
	config PumpConfig

	mu       sync.Mutex
	handlers []Handler
	unknown  map[uint32]uint64

	framesTotal   atomic.Uint64
	framesDecoded atomic.Uint64
	framesUnknown atomic.Uint64
	decodeErrors  atomic.Uint64
}

// NewPump creates a pump reading from b and decoding against db.
func NewPump(b bus.Bus, db *candb.Database, config PumpConfig) *Pump {
	if config.Sink == nil {
		config.Sink = capture.NoopSink{}
	}
	return &Pump{
		bus:     b,
		db:      db,
		config:  config,
		unknown: make(map[uint32]uint64),
	}
}

// Subscribe registers a handler for decoded frames.
func (p *Pump) Subscribe(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Run pumps frames until the context is cancelled or the bus closes.
// A closed bus is a clean stop, not an error.
func (p *Pump) Run(ctx context.Context) error {
	for {
		f, err := p.bus.Receive(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		p.process(f)
	}
}

// process decodes one frame and dispatches it.
func (p *Pump) process(f frame.Frame) {
	p.framesTotal.Add(1)

	if f.RTR {
		return
	}

	m, values, err := frame.DecodeFrame(p.db, f)
	switch {
	case errors.Is(err, frame.ErrUnknownFrame):
		p.framesUnknown.Add(1)
		p.mu.Lock()
		p.unknown[f.ID]++
		p.mu.Unlock()
		return
	case err != nil:
		p.decodeErrors.Add(1)
		p.config.Sink.Log(capture.NewErrorEvent(p.config.SessionID, p.bus.Channel(), "decode", err))
		return
	}

	p.framesDecoded.Add(1)

	if p.config.LogDecoded {
		event := capture.Event{
			Timestamp: f.Timestamp,
			SessionID: p.config.SessionID,
			Channel:   p.bus.Channel(),
			Decoded: &capture.DecodedEvent{
				Message: m.Name,
				Values:  physicalValues(values),
			},
		}
		p.config.Sink.Log(event)
	}

	p.mu.Lock()
	handlers := p.handlers
	p.mu.Unlock()
	for _, h := range handlers {
		h.HandleDecoded(f, m, values)
	}
}

// Stats returns a copy of the pump counters.
func (p *Pump) Stats() PumpStats {
	return PumpStats{
		FramesTotal:   p.framesTotal.Load(),
		FramesDecoded: p.framesDecoded.Load(),
		FramesUnknown: p.framesUnknown.Load(),
		DecodeErrors:  p.decodeErrors.Load(),
	}
}

// UnknownIDs returns the frame IDs seen without a database entry, with
// occurrence counts.
func (p *Pump) UnknownIDs() map[uint32]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uint32]uint64, len(p.unknown))
	for id, n := range p.unknown {
		out[id] = n
	}
	return out
}

func physicalValues(values map[string]frame.Value) map[string]float64 {
	out := make(map[string]float64, len(values))
	for name, v := range values {
		out[name] = v.Physical
	}
	return out
}
