package bus

import (
	"context"
	"sync"
	"time"

	"github.com/celltrace/celltrace-go/pkg/frame"
)

// Hub is an in-process CAN bus. Every endpoint joined to the hub sees
// the frames sent by every other endpoint, mirroring a physical bus.
// Used by tests, demo mode and replay pipelines.
type Hub struct {
	mu        sync.Mutex
	endpoints map[*VirtualBus]struct{}
	closed    bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{endpoints: make(map[*VirtualBus]struct{})}
}

// Join attaches a new endpoint to the hub.
func (h *Hub) Join(channel string) *VirtualBus {
	e := &VirtualBus{
		hub:     h,
		channel: channel,
		frames:  make(chan frame.Frame, 256),
		closed:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		close(e.closed)
	} else {
		h.endpoints[e] = struct{}{}
	}
	h.mu.Unlock()

	return e
}

// Close detaches and closes all endpoints.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for e := range h.endpoints {
		e.closeLocked()
		delete(h.endpoints, e)
	}
	return nil
}

// broadcast delivers a frame to every endpoint except the sender.
// Endpoints with full queues miss the frame, as on a saturated bus.
func (h *Hub) broadcast(from *VirtualBus, f frame.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for e := range h.endpoints {
		if e == from && !e.loopback {
			continue
		}
		select {
		case e.frames <- f:
		default:
		}
	}
	return nil
}

func (h *Hub) leave(e *VirtualBus) {
	h.mu.Lock()
	delete(h.endpoints, e)
	h.mu.Unlock()
}

// VirtualBus is one endpoint of a Hub.
type VirtualBus struct {
	hub      *Hub
	channel  string
	loopback bool

	frames    chan frame.Frame
	closeOnce sync.Once
	closed    chan struct{}
}

var _ Bus = (*VirtualBus)(nil)

// SetLoopback makes the endpoint receive its own transmissions.
// Must be called before traffic starts.
func (v *VirtualBus) SetLoopback(on bool) {
	v.loopback = on
}

// Channel returns the endpoint channel name.
func (v *VirtualBus) Channel() string {
	return v.channel
}

// Receive returns the next broadcast frame.
func (v *VirtualBus) Receive(ctx context.Context) (frame.Frame, error) {
	select {
	case f := <-v.frames:
		return f, nil
	case <-v.closed:
		select {
		case f := <-v.frames:
			return f, nil
		default:
		}
		return frame.Frame{}, ErrClosed
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// Send broadcasts a frame to the other endpoints on the hub.
func (v *VirtualBus) Send(ctx context.Context, f frame.Frame) error {
	select {
	case <-v.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	return v.hub.broadcast(v, f)
}

// Close detaches the endpoint from the hub.
func (v *VirtualBus) Close() error {
	v.hub.leave(v)
	v.closeLocked()
	return nil
}

func (v *VirtualBus) closeLocked() {
	v.closeOnce.Do(func() {
		close(v.closed)
	})
}
