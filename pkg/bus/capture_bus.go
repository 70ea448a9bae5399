package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// capturedBus records all traffic crossing a Bus to a capture sink.
type capturedBus struct {
	inner     Bus
	sink      capture.Sink
	sessionID string
	closeOnce sync.Once
}

var _ Bus = (*capturedBus)(nil)

// WithCapture wraps a bus so every received and sent frame is recorded
// to the sink, tagged with the session ID. The bus lifecycle is
// recorded as state events: "open" on wrap, "closed" on Close. A nil
// sink returns the bus unchanged.
func WithCapture(inner Bus, sink capture.Sink, sessionID string) Bus {
	if sink == nil {
		return inner
	}
	sink.Log(capture.NewStateEvent(sessionID, inner.Channel(), "", "open", ""))
	return &capturedBus{inner: inner, sink: sink, sessionID: sessionID}
}

func (c *capturedBus) Receive(ctx context.Context) (frame.Frame, error) {
	f, err := c.inner.Receive(ctx)
	if err != nil {
		if !errors.Is(err, ErrClosed) && ctx.Err() == nil {
			c.sink.Log(capture.NewErrorEvent(c.sessionID, c.inner.Channel(), "receive", err))
		}
		return f, err
	}
	c.sink.Log(capture.NewFrameEvent(c.sessionID, c.inner.Channel(), capture.DirectionRX, f))
	return f, nil
}

func (c *capturedBus) Send(ctx context.Context, f frame.Frame) error {
	if err := c.inner.Send(ctx, f); err != nil {
		return err
	}
	c.sink.Log(capture.NewFrameEvent(c.sessionID, c.inner.Channel(), capture.DirectionTX, f))
	return nil
}

func (c *capturedBus) Channel() string {
	return c.inner.Channel()
}

func (c *capturedBus) Close() error {
	c.closeOnce.Do(func() {
		c.sink.Log(capture.NewStateEvent(c.sessionID, c.inner.Channel(), "open", "closed", ""))
	})
	return c.inner.Close()
}
