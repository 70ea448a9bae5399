// Package replay plays recorded CAN traffic back as a live bus.
//
// A Player implements the bus.Bus interface over a frame source, so the
// same telemetry pipeline that consumes a serial adapter can consume a
// recording. Frames are paced by their recorded timestamps, optionally
// scaled by a speed factor.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/capture/textlog"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// ErrEndOfRecording is returned by Receive once the source is drained.
// It wraps bus.ErrClosed so consumers that only care about a clean stop
// treat a drained recording like a closed bus.
var ErrEndOfRecording = fmt.Errorf("end of recording: %w", bus.ErrClosed)

// Source yields recorded frames in order. Next returns io.EOF when the
// recording ends.
type Source interface {
	Next() (frame.Frame, error)
	Close() error
}

// Clock abstracts time for pacing, so tests can replay instantly.
type Clock interface {
	// Sleep blocks for d or until the context is cancelled.
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock paces against the wall clock.
type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configure a Player.
type Options struct {
	// Speed scales playback: 2 plays twice as fast, 0.5 half speed.
	// Zero or negative plays with no pacing at all.
	Speed float64

	// Channel is the channel name the player reports (default "replay").
	Channel string

	// Clock overrides the pacing clock, for tests.
	Clock Clock
}

// Player replays a recording as a read-only Bus.
type Player struct {
	src     Source
	speed   float64
	channel string
	clock   Clock

	mu        sync.Mutex
	prev      time.Time
	closeOnce sync.Once
	closed    chan struct{}
}

var _ bus.Bus = (*Player)(nil)

// NewPlayer creates a player over a frame source.
func NewPlayer(src Source, opts Options) *Player {
	if opts.Channel == "" {
		opts.Channel = "replay"
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Player{
		src:     src,
		speed:   opts.Speed,
		channel: opts.Channel,
		clock:   opts.Clock,
		closed:  make(chan struct{}),
	}
}

// Channel returns the configured channel name.
func (p *Player) Channel() string {
	return p.channel
}

// Receive returns the next recorded frame, waiting out the recorded
// inter-frame gap scaled by the speed factor. Returns ErrEndOfRecording
// when the source is drained.
func (p *Player) Receive(ctx context.Context) (frame.Frame, error) {
	select {
	case <-p.closed:
		return frame.Frame{}, bus.ErrClosed
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := p.src.Next()
	if err == io.EOF {
		return frame.Frame{}, ErrEndOfRecording
	}
	if err != nil {
		return frame.Frame{}, err
	}

	if p.speed > 0 && !p.prev.IsZero() && f.Timestamp.After(p.prev) {
		gap := time.Duration(float64(f.Timestamp.Sub(p.prev)) / p.speed)
		if err := p.clock.Sleep(ctx, gap); err != nil {
			return frame.Frame{}, err
		}
	}
	p.prev = f.Timestamp

	return f, nil
}

// Send always fails: recordings are read-only.
func (p *Player) Send(ctx context.Context, f frame.Frame) error {
	return bus.ErrReadOnly
}

// Close closes the underlying source.
func (p *Player) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.src.Close()
	})
	return err
}

// captureSource adapts a capture file to the Source interface, yielding
// only frame events.
type captureSource struct {
	reader *capture.Reader
}

// OpenCapture opens a binary capture file as a frame source, restricted
// by the filter.
func OpenCapture(path string, filter capture.Filter) (Source, error) {
	reader, err := capture.NewFilteredReader(path, filter)
	if err != nil {
		return nil, err
	}
	return &captureSource{reader: reader}, nil
}

func (s *captureSource) Next() (frame.Frame, error) {
	for {
		event, err := s.reader.Next()
		if err != nil {
			return frame.Frame{}, err
		}
		if f, ok := event.AsFrame(); ok {
			return f, nil
		}
	}
}

func (s *captureSource) Close() error {
	return s.reader.Close()
}

// textSource adapts a candump log to the Source interface.
type textSource struct {
	scanner *textlog.Scanner
	closer  io.Closer
}

// OpenText opens a candump log file as a frame source.
func OpenText(path string) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return &textSource{scanner: textlog.NewScanner(file), closer: file}, nil
}

// NewTextSource wraps an already-open candump log stream.
func NewTextSource(r io.Reader) Source {
	return &textSource{scanner: textlog.NewScanner(r)}
}

func (s *textSource) Next() (frame.Frame, error) {
	rec, err := s.scanner.Next()
	if err != nil {
		return frame.Frame{}, err
	}
	return rec.Frame, nil
}

func (s *textSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
