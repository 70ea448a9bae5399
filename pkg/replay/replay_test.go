package replay

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// fakeClock records requested sleeps and returns immediately.
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return ctx.Err()
}

// sliceSource yields a fixed list of frames.
type sliceSource struct {
	frames []frame.Frame
	pos    int
	closed bool
}

func (s *sliceSource) Next() (frame.Frame, error) {
	if s.pos >= len(s.frames) {
		return frame.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func timedFrames(base time.Time, gaps ...time.Duration) []frame.Frame {
	var frames []frame.Frame
	at := base
	for i, gap := range gaps {
		at = at.Add(gap)
		f := frame.New(uint32(i+1), false, []byte{byte(i)})
		f.Timestamp = at
		frames = append(frames, f)
	}
	return frames
}

func TestPlayerPacing(t *testing.T) {
	base := time.Now()
	src := &sliceSource{frames: timedFrames(base, 0, 100*time.Millisecond, 50*time.Millisecond)}
	clock := &fakeClock{}

	p := NewPlayer(src, Options{Speed: 1, Clock: clock})
	defer p.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := p.Receive(ctx); err != nil {
			t.Fatalf("Receive %d failed: %v", i, err)
		}
	}

	// No sleep before the first frame, then the recorded gaps.
	if len(clock.slept) != 2 {
		t.Fatalf("slept %d times, want 2: %v", len(clock.slept), clock.slept)
	}
	if clock.slept[0] != 100*time.Millisecond || clock.slept[1] != 50*time.Millisecond {
		t.Errorf("sleeps = %v, want recorded gaps", clock.slept)
	}
}

func TestPlayerSpeedFactor(t *testing.T) {
	base := time.Now()
	src := &sliceSource{frames: timedFrames(base, 0, 100*time.Millisecond)}
	clock := &fakeClock{}

	p := NewPlayer(src, Options{Speed: 4, Clock: clock})
	defer p.Close()

	ctx := context.Background()
	p.Receive(ctx)
	p.Receive(ctx)

	if len(clock.slept) != 1 || clock.slept[0] != 25*time.Millisecond {
		t.Errorf("sleeps = %v, want one 25ms sleep at 4x", clock.slept)
	}
}

func TestPlayerNoPacing(t *testing.T) {
	base := time.Now()
	src := &sliceSource{frames: timedFrames(base, 0, time.Hour)}
	clock := &fakeClock{}

	p := NewPlayer(src, Options{Speed: 0, Clock: clock})
	defer p.Close()

	ctx := context.Background()
	p.Receive(ctx)
	if _, err := p.Receive(ctx); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	if len(clock.slept) != 0 {
		t.Errorf("unpaced player slept: %v", clock.slept)
	}
}

func TestPlayerEndOfRecording(t *testing.T) {
	src := &sliceSource{}
	p := NewPlayer(src, Options{})
	defer p.Close()

	if _, err := p.Receive(context.Background()); err != ErrEndOfRecording {
		t.Errorf("Receive on empty source = %v, want ErrEndOfRecording", err)
	}
}

func TestPlayerIsReadOnly(t *testing.T) {
	p := NewPlayer(&sliceSource{}, Options{})
	defer p.Close()

	if err := p.Send(context.Background(), frame.New(1, false, nil)); err != bus.ErrReadOnly {
		t.Errorf("Send = %v, want ErrReadOnly", err)
	}
}

func TestPlayerClose(t *testing.T) {
	src := &sliceSource{frames: timedFrames(time.Now(), 0)}
	p := NewPlayer(src, Options{})

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !src.closed {
		t.Error("Close did not close the source")
	}
	if _, err := p.Receive(context.Background()); err != bus.ErrClosed {
		t.Errorf("Receive after Close = %v, want ErrClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestCaptureSourceSkipsNonFrameEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.ctlog")

	w, err := capture.NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	w.Log(capture.NewStateEvent("s", "can0", "", "connected", ""))
	w.Log(capture.NewFrameEvent("s", "can0", capture.DirectionRX, frame.New(0x069, false, []byte{1})))
	w.Log(capture.NewErrorEvent("s", "can0", "decode", io.ErrUnexpectedEOF))
	w.Close()

	src, err := OpenCapture(path, capture.Filter{})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer src.Close()

	f, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if f.ID != 0x069 {
		t.Errorf("ID = %X, want 069", f.ID)
	}
	if _, err := src.Next(); err != io.EOF {
		t.Errorf("expected EOF after the only frame, got %v", err)
	}
}

func TestTextSourceReplay(t *testing.T) {
	input := strings.Join([]string{
		"(100.000000) can0 069#01",
		"(100.500000) can0 06A#02",
	}, "\n")

	src := NewTextSource(strings.NewReader(input))
	clock := &fakeClock{}
	p := NewPlayer(src, Options{Speed: 1, Clock: clock})
	defer p.Close()

	ctx := context.Background()
	f1, err := p.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	f2, err := p.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if f1.ID != 0x069 || f2.ID != 0x06A {
		t.Errorf("IDs = %X %X, want 069 06A", f1.ID, f2.ID)
	}
	if len(clock.slept) != 1 || clock.slept[0] != 500*time.Millisecond {
		t.Errorf("sleeps = %v, want one 500ms gap", clock.slept)
	}
}

func TestEndOfRecordingIsCleanStop(t *testing.T) {
	p := NewPlayer(&sliceSource{}, Options{})
	defer p.Close()

	_, err := p.Receive(context.Background())
	if err != ErrEndOfRecording {
		t.Fatalf("Receive = %v, want ErrEndOfRecording", err)
	}
	// Consumers checking for a closed bus must see a drained recording
	// the same way.
	if !errors.Is(err, bus.ErrClosed) {
		t.Error("ErrEndOfRecording does not wrap bus.ErrClosed")
	}
}
