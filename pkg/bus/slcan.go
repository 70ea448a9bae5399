package bus

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celltrace/celltrace-go/pkg/frame"
)

// Bitrate selects the CAN bitrate of an slcan adapter.
type Bitrate int

// Standard CAN bitrates supported by the slcan protocol.
const (
	Bitrate10k Bitrate = iota
	Bitrate20k
	Bitrate50k
	Bitrate100k
	Bitrate125k
	Bitrate250k
	Bitrate500k
	Bitrate800k
	Bitrate1M
)

// setupCommand returns the slcan bitrate setup command for the bitrate.
func (b Bitrate) setupCommand() (string, error) {
	if b < Bitrate10k || b > Bitrate1M {
		return "", fmt.Errorf("unsupported bitrate code %d", b)
	}
	return fmt.Sprintf("S%d\r", b), nil
}

// String returns the bitrate in human terms.
func (b Bitrate) String() string {
	names := []string{"10k", "20k", "50k", "100k", "125k", "250k", "500k", "800k", "1M"}
	if b < Bitrate10k || b > Bitrate1M {
		return "UNKNOWN"
	}
	return names[b]
}

// ParseBitrate parses a bitrate name such as "500k" or "1M".
func ParseBitrate(s string) (Bitrate, error) {
	for b := Bitrate10k; b <= Bitrate1M; b++ {
		if strings.EqualFold(s, b.String()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown bitrate %q", s)
}

// marshalSLCAN renders a frame as an slcan transmit command, without
// the trailing carriage return.
func marshalSLCAN(f frame.Frame) (string, error) {
	if f.Length > frame.MaxDataLength {
		return "", fmt.Errorf("frame length %d exceeds %d", f.Length, frame.MaxDataLength)
	}

	var sb strings.Builder
	switch {
	case f.RTR && f.Extended:
		fmt.Fprintf(&sb, "R%08X%d", f.ID, f.Length)
	case f.RTR:
		fmt.Fprintf(&sb, "r%03X%d", f.ID, f.Length)
	case f.Extended:
		fmt.Fprintf(&sb, "T%08X%d%X", f.ID, f.Length, f.Payload())
	default:
		fmt.Fprintf(&sb, "t%03X%d%X", f.ID, f.Length, f.Payload())
	}
	return sb.String(), nil
}

// parseSLCAN parses an slcan frame line (t/T/r/R commands) without the
// trailing carriage return.
func parseSLCAN(line string) (frame.Frame, error) {
	if len(line) == 0 {
		return frame.Frame{}, fmt.Errorf("empty slcan line")
	}

	var (
		extended bool
		rtr      bool
		idLen    int
	)
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		extended, idLen = true, 8
	case 'r':
		rtr, idLen = true, 3
	case 'R':
		extended, rtr, idLen = true, true, 8
	default:
		return frame.Frame{}, fmt.Errorf("not a frame line: %q", line)
	}

	if len(line) < 1+idLen+1 {
		return frame.Frame{}, fmt.Errorf("truncated slcan line %q", line)
	}

	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("invalid slcan ID in %q: %w", line, err)
	}

	length, err := strconv.Atoi(line[1+idLen : 1+idLen+1])
	if err != nil || length < 0 || length > frame.MaxDataLength {
		return frame.Frame{}, fmt.Errorf("invalid slcan length in %q", line)
	}

	f := frame.New(uint32(id), extended, nil)
	f.RTR = rtr
	f.Length = uint8(length)

	if !rtr {
		body := line[1+idLen+1:]
		if len(body) != length*2 {
			return frame.Frame{}, fmt.Errorf("slcan payload length mismatch in %q", line)
		}
		data, err := hex.DecodeString(body)
		if err != nil {
			return frame.Frame{}, fmt.Errorf("invalid slcan payload in %q: %w", line, err)
		}
		copy(f.Data[:], data)
	}

	return f, nil
}

// SLCANConfig configures an slcan bus.
type SLCANConfig struct {
	// Bitrate is the CAN bitrate to configure on open.
	Bitrate Bitrate

	// Channel overrides the channel name (default: device base name).
	Channel string

	// ReceiveBuffer is the receive queue depth (default: 256).
	ReceiveBuffer int
}

// DefaultSLCANConfig returns the default slcan configuration: 500 kbit/s,
// the bitrate used by the battery pack broadcast bus.
func DefaultSLCANConfig() SLCANConfig {
	return SLCANConfig{
		Bitrate:       Bitrate500k,
		ReceiveBuffer: 256,
	}
}

// SLCAN is a Bus backed by an slcan serial adapter.
type SLCAN struct {
	port    io.ReadWriteCloser
	channel string

	frames chan frame.Frame

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	readErr error
}

var _ Bus = (*SLCAN)(nil)

// OpenSLCAN opens an slcan adapter on a serial device such as
// /dev/ttyACM0. The adapter channel is closed, configured to the
// requested bitrate and reopened.
func OpenSLCAN(device string, config SLCANConfig) (*SLCAN, error) {
	port, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if config.Channel == "" {
		config.Channel = filepath.Base(device)
	}
	b, err := NewSLCAN(port, config)
	if err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

// NewSLCAN wraps an already-open slcan port. Used directly in tests
// with an in-memory pipe standing in for the serial device.
func NewSLCAN(port io.ReadWriteCloser, config SLCANConfig) (*SLCAN, error) {
	if config.ReceiveBuffer == 0 {
		config.ReceiveBuffer = 256
	}
	if config.Channel == "" {
		config.Channel = "slcan0"
	}

	setup, err := config.Bitrate.setupCommand()
	if err != nil {
		return nil, err
	}

	// Close the channel first in case the adapter was left open, then
	// set the bitrate and open.
	for _, cmd := range []string{"C\r", setup, "O\r"} {
		if _, err := io.WriteString(port, cmd); err != nil {
			return nil, fmt.Errorf("slcan setup: %w", err)
		}
	}

	b := &SLCAN{
		port:    port,
		channel: config.Channel,
		frames:  make(chan frame.Frame, config.ReceiveBuffer),
		closed:  make(chan struct{}),
	}
	go b.readLoop()

	return b, nil
}

// Channel returns the configured channel name.
func (b *SLCAN) Channel() string {
	return b.channel
}

// Receive returns the next frame from the adapter.
func (b *SLCAN) Receive(ctx context.Context) (frame.Frame, error) {
	select {
	case f, ok := <-b.frames:
		if !ok {
			return frame.Frame{}, b.closeReason()
		}
		return f, nil
	case <-b.closed:
		// Drain frames already queued before reporting closure.
		select {
		case f, ok := <-b.frames:
			if ok {
				return f, nil
			}
		default:
		}
		return frame.Frame{}, b.closeReason()
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// Send transmits a frame through the adapter.
func (b *SLCAN) Send(ctx context.Context, f frame.Frame) error {
	select {
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	line, err := marshalSLCAN(f)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := io.WriteString(b.port, line+"\r"); err != nil {
		return fmt.Errorf("slcan write: %w", err)
	}
	return nil
}

// Close shuts the adapter channel and closes the serial port.
func (b *SLCAN) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		b.writeMu.Lock()
		_, _ = io.WriteString(b.port, "C\r")
		b.writeMu.Unlock()
		err = b.port.Close()
	})
	return err
}

func (b *SLCAN) closeReason() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return b.readErr
	}
	return ErrClosed
}

// readLoop reads slcan lines from the port and queues decoded frames.
// Adapter status responses (bare CR for OK, BEL for error) and non-frame
// replies are skipped. Frames are dropped when the receive queue is full
// rather than stalling the serial reader.
func (b *SLCAN) readLoop() {
	defer close(b.frames)

	reader := bufio.NewReader(b.port)
	var line []byte
	for {
		c, err := reader.ReadByte()
		if err != nil {
			select {
			case <-b.closed:
			default:
				b.mu.Lock()
				b.readErr = fmt.Errorf("slcan read: %w", err)
				b.mu.Unlock()
				b.Close()
			}
			return
		}

		switch c {
		case '\r', '\n', '\a':
			if len(line) == 0 {
				continue
			}
			text := string(line)
			line = line[:0]

			f, err := parseSLCAN(text)
			if err != nil {
				// Version strings and command echoes land here.
				continue
			}
			f.Timestamp = time.Now()

			select {
			case b.frames <- f:
			default:
			}
		default:
			line = append(line, c)
		}
	}
}
