// Package textlog reads and writes CAN traffic in the candump log format
// used by the Linux can-utils tools:
//
//	(1693412345.123456) can0 0000B077#A80E0C00
//
// The format is line-oriented and lossy compared to the binary capture
// format: it carries only frames, with no session or decode information.
// It exists for interoperability, so captures can be exchanged with
// candump/canplayer and inspected with standard text tools.
package textlog

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/celltrace/celltrace-go/pkg/frame"
)

// Record is one parsed log line.
type Record struct {
	// Channel is the interface name from the log line, e.g. "can0".
	Channel string

	Frame frame.Frame
}

// FormatLine renders a frame as a candump log line. The frame timestamp
// is written as fractional seconds since the Unix epoch with microsecond
// precision, matching candump -l output.
func FormatLine(channel string, f frame.Frame) string {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	secs := float64(ts.UnixNano()) / float64(time.Second)
	return fmt.Sprintf("(%.6f) %s %s", secs, channel, f.String())
}

// ParseLine parses a candump log line. Lines must carry a timestamp, an
// interface name and an ID#DATA body. IDs with more than three hex digits
// are treated as extended, matching candump conventions.
func ParseLine(line string) (Record, error) {
	line = strings.TrimSpace(line)

	start := strings.Index(line, "(")
	end := strings.Index(line, ")")
	if start == -1 || end == -1 || start > end {
		return Record{}, fmt.Errorf("missing timestamp in %q", line)
	}
	secs, err := strconv.ParseFloat(line[start+1:end], 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp in %q: %w", line, err)
	}

	rest := strings.TrimSpace(line[end+1:])
	hash := strings.Index(rest, "#")
	if hash == -1 {
		return Record{}, fmt.Errorf("no # separator in %q", line)
	}

	head := strings.Fields(rest[:hash])
	if len(head) == 0 {
		return Record{}, fmt.Errorf("no CAN ID in %q", line)
	}
	channel := ""
	if len(head) > 1 {
		channel = head[0]
	}
	idText := head[len(head)-1]

	id, err := strconv.ParseUint(idText, 16, 32)
	if err != nil {
		return Record{}, fmt.Errorf("invalid CAN ID %q: %w", idText, err)
	}
	extended := len(idText) > 3

	body := strings.TrimSpace(rest[hash+1:])

	f := frame.Frame{}
	if strings.HasPrefix(body, "R") {
		f = frame.New(uint32(id), extended, nil)
		f.RTR = true
		if len(body) > 1 {
			n, err := strconv.Atoi(body[1:])
			if err != nil || n < 0 || n > frame.MaxDataLength {
				return Record{}, fmt.Errorf("invalid RTR length in %q", line)
			}
			f.Length = uint8(n)
		}
	} else {
		body = strings.ReplaceAll(body, " ", "")
		data, err := hex.DecodeString(body)
		if err != nil {
			return Record{}, fmt.Errorf("invalid payload in %q: %w", line, err)
		}
		if len(data) > frame.MaxDataLength {
			return Record{}, fmt.Errorf("payload too long in %q", line)
		}
		f = frame.New(uint32(id), extended, data)
	}

	whole, frac := math.Modf(secs)
	f.Timestamp = time.Unix(int64(whole), int64(frac*float64(time.Second)))

	return Record{Channel: channel, Frame: f}, nil
}

// Scanner reads candump log lines from a stream. Blank lines and lines
// starting with '#' are skipped.
type Scanner struct {
	scanner *bufio.Scanner
	line    int
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{scanner: bufio.NewScanner(r)}
}

// Next returns the next record. It returns io.EOF when the stream is
// exhausted, and a descriptive error for malformed lines.
func (s *Scanner) Next() (Record, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rec, err := ParseLine(text)
		if err != nil {
			return Record{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		return rec, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// Writer writes frames as candump log lines.
type Writer struct {
	w io.Writer
}

// NewWriter creates a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends one log line for the frame.
func (w *Writer) Write(channel string, f frame.Frame) error {
	_, err := fmt.Fprintln(w.w, FormatLine(channel, f))
	return err
}
