package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/capture"
)

func TestRunStats(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	path := writeCapture(t,
		capture.NewStateEvent("s1", "can0", "", "open", ""),
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0xB077, true, []byte{0x01}, base)),
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0xB077, true, []byte{0x02}, base.Add(time.Second))),
		capture.NewFrameEvent("s1", "can0", capture.DirectionTX,
			testFrame(0x069, false, []byte{0x03}, base.Add(2*time.Second))),
	)

	var buf bytes.Buffer
	if err := RunStats(path, nil, &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "=== Capture Statistics ===") {
		t.Errorf("expected header, got: %s", output)
	}
	if !strings.Contains(output, "Total Events:   4") {
		t.Errorf("expected 4 total events, got: %s", output)
	}
	if !strings.Contains(output, "Frames:       3") {
		t.Errorf("expected 3 frames, got: %s", output)
	}
	if !strings.Contains(output, "State:        1") {
		t.Errorf("expected 1 state event, got: %s", output)
	}
	if !strings.Contains(output, "RX:           2") {
		t.Errorf("expected 2 RX frames, got: %s", output)
	}
	if !strings.Contains(output, "TX:           1") {
		t.Errorf("expected 1 TX frame, got: %s", output)
	}
	if !strings.Contains(output, "Sessions: 1") {
		t.Errorf("expected 1 session, got: %s", output)
	}
	if !strings.Contains(output, "CAN IDs: 2") {
		t.Errorf("expected 2 distinct IDs, got: %s", output)
	}
	if !strings.Contains(output, "069") || !strings.Contains(output, "0000B077") {
		t.Errorf("expected per-ID lines, got: %s", output)
	}
}

func TestRunStatsRate(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	// 11 frames over 1 second: rate = 10 Hz.
	events := make([]capture.Event, 0, 11)
	for i := 0; i < 11; i++ {
		events = append(events, capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0x100, false, []byte{byte(i)}, base.Add(time.Duration(i)*100*time.Millisecond))))
	}
	path := writeCapture(t, events...)

	var buf bytes.Buffer
	if err := RunStats(path, nil, &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}

	if !strings.Contains(buf.String(), "10.0 Hz") {
		t.Errorf("expected 10.0 Hz rate, got: %s", buf.String())
	}
}

func TestRunStatsDatabaseNames(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	path := writeCapture(t,
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(bmsdb.PackFrameID(), true, []byte{0x01}, base)),
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0x7DF, false, []byte{0x02}, base)),
	)

	var buf bytes.Buffer
	if err := RunStats(path, bmsdb.New(), &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "PACK_MSG") {
		t.Errorf("expected PACK_MSG name for 0xB077, got: %s", output)
	}
	// 0x7DF is not in the database; its line carries no name.
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "7DF") && strings.Contains(line, "_MSG") {
			t.Errorf("unexpected name on unknown ID line: %s", line)
		}
	}
}

func TestFrameStatsRate(t *testing.T) {
	base := time.Now()
	fs := &FrameStats{Count: 5, FirstSeen: base, LastSeen: base.Add(2 * time.Second)}
	if got := fs.Rate(); got != 2.0 {
		t.Errorf("Rate() = %v, want 2.0", got)
	}

	single := &FrameStats{Count: 1, FirstSeen: base, LastSeen: base}
	if got := single.Rate(); got != 0 {
		t.Errorf("Rate() for single frame = %v, want 0", got)
	}
}
