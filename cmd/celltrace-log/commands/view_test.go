package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// writeCapture writes the given events to a fresh capture file and
// returns its path.
func writeCapture(t *testing.T, events ...capture.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.ctlog")
	w, err := capture.NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	for _, e := range events {
		w.Log(e)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func testFrame(id uint32, extended bool, data []byte, ts time.Time) frame.Frame {
	var f frame.Frame
	f.ID = id
	f.Extended = extended
	f.Length = uint8(len(data))
	copy(f.Data[:], data)
	f.Timestamp = ts
	return f
}

func TestFormatFrameEvent(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	event := capture.NewFrameEvent(
		"abc12345-6789-0123-4567-890abcdef012", "can0",
		capture.DirectionRX,
		testFrame(0x069, false, []byte{0xDE, 0xAD}, ts),
	)

	var buf bytes.Buffer
	formatEvent(&buf, event, nil)
	output := buf.String()

	if !strings.Contains(output, "2026-03-14T09:26:53.589793Z") {
		t.Errorf("expected microsecond timestamp, got: %s", output)
	}
	if !strings.Contains(output, "[abc12345]") {
		t.Errorf("expected shortened session ID, got: %s", output)
	}
	if !strings.Contains(output, "RX") {
		t.Errorf("expected RX direction, got: %s", output)
	}
	if !strings.Contains(output, "can0") {
		t.Errorf("expected channel name, got: %s", output)
	}
	if !strings.Contains(output, "ID: 069") {
		t.Errorf("expected frame ID, got: %s", output)
	}
	if !strings.Contains(output, "Data: dead") {
		t.Errorf("expected hex payload, got: %s", output)
	}
}

func TestFormatFrameEventRTR(t *testing.T) {
	f := testFrame(0x123, false, nil, time.Now())
	f.RTR = true
	event := capture.NewFrameEvent("s1", "can0", capture.DirectionTX, f)

	var buf bytes.Buffer
	formatEvent(&buf, event, nil)
	output := buf.String()

	if !strings.Contains(output, "ID: 123 RTR") {
		t.Errorf("expected RTR marker, got: %s", output)
	}
	if strings.Contains(output, "Data:") {
		t.Errorf("RTR frame should not print a payload, got: %s", output)
	}
}

func TestFormatFrameEventDecoded(t *testing.T) {
	db := bmsdb.New()
	f, err := frame.EncodeFrame(db, "PACK_MSG", map[string]float64{
		"BMS_Pack_Voltage": 403.2,
		"BMS_Pack_Current": -12.5,
	})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	f.Timestamp = time.Now()
	event := capture.NewFrameEvent("s1", "can0", capture.DirectionRX, f)

	var buf bytes.Buffer
	formatEvent(&buf, event, db)
	output := buf.String()

	if !strings.Contains(output, "Message: PACK_MSG") {
		t.Errorf("expected decoded message name, got: %s", output)
	}
	if !strings.Contains(output, "BMS_Pack_Voltage") {
		t.Errorf("expected voltage signal, got: %s", output)
	}
	if !strings.Contains(output, "BMS_Pack_Current") {
		t.Errorf("expected current signal, got: %s", output)
	}
}

func TestFormatStateEvent(t *testing.T) {
	event := capture.NewStateEvent("s1", "can0", "opening", "open", "adapter ready")

	var buf bytes.Buffer
	formatEvent(&buf, event, nil)
	output := buf.String()

	if !strings.Contains(output, "State") {
		t.Errorf("expected State label, got: %s", output)
	}
	if !strings.Contains(output, "opening -> open") {
		t.Errorf("expected state transition, got: %s", output)
	}
	if !strings.Contains(output, "Reason: adapter ready") {
		t.Errorf("expected reason, got: %s", output)
	}
}

func TestFormatErrorEvent(t *testing.T) {
	event := capture.Event{
		Timestamp: time.Now(),
		SessionID: "s1",
		Channel:   "can0",
		Error: &capture.ErrorEvent{
			Message: "short frame line",
			Context: "slcan read",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event, nil)
	output := buf.String()

	if !strings.Contains(output, "Error") {
		t.Errorf("expected Error label, got: %s", output)
	}
	if !strings.Contains(output, "short frame line") {
		t.Errorf("expected error message, got: %s", output)
	}
	if !strings.Contains(output, "Context: slcan read") {
		t.Errorf("expected context, got: %s", output)
	}
}

func TestRunViewIDFilter(t *testing.T) {
	ts := time.Now()
	path := writeCapture(t,
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0x069, false, []byte{0x01}, ts)),
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0xB077, true, []byte{0x02}, ts.Add(time.Millisecond))),
	)

	var buf bytes.Buffer
	opts := ViewOptions{Filter: ViewFilter{IDs: []uint32{0xB077}}}
	if err := RunView(path, opts, &buf); err != nil {
		t.Fatalf("RunView: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "ID: 0000B077") {
		t.Errorf("expected extended frame, got: %s", output)
	}
	if strings.Contains(output, "ID: 069") {
		t.Errorf("expected standard frame filtered out, got: %s", output)
	}
}

func TestRunViewDirectionFilter(t *testing.T) {
	ts := time.Now()
	path := writeCapture(t,
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0x100, false, []byte{0x01}, ts)),
		capture.NewFrameEvent("s1", "can0", capture.DirectionTX,
			testFrame(0x200, false, []byte{0x02}, ts)),
	)

	tx := capture.DirectionTX
	var buf bytes.Buffer
	opts := ViewOptions{Filter: ViewFilter{Direction: &tx}}
	if err := RunView(path, opts, &buf); err != nil {
		t.Fatalf("RunView: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "ID: 200") {
		t.Errorf("expected TX frame, got: %s", output)
	}
	if strings.Contains(output, "ID: 100") {
		t.Errorf("expected RX frame filtered out, got: %s", output)
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "nope.ctlog"), ViewOptions{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseDirectionFlag(t *testing.T) {
	tests := []struct {
		input    string
		expected capture.Direction
		wantErr  bool
	}{
		{"rx", capture.DirectionRX, false},
		{"RX", capture.DirectionRX, false},
		{"tx", capture.DirectionTX, false},
		{"TX", capture.DirectionTX, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDirectionFlag(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDirectionFlag(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDirectionFlag(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("ParseDirectionFlag(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseIDsFlag(t *testing.T) {
	ids, err := ParseIDsFlag("069, 0xB077")
	if err != nil {
		t.Fatalf("ParseIDsFlag: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0x069 || ids[1] != 0xB077 {
		t.Errorf("ParseIDsFlag = %v, want [69 B077]", ids)
	}

	ids, err = ParseIDsFlag("")
	if err != nil {
		t.Fatalf("ParseIDsFlag(empty): %v", err)
	}
	if ids != nil {
		t.Errorf("expected nil for empty flag, got %v", ids)
	}

	if _, err := ParseIDsFlag("zzz"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestShortenID(t *testing.T) {
	if got := shortenID("abc12345-6789"); got != "abc12345" {
		t.Errorf("shortenID = %q, want abc12345", got)
	}
	if got := shortenID("ab"); got != "ab" {
		t.Errorf("shortenID = %q, want ab", got)
	}
}
