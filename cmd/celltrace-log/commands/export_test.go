package commands

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/celltrace/celltrace-go/pkg/capture"
)

func TestExportJSONL(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	path := writeCapture(t,
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0x069, false, []byte{0xDE, 0xAD}, ts)),
		capture.NewStateEvent("s1", "can0", "", "open", ""),
	)

	out := filepath.Join(t.TempDir(), "out.jsonl")
	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
	for i, line := range lines {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i+1, err)
		}
	}
}

func TestExportCSV(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	path := writeCapture(t,
		capture.NewFrameEvent("s1", "can0", capture.DirectionRX,
			testFrame(0xB077, true, []byte{0x4A, 0x80}, ts)),
	)

	out := filepath.Join(t.TempDir(), "out.csv")
	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][5] != "can_id" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	row := rows[1]
	if row[1] != "s1" || row[2] != "can0" || row[3] != "RX" || row[4] != "frame" {
		t.Errorf("unexpected row: %v", row)
	}
	if row[5] != "0000B077" {
		t.Errorf("expected extended ID 0000B077, got %q", row[5])
	}
	if row[6] != "4A80" {
		t.Errorf("expected payload 4A80, got %q", row[6])
	}
}

func TestExportText(t *testing.T) {
	ts := time.Unix(100, 0)
	path := writeCapture(t,
		capture.NewFrameEvent("s1", "vcan0", capture.DirectionRX,
			testFrame(0x069, false, []byte{0xDE, 0xAD}, ts)),
		capture.NewStateEvent("s1", "vcan0", "", "open", ""),
	)

	out := filepath.Join(t.TempDir(), "out.log")
	if err := RunExport(path, "text", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := string(data)
	if got != "(100.000000) vcan0 069#DEAD\n" {
		t.Errorf("unexpected text output: %q", got)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := writeCapture(t,
		capture.NewStateEvent("s1", "can0", "", "open", ""),
	)
	err := RunExport(path, "xml", "")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got: %v", err)
	}
}

func TestImportRoundtrip(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "candump.log")
	content := "(100.000000) can0 069#DEAD\n(100.500000) can0 0000B077#4A80E0C0\n"
	if err := os.WriteFile(textPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out := filepath.Join(dir, "imported.ctlog")
	if err := RunImport(textPath, out, "import-test"); err != nil {
		t.Fatalf("RunImport: %v", err)
	}

	reader, err := capture.NewReader(out)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()

	first, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.SessionID != "import-test" {
		t.Errorf("SessionID = %q, want import-test", first.SessionID)
	}
	if first.Direction != capture.DirectionRX {
		t.Errorf("Direction = %v, want RX", first.Direction)
	}
	if first.Frame == nil || first.Frame.ID != 0x069 {
		t.Fatalf("unexpected first event: %+v", first)
	}

	second, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Frame == nil || second.Frame.ID != 0xB077 || !second.Frame.Extended {
		t.Fatalf("unexpected second event: %+v", second)
	}
	if second.Timestamp.Sub(first.Timestamp) != 500*time.Millisecond {
		t.Errorf("timestamp gap = %v, want 500ms", second.Timestamp.Sub(first.Timestamp))
	}
}
