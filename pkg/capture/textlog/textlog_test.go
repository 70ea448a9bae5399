package textlog

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/celltrace/celltrace-go/pkg/frame"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		id       uint32
		extended bool
		channel  string
		data     []byte
		rtr      bool
	}{
		{
			name:    "standard frame",
			line:    "(1693412345.123456) can0 069#DEAD",
			id:      0x069,
			channel: "can0",
			data:    []byte{0xDE, 0xAD},
		},
		{
			name:     "extended frame",
			line:     "(1693412345.000001) vcan0 0000B077#A80E0C00",
			id:       0xB077,
			extended: true,
			channel:  "vcan0",
			data:     []byte{0xA8, 0x0E, 0x0C, 0x00},
		},
		{
			name:    "empty payload",
			line:    "(1.0) can0 100#",
			id:      0x100,
			channel: "can0",
			data:    nil,
		},
		{
			name:    "remote frame",
			line:    "(1.0) can0 123#R",
			id:      0x123,
			channel: "can0",
			rtr:     true,
		},
		{
			name:    "remote frame with length",
			line:    "(1.0) can0 123#R4",
			id:      0x123,
			channel: "can0",
			rtr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine failed: %v", err)
			}
			if rec.Channel != tt.channel {
				t.Errorf("Channel = %q, want %q", rec.Channel, tt.channel)
			}
			if rec.Frame.ID != tt.id {
				t.Errorf("ID = %X, want %X", rec.Frame.ID, tt.id)
			}
			if rec.Frame.Extended != tt.extended {
				t.Errorf("Extended = %v, want %v", rec.Frame.Extended, tt.extended)
			}
			if rec.Frame.RTR != tt.rtr {
				t.Errorf("RTR = %v, want %v", rec.Frame.RTR, tt.rtr)
			}
			if !tt.rtr {
				got := rec.Frame.Payload()
				if len(got) != len(tt.data) {
					t.Fatalf("payload = % X, want % X", got, tt.data)
				}
				for i := range got {
					if got[i] != tt.data[i] {
						t.Errorf("payload = % X, want % X", got, tt.data)
						break
					}
				}
			}
		})
	}
}

func TestParseLineTimestamp(t *testing.T) {
	rec, err := ParseLine("(1693412345.500000) can0 069#")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	want := time.Unix(1693412345, 500000000)
	diff := rec.Frame.Timestamp.Sub(want)
	if diff < -time.Microsecond || diff > time.Microsecond {
		t.Errorf("Timestamp = %v, want %v", rec.Frame.Timestamp, want)
	}
}

func TestParseLineErrors(t *testing.T) {
	lines := []string{
		"",
		"no timestamp here",
		"(abc) can0 069#00",
		"(1.0) can0 nothex#00",
		"(1.0) can0 069#XYZ",
		"(1.0) can0 069#000102030405060708FF", // too long
		"(1.0) can0 069 no separator",
	}
	for _, line := range lines {
		if _, err := ParseLine(line); err == nil {
			t.Errorf("ParseLine(%q) succeeded, want error", line)
		}
	}
}

func TestFormatRoundtrip(t *testing.T) {
	f := frame.New(0xB077, true, []byte{0xA8, 0x0E})
	f.Timestamp = time.Unix(1693412345, 123456000)

	line := FormatLine("can0", f)
	rec, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine(%q) failed: %v", line, err)
	}
	if rec.Channel != "can0" || rec.Frame.ID != 0xB077 || !rec.Frame.Extended {
		t.Errorf("roundtrip mismatch: %q -> %+v", line, rec)
	}
	if rec.Frame.Payload()[1] != 0x0E {
		t.Errorf("payload lost in roundtrip: %q", line)
	}
}

func TestScannerSkipsBlanksAndComments(t *testing.T) {
	input := strings.Join([]string{
		"# exported capture",
		"",
		"(1.0) can0 069#01",
		"   ",
		"(2.0) can0 06A#02",
	}, "\n")

	s := NewScanner(strings.NewReader(input))

	var ids []uint32
	for {
		rec, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		ids = append(ids, rec.Frame.ID)
	}

	if len(ids) != 2 || ids[0] != 0x069 || ids[1] != 0x06A {
		t.Errorf("ids = %X, want [069 06A]", ids)
	}
}

func TestScannerReportsLineNumber(t *testing.T) {
	input := "(1.0) can0 069#01\nbroken line\n"
	s := NewScanner(strings.NewReader(input))

	if _, err := s.Next(); err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	_, err := s.Next()
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("err = %v, want line 2 context", err)
	}
}

func TestWriter(t *testing.T) {
	var sb strings.Builder
	w := NewWriter(&sb)

	f := frame.New(0x069, false, []byte{0xDE, 0xAD})
	f.Timestamp = time.Unix(100, 0)
	if err := w.Write("can0", f); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got := strings.TrimSpace(sb.String())
	want := "(100.000000) can0 069#DEAD"
	if got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}
