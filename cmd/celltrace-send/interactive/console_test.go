package interactive

import (
	"bytes"
	"testing"
)

func TestParseFrameArgs(t *testing.T) {
	tests := []struct {
		id       string
		data     string
		wantID   uint32
		extended bool
		payload  []byte
		wantErr  bool
	}{
		{id: "069", data: "DEAD", wantID: 0x069, payload: []byte{0xDE, 0xAD}},
		{id: "69", data: "", wantID: 0x069},
		{id: "7FF", data: "00", wantID: 0x7FF, payload: []byte{0x00}},
		{id: "B077", data: "4A80E0C0", wantID: 0xB077, extended: true, payload: []byte{0x4A, 0x80, 0xE0, 0xC0}},
		{id: "0xB077", data: "", wantID: 0xB077, extended: true},
		{id: "1FFFFFFF", data: "", wantID: 0x1FFFFFFF, extended: true},
		{id: "20000000", data: "", wantErr: true}, // beyond 29 bits
		{id: "xyz", data: "", wantErr: true},
		{id: "069", data: "DEA", wantErr: true},                // odd hex
		{id: "069", data: "001122334455667788", wantErr: true}, // 9 bytes
	}

	for _, tt := range tests {
		f, err := parseFrameArgs(tt.id, tt.data)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseFrameArgs(%q, %q) expected error", tt.id, tt.data)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseFrameArgs(%q, %q) unexpected error: %v", tt.id, tt.data, err)
			continue
		}
		if f.ID != tt.wantID {
			t.Errorf("parseFrameArgs(%q) ID = %X, want %X", tt.id, f.ID, tt.wantID)
		}
		if f.Extended != tt.extended {
			t.Errorf("parseFrameArgs(%q) Extended = %v, want %v", tt.id, f.Extended, tt.extended)
		}
		if int(f.Length) != len(tt.payload) {
			t.Errorf("parseFrameArgs(%q, %q) Length = %d, want %d", tt.id, tt.data, f.Length, len(tt.payload))
		}
		if !bytes.Equal(f.Payload(), tt.payload) && len(tt.payload) > 0 {
			t.Errorf("parseFrameArgs(%q, %q) payload = %X, want %X", tt.id, tt.data, f.Payload(), tt.payload)
		}
	}
}

func TestParseSignalValues(t *testing.T) {
	values, err := parseSignalValues([]string{"BMS_Pack_Voltage=403.2", "BMS_Pack_Current=-12.5"})
	if err != nil {
		t.Fatalf("parseSignalValues: %v", err)
	}
	if values["BMS_Pack_Voltage"] != 403.2 {
		t.Errorf("voltage = %v, want 403.2", values["BMS_Pack_Voltage"])
	}
	if values["BMS_Pack_Current"] != -12.5 {
		t.Errorf("current = %v, want -12.5", values["BMS_Pack_Current"])
	}

	if _, err := parseSignalValues([]string{"novalue"}); err == nil {
		t.Error("expected error for missing =")
	}
	if _, err := parseSignalValues([]string{"sig=abc"}); err == nil {
		t.Error("expected error for non-numeric value")
	}
	if _, err := parseSignalValues([]string{"=1.0"}); err == nil {
		t.Error("expected error for empty name")
	}
}
