package bmsdb

import (
	"fmt"
	"strconv"
	"strings"
)

// Cell signal kinds, matching the suffix of the generated signal names.
const (
	KindVoltage     = "Voltage"
	KindVoltageDiff = "VoltageDiff"
	KindTemp        = "Temp"
	KindDischarging = "isDischarging"
	KindFault       = "isFaultDetected"
)

// CellSignal returns the name of a cell signal, e.g.
// CellSignal(3, 12, KindVoltage) == "CELL_3x12_Voltage".
func CellSignal(seg, cell int, kind string) string {
	return fmt.Sprintf("CELL_%dx%d_%s", seg, cell, kind)
}

// SegmentSignal returns the name of a segment monitor signal, e.g.
// SegmentSignal(2, "IC_Temp") == "SEG_2_IC_Temp".
func SegmentSignal(seg int, kind string) string {
	return fmt.Sprintf("SEG_%d_%s", seg, kind)
}

// ParseCellSignal splits a cell signal name into its 1-based segment and
// cell numbers and the signal kind. Returns ok=false for names that do not
// follow the CELL_{seg}x{cell}_{kind} pattern or are outside the pack
// geometry.
func ParseCellSignal(name string) (seg, cell int, kind string, ok bool) {
	rest, found := strings.CutPrefix(name, "CELL_")
	if !found {
		return 0, 0, "", false
	}

	coords, kind, found := strings.Cut(rest, "_")
	if !found || kind == "" {
		return 0, 0, "", false
	}

	segStr, cellStr, found := strings.Cut(coords, "x")
	if !found {
		return 0, 0, "", false
	}

	seg, err := strconv.Atoi(segStr)
	if err != nil {
		return 0, 0, "", false
	}
	cell, err = strconv.Atoi(cellStr)
	if err != nil {
		return 0, 0, "", false
	}

	if seg < 1 || seg > NumSegments || cell < 1 || cell > CellsPerSegment {
		return 0, 0, "", false
	}
	return seg, cell, kind, true
}

// ParseSegmentSignal splits a segment signal name into its 1-based segment
// number and kind. Returns ok=false for names that do not follow the
// SEG_{seg}_{kind} pattern.
func ParseSegmentSignal(name string) (seg int, kind string, ok bool) {
	rest, found := strings.CutPrefix(name, "SEG_")
	if !found {
		return 0, "", false
	}

	segStr, kind, found := strings.Cut(rest, "_")
	if !found || kind == "" {
		return 0, "", false
	}

	seg, err := strconv.Atoi(segStr)
	if err != nil || seg < 1 || seg > NumSegments {
		return 0, "", false
	}
	return seg, kind, true
}
