package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// CellState is the latest reading of one cell.
type CellState struct {
	// Voltage in volts.
	Voltage float64

	// VoltageDiff is the deviation from the pack mean, in millivolts.
	VoltageDiff float64

	// Temp in degrees Celsius.
	Temp float64

	Discharging bool
	Fault       bool

	// Updated is the timestamp of the last frame for this cell.
	// Zero until the first frame arrives.
	Updated time.Time
}

// SegmentState is the latest reading of one segment monitor IC.
type SegmentState struct {
	// ICVoltage is the monitor supply voltage in volts.
	ICVoltage float64

	// ICTemp is the monitor die temperature in degrees Celsius.
	ICTemp float64

	CommsError bool
	Fault      bool

	Updated time.Time
}

// PackState is the latest pack-level reading.
type PackState struct {
	// Voltage is the total pack voltage in volts.
	Voltage float64

	// Current is the pack current in amperes, negative on discharge.
	Current float64

	// CommsError and Fault mirror the BMS master status flags.
	CommsError bool
	Fault      bool

	Updated time.Time
}

// PackStats are aggregates derived from the cell snapshot. Cells that
// have not reported yet are excluded.
type PackStats struct {
	CellsReporting int

	// MinVoltage and MaxVoltage in volts, with the owning cell names.
	MinVoltage float64
	MinCell    string
	MaxVoltage float64
	MaxCell    string

	// MeanVoltage in volts.
	MeanVoltage float64

	// Spread is MaxVoltage-MinVoltage in millivolts.
	Spread float64

	// MaxTemp in degrees Celsius, with the owning cell name.
	MaxTemp     float64
	HottestCell string

	// Discharging counts cells with active balancing discharge.
	Discharging int

	// Faults lists cell and segment names with an active fault flag.
	Faults []string
}

// Snapshot holds the latest decoded state of the whole pack.
// It implements Handler and is safe for concurrent use.
type Snapshot struct {
	mu    sync.RWMutex
	cells [bmsdb.NumSegments][bmsdb.CellsPerSegment]CellState
	segs  [bmsdb.NumSegments]SegmentState
	pack  PackState
}

var _ Handler = (*Snapshot)(nil)

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// HandleDecoded folds a decoded frame into the snapshot.
func (s *Snapshot) HandleDecoded(f frame.Frame, m *candb.Message, values map[string]frame.Value) {
	at := f.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Name {
	case "PACK_MSG":
		s.pack.Voltage = values["BMS_Pack_Voltage"].Physical
		s.pack.Current = values["BMS_Pack_Current"].Physical
		s.pack.Updated = at
		return
	case "PACK_STATUS_MSG":
		s.pack.CommsError = values["BMS_MSTR_isCommsError"].Raw != 0
		s.pack.Fault = values["BMS_MSTR_isFaultDetected"].Raw != 0
		s.pack.Updated = at
		return
	}

	for name, v := range values {
		if seg, cell, kind, ok := bmsdb.ParseCellSignal(name); ok {
			c := &s.cells[seg-1][cell-1]
			switch kind {
			case bmsdb.KindVoltage:
				c.Voltage = v.Physical
			case bmsdb.KindVoltageDiff:
				c.VoltageDiff = v.Physical
			case bmsdb.KindTemp:
				c.Temp = v.Physical
			case bmsdb.KindDischarging:
				c.Discharging = v.Raw != 0
			case bmsdb.KindFault:
				c.Fault = v.Raw != 0
			}
			c.Updated = at
			continue
		}
		if seg, kind, ok := bmsdb.ParseSegmentSignal(name); ok {
			g := &s.segs[seg-1]
			switch kind {
			case "IC_Voltage":
				g.ICVoltage = v.Physical
			case "IC_Temp":
				g.ICTemp = v.Physical
			case "isCommsError":
				g.CommsError = v.Raw != 0
			case "isFaultDetected":
				g.Fault = v.Raw != 0
			}
			g.Updated = at
		}
	}
}

// Cell returns the state of a cell by 1-based segment and cell number.
func (s *Snapshot) Cell(seg, cell int) (CellState, bool) {
	if seg < 1 || seg > bmsdb.NumSegments || cell < 1 || cell > bmsdb.CellsPerSegment {
		return CellState{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cells[seg-1][cell-1], true
}

// Segment returns the state of a segment monitor by 1-based number.
func (s *Snapshot) Segment(seg int) (SegmentState, bool) {
	if seg < 1 || seg > bmsdb.NumSegments {
		return SegmentState{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.segs[seg-1], true
}

// Pack returns the latest pack-level state.
func (s *Snapshot) Pack() PackState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pack
}

// Cells returns a copy of the full cell grid, indexed [segment][cell]
// zero-based.
func (s *Snapshot) Cells() [bmsdb.NumSegments][bmsdb.CellsPerSegment]CellState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cells
}

// Stats computes pack aggregates from the cells that have reported.
func (s *Snapshot) Stats() PackStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := PackStats{}
	var sum float64

	for si := 0; si < bmsdb.NumSegments; si++ {
		for ci := 0; ci < bmsdb.CellsPerSegment; ci++ {
			c := s.cells[si][ci]
			if c.Updated.IsZero() {
				continue
			}
			name := fmt.Sprintf("cell %dx%d", si+1, ci+1)

			if stats.CellsReporting == 0 || c.Voltage < stats.MinVoltage {
				stats.MinVoltage = c.Voltage
				stats.MinCell = name
			}
			if stats.CellsReporting == 0 || c.Voltage > stats.MaxVoltage {
				stats.MaxVoltage = c.Voltage
				stats.MaxCell = name
			}
			if stats.CellsReporting == 0 || c.Temp > stats.MaxTemp {
				stats.MaxTemp = c.Temp
				stats.HottestCell = name
			}
			if c.Discharging {
				stats.Discharging++
			}
			if c.Fault {
				stats.Faults = append(stats.Faults, name)
			}

			sum += c.Voltage
			stats.CellsReporting++
		}
	}

	for si := 0; si < bmsdb.NumSegments; si++ {
		g := s.segs[si]
		if g.Updated.IsZero() {
			continue
		}
		if g.Fault || g.CommsError {
			stats.Faults = append(stats.Faults, fmt.Sprintf("segment %d", si+1))
		}
	}

	if !s.pack.Updated.IsZero() && (s.pack.Fault || s.pack.CommsError) {
		stats.Faults = append(stats.Faults, "bms master")
	}

	if stats.CellsReporting > 0 {
		stats.MeanVoltage = sum / float64(stats.CellsReporting)
		stats.Spread = (stats.MaxVoltage - stats.MinVoltage) * 1000
	}
	sort.Strings(stats.Faults)

	return stats
}
