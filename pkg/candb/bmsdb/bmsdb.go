// Package bmsdb builds the CAN signal database for the battery management
// system monitored by the celltrace tools.
//
// The pack is organized as 7 segments of 16 cells. Each cell and each
// segment monitor IC reports its own cyclic message, plus two pack-level
// messages for totals and master status. All frames are 8-byte extended
// frames sent by the BMS node, with identifiers allocated from BaseFrameID.
package bmsdb

import (
	"fmt"
	"time"

	"github.com/celltrace/celltrace-go/pkg/candb"
)

// Pack geometry and identifier allocation.
const (
	// NumSegments is the number of pack segments.
	NumSegments = 7

	// CellsPerSegment is the number of cells in each segment.
	CellsPerSegment = 16

	// BaseFrameID is the first extended frame ID of the BMS block.
	BaseFrameID uint32 = 0xB000
)

// Node names.
const (
	// NodeBMS transmits every message in this database.
	NodeBMS = "BMS"

	// NodeDash is the telemetry consumer (monitor, bridge, loggers).
	NodeDash = "DASH"
)

// flagTable labels the status flag bits.
var flagTable = candb.ValueTable{0: "OK", 1: "ACTIVE"}

// CellFrameID returns the frame ID of the cell message for the given
// 1-based segment and cell numbers.
func CellFrameID(seg, cell int) uint32 {
	return BaseFrameID + uint32((seg-1)*CellsPerSegment+(cell-1))
}

// SegmentFrameID returns the frame ID of the segment monitor message for
// the given 1-based segment number.
func SegmentFrameID(seg int) uint32 {
	return BaseFrameID + uint32(NumSegments*CellsPerSegment+(seg-1))
}

// PackFrameID is the frame ID of the pack totals message.
func PackFrameID() uint32 {
	return BaseFrameID + uint32(NumSegments*CellsPerSegment+NumSegments)
}

// PackStatusFrameID is the frame ID of the pack master status message.
func PackStatusFrameID() uint32 {
	return PackFrameID() + 1
}

// New builds the BMS database. The result is fully indexed and passes
// strict validation.
func New() *candb.Database {
	db := &candb.Database{
		Version: "bms-pack-v1",
		Nodes: []candb.Node{
			{Name: NodeBMS, Comment: "battery management master"},
			{Name: NodeDash, Comment: "telemetry consumers"},
		},
		Attributes: []candb.AttributeDef{
			{Name: "CycleTimeMs", Kind: candb.AttributeInt, Default: 100},
			{Name: "SendType", Kind: candb.AttributeString, Default: "cyclic"},
			{Name: "DisplayColor", Kind: candb.AttributeString, Default: ""},
		},
	}

	recv := []string{NodeDash}

	for seg := 1; seg <= NumSegments; seg++ {
		db.Messages = append(db.Messages, segmentMessage(seg, recv))
		for cell := 1; cell <= CellsPerSegment; cell++ {
			db.Messages = append(db.Messages, cellMessage(seg, cell, recv))
		}
	}

	db.Messages = append(db.Messages, packMessage(recv), packStatusMessage(recv))

	db.Refresh()
	return db
}

func cellMessage(seg, cell int, recv []string) candb.Message {
	prefix := fmt.Sprintf("CELL_%dx%d", seg, cell)
	return candb.Message{
		Name:      prefix + "_MSG",
		FrameID:   CellFrameID(seg, cell),
		Extended:  true,
		Length:    8,
		Sender:    NodeBMS,
		CycleTime: 500 * time.Millisecond,
		SendType:  "cyclic",
		Attributes: map[string]any{
			"CycleTimeMs": 500,
		},
		Signals: []candb.Signal{
			{
				Name: prefix + "_Voltage", Start: 0, Length: 16,
				Signed: true, Scale: 0.001, Unit: "V",
				Min: -32.768, Max: 32.767, Receivers: recv,
			},
			{
				Name: prefix + "_VoltageDiff", Start: 16, Length: 16,
				Signed: true, Scale: 1, Unit: "mV", Receivers: recv,
			},
			{
				Name: prefix + "_Temp", Start: 32, Length: 16,
				Signed: true, Scale: 0.01, Unit: "degC", Receivers: recv,
			},
			{
				Name: prefix + "_isDischarging", Start: 48, Length: 1,
				Scale: 1, Receivers: recv, Choices: flagTable,
			},
			{
				Name: prefix + "_isFaultDetected", Start: 49, Length: 1,
				Scale: 1, Receivers: recv, Choices: flagTable,
			},
		},
	}
}

func segmentMessage(seg int, recv []string) candb.Message {
	prefix := fmt.Sprintf("SEG_%d", seg)
	return candb.Message{
		Name:      prefix + "_MSG",
		FrameID:   SegmentFrameID(seg),
		Extended:  true,
		Length:    8,
		Sender:    NodeBMS,
		CycleTime: 500 * time.Millisecond,
		SendType:  "cyclic",
		Attributes: map[string]any{
			"CycleTimeMs": 500,
		},
		Signals: []candb.Signal{
			{
				Name: prefix + "_IC_Voltage", Start: 0, Length: 32,
				Signed: true, Scale: 0.001, Unit: "V", Receivers: recv,
			},
			{
				Name: prefix + "_IC_Temp", Start: 32, Length: 16,
				Signed: true, Scale: 0.01, Unit: "degC", Receivers: recv,
			},
			{
				Name: prefix + "_isCommsError", Start: 48, Length: 1,
				Scale: 1, Receivers: recv, Choices: flagTable,
			},
			{
				Name: prefix + "_isFaultDetected", Start: 49, Length: 1,
				Scale: 1, Receivers: recv, Choices: flagTable,
			},
		},
	}
}

func packMessage(recv []string) candb.Message {
	return candb.Message{
		Name:      "PACK_MSG",
		FrameID:   PackFrameID(),
		Extended:  true,
		Length:    8,
		Sender:    NodeBMS,
		CycleTime: 100 * time.Millisecond,
		SendType:  "cyclic",
		Signals: []candb.Signal{
			{
				Name: "BMS_Pack_Voltage", Start: 0, Length: 32,
				Signed: true, Scale: 0.000001, Unit: "V", Receivers: recv,
			},
			{
				Name: "BMS_Pack_Current", Start: 32, Length: 32,
				Signed: true, Scale: 0.001, Unit: "A", Receivers: recv,
			},
		},
	}
}

func packStatusMessage(recv []string) candb.Message {
	return candb.Message{
		Name:      "PACK_STATUS_MSG",
		FrameID:   PackStatusFrameID(),
		Extended:  true,
		Length:    8,
		Sender:    NodeBMS,
		CycleTime: 100 * time.Millisecond,
		SendType:  "cyclic",
		Signals: []candb.Signal{
			{
				Name: "BMS_MSTR_isCommsError", Start: 0, Length: 1,
				Scale: 1, Receivers: recv, Choices: flagTable,
			},
			{
				Name: "BMS_MSTR_isFaultDetected", Start: 1, Length: 1,
				Scale: 1, Receivers: recv, Choices: flagTable,
			},
		},
	}
}
