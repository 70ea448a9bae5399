package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// feed encodes a message and folds it into the snapshot through the
// regular decode path.
func feed(t *testing.T, s *Snapshot, db *candb.Database, message string, values map[string]float64) {
	t.Helper()
	f, err := frame.EncodeFrame(db, message, values)
	require.NoError(t, err)
	f.Timestamp = time.Now()

	m, decoded, err := frame.DecodeFrame(db, f)
	require.NoError(t, err)
	s.HandleDecoded(f, m, decoded)
}

func TestSnapshotCellUpdate(t *testing.T) {
	db := bmsdb.New()
	s := NewSnapshot()

	feed(t, s, db, "CELL_2x5_MSG", map[string]float64{
		"CELL_2x5_Voltage":         3.752,
		"CELL_2x5_VoltageDiff":     12,
		"CELL_2x5_Temp":            28.51,
		"CELL_2x5_isDischarging":   1,
		"CELL_2x5_isFaultDetected": 0,
	})

	c, ok := s.Cell(2, 5)
	require.True(t, ok)
	assert.InDelta(t, 3.752, c.Voltage, 0.0001)
	assert.InDelta(t, 12, c.VoltageDiff, 0.0001)
	assert.InDelta(t, 28.51, c.Temp, 0.0001)
	assert.True(t, c.Discharging)
	assert.False(t, c.Fault)
	assert.False(t, c.Updated.IsZero())

	// Untouched neighbor stays zero.
	n, ok := s.Cell(2, 6)
	require.True(t, ok)
	assert.True(t, n.Updated.IsZero())
}

func TestSnapshotCellBounds(t *testing.T) {
	s := NewSnapshot()

	_, ok := s.Cell(0, 1)
	assert.False(t, ok)
	_, ok = s.Cell(bmsdb.NumSegments+1, 1)
	assert.False(t, ok)
	_, ok = s.Cell(1, bmsdb.CellsPerSegment+1)
	assert.False(t, ok)
	_, ok = s.Segment(0)
	assert.False(t, ok)
}

func TestSnapshotPackUpdate(t *testing.T) {
	db := bmsdb.New()
	s := NewSnapshot()

	feed(t, s, db, "PACK_MSG", map[string]float64{
		"BMS_Pack_Voltage": 412.338101,
		"BMS_Pack_Current": -73.254,
	})
	feed(t, s, db, "PACK_STATUS_MSG", map[string]float64{
		"BMS_MSTR_isCommsError":    0,
		"BMS_MSTR_isFaultDetected": 1,
	})

	p := s.Pack()
	assert.InDelta(t, 412.338101, p.Voltage, 0.000001)
	assert.InDelta(t, -73.254, p.Current, 0.0001)
	assert.False(t, p.CommsError)
	assert.True(t, p.Fault)
}

func TestSnapshotSegmentUpdate(t *testing.T) {
	db := bmsdb.New()
	s := NewSnapshot()

	feed(t, s, db, "SEG_3_MSG", map[string]float64{
		"SEG_3_IC_Voltage":      4.981,
		"SEG_3_IC_Temp":         41.25,
		"SEG_3_isCommsError":    1,
		"SEG_3_isFaultDetected": 0,
	})

	g, ok := s.Segment(3)
	require.True(t, ok)
	assert.InDelta(t, 4.981, g.ICVoltage, 0.0001)
	assert.InDelta(t, 41.25, g.ICTemp, 0.0001)
	assert.True(t, g.CommsError)
	assert.False(t, g.Fault)
}

func TestSnapshotStats(t *testing.T) {
	db := bmsdb.New()
	s := NewSnapshot()

	cells := []struct {
		seg, cell int
		voltage   float64
		temp      float64
		fault     bool
	}{
		{1, 1, 3.700, 25.0, false},
		{1, 2, 3.652, 26.5, false},
		{2, 1, 3.811, 31.2, true},
	}
	for _, c := range cells {
		fault := 0.0
		if c.fault {
			fault = 1
		}
		feed(t, s, db, bmsdb.CellSignal(c.seg, c.cell, "MSG"), map[string]float64{
			bmsdb.CellSignal(c.seg, c.cell, bmsdb.KindVoltage):     c.voltage,
			bmsdb.CellSignal(c.seg, c.cell, bmsdb.KindTemp):        c.temp,
			bmsdb.CellSignal(c.seg, c.cell, bmsdb.KindDischarging): 1,
			bmsdb.CellSignal(c.seg, c.cell, bmsdb.KindFault):       fault,
		})
	}
	feed(t, s, db, "SEG_2_MSG", map[string]float64{
		"SEG_2_isFaultDetected": 1,
	})

	stats := s.Stats()
	assert.Equal(t, 3, stats.CellsReporting)
	assert.InDelta(t, 3.652, stats.MinVoltage, 0.0001)
	assert.Equal(t, "cell 1x2", stats.MinCell)
	assert.InDelta(t, 3.811, stats.MaxVoltage, 0.0001)
	assert.Equal(t, "cell 2x1", stats.MaxCell)
	assert.InDelta(t, (3.700+3.652+3.811)/3, stats.MeanVoltage, 0.0001)
	assert.InDelta(t, 159, stats.Spread, 0.1)
	assert.InDelta(t, 31.2, stats.MaxTemp, 0.0001)
	assert.Equal(t, "cell 2x1", stats.HottestCell)
	assert.Equal(t, 3, stats.Discharging)
	assert.Equal(t, []string{"cell 2x1", "segment 2"}, stats.Faults)
}

func TestSnapshotStatsEmpty(t *testing.T) {
	s := NewSnapshot()
	stats := s.Stats()
	assert.Zero(t, stats.CellsReporting)
	assert.Zero(t, stats.MeanVoltage)
	assert.Empty(t, stats.Faults)
}
