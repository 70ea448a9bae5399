package main

import (
	"context"
	"math"
	"time"

	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// demoGenerator feeds a virtual bus with a synthetic pack: slowly
// drifting cell voltages, a load-dependent pack current and the
// occasional balancing discharge.
type demoGenerator struct {
	bus   bus.Bus
	db    *candb.Database
	start time.Time
}

func newDemoGenerator(b bus.Bus, db *candb.Database) *demoGenerator {
	return &demoGenerator{bus: b, db: db, start: time.Now()}
}

// run emits one full pack sweep per tick until the context is done.
func (g *demoGenerator) run(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.sweep(ctx); err != nil {
				return
			}
		}
	}
}

// sweep sends every cell, segment and pack message once.
func (g *demoGenerator) sweep(ctx context.Context) error {
	elapsed := time.Since(g.start).Seconds()

	// Load follows a slow sine: positive charge, negative discharge.
	current := 18.0 * math.Sin(elapsed/30.0)

	var packVoltage float64
	mean := g.meanVoltage(elapsed)

	for seg := 1; seg <= bmsdb.NumSegments; seg++ {
		for cell := 1; cell <= bmsdb.CellsPerSegment; cell++ {
			voltage := g.cellVoltage(elapsed, seg, cell)
			packVoltage += voltage

			values := map[string]float64{
				bmsdb.CellSignal(seg, cell, bmsdb.KindVoltage):     voltage,
				bmsdb.CellSignal(seg, cell, bmsdb.KindVoltageDiff): (voltage - mean) * 1000,
				bmsdb.CellSignal(seg, cell, bmsdb.KindTemp):        g.cellTemp(elapsed, seg, cell),
				bmsdb.CellSignal(seg, cell, bmsdb.KindDischarging): boolValue(voltage > mean+0.015),
				bmsdb.CellSignal(seg, cell, bmsdb.KindFault):       0,
			}
			if err := g.send(ctx, bmsdb.CellSignal(seg, cell, "MSG"), values); err != nil {
				return err
			}
		}

		segValues := map[string]float64{
			bmsdb.SegmentSignal(seg, "IC_Voltage"):    5.0 + 0.05*math.Sin(elapsed/7+float64(seg)),
			bmsdb.SegmentSignal(seg, "IC_Temp"):       35 + 3*math.Sin(elapsed/40+float64(seg)),
			bmsdb.SegmentSignal(seg, "isCommsError"):  0,
			bmsdb.SegmentSignal(seg, bmsdb.KindFault): 0,
		}
		if err := g.send(ctx, bmsdb.SegmentSignal(seg, "MSG"), segValues); err != nil {
			return err
		}
	}

	if err := g.send(ctx, "PACK_MSG", map[string]float64{
		"BMS_Pack_Voltage": packVoltage,
		"BMS_Pack_Current": current,
	}); err != nil {
		return err
	}
	return g.send(ctx, "PACK_STATUS_MSG", map[string]float64{
		"BMS_MSTR_isCommsError":    0,
		"BMS_MSTR_isFaultDetected": 0,
	})
}

func (g *demoGenerator) send(ctx context.Context, message string, values map[string]float64) error {
	f, err := frame.EncodeFrame(g.db, message, values)
	if err != nil {
		return err
	}
	return g.bus.Send(ctx, f)
}

// meanVoltage is the pack mean at a point in time, used to center the
// per-cell deviations.
func (g *demoGenerator) meanVoltage(elapsed float64) float64 {
	// Discharge slowly from 3.95 V toward 3.55 V and recover.
	return 3.75 + 0.2*math.Cos(elapsed/120.0)
}

func (g *demoGenerator) cellVoltage(elapsed float64, seg, cell int) float64 {
	idx := float64((seg-1)*bmsdb.CellsPerSegment + cell)
	noise := 0.012 * math.Sin(elapsed/5+idx*1.7)
	gradient := 0.004 * math.Sin(idx/11.0)
	return g.meanVoltage(elapsed) + noise + gradient
}

func (g *demoGenerator) cellTemp(elapsed float64, seg, cell int) float64 {
	idx := float64((seg-1)*bmsdb.CellsPerSegment + cell)
	return 28 + 4*math.Sin(elapsed/60) + 1.5*math.Sin(idx/13.0)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
