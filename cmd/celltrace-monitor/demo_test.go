package main

import (
	"context"
	"testing"
	"time"

	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/frame"
	"github.com/celltrace/celltrace-go/pkg/telemetry"
)

func TestDemoSweep(t *testing.T) {
	db := bmsdb.New()
	hub := bus.NewHub()
	defer hub.Close()

	rx := hub.Join("vcan0")
	gen := newDemoGenerator(hub.Join("vcan0"), db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := gen.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	wantFrames := bmsdb.NumSegments*bmsdb.CellsPerSegment + bmsdb.NumSegments + 2

	snap := telemetry.NewSnapshot()
	seen := make(map[string]int)
	for i := 0; i < wantFrames; i++ {
		f, err := rx.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive frame %d: %v", i, err)
		}
		m, values, err := frame.DecodeFrame(db, f)
		if err != nil {
			t.Fatalf("DecodeFrame %s: %v", f, err)
		}
		seen[m.Name]++
		snap.HandleDecoded(f, m, values)
	}

	for _, name := range []string{"CELL_1x1_MSG", "CELL_7x16_MSG", "SEG_7_MSG", "PACK_MSG", "PACK_STATUS_MSG"} {
		if seen[name] != 1 {
			t.Errorf("message %s seen %d times, want 1", name, seen[name])
		}
	}

	stats := snap.Stats()
	if stats.CellsReporting != bmsdb.NumSegments*bmsdb.CellsPerSegment {
		t.Errorf("CellsReporting = %d, want %d", stats.CellsReporting, bmsdb.NumSegments*bmsdb.CellsPerSegment)
	}
	if stats.MinVoltage < 3.0 || stats.MaxVoltage > 4.3 {
		t.Errorf("cell voltages out of range: min %v max %v", stats.MinVoltage, stats.MaxVoltage)
	}

	pack := snap.Pack()
	if pack.Updated.IsZero() {
		t.Fatal("pack state not updated")
	}
	// Pack voltage is the sum of the cell voltages.
	want := stats.MeanVoltage * float64(stats.CellsReporting)
	if diff := pack.Voltage - want; diff < -1 || diff > 1 {
		t.Errorf("pack voltage %v, cells sum to %v", pack.Voltage, want)
	}
}
