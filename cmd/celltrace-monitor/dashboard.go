package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/telemetry"
)

// Voltage thresholds for the cell grid coloring, in volts.
const (
	voltageCritical = 3.0
	voltageLow      = 3.4
	voltageNominal  = 3.8
	voltageHigh     = 4.1
)

// trendWidth is the number of samples shown in the pack voltage trend.
const trendWidth = 60

// buildDashboard renders the full dashboard.
func buildDashboard(snap *telemetry.Snapshot, series *telemetry.Series, pump *telemetry.Pump, channel, sessionID string) string {
	var b strings.Builder

	pack := snap.Pack()
	stats := snap.Stats()
	counters := pump.Stats()

	b.WriteString(buildPackLine(pack))
	b.WriteString("\n")
	b.WriteString(pterm.DefaultBox.WithTitle("Cells").WithTitleTopLeft().Sprint(buildCellGrid(snap)))
	b.WriteString("\n")
	b.WriteString(buildStatsLines(stats))
	b.WriteString("\n")
	b.WriteString(buildTrendLine(series))
	b.WriteString("\n")
	b.WriteString(buildSegmentLine(snap))
	b.WriteString("\n")
	b.WriteString(buildFooter(counters, channel, sessionID))

	return b.String()
}

func buildPackLine(pack telemetry.PackState) string {
	if pack.Updated.IsZero() {
		return pterm.FgGray.Sprint("Pack: waiting for data")
	}

	line := fmt.Sprintf("Pack: %7.2f V  %+7.2f A  %8.1f W",
		pack.Voltage, pack.Current, pack.Voltage*pack.Current)
	if pack.Fault {
		line += "  " + pterm.NewStyle(pterm.BgRed, pterm.FgWhite).Sprint(" FAULT ")
	}
	if pack.CommsError {
		line += "  " + pterm.NewStyle(pterm.BgYellow, pterm.FgBlack).Sprint(" COMMS ")
	}
	return line
}

// buildCellGrid renders one row per segment with a colored block per
// cell.
func buildCellGrid(snap *telemetry.Snapshot) string {
	var b strings.Builder

	b.WriteString("      ")
	for cell := 1; cell <= bmsdb.CellsPerSegment; cell++ {
		b.WriteString(fmt.Sprintf("%3d", cell))
	}
	b.WriteString("\n")

	cells := snap.Cells()
	for seg := 0; seg < bmsdb.NumSegments; seg++ {
		b.WriteString(fmt.Sprintf("  S%d  ", seg+1))
		for cell := 0; cell < bmsdb.CellsPerSegment; cell++ {
			b.WriteString(" " + cellBlock(cells[seg][cell]))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n  ")
	b.WriteString(pterm.FgGray.Sprint("··") + " No data  ")
	b.WriteString(pterm.FgRed.Sprint("██") + " <3.0V / fault  ")
	b.WriteString(pterm.FgYellow.Sprint("▓▓") + " <3.4V  ")
	b.WriteString(pterm.FgGreen.Sprint("▒▒") + " <3.8V  ")
	b.WriteString(pterm.FgCyan.Sprint("░░") + " <4.1V  ")
	b.WriteString(pterm.FgLightWhite.Sprint("██") + " ≥4.1V  ")
	b.WriteString(pterm.FgMagenta.Sprint("◊◊") + " balancing")

	return b.String()
}

// cellBlock returns the two-character colored block for one cell.
func cellBlock(c telemetry.CellState) string {
	if c.Updated.IsZero() {
		return pterm.FgGray.Sprint("··")
	}
	if c.Fault {
		return pterm.NewStyle(pterm.BgRed, pterm.FgWhite).Sprint("!!")
	}
	if c.Discharging {
		return pterm.FgMagenta.Sprint("◊◊")
	}
	switch {
	case c.Voltage < voltageCritical:
		return pterm.FgRed.Sprint("██")
	case c.Voltage < voltageLow:
		return pterm.FgYellow.Sprint("▓▓")
	case c.Voltage < voltageNominal:
		return pterm.FgGreen.Sprint("▒▒")
	case c.Voltage < voltageHigh:
		return pterm.FgCyan.Sprint("░░")
	default:
		return pterm.FgLightWhite.Sprint("██")
	}
}

func buildStatsLines(stats telemetry.PackStats) string {
	if stats.CellsReporting == 0 {
		return pterm.FgGray.Sprint("Cells: none reporting")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cells: %d reporting   min %0.3fV (%s)   max %0.3fV (%s)   mean %0.3fV   spread %.0fmV\n",
		stats.CellsReporting,
		stats.MinVoltage, stats.MinCell,
		stats.MaxVoltage, stats.MaxCell,
		stats.MeanVoltage, stats.Spread)
	fmt.Fprintf(&b, "Temps: max %0.1f°C (%s)   balancing %d",
		stats.MaxTemp, stats.HottestCell, stats.Discharging)

	if len(stats.Faults) > 0 {
		b.WriteString("\n")
		b.WriteString(pterm.FgRed.Sprintf("Faults: %s", strings.Join(stats.Faults, ", ")))
	}
	return b.String()
}

// buildTrendLine renders the recent pack voltage history as a sparkline.
func buildTrendLine(series *telemetry.Series) string {
	samples := series.Downsample("BMS_Pack_Voltage", trendWidth)
	if len(samples) < 2 {
		return pterm.FgGray.Sprint("Trend: collecting")
	}

	lo, hi := samples[0].Value, samples[0].Value
	for _, s := range samples[1:] {
		if s.Value < lo {
			lo = s.Value
		}
		if s.Value > hi {
			hi = s.Value
		}
	}

	levels := []rune("▁▂▃▄▅▆▇█")
	var spark strings.Builder
	for _, s := range samples {
		idx := 0
		if hi > lo {
			idx = int((s.Value - lo) / (hi - lo) * float64(len(levels)-1))
		}
		spark.WriteRune(levels[idx])
	}

	span := samples[len(samples)-1].Time.Sub(samples[0].Time).Round(time.Second)
	return fmt.Sprintf("Trend: %s  %.2fV..%.2fV over %s",
		pterm.FgCyan.Sprint(spark.String()), lo, hi, span)
}

func buildSegmentLine(snap *telemetry.Snapshot) string {
	var parts []string
	for seg := 1; seg <= bmsdb.NumSegments; seg++ {
		state, ok := snap.Segment(seg)
		if !ok || state.Updated.IsZero() {
			parts = append(parts, pterm.FgGray.Sprintf("S%d: -", seg))
			continue
		}
		text := fmt.Sprintf("S%d: %.2fV %.0f°C", seg, state.ICVoltage, state.ICTemp)
		if state.Fault || state.CommsError {
			text = pterm.FgRed.Sprint(text)
		}
		parts = append(parts, text)
	}
	return "Monitors: " + strings.Join(parts, "   ")
}

func buildFooter(counters telemetry.PumpStats, channel, sessionID string) string {
	line := fmt.Sprintf("%s   frames %d   decoded %d   unknown %d",
		channel, counters.FramesTotal, counters.FramesDecoded, counters.FramesUnknown)
	if counters.DecodeErrors > 0 {
		line += pterm.FgRed.Sprintf("   errors %d", counters.DecodeErrors)
	}
	if sessionID != "" {
		line += fmt.Sprintf("   rec %s", sessionID[:8])
	}
	return pterm.FgGray.Sprint(line)
}

// runDashboard redraws the dashboard until the context is done.
func runDashboard(done <-chan struct{}, refresh time.Duration, snap *telemetry.Snapshot, series *telemetry.Series, pump *telemetry.Pump, channel, sessionID string) error {
	area, err := pterm.DefaultArea.WithFullscreen().Start()
	if err != nil {
		return fmt.Errorf("start dashboard: %w", err)
	}
	defer area.Stop()

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			area.Update(buildDashboard(snap, series, pump, channel, sessionID))
		}
	}
}
