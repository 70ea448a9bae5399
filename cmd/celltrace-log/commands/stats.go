package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/capture"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	FrameEvents       int
	DecodedEvents     int
	StateEvents       int
	Errors            int
	EventsByDirection map[capture.Direction]int
	Frames            map[uint32]*FrameStats
	Sessions          map[string]int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// FrameStats holds per-CAN-ID statistics.
type FrameStats struct {
	Extended  bool
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Rate returns the observed frame rate in Hz across the seen window.
func (fs *FrameStats) Rate() float64 {
	window := fs.LastSeen.Sub(fs.FirstSeen)
	if fs.Count < 2 || window <= 0 {
		return 0
	}
	return float64(fs.Count-1) / window.Seconds()
}

// RunStats analyzes the capture file and prints statistics. A database
// resolves CAN IDs to message names when provided.
func RunStats(path string, db *candb.Database, w io.Writer) error {
	reader, err := capture.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByDirection: make(map[capture.Direction]int),
		Frames:            make(map[uint32]*FrameStats),
		Sessions:          make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.Sessions[event.SessionID]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		switch {
		case event.Frame != nil:
			stats.FrameEvents++
			stats.EventsByDirection[event.Direction]++

			fs, ok := stats.Frames[event.Frame.ID]
			if !ok {
				fs = &FrameStats{Extended: event.Frame.Extended, FirstSeen: event.Timestamp}
				stats.Frames[event.Frame.ID] = fs
			}
			fs.Count++
			if event.Timestamp.After(fs.LastSeen) {
				fs.LastSeen = event.Timestamp
			}
		case event.Decoded != nil:
			stats.DecodedEvents++
		case event.State != nil:
			stats.StateEvents++
		case event.Error != nil:
			stats.Errors++
		}
	}

	printStats(w, stats, db)
	return nil
}

func printStats(w io.Writer, stats *Stats, db *candb.Database) {
	fmt.Fprintln(w, "=== Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events:   %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "  Frames:       %d\n", stats.FrameEvents)
	if stats.DecodedEvents > 0 {
		fmt.Fprintf(w, "  Decoded:      %d\n", stats.DecodedEvents)
	}
	if stats.StateEvents > 0 {
		fmt.Fprintf(w, "  State:        %d\n", stats.StateEvents)
	}
	if rx := stats.EventsByDirection[capture.DirectionRX]; rx > 0 {
		fmt.Fprintf(w, "  RX:           %d\n", rx)
	}
	if tx := stats.EventsByDirection[capture.DirectionTX]; tx > 0 {
		fmt.Fprintf(w, "  TX:           %d\n", tx)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	fmt.Fprintln(w)

	if len(stats.Frames) > 0 {
		fmt.Fprintf(w, "CAN IDs: %d\n", len(stats.Frames))

		ids := make([]uint32, 0, len(stats.Frames))
		for id := range stats.Frames {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			fs := stats.Frames[id]
			name := ""
			if db != nil {
				if m, ok := db.MessageByFrameID(id, fs.Extended); ok {
					name = "  " + m.Name
				}
			}
			line := fmt.Sprintf("  %s  %6d frames", capture.FormatID(id, fs.Extended), fs.Count)
			if rate := fs.Rate(); rate > 0 {
				line += fmt.Sprintf("  %6.1f Hz", rate)
			}
			fmt.Fprintln(w, line+name)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
