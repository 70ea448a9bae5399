// Package commands implements the celltrace-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Direction *capture.Direction
	IDs       []uint32

	// Message keeps only decoded events for one database message.
	Message string
}

// ViewOptions configure the view command.
type ViewOptions struct {
	Filter ViewFilter

	// Database decodes frame payloads inline when set.
	Database *candb.Database
}

// RunView executes the view command.
func RunView(path string, opts ViewOptions, output io.Writer) error {
	reader, err := capture.NewFilteredReader(path, capture.Filter{
		Direction:   opts.Filter.Direction,
		IDs:         opts.Filter.IDs,
		MessageName: opts.Filter.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event, opts.Database)
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event capture.Event, db *candb.Database) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	session := shortenID(event.SessionID)
	dir := event.Direction.String()

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Decoded != nil:
		typeLabel = "Decoded"
	case event.State != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [%s] %-2s %s %s\n", ts, session, dir, event.Channel, typeLabel)

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event, db)
	case event.Decoded != nil:
		formatDecodedDetails(w, event.Decoded)
	case event.State != nil:
		formatStateDetails(w, event.State)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, event capture.Event, db *candb.Database) {
	fe := event.Frame
	fmt.Fprintf(w, "  ID: %s", capture.FormatID(fe.ID, fe.Extended))
	if fe.RTR {
		fmt.Fprint(w, " RTR")
	}
	fmt.Fprintln(w)
	if len(fe.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s\n", hex.EncodeToString(fe.Data))
	}

	if db == nil || fe.RTR {
		return
	}
	f, ok := event.AsFrame()
	if !ok {
		return
	}
	m, values, err := frame.DecodeFrame(db, f)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "  Message: %s\n", m.Name)
	for _, name := range sortedSignalNames(values) {
		v := values[name]
		if v.Label != "" {
			fmt.Fprintf(w, "    %s: %s\n", name, v.Label)
			continue
		}
		fmt.Fprintf(w, "    %s: %g %s\n", name, v.Physical, v.Unit)
	}
}

func formatDecodedDetails(w io.Writer, d *capture.DecodedEvent) {
	fmt.Fprintf(w, "  Message: %s\n", d.Message)
	names := make([]string, 0, len(d.Values))
	for name := range d.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %s: %g\n", name, d.Values[name])
	}
}

func formatStateDetails(w io.Writer, sc *capture.StateEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, ee *capture.ErrorEvent) {
	fmt.Fprintf(w, "  Message: %s\n", ee.Message)
	if ee.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", ee.Context)
	}
}

func sortedSignalNames(values map[string]frame.Value) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseDirectionFlag parses a direction string from a command-line flag
// (case-insensitive).
func ParseDirectionFlag(s string) (capture.Direction, error) {
	switch strings.ToLower(s) {
	case "rx":
		return capture.DirectionRX, nil
	case "tx":
		return capture.DirectionTX, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be rx or tx)", s)
	}
}

// ParseIDsFlag parses a comma-separated list of hex CAN IDs.
func ParseIDsFlag(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var ids []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		id, err := strconv.ParseUint(strings.TrimPrefix(part, "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid CAN ID %q: %w", part, err)
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}
