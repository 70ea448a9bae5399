package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/capture/textlog"
)

// RunExport exports the capture file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := capture.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	case "text":
		return exportText(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv, text)", format)
	}
}

func exportJSONL(reader *capture.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *capture.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "channel", "direction", "type", "can_id", "data"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		eventType := "unknown"
		canID := ""
		data := ""
		switch {
		case event.Frame != nil:
			eventType = "frame"
			canID = capture.FormatID(event.Frame.ID, event.Frame.Extended)
			data = fmt.Sprintf("%X", event.Frame.Data)
		case event.Decoded != nil:
			eventType = "decoded"
		case event.State != nil:
			eventType = "state"
		case event.Error != nil:
			eventType = "error"
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			event.Channel,
			event.Direction.String(),
			eventType,
			canID,
			data,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// exportText writes frame events in candump log format. Non-frame
// events have no text representation and are skipped.
func exportText(reader *capture.Reader, w io.Writer) error {
	tw := textlog.NewWriter(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		f, ok := event.AsFrame()
		if !ok {
			continue
		}
		channel := event.Channel
		if channel == "" {
			channel = "can0"
		}
		if err := tw.Write(channel, f); err != nil {
			return fmt.Errorf("failed to write line: %w", err)
		}
	}
	return nil
}

// RunImport converts a candump text log into a binary capture file.
func RunImport(path, output, sessionID string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open text log: %w", err)
	}
	defer in.Close()

	writer, err := capture.NewFileWriter(output)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	defer writer.Close()

	scanner := textlog.NewScanner(in)
	count := 0
	for {
		rec, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to parse text log: %w", err)
		}
		writer.Log(capture.NewFrameEvent(sessionID, rec.Channel, capture.DirectionRX, rec.Frame))
		count++
	}

	fmt.Printf("Imported %d frames to %s\n", count, output)
	return nil
}
