package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/celltrace/celltrace-go/pkg/capture"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	SessionID string
	Channel   string
	Direction string
	IDs       string
	Message   string
	TimeStart string
	TimeEnd   string
}

// RunFilter filters the capture file and writes matching events to a
// new file.
func RunFilter(path string, opts FilterOptions) error {
	filter := capture.Filter{
		SessionID:   opts.SessionID,
		Channel:     opts.Channel,
		MessageName: opts.Message,
	}

	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}

	ids, err := ParseIDsFlag(opts.IDs)
	if err != nil {
		return err
	}
	filter.IDs = ids

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	reader, err := capture.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	writer, err := capture.NewFileWriter(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer writer.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		writer.Log(event)
		count++
	}

	fmt.Printf("Filtered %d events to %s\n", count, opts.Output)
	return nil
}
