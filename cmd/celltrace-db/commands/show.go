package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"gopkg.in/yaml.v3"
)

// ShowOptions configures the show command.
type ShowOptions struct {
	Format string // text, json, yaml
	Query  string // message name or hex frame ID
}

// ShowOutput represents one message for display.
type ShowOutput struct {
	Name      string         `json:"name" yaml:"name"`
	FrameID   string         `json:"frame_id" yaml:"frame_id"`
	Extended  bool           `json:"extended" yaml:"extended"`
	Length    int            `json:"length" yaml:"length"`
	Sender    string         `json:"sender" yaml:"sender"`
	CycleTime string         `json:"cycle_time,omitempty" yaml:"cycle_time,omitempty"`
	SendType  string         `json:"send_type,omitempty" yaml:"send_type,omitempty"`
	Comment   string         `json:"comment,omitempty" yaml:"comment,omitempty"`
	Signals   []SignalOutput `json:"signals" yaml:"signals"`
}

// SignalOutput represents one signal of a message.
type SignalOutput struct {
	Name      string            `json:"name" yaml:"name"`
	Start     int               `json:"start" yaml:"start"`
	Length    int               `json:"length" yaml:"length"`
	ByteOrder string            `json:"byte_order" yaml:"byte_order"`
	Signed    bool              `json:"signed,omitempty" yaml:"signed,omitempty"`
	Scale     float64           `json:"scale" yaml:"scale"`
	Offset    float64           `json:"offset,omitempty" yaml:"offset,omitempty"`
	Min       float64           `json:"min,omitempty" yaml:"min,omitempty"`
	Max       float64           `json:"max,omitempty" yaml:"max,omitempty"`
	Unit      string            `json:"unit,omitempty" yaml:"unit,omitempty"`
	Receivers []string          `json:"receivers,omitempty" yaml:"receivers,omitempty"`
	Choices   map[string]string `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// RunShow runs the show command.
func RunShow(args []string, stdout, stderr io.Writer) int {
	opts, err := parseShowArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	if opts.Query == "" {
		fmt.Fprintln(stderr, "Error: no message specified")
		printShowUsage(stderr)
		return exitCommandError
	}

	db := bmsdb.New()
	m, err := lookupMessage(db, opts.Query)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	output := buildShowOutput(m)

	switch opts.Format {
	case "json":
		data, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(stdout, string(data))
	case "yaml":
		data, _ := yaml.Marshal(output)
		fmt.Fprint(stdout, string(data))
	default:
		printShowText(stdout, output)
	}

	return exitSuccess
}

// lookupMessage resolves a message by name, or by hex frame ID when the
// query parses as one. Extended IDs are tried first since all built-in
// pack messages use them.
func lookupMessage(db *candb.Database, query string) (*candb.Message, error) {
	if m, ok := db.MessageByName(query); ok {
		return m, nil
	}

	idText := strings.TrimPrefix(strings.ToUpper(query), "0X")
	if id, err := strconv.ParseUint(idText, 16, 32); err == nil {
		if m, ok := db.MessageByFrameID(uint32(id), true); ok {
			return m, nil
		}
		if m, ok := db.MessageByFrameID(uint32(id), false); ok {
			return m, nil
		}
	}

	return nil, fmt.Errorf("no message named or numbered %q in the database", query)
}

func buildShowOutput(m *candb.Message) ShowOutput {
	output := ShowOutput{
		Name:     m.Name,
		FrameID:  formatFrameID(m),
		Extended: m.Extended,
		Length:   m.Length,
		Sender:   m.Sender,
		SendType: m.SendType,
		Comment:  m.Comment,
	}
	if m.CycleTime > 0 {
		output.CycleTime = m.CycleTime.String()
	}

	for i := range m.Signals {
		s := &m.Signals[i]
		so := SignalOutput{
			Name:      s.Name,
			Start:     s.Start,
			Length:    s.Length,
			ByteOrder: s.ByteOrder.String(),
			Signed:    s.Signed,
			Scale:     s.Scale,
			Offset:    s.Offset,
			Min:       s.Min,
			Max:       s.Max,
			Unit:      s.Unit,
			Receivers: s.Receivers,
		}
		if len(s.Choices) > 0 {
			so.Choices = make(map[string]string, len(s.Choices))
			for raw, label := range s.Choices {
				so.Choices[strconv.FormatInt(raw, 10)] = label
			}
		}
		output.Signals = append(output.Signals, so)
	}

	return output
}

func printShowText(w io.Writer, output ShowOutput) {
	fmt.Fprintf(w, "Message: %s\n", output.Name)
	fmt.Fprintf(w, "Frame ID: 0x%s", output.FrameID)
	if output.Extended {
		fmt.Fprint(w, " (extended)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Length: %d bytes\n", output.Length)
	fmt.Fprintf(w, "Sender: %s\n", output.Sender)
	if output.CycleTime != "" {
		fmt.Fprintf(w, "Cycle: %s\n", output.CycleTime)
	}
	if output.Comment != "" {
		fmt.Fprintf(w, "Comment: %s\n", output.Comment)
	}

	fmt.Fprintln(w, "\nSignals:")
	for _, s := range output.Signals {
		fmt.Fprintf(w, "  %s\n", s.Name)
		fmt.Fprintf(w, "    bits %d+%d %s", s.Start, s.Length, s.ByteOrder)
		if s.Signed {
			fmt.Fprint(w, " signed")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "    scale %g offset %g", s.Scale, s.Offset)
		if s.Unit != "" {
			fmt.Fprintf(w, " unit %s", s.Unit)
		}
		fmt.Fprintln(w)
		if s.Min != 0 || s.Max != 0 {
			fmt.Fprintf(w, "    range [%g, %g]\n", s.Min, s.Max)
		}
		if len(s.Receivers) > 0 {
			fmt.Fprintf(w, "    receivers %s\n", strings.Join(s.Receivers, ", "))
		}
		if len(s.Choices) > 0 {
			fmt.Fprint(w, "    choices")
			for raw, label := range s.Choices {
				fmt.Fprintf(w, " %s=%s", raw, label)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(w, "\nTotal: %d signals\n", len(output.Signals))
}

func parseShowArgs(args []string) (ShowOptions, error) {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	opts := ShowOptions{}

	fs.StringVar(&opts.Format, "format", "text", "Output format (text, json, yaml)")
	fs.StringVar(&opts.Format, "f", "text", "Output format (shorthand)")

	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	remaining := fs.Args()
	if len(remaining) > 0 {
		opts.Query = remaining[0]
	}

	return opts, nil
}

func printShowUsage(w io.Writer) {
	fmt.Fprintln(w, `
Usage: celltrace-db show [options] <message|frame-id>

Options:
  -f, --format    Output format (text, json, yaml) [default: text]

Examples:
  celltrace-db show PACK_MSG
  celltrace-db show 0xB077
  celltrace-db show --format json CELL_1x1_MSG`)
}
