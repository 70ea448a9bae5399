package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"gopkg.in/yaml.v3"
)

const (
	exitSuccess      = 0
	exitCommandError = 1
	exitValidation   = 2
)

// ListOptions configures the list command.
type ListOptions struct {
	Format string // text, json, yaml
	Sender string // filter by sending node
}

// MessageSummary is one row of list output.
type MessageSummary struct {
	Name      string `json:"name" yaml:"name"`
	FrameID   string `json:"frame_id" yaml:"frame_id"`
	Extended  bool   `json:"extended" yaml:"extended"`
	Length    int    `json:"length" yaml:"length"`
	Sender    string `json:"sender" yaml:"sender"`
	Signals   int    `json:"signals" yaml:"signals"`
	CycleTime string `json:"cycle_time,omitempty" yaml:"cycle_time,omitempty"`
}

// RunList runs the list command.
func RunList(args []string, stdout, stderr io.Writer) int {
	opts, err := parseListArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	db := bmsdb.New()
	summaries := buildSummaries(db, opts)

	switch opts.Format {
	case "json":
		data, _ := json.MarshalIndent(summaries, "", "  ")
		fmt.Fprintln(stdout, string(data))
	case "yaml":
		data, _ := yaml.Marshal(summaries)
		fmt.Fprint(stdout, string(data))
	default:
		printSummaries(stdout, summaries)
	}

	return exitSuccess
}

func buildSummaries(db *candb.Database, opts ListOptions) []MessageSummary {
	var summaries []MessageSummary
	for i := range db.Messages {
		m := &db.Messages[i]
		if opts.Sender != "" && m.Sender != opts.Sender {
			continue
		}
		s := MessageSummary{
			Name:     m.Name,
			FrameID:  formatFrameID(m),
			Extended: m.Extended,
			Length:   m.Length,
			Sender:   m.Sender,
			Signals:  len(m.Signals),
		}
		if m.CycleTime > 0 {
			s.CycleTime = m.CycleTime.String()
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].FrameID < summaries[j].FrameID
	})
	return summaries
}

func printSummaries(w io.Writer, summaries []MessageSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLEN\tSENDER\tSIGNALS\tCYCLE")
	for _, s := range summaries {
		cycle := s.CycleTime
		if cycle == "" {
			cycle = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
			s.FrameID, s.Name, s.Length, s.Sender, s.Signals, cycle)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nTotal: %d messages\n", len(summaries))
}

func formatFrameID(m *candb.Message) string {
	if m.Extended {
		return fmt.Sprintf("%08X", m.FrameID)
	}
	return fmt.Sprintf("%03X", m.FrameID)
}

func parseListArgs(args []string) (ListOptions, error) {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	opts := ListOptions{}

	fs.StringVar(&opts.Format, "format", "text", "Output format (text, json, yaml)")
	fs.StringVar(&opts.Format, "f", "text", "Output format (shorthand)")
	fs.StringVar(&opts.Sender, "sender", "", "Filter by sending node")

	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}
