// Command celltrace-log is a tool for viewing and analyzing celltrace
// capture files.
//
// Capture files are created by celltrace-monitor and celltrace-bridge
// when recording is enabled.
//
// Usage:
//
//	celltrace-log <command> [flags] <file.ctlog>
//
// Commands:
//
//	view      View capture file in human-readable format
//	export    Export capture file to JSONL, CSV or candump text
//	import    Convert a candump text log into a capture file
//	filter    Filter capture file and write to new file
//	stats     Show statistics about the capture file
//	sessions  List recording sessions in a capture directory
//
// Examples:
//
//	# View all events, decoded against the pack database
//	celltrace-log view -decode session.ctlog
//
//	# View only frames from the pack summary message
//	celltrace-log view -id B077 session.ctlog
//
//	# Export to candump text for can-utils tooling
//	celltrace-log export -format text session.ctlog
//
//	# Re-import a candump log
//	celltrace-log import -o session.ctlog candump.log
//
//	# Keep only received traffic in a time window
//	celltrace-log filter -direction rx -o rx.ctlog session.ctlog
//
//	# Show per-ID rates
//	celltrace-log stats session.ctlog
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/celltrace/celltrace-go/cmd/celltrace-log/commands"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/telemetry"
)

const usage = `celltrace-log - Capture File Analyzer

Usage:
  celltrace-log <command> [flags] <file.ctlog>

Commands:
  view      View capture file in human-readable format
  export    Export capture file to JSONL, CSV or candump text
  import    Convert a candump text log into a capture file
  filter    Filter capture file and write to new file
  stats     Show statistics about the capture file
  sessions  List recording sessions in a capture directory

Use "celltrace-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "import":
		runImport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "sessions":
		runSessions(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `celltrace-log view - View capture file in human-readable format

Usage:
  celltrace-log view [flags] <file.ctlog>

Flags:
`)
		fs.PrintDefaults()
	}

	direction := fs.String("direction", "", "Filter by direction (rx, tx)")
	ids := fs.String("id", "", "Filter by CAN IDs (comma-separated hex)")
	message := fs.String("message", "", "Show only decoded events for this message name")
	decode := fs.Bool("decode", false, "Decode frames against the pack database")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	path := fs.Arg(0)

	var opts commands.ViewOptions

	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		opts.Filter.Direction = &d
	}

	parsed, err := commands.ParseIDsFlag(*ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts.Filter.IDs = parsed
	opts.Filter.Message = *message

	if *decode {
		opts.Database = bmsdb.New()
	}

	if err := commands.RunView(path, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `celltrace-log export - Export capture file to JSONL, CSV or candump text

Usage:
  celltrace-log export [flags] <file.ctlog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv, text)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunExport(fs.Arg(0), *format, *output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `celltrace-log import - Convert a candump text log into a capture file

Usage:
  celltrace-log import -o <file.ctlog> <candump.log>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output capture file (required)")
	session := fs.String("session", "imported", "Session ID to tag imported frames with")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: text log path required")
		fs.Usage()
		os.Exit(1)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunImport(fs.Arg(0), *output, *session); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `celltrace-log filter - Filter capture file and write to new file

Usage:
  celltrace-log filter [flags] <file.ctlog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	sessionID := fs.String("session", "", "Filter by session ID")
	channel := fs.String("channel", "", "Filter by channel name")
	direction := fs.String("direction", "", "Filter by direction (rx, tx)")
	ids := fs.String("id", "", "Filter by CAN IDs (comma-separated hex)")
	message := fs.String("message", "", "Keep only decoded events for this message name")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:    *output,
		SessionID: *sessionID,
		Channel:   *channel,
		Direction: *direction,
		IDs:       *ids,
		Message:   *message,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
	}

	if err := commands.RunFilter(fs.Arg(0), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `celltrace-log stats - Show statistics about the capture file

Usage:
  celltrace-log stats [flags] <file.ctlog>

Flags:
`)
		fs.PrintDefaults()
	}

	noDB := fs.Bool("no-db", false, "Do not resolve CAN IDs against the pack database")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	db := bmsdb.New()
	if *noDB {
		db = nil
	}

	if err := commands.RunStats(fs.Arg(0), db, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `celltrace-log sessions - List recording sessions in a capture directory

Usage:
  celltrace-log sessions <dir>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture directory required")
		fs.Usage()
		os.Exit(1)
	}

	store := telemetry.NewSessionStore(fs.Arg(0))
	sessions, err := store.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tFRAMES\tDESCRIPTION")
	for _, s := range sessions {
		duration := "live"
		if !s.EndedAt.IsZero() {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.ID[:8],
			s.StartedAt.Format("2006-01-02 15:04:05"),
			duration,
			s.FrameCount,
			s.Description,
		)
	}
	tw.Flush()
}
