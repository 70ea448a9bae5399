// celltrace-bridge shares capture streams over the network.
//
// Commands:
//
//	serve     stream a live bus or a recorded capture to bridge clients
//	watch     subscribe to a bridge and print or record its events
//	discover  list bridges advertised on the local network
//
// Examples:
//
//	celltrace-bridge serve -port /dev/ttyACM0 -listen :7788 -passphrase pit
//	celltrace-bridge serve -file captures/stint3.ctlog -speed 1
//	celltrace-bridge watch -addr 10.0.0.5:7788 -passphrase pit
//	celltrace-bridge watch -o relay.ctlog
//	celltrace-bridge discover
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/celltrace/celltrace-go/pkg/bridge"
	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/replay"
)

const (
	exitSuccess      = 0
	exitCommandError = 1
)

const usage = `celltrace-bridge - share CAN capture streams over the network

Usage:
  celltrace-bridge serve [options]     serve a live bus or a recording
  celltrace-bridge watch [options]     subscribe to a bridge
  celltrace-bridge discover [options]  list advertised bridges
  celltrace-bridge help                show this help

Run 'celltrace-bridge <command> -h' for command options.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(exitCommandError)
	}

	var code int
	switch os.Args[1] {
	case "serve":
		code = runServe(os.Args[2:], os.Stdout, os.Stderr)
	case "watch":
		code = runWatch(os.Args[2:], os.Stdout, os.Stderr)
	case "discover":
		code = runDiscover(os.Args[2:], os.Stdout, os.Stderr)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		code = exitCommandError
	}
	os.Exit(code)
}

type serveOptions struct {
	Listen     string
	Passphrase string
	Advertise  bool
	Instance   string

	// Source: either a capture file or a serial device.
	File  string
	Speed float64
	Port  string
	Rate  string
}

func parseServeArgs(args []string) (serveOptions, error) {
	opts := serveOptions{}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Listen, "listen", ":7788", "TCP listen address")
	fs.StringVar(&opts.Passphrase, "passphrase", "", "shared secret clients must prove")
	fs.BoolVar(&opts.Advertise, "advertise", false, "announce the bridge via mDNS")
	fs.StringVar(&opts.Instance, "instance", "", "mDNS instance name")
	fs.StringVar(&opts.File, "file", "", "capture file to replay instead of a live bus")
	fs.Float64Var(&opts.Speed, "speed", 1, "replay speed factor (0 = no pacing)")
	fs.StringVar(&opts.Port, "port", "", "serial device of the slcan adapter")
	fs.StringVar(&opts.Rate, "bitrate", "500k", "CAN bitrate for the live bus")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.File == "" && opts.Port == "" {
		return opts, errors.New("either -file or -port is required")
	}
	if opts.File != "" && opts.Port != "" {
		return opts, errors.New("-file and -port are mutually exclusive")
	}
	return opts, nil
}

// openSource opens the frame source named by the options: a replay
// player for -file, a live slcan bus for -port.
func openSource(opts serveOptions) (bus.Bus, error) {
	if opts.File != "" {
		src, err := replay.OpenCapture(opts.File, capture.Filter{})
		if err != nil {
			return nil, err
		}
		return replay.NewPlayer(src, replay.Options{Speed: opts.Speed}), nil
	}

	rate, err := bus.ParseBitrate(opts.Rate)
	if err != nil {
		return nil, err
	}
	config := bus.DefaultSLCANConfig()
	config.Bitrate = rate
	return bus.OpenSLCAN(opts.Port, config)
}

func runServe(args []string, stdout, stderr io.Writer) int {
	opts, err := parseServeArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return exitCommandError
	}

	b, err := openSource(opts)
	if err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return exitCommandError
	}
	defer b.Close()

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	server := bridge.NewServer(bridge.ServerConfig{
		Addr:       opts.Listen,
		Passphrase: opts.Passphrase,
		Advertise:  opts.Advertise,
		Instance:   opts.Instance,
		Logger:     logger,
	})
	if err := server.Start(); err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return exitCommandError
	}
	defer server.Close()

	fmt.Fprintf(stdout, "Bridge listening on %s\n", server.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	if err := pumpToServer(ctx, b, server); err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return exitCommandError
	}

	sent, dropped := server.Stats()
	fmt.Fprintf(stdout, "Done: %d events sent, %d dropped\n", sent, dropped)
	return exitSuccess
}

// pumpToServer forwards bus frames to the bridge until the source ends
// or the context is cancelled. A replay source ending is a normal stop.
// Subscribers see the bus lifecycle as state events around the traffic.
func pumpToServer(ctx context.Context, b bus.Bus, server *bridge.Server) error {
	sessionID := uuid.NewString()
	captured := bus.WithCapture(b, server, sessionID)
	defer captured.Close()

	for {
		_, err := captured.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, replay.ErrEndOfRecording), errors.Is(err, bus.ErrClosed), errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	}
}

type watchOptions struct {
	Addr       string
	Passphrase string
	Name       string
	Output     string
	Timeout    time.Duration
}

func parseWatchArgs(args []string) (watchOptions, error) {
	opts := watchOptions{}

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Addr, "addr", "", "bridge address (empty: discover via mDNS)")
	fs.StringVar(&opts.Passphrase, "passphrase", "", "shared secret")
	fs.StringVar(&opts.Name, "name", "", "client name reported to the server")
	fs.StringVar(&opts.Output, "o", "", "record received events to a capture file")
	fs.DurationVar(&opts.Timeout, "timeout", 5*time.Second, "mDNS discovery timeout")

	err := fs.Parse(args)
	return opts, err
}

func runWatch(args []string, stdout, stderr io.Writer) int {
	opts, err := parseWatchArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "watch: %v\n", err)
		return exitCommandError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	addr := opts.Addr
	if addr == "" {
		addr, err = discoverFirst(ctx, opts.Timeout)
		if err != nil {
			fmt.Fprintf(stderr, "watch: %v\n", err)
			return exitCommandError
		}
		fmt.Fprintf(stdout, "Discovered bridge at %s\n", addr)
	}

	client, err := bridge.Dial(ctx, addr, bridge.ClientConfig{
		Passphrase:   opts.Passphrase,
		Name:         opts.Name,
		PingInterval: 15 * time.Second,
	})
	if err != nil {
		fmt.Fprintf(stderr, "watch: %v\n", err)
		return exitCommandError
	}
	defer client.Close()

	var sink capture.Sink = capture.NoopSink{}
	if opts.Output != "" {
		writer, err := capture.NewFileWriter(opts.Output)
		if err != nil {
			fmt.Fprintf(stderr, "watch: %v\n", err)
			return exitCommandError
		}
		defer writer.Close()
		sink = writer
	}

	count := 0
	for {
		event, err := client.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, bridge.ErrClientClosed) || errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(stderr, "watch: %v\n", err)
			return exitCommandError
		}
		sink.Log(event)
		formatWatchEvent(stdout, event)
		count++
	}

	fmt.Fprintf(stdout, "Received %d events\n", count)
	return exitSuccess
}

// formatWatchEvent prints one event as a single line.
func formatWatchEvent(w io.Writer, event capture.Event) {
	ts := event.Timestamp.Format("15:04:05.000")

	switch {
	case event.Frame != nil:
		f, _ := event.AsFrame()
		fmt.Fprintf(w, "%s %s %s %s\n", ts, event.Direction, event.Channel, f)
	case event.State != nil:
		fmt.Fprintf(w, "%s %s state %s -> %s\n", ts, event.Channel, event.State.OldState, event.State.NewState)
	case event.Error != nil:
		fmt.Fprintf(w, "%s %s error %s: %s\n", ts, event.Channel, event.Error.Context, event.Error.Message)
	}
}

// discoverFirst returns the address of the first bridge found via mDNS.
func discoverFirst(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bridges, err := bridge.Discover(ctx)
	if err != nil {
		return "", err
	}
	for b := range bridges {
		if addr := b.Addr(); addr != "" {
			return addr, nil
		}
	}
	return "", errors.New("no bridge found")
}

func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	timeout := fs.Duration("timeout", 5*time.Second, "how long to browse")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "discover: %v\n", err)
		return exitCommandError
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bridges, err := bridge.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "discover: %v\n", err)
		return exitCommandError
	}

	count := 0
	for b := range bridges {
		fmt.Fprintf(stdout, "%-20s %s\n", b.Instance, b.Addr())
		count++
	}
	if count == 0 {
		fmt.Fprintln(stdout, "No bridges found")
	}
	return exitSuccess
}
