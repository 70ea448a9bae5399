// Command celltrace-monitor is a live terminal dashboard for a battery
// pack on a CAN bus. It decodes cell, segment and pack telemetry
// against the built-in signal database, optionally records the session
// to a capture file, and can stream events to remote viewers over the
// TCP bridge.
//
// Usage:
//
//	# Live view from an slcan adapter
//	celltrace-monitor -port /dev/ttyACM0
//
//	# Record the session and serve it to remote viewers
//	celltrace-monitor -port /dev/ttyACM0 -record -bridge :7788
//
//	# Synthetic pack, no hardware required
//	celltrace-monitor -demo
//
//	# Review a recording at double speed
//	celltrace-monitor -replay captures/stint3.ctlog -speed 2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/celltrace/celltrace-go/pkg/bridge"
	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/capture"
	"github.com/celltrace/celltrace-go/pkg/replay"
	"github.com/celltrace/celltrace-go/pkg/telemetry"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file")
	port := flag.String("port", "", "Serial device of the slcan adapter")
	bitrate := flag.String("bitrate", "", "CAN bitrate (10k..1m)")
	channel := flag.String("channel", "", "Channel name override")
	demo := flag.Bool("demo", false, "Use a synthetic pack instead of hardware")
	replayFile := flag.String("replay", "", "Play back a capture file instead of a live bus")
	replaySpeed := flag.Float64("speed", 0, "Replay speed factor (0 keeps the config value)")
	record := flag.Bool("record", false, "Record the session to a capture file")
	captureDir := flag.String("dir", "", "Capture directory")
	description := flag.String("description", "", "Session description")
	bridgeListen := flag.String("bridge", "", "Bridge listen address (e.g. :7788)")
	flag.Parse()

	config := DefaultConfig()
	if *configFile != "" {
		var err error
		config, err = LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags override file values.
	if *port != "" {
		config.Port = *port
	}
	if *bitrate != "" {
		config.Bitrate = *bitrate
	}
	if *channel != "" {
		config.Channel = *channel
	}
	if *demo {
		config.Demo = true
	}
	if *replayFile != "" {
		config.Replay = *replayFile
	}
	if *replaySpeed != 0 {
		config.ReplaySpeed = *replaySpeed
	}
	if *record {
		config.Record = true
	}
	if *captureDir != "" {
		config.CaptureDir = *captureDir
	}
	if *description != "" {
		config.Description = *description
	}
	if *bridgeListen != "" {
		config.BridgeListen = *bridgeListen
	}

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openReplaySource opens a recording by file type: capture files by
// default, candump text logs by extension.
func openReplaySource(path string) (replay.Source, error) {
	switch {
	case strings.HasSuffix(path, ".log"), strings.HasSuffix(path, ".txt"):
		return replay.OpenText(path)
	default:
		return replay.OpenCapture(path, capture.Filter{})
	}
}

func run(config Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The dashboard owns the terminal; keep operational logs quiet
	// unless something is worth telling the user about on exit.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	db := bmsdb.New()

	// Bus.
	var b bus.Bus
	switch {
	case config.Demo:
		hub := bus.NewHub()
		b = hub.Join("vcan0")
		gen := newDemoGenerator(hub.Join("vcan0-gen"), db)
		go gen.run(ctx)
	case config.Replay != "":
		src, err := openReplaySource(config.Replay)
		if err != nil {
			return err
		}
		b = replay.NewPlayer(src, replay.Options{Speed: config.ReplaySpeed})
	default:
		rate, err := bus.ParseBitrate(config.Bitrate)
		if err != nil {
			return err
		}
		slcanConfig := bus.DefaultSLCANConfig()
		slcanConfig.Bitrate = rate
		slcanConfig.Channel = config.Channel
		b, err = bus.OpenSLCAN(config.Port, slcanConfig)
		if err != nil {
			return err
		}
	}
	defer b.Close()

	// Capture sinks: file writer, bridge server, or both.
	var sinks []capture.Sink

	var store *telemetry.SessionStore
	var sess telemetry.Session
	if config.Record {
		store = telemetry.NewSessionStore(config.CaptureDir)
		sess = telemetry.NewSession(config.Description, b.Channel())
		if err := store.Add(sess); err != nil {
			return fmt.Errorf("register session: %w", err)
		}
		writer, err := capture.NewFileWriter(store.CaptureFile(sess))
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer writer.Close()
		sinks = append(sinks, writer)
	}

	if config.BridgeListen != "" {
		server := bridge.NewServer(bridge.ServerConfig{
			Addr:       config.BridgeListen,
			Passphrase: config.BridgePassphrase,
			Advertise:  config.BridgeAdvertise,
			Logger:     logger,
		})
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Close()
		sinks = append(sinks, server)
	}

	var sink capture.Sink = capture.NoopSink{}
	if len(sinks) > 0 {
		sink = capture.NewMultiSink(sinks...)
		b = bus.WithCapture(b, sink, sess.ID)
	}

	// Decode pipeline.
	pump := telemetry.NewPump(b, db, telemetry.PumpConfig{
		Sink:       sink,
		SessionID:  sess.ID,
		LogDecoded: config.LogDecoded,
	})
	snap := telemetry.NewSnapshot()
	series := telemetry.NewSeries(config.SeriesDepth, config.Signals...)
	pump.Subscribe(snap)
	pump.Subscribe(series)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		err := pump.Run(ctx)
		// A drained recording is a clean stop, like a closed bus.
		if err != nil && !errors.Is(err, replay.ErrEndOfRecording) && ctx.Err() == nil {
			logger.Error("telemetry pump stopped", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-pumpDone:
		}
		close(done)
		cancel()
	}()

	err := runDashboard(done, config.Refresh(), snap, series, pump, b.Channel(), sess.ID)

	// Close the session record before reporting dashboard errors.
	if store != nil {
		stats := pump.Stats()
		sess.Close(stats.FramesTotal)
		if uerr := store.Update(sess); uerr != nil {
			logger.Warn("session index update failed", "err", uerr)
		}
		fmt.Printf("Recorded %d frames to %s\n", stats.FramesTotal, store.CaptureFile(sess))
	}

	return err
}
