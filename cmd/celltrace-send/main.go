// Command celltrace-send is an interactive console for sending frames on
// a CAN bus and watching the traffic that comes back.
//
// Usage:
//
//	celltrace-send -port /dev/ttyACM0
//	celltrace-send -port /dev/ttyACM0 -bitrate 250k
//	celltrace-send -demo
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/celltrace/celltrace-go/cmd/celltrace-send/interactive"
	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
)

func main() {
	port := flag.String("port", "", "Serial device of the slcan adapter (e.g. /dev/ttyACM0)")
	bitrate := flag.String("bitrate", "500k", "CAN bitrate (10k, 20k, 50k, 100k, 125k, 250k, 500k, 800k, 1m)")
	channel := flag.String("channel", "", "Channel name override")
	demo := flag.Bool("demo", false, "Use an in-process virtual bus instead of hardware")
	flag.Parse()

	var b bus.Bus
	switch {
	case *demo:
		hub := bus.NewHub()
		endpoint := hub.Join("vcan0")
		endpoint.SetLoopback(true)
		b = endpoint
	case *port != "":
		rate, err := bus.ParseBitrate(*bitrate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		config := bus.DefaultSLCANConfig()
		config.Bitrate = rate
		config.Channel = *channel
		b, err = bus.OpenSLCAN(*port, config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "Error: -port or -demo required")
		flag.Usage()
		os.Exit(1)
	}
	defer b.Close()

	console, err := interactive.New(b, bmsdb.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("Connected to %s\n", b.Channel())
	console.Run(ctx, cancel)
}
