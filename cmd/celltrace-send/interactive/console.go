// Package interactive provides the interactive command loop for
// celltrace-send.
package interactive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/celltrace/celltrace-go/pkg/bus"
	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

// Console handles interactive mode for celltrace-send.
type Console struct {
	bus bus.Bus
	db  *candb.Database
	rl  *readline.Instance

	mu        sync.Mutex
	monitor   bool
	decode    bool
	periodics map[int]context.CancelFunc
	nextID    int

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
}

// New creates a new interactive console over the given bus.
func New(b bus.Bus, db *candb.Database) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", b.Channel()),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		bus:       b,
		db:        db,
		rl:        rl,
		periodics: make(map[int]context.CancelFunc),
	}, nil
}

// Run starts the interactive command loop. It returns when the context
// is cancelled or the user exits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.stopPeriodics()

	go c.receiveLoop(ctx)

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "send", "s":
			c.cmdSend(args)

		case "encode", "e":
			c.cmdEncode(args)

		case "request", "rtr":
			c.cmdRequest(args)

		case "periodic", "p":
			c.cmdPeriodic(args)

		case "monitor", "m":
			c.cmdMonitor(args)

		case "status":
			c.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Commands:
  Sending:
    send <id> [data]       - Send a frame (hex ID, hex payload)
    encode <msg> <s=v...>  - Encode signal values and send the frame
    request <id> <len>     - Send a remote transmission request
    periodic <ms> <id> [data] - Send a frame every <ms> milliseconds
    periodic stop          - Stop all periodic senders

  Watching:
    monitor on|off         - Print received frames
    monitor decode         - Print received frames with decoded signals
    status                 - Show connection and traffic counters

  General:
    help                   - Show this help
    quit                   - Exit

  IDs longer than three hex digits are sent as 29-bit extended frames:
    send 069 DEAD
    send B077 4A80E0C0
    encode PACK_MSG BMS_Pack_Voltage=403.2 BMS_Pack_Current=-12.5`)
}

// cmdSend handles the send command.
func (c *Console) cmdSend(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: send <id> [data]")
		return
	}

	data := ""
	if len(args) > 1 {
		data = args[1]
	}
	f, err := parseFrameArgs(args[0], data)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid frame: %v\n", err)
		return
	}

	c.send(f)
}

// cmdEncode handles the encode command.
func (c *Console) cmdEncode(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: encode <message> <signal=value> [signal=value...]")
		return
	}

	values, err := parseSignalValues(args[1:])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid signal value: %v\n", err)
		return
	}

	f, err := frame.EncodeFrame(c.db, args[0], values)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Encode failed: %v\n", err)
		return
	}

	c.send(f)
}

// cmdRequest handles the request (RTR) command.
func (c *Console) cmdRequest(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: request <id> <length>")
		return
	}

	f, err := parseFrameArgs(args[0], "")
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid frame: %v\n", err)
		return
	}
	length, err := strconv.Atoi(args[1])
	if err != nil || length < 0 || length > frame.MaxDataLength {
		fmt.Fprintf(c.rl.Stdout(), "Invalid length: %s\n", args[1])
		return
	}
	f.RTR = true
	f.Length = uint8(length)

	c.send(f)
}

// cmdPeriodic handles the periodic command.
func (c *Console) cmdPeriodic(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: periodic <ms> <id> [data] | periodic stop")
		return
	}

	if args[0] == "stop" {
		n := c.stopPeriodics()
		fmt.Fprintf(c.rl.Stdout(), "Stopped %d periodic senders\n", n)
		return
	}

	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: periodic <ms> <id> [data]")
		return
	}

	ms, err := strconv.Atoi(args[0])
	if err != nil || ms <= 0 {
		fmt.Fprintf(c.rl.Stdout(), "Invalid interval: %s\n", args[0])
		return
	}
	data := ""
	if len(args) > 2 {
		data = args[2]
	}
	f, err := parseFrameArgs(args[1], data)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid frame: %v\n", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.periodics[id] = cancel
	c.mu.Unlock()

	go c.runPeriodic(ctx, id, f, time.Duration(ms)*time.Millisecond)
	fmt.Fprintf(c.rl.Stdout(), "Periodic sender #%d started (%s every %dms)\n", id, f.String(), ms)
}

func (c *Console) runPeriodic(ctx context.Context, id int, f frame.Frame, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.bus.Send(ctx, f); err != nil {
				if !errors.Is(err, context.Canceled) {
					fmt.Fprintf(c.rl.Stdout(), "\nPeriodic #%d stopped: %v\n", id, err)
					c.rl.Refresh()
				}
				c.mu.Lock()
				delete(c.periodics, id)
				c.mu.Unlock()
				return
			}
			c.framesSent.Add(1)
		}
	}
}

func (c *Console) stopPeriodics() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.periodics)
	for id, cancel := range c.periodics {
		cancel()
		delete(c.periodics, id)
	}
	return n
}

// cmdMonitor handles the monitor command.
func (c *Console) cmdMonitor(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: monitor on|off|decode")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch strings.ToLower(args[0]) {
	case "on":
		c.monitor = true
		c.decode = false
		fmt.Fprintln(c.rl.Stdout(), "Monitor on")
	case "decode":
		c.monitor = true
		c.decode = true
		fmt.Fprintln(c.rl.Stdout(), "Monitor on (decoded)")
	case "off":
		c.monitor = false
		fmt.Fprintln(c.rl.Stdout(), "Monitor off")
	default:
		fmt.Fprintf(c.rl.Stdout(), "Unknown monitor mode: %s\n", args[0])
	}
}

// cmdStatus shows the connection status.
func (c *Console) cmdStatus() {
	c.mu.Lock()
	monitor := c.monitor
	periodics := len(c.periodics)
	c.mu.Unlock()

	fmt.Fprintln(c.rl.Stdout(), "\nStatus")
	fmt.Fprintln(c.rl.Stdout(), "-------------------------------------------")
	fmt.Fprintf(c.rl.Stdout(), "  Channel:          %s\n", c.bus.Channel())
	fmt.Fprintf(c.rl.Stdout(), "  Frames sent:      %d\n", c.framesSent.Load())
	fmt.Fprintf(c.rl.Stdout(), "  Frames received:  %d\n", c.framesReceived.Load())
	fmt.Fprintf(c.rl.Stdout(), "  Monitor:          %v\n", monitor)
	fmt.Fprintf(c.rl.Stdout(), "  Periodic senders: %d\n", periodics)
	fmt.Fprintln(c.rl.Stdout())
}

func (c *Console) send(f frame.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.bus.Send(ctx, f); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Send failed: %v\n", err)
		return
	}
	c.framesSent.Add(1)
	fmt.Fprintf(c.rl.Stdout(), "Sent %s\n", f.String())
}

// receiveLoop reads frames from the bus and prints them while the
// monitor is enabled.
func (c *Console) receiveLoop(ctx context.Context) {
	for {
		f, err := c.bus.Receive(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) || errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintf(c.rl.Stdout(), "\nReceive error: %v\n", err)
			c.rl.Refresh()
			return
		}
		c.framesReceived.Add(1)

		c.mu.Lock()
		monitor, decode := c.monitor, c.decode
		c.mu.Unlock()
		if !monitor {
			continue
		}

		fmt.Fprintf(c.rl.Stdout(), "\n[%s] %s\n", f.Timestamp.Format("15:04:05.000"), f.String())
		if decode {
			c.printDecoded(f)
		}
		c.rl.Refresh()
	}
}

func (c *Console) printDecoded(f frame.Frame) {
	m, values, err := frame.DecodeFrame(c.db, f)
	if err != nil {
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "  %s\n", m.Name)

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := values[name]
		if v.Label != "" {
			fmt.Fprintf(c.rl.Stdout(), "    %s = %s\n", name, v.Label)
			continue
		}
		fmt.Fprintf(c.rl.Stdout(), "    %s = %g %s\n", name, v.Physical, v.Unit)
	}
}

// parseFrameArgs builds a frame from a hex identifier and an optional hex
// payload. Identifiers longer than three digits are sent as 29-bit
// extended frames.
func parseFrameArgs(idText, dataText string) (frame.Frame, error) {
	var f frame.Frame

	idText = strings.TrimPrefix(strings.ToUpper(idText), "0X")
	id, err := strconv.ParseUint(idText, 16, 32)
	if err != nil {
		return f, fmt.Errorf("bad identifier %q", idText)
	}
	f.ID = uint32(id)
	f.Extended = len(idText) > 3
	if !f.Extended && f.ID > candb.MaxStandardID {
		return f, fmt.Errorf("identifier %X exceeds the standard range", f.ID)
	}
	if f.Extended && f.ID > candb.MaxExtendedID {
		return f, fmt.Errorf("identifier %X exceeds the extended range", f.ID)
	}

	if dataText != "" {
		payload, err := hex.DecodeString(dataText)
		if err != nil {
			return f, fmt.Errorf("bad payload %q", dataText)
		}
		if len(payload) > frame.MaxDataLength {
			return f, fmt.Errorf("payload exceeds %d bytes", frame.MaxDataLength)
		}
		f.Length = uint8(len(payload))
		copy(f.Data[:], payload)
	}

	return f, nil
}

// parseSignalValues parses name=value pairs into a signal value map.
func parseSignalValues(args []string) (map[string]float64, error) {
	values := make(map[string]float64, len(args))
	for _, arg := range args {
		name, text, found := strings.Cut(arg, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("expected signal=value, got %q", arg)
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value for %s: %q", name, text)
		}
		values[name] = v
	}
	return values, nil
}
