package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/celltrace/celltrace-go/pkg/capture"
)

// Client errors.
var (
	ErrAuthFailed   = errors.New("bridge authentication failed")
	ErrClientClosed = errors.New("bridge client closed")
)

// ClientConfig configures a bridge client.
type ClientConfig struct {
	// Passphrase is the shared secret, matching the server's.
	Passphrase string

	// Name identifies this client to the server (optional).
	Name string

	// DialTimeout bounds connection establishment (default 10s).
	DialTimeout time.Duration

	// PingInterval is the keepalive period. Zero disables keepalives.
	PingInterval time.Duration
}

// Client is an authenticated bridge subscriber.
type Client struct {
	conn   net.Conn
	framer *framer

	events chan capture.Event

	pingSeq   atomic.Uint32
	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	readErr error
}

// Dial connects to a bridge server and authenticates.
func Dial(ctx context.Context, addr string, config ClientConfig) (*Client, error) {
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bridge dial: %w", err)
	}

	c := &Client{
		conn:   conn,
		framer: newFramer(conn, 0),
		events: make(chan capture.Event, 256),
		closed: make(chan struct{}),
	}

	if err := c.handshake(config); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	if config.PingInterval > 0 {
		go c.pingLoop(config.PingInterval)
	}

	return c, nil
}

// handshake runs the client side of the authentication exchange.
func (c *Client) handshake(config ClientConfig) error {
	deadline := time.Now().Add(config.DialTimeout)
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	hello := &Envelope{Type: TypeHello, Hello: &Hello{
		Version: ProtocolVersion,
		Name:    config.Name,
	}}
	if err := c.write(hello); err != nil {
		return err
	}

	env, err := c.read()
	if err != nil {
		return err
	}
	if env.Type == TypeAuthResult && env.AuthResult != nil {
		return fmt.Errorf("%w: %s", ErrAuthFailed, env.AuthResult.Reason)
	}
	if env.Type != TypeChallenge || env.Challenge == nil {
		return fmt.Errorf("expected CHALLENGE, got %s", env.Type)
	}

	proof, err := prove(config.Passphrase, env.Challenge)
	if err != nil {
		return err
	}
	if err := c.write(&Envelope{Type: TypeAuth, Auth: &Auth{Proof: proof}}); err != nil {
		return err
	}

	env, err = c.read()
	if err != nil {
		return err
	}
	if env.Type != TypeAuthResult || env.AuthResult == nil {
		return fmt.Errorf("expected AUTH_RESULT, got %s", env.Type)
	}
	if !env.AuthResult.OK {
		return fmt.Errorf("%w: %s", ErrAuthFailed, env.AuthResult.Reason)
	}
	return nil
}

// Next returns the next capture event streamed by the server.
func (c *Client) Next(ctx context.Context) (capture.Event, error) {
	select {
	case event, ok := <-c.events:
		if !ok {
			return capture.Event{}, c.closeErr()
		}
		return event, nil
	case <-ctx.Done():
		return capture.Event{}, ctx.Err()
	}
}

// Close disconnects from the server.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return ErrClientClosed
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		env, err := c.read()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.mu.Lock()
				c.readErr = fmt.Errorf("bridge read: %w", err)
				c.mu.Unlock()
				c.Close()
			}
			return
		}

		switch env.Type {
		case TypeEvent:
			if env.Event == nil {
				continue
			}
			select {
			case c.events <- *env.Event:
			case <-c.closed:
				return
			}
		case TypePong:
			// Liveness confirmed; nothing to track beyond the read
			// itself succeeding.
		}
	}
}

func (c *Client) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			seq := c.pingSeq.Add(1)
			if err := c.write(&Envelope{Type: TypePing, Sequence: seq}); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Client) read() (*Envelope, error) {
	data, err := c.framer.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(data)
}

func (c *Client) write(env *Envelope) error {
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return c.framer.WriteFrame(data)
}

// Bridge describes a discovered bridge server.
type Bridge struct {
	Instance  string
	Addresses []net.IP
	Port      int
}

// Addr returns a dialable address for the bridge, preferring IPv4.
func (b Bridge) Addr() string {
	for _, ip := range b.Addresses {
		if ip.To4() != nil {
			return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", b.Port))
		}
	}
	if len(b.Addresses) > 0 {
		return net.JoinHostPort(b.Addresses[0].String(), fmt.Sprintf("%d", b.Port))
	}
	return ""
}

// Discover browses the local network for advertised bridges until the
// context is cancelled, sending each found bridge on the returned
// channel.
func Discover(ctx context.Context) (<-chan Bridge, error) {
	out := make(chan Bridge)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		for {
			select {
			case <-removed:
				// Departures are not tracked; dialing a gone bridge
				// just fails.
			case entry, ok := <-entries:
				if !ok {
					return
				}
				b := Bridge{
					Instance: entry.Instance,
					Port:     entry.Port,
				}
				b.Addresses = append(b.Addresses, entry.AddrIPv4...)
				b.Addresses = append(b.Addresses, entry.AddrIPv6...)
				select {
				case out <- b:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed)
	}()

	return out, nil
}
