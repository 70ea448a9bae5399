package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/celltrace/celltrace-go/pkg/capture"
)

// mDNS service parameters.
const (
	ServiceType = "_celltrace._tcp"
	Domain      = "local."

	// DefaultPort is the default bridge listen port.
	DefaultPort = 7788
)

// ServerConfig configures a bridge server.
type ServerConfig struct {
	// Addr is the listen address (default ":7788").
	Addr string

	// Passphrase is the shared secret clients must prove. Clients must
	// be configured with the same value, including when empty.
	Passphrase string

	// QueueSize is the per-client event queue depth (default 512).
	// Clients that fall this far behind are disconnected.
	QueueSize int

	// AuthTimeout bounds the handshake (default 10s).
	AuthTimeout time.Duration

	// Advertise announces the bridge via mDNS.
	Advertise bool

	// Instance is the mDNS instance name (default "celltrace").
	Instance string

	// Logger receives operational log records (default slog.Default()).
	Logger *slog.Logger
}

// Server accepts bridge clients and fans capture events out to them.
// It implements capture.Sink, so it can be wired anywhere a capture
// file writer can.
type Server struct {
	config   ServerConfig
	listener net.Listener
	mdns     *zeroconf.Server
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*serverClient]struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}

	eventsSent    atomic.Uint64
	eventsDropped atomic.Uint64
}

var _ capture.Sink = (*Server)(nil)

// serverClient is one accepted connection.
type serverClient struct {
	conn   net.Conn
	framer *framer
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *serverClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewServer creates a bridge server. Call Start to begin listening.
func NewServer(config ServerConfig) *Server {
	if config.Addr == "" {
		config.Addr = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.QueueSize == 0 {
		config.QueueSize = 512
	}
	if config.AuthTimeout == 0 {
		config.AuthTimeout = 10 * time.Second
	}
	if config.Instance == "" {
		config.Instance = "celltrace"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  config,
		logger:  logger,
		clients: make(map[*serverClient]struct{}),
		closed:  make(chan struct{}),
	}
}

// Start begins listening and, if configured, announces the bridge on
// the local network.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("bridge listen: %w", err)
	}
	s.listener = listener

	if s.config.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		txt := []string{fmt.Sprintf("v=%d", ProtocolVersion)}
		mdns, err := zeroconf.Register(s.config.Instance, ServiceType, Domain, port, txt, nil)
		if err != nil {
			listener.Close()
			return fmt.Errorf("bridge mDNS register: %w", err)
		}
		s.mdns = mdns
	}

	s.logger.Info("bridge listening", "addr", listener.Addr().String(), "advertise", s.config.Advertise)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Log broadcasts a capture event to all connected clients. Events are
// dropped per-client when a client's queue is full.
func (s *Server) Log(event capture.Event) {
	env := &Envelope{Type: TypeEvent, Event: &event}
	data, err := EncodeEnvelope(env)
	if err != nil {
		s.logger.Warn("bridge event encode failed", "err", err)
		return
	}

	s.mu.Lock()
	clients := make([]*serverClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		select {
		case c.queue <- data:
			s.eventsSent.Add(1)
		default:
			s.eventsDropped.Add(1)
		}
	}
}

// ClientCount returns the number of authenticated clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Stats returns the broadcast counters: events queued to clients and
// events dropped on full queues.
func (s *Server) Stats() (sent, dropped uint64) {
	return s.eventsSent.Load(), s.eventsDropped.Load()
}

// Close stops listening and disconnects all clients.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.mdns != nil {
			s.mdns.Shutdown()
		}
		if s.listener != nil {
			s.listener.Close()
		}

		s.mu.Lock()
		for c := range s.clients {
			c.close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.logger.Warn("bridge accept failed", "err", err)
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn runs the handshake and, on success, the client send loop.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	client := &serverClient{
		conn:   conn,
		framer: newFramer(conn, 0),
		queue:  make(chan []byte, s.config.QueueSize),
		done:   make(chan struct{}),
	}
	defer client.close()

	hello, err := s.handshake(client)
	if err != nil {
		s.logger.Info("bridge handshake failed", "remote", remote, "err", err)
		return
	}
	s.logger.Info("bridge client connected", "remote", remote, "name", hello.Name)

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
		s.logger.Info("bridge client disconnected", "remote", remote)
	}()

	s.wg.Add(1)
	go s.readLoop(client)

	for {
		select {
		case data := <-client.queue:
			if err := client.framer.WriteFrame(data); err != nil {
				return
			}
		case <-client.done:
			return
		case <-s.closed:
			return
		}
	}
}

// handshake authenticates a new connection: hello, challenge, proof,
// result. The whole exchange must finish within AuthTimeout.
func (s *Server) handshake(client *serverClient) (*Hello, error) {
	deadline := time.Now().Add(s.config.AuthTimeout)
	client.conn.SetDeadline(deadline)
	defer client.conn.SetDeadline(time.Time{})

	env, err := s.readEnvelope(client)
	if err != nil {
		return nil, err
	}
	if env.Type != TypeHello || env.Hello == nil {
		return nil, fmt.Errorf("expected HELLO, got %s", env.Type)
	}
	hello := env.Hello
	if hello.Version != ProtocolVersion {
		s.writeEnvelope(client, &Envelope{Type: TypeAuthResult, AuthResult: &AuthResult{
			Reason: fmt.Sprintf("unsupported protocol version %d", hello.Version),
		}})
		return nil, fmt.Errorf("client version %d not supported", hello.Version)
	}

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}
	if err := s.writeEnvelope(client, &Envelope{Type: TypeChallenge, Challenge: challenge}); err != nil {
		return nil, err
	}

	env, err = s.readEnvelope(client)
	if err != nil {
		return nil, err
	}
	if env.Type != TypeAuth || env.Auth == nil {
		return nil, fmt.Errorf("expected AUTH, got %s", env.Type)
	}

	ok, err := verifyProof(s.config.Passphrase, challenge, env.Auth.Proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.writeEnvelope(client, &Envelope{Type: TypeAuthResult, AuthResult: &AuthResult{
			Reason: "bad passphrase",
		}})
		return nil, errors.New("proof verification failed")
	}

	if err := s.writeEnvelope(client, &Envelope{Type: TypeAuthResult, AuthResult: &AuthResult{OK: true}}); err != nil {
		return nil, err
	}
	return hello, nil
}

// readLoop answers client pings until the connection drops.
func (s *Server) readLoop(client *serverClient) {
	defer s.wg.Done()
	defer client.close()

	for {
		env, err := s.readEnvelope(client)
		if err != nil {
			return
		}
		if env.Type == TypePing {
			pong, err := EncodeEnvelope(&Envelope{Type: TypePong, Sequence: env.Sequence})
			if err != nil {
				continue
			}
			select {
			case client.queue <- pong:
			default:
			}
		}
	}
}

func (s *Server) readEnvelope(client *serverClient) (*Envelope, error) {
	data, err := client.framer.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(data)
}

func (s *Server) writeEnvelope(client *serverClient, env *Envelope) error {
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return client.framer.WriteFrame(data)
}
