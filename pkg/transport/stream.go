package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/simple-beacon/beacon-go/pkg/log"
)

// DefaultPort is the default stream bearer port.
const DefaultPort = 7755

// StreamServerConfig configures a StreamServer.
type StreamServerConfig struct {
	// Address to listen on (default ":7755").
	Address string

	// MaxFrameSize bounds inbound and outbound frames (default: 512).
	MaxFrameSize uint32

	// Relay forwards every inbound PDU to the other connections, so stream
	// peers see each other's traffic as on a shared medium.
	Relay bool

	// OnReceive is called with every inbound PDU (required).
	OnReceive ReceiveFunc

	// OnConnect and OnDisconnect are optional.
	OnConnect    func(conn *StreamConn)
	OnDisconnect func(conn *StreamConn)

	// Logger for operational messages. Nil uses slog.Default().
	Logger *slog.Logger

	// ProtocolLogger captures frames and connection state changes.
	ProtocolLogger log.Logger
}

// StreamServer is a TCP bearer. PDUs sent on it go to every connection.
type StreamServer struct {
	config   StreamServerConfig
	logger   *slog.Logger
	protoLog log.Logger
	listener net.Listener

	conns   map[*StreamConn]struct{}
	connsMu sync.RWMutex

	// rxMu delivers inbound PDUs one at a time across all connections.
	rxMu sync.Mutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamServer creates a stream server.
func NewStreamServer(config StreamServerConfig) (*StreamServer, error) {
	if config.OnReceive == nil {
		return nil, fmt.Errorf("OnReceive is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &StreamServer{
		config:   config,
		logger:   config.Logger,
		protoLog: log.OrNoop(config.ProtocolLogger),
		conns:    make(map[*StreamConn]struct{}),
	}, nil
}

// Start listens and begins accepting connections.
func (s *StreamServer) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *StreamServer) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *StreamServer) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Send writes pdu to every connection. It fails only when no connection
// accepted it.
func (s *StreamServer) Send(pdu []byte) error {
	if !s.running.Load() {
		return ErrClosed
	}
	return s.broadcast(pdu, nil)
}

func (s *StreamServer) broadcast(pdu []byte, except *StreamConn) error {
	s.connsMu.RLock()
	conns := make([]*StreamConn, 0, len(s.conns))
	for c := range s.conns {
		if c != except {
			conns = append(conns, c)
		}
	}
	s.connsMu.RUnlock()

	if len(conns) == 0 {
		return nil
	}

	var errs []error
	for _, c := range conns {
		if err := c.Send(pdu); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.ID(), err))
		}
	}
	if len(errs) == len(conns) {
		return errors.Join(errs...)
	}
	return nil
}

// Close stops accepting, closes every connection and waits for the
// connection goroutines.
func (s *StreamServer) Close() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *StreamServer) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.logger.Warn("accept failed", "error", err)
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *StreamServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	sc := newStreamConn(conn, s.config.MaxFrameSize, s.protoLog)

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	s.conns[sc] = struct{}{}
	s.connsMu.Unlock()

	s.logger.Debug("stream peer connected", "conn", sc.ID(), "remote", sc.RemoteAddr())
	logConnState(s.protoLog, sc, "", "CONNECTED")
	if s.config.OnConnect != nil {
		s.config.OnConnect(sc)
	}

	err := sc.readLoop(s.ctx, func(pdu []byte) {
		s.rxMu.Lock()
		defer s.rxMu.Unlock()
		if s.config.Relay {
			if err := s.broadcast(pdu, sc); err != nil {
				s.logger.Debug("relay failed", "conn", sc.ID(), "error", err)
			}
		}
		s.config.OnReceive(pdu)
	})

	s.connsMu.Lock()
	delete(s.conns, sc)
	s.connsMu.Unlock()
	sc.Close()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.logger.Debug("stream peer disconnected", "conn", sc.ID(), "reason", reason)
	logConnState(s.protoLog, sc, "CONNECTED", "DISCONNECTED", reason)
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sc)
	}
}

// StreamConn is one framed TCP connection.
type StreamConn struct {
	conn      net.Conn
	framer    *Framer
	id        string
	closeOnce sync.Once
	closed    atomic.Bool
}

func newStreamConn(conn net.Conn, maxFrameSize uint32, protoLog log.Logger) *StreamConn {
	c := &StreamConn{
		conn:   conn,
		framer: NewFramer(conn, maxFrameSize),
		id:     uuid.New().String(),
	}
	c.framer.SetLogger(protoLog, c.id)
	return c
}

// ID returns the connection identifier.
func (c *StreamConn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one PDU.
func (c *StreamConn) Send(pdu []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.framer.WriteFrame(pdu)
}

// Close closes the connection.
func (c *StreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// readLoop delivers frames until the connection fails or ctx ends.
// A clean close by either side returns nil.
func (c *StreamConn) readLoop(ctx context.Context, deliver ReceiveFunc) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		pdu, err := c.framer.ReadFrame()
		if err != nil {
			if c.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		deliver(pdu)
	}
}

func logConnState(protoLog log.Logger, c *StreamConn, oldState, newState string, reason ...string) {
	ev := &log.StateChangeEvent{
		Entity:   log.StateEntityBearer,
		OldState: oldState,
		NewState: newState,
	}
	if len(reason) > 0 {
		ev.Reason = reason[0]
	}
	protoLog.Log(log.Event{
		Timestamp:   time.Now(),
		BearerID:    c.ID(),
		Layer:       log.LayerBearer,
		Category:    log.CategoryState,
		RemoteAddr:  c.RemoteAddr().String(),
		StateChange: ev,
	})
}

// StreamClientConfig configures DialStream.
type StreamClientConfig struct {
	// MaxFrameSize bounds frames (default: 512).
	MaxFrameSize uint32

	// ConnectTimeout applies when ctx has no deadline (default: 10s).
	ConnectTimeout time.Duration

	// OnReceive is called with every inbound PDU (required).
	OnReceive ReceiveFunc

	// OnClose is called once when the connection ends, with the read error if any.
	OnClose func(err error)

	// ProtocolLogger captures frames.
	ProtocolLogger log.Logger
}

// StreamClient is a bearer connected to a StreamServer.
type StreamClient struct {
	*StreamConn
	done chan struct{}
}

// DialStream connects to a stream server and starts reading.
func DialStream(ctx context.Context, address string, config StreamClientConfig) (*StreamClient, error) {
	if config.OnReceive == nil {
		return nil, fmt.Errorf("OnReceive is required")
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	protoLog := log.OrNoop(config.ProtocolLogger)
	c := &StreamClient{
		StreamConn: newStreamConn(conn, config.MaxFrameSize, protoLog),
		done:       make(chan struct{}),
	}
	logConnState(protoLog, c.StreamConn, "", "CONNECTED")

	go func() {
		defer close(c.done)
		err := c.readLoop(context.Background(), config.OnReceive)
		c.StreamConn.Close()
		logConnState(protoLog, c.StreamConn, "CONNECTED", "DISCONNECTED")
		if config.OnClose != nil {
			config.OnClose(err)
		}
	}()
	return c, nil
}

// Close closes the connection and waits for the reader to stop.
func (c *StreamClient) Close() error {
	err := c.StreamConn.Close()
	<-c.done
	return err
}

// Done is closed when the connection has ended.
func (c *StreamClient) Done() <-chan struct{} {
	return c.done
}

var (
	_ Bearer = (*StreamServer)(nil)
	_ Bearer = (*StreamClient)(nil)
)
