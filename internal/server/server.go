// Package server implements the TCP server for FlashKV using RESP protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/flashdb/flashkv/internal/command"
	"github.com/flashdb/flashkv/internal/protocol"
)

// Config holds server configuration.
type Config struct {
	Addr       string
	Password   string
	MaxClients int
	Timeout    time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:       ":6379",
		MaxClients: 10000,
	}
}

// KeyspaceStats reports keyspace figures for INFO.
type KeyspaceStats interface {
	Size() int
	ExpiredKeys() int64
}

// ConnObserver is notified when clients connect and disconnect.
type ConnObserver interface {
	ClientConnected()
	ClientDisconnected()
}

// clientConn represents a client connection with state.
type clientConn struct {
	id            int64
	conn          net.Conn
	addr          string
	name          string
	authenticated bool
	createdAt     time.Time
	lastCommand   atomic.Int64 // unix nanos
	cmdCount      atomic.Int64
}

// Server represents the FlashKV TCP server.
type Server struct {
	config   Config
	engine   *command.Engine
	logger   hclog.Logger
	keyspace KeyspaceStats
	observer ConnObserver

	// execMu serializes command execution across connections.
	execMu sync.Mutex

	listener   net.Listener
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	nextConnID int64
	clients    map[int64]*clientConn
	startTime  time.Time
	totalCmds  atomic.Int64
	totalConns atomic.Int64
	ready      chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l hclog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithKeyspaceStats makes INFO report keyspace figures from ks.
func WithKeyspaceStats(ks KeyspaceStats) Option {
	return func(s *Server) { s.keyspace = ks }
}

// WithConnObserver reports connection events to o.
func WithConnObserver(o ConnObserver) Option {
	return func(s *Server) { s.observer = o }
}

// New creates a new Server executing commands with e.
func New(cfg Config, e *command.Engine, opts ...Option) *Server {
	s := &Server{
		config:    cfg,
		engine:    e,
		logger:    hclog.NewNullLogger(),
		clients:   make(map[int64]*clientConn),
		startTime: time.Now(),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on the configured address and serves connections.
// It blocks until the context is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until the context is cancelled or
// Close is called.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("listening", "addr", listener.Addr().String(), "auth", s.config.Password != "")

	// Handle context cancellation
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()

			if closed {
				return nil
			}
			s.logger.Warn("failed to accept connection", "error", err)
			continue
		}

		client, err := s.register(conn)
		if err != nil {
			if errors.Is(err, errMaxClients) {
				conn.Write([]byte("-ERR max number of clients reached\r\n"))
				s.logger.Warn("max clients reached, rejecting connection", "remote", conn.RemoteAddr().String())
			}
			conn.Close()
			continue
		}

		go func(c *clientConn) {
			defer s.wg.Done()
			defer s.unregister(c)
			s.handleConnection(ctx, c)
		}(client)
	}
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.listener.Addr()
}

var (
	errClosed     = errors.New("server: closed")
	errMaxClients = errors.New("server: max number of clients reached")
)

// register admits conn and adds it to the handler wait group.
func (s *Server) register(conn net.Conn) (*clientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed
	}
	if s.config.MaxClients > 0 && len(s.clients) >= s.config.MaxClients {
		return nil, errMaxClients
	}
	s.wg.Add(1)
	s.nextConnID++
	client := &clientConn{
		id:            s.nextConnID,
		conn:          conn,
		addr:          conn.RemoteAddr().String(),
		authenticated: s.config.Password == "", // Auto-auth if no password
		createdAt:     time.Now(),
	}
	client.lastCommand.Store(client.createdAt.UnixNano())
	s.clients[client.id] = client
	s.totalConns.Add(1)
	if s.observer != nil {
		s.observer.ClientConnected()
	}
	s.logger.Debug("client connected", "id", client.id, "remote", client.addr)
	return client, nil
}

func (s *Server) unregister(c *clientConn) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.ClientDisconnected()
	}
	s.logger.Debug("client disconnected", "id", c.id, "commands", c.cmdCount.Load())
}

// Close stops accepting connections, closes open ones and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	// Wait for all connections to finish
	s.wg.Wait()

	return err
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleConnection serves one client. Replies are flushed once the reader
// has no more pipelined requests buffered.
func (s *Server) handleConnection(ctx context.Context, client *clientConn) {
	defer client.conn.Close()

	reader := protocol.NewReader(client.conn)
	writer := protocol.NewWriter(client.conn)
	writer.SetAutoFlush(false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Set read timeout if configured
		if s.config.Timeout > 0 {
			client.conn.SetReadDeadline(time.Now().Add(s.config.Timeout))
		}

		args, err := reader.ReadCommand()
		if err != nil {
			s.logReadError(client, err)
			if errors.Is(err, protocol.ErrInvalidProtocol) || errors.Is(err, protocol.ErrUnexpectedType) {
				writer.WriteError("ERR Protocol error: " + err.Error())
				writer.Flush()
			}
			return
		}
		if len(args) == 0 {
			continue
		}

		client.lastCommand.Store(time.Now().UnixNano())
		client.cmdCount.Add(1)
		s.totalCmds.Add(1)

		quit := s.dispatch(writer, client, args)

		if reader.Buffered() == 0 || quit {
			if err := writer.Flush(); err != nil {
				s.logger.Debug("failed to write reply", "id", client.id, "error", err)
				return
			}
		}
		if quit {
			return
		}
	}
}

func (s *Server) logReadError(client *clientConn, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Debug("client timed out", "id", client.id)
	default:
		s.logger.Warn("failed to read command", "id", client.id, "remote", client.addr, "error", err)
	}
}

// dispatch runs one command and reports whether the connection should be
// closed afterwards.
func (s *Server) dispatch(w *protocol.Writer, client *clientConn, args [][]byte) bool {
	name := strings.ToUpper(string(args[0]))

	// Check authentication for non-AUTH commands
	if !client.authenticated && name != "AUTH" && name != "QUIT" {
		w.WriteError("NOAUTH Authentication required.")
		return false
	}

	if cc, ok := connCommands[name]; ok {
		if (cc.arity >= 0 && len(args) != cc.arity) || len(args) < -cc.arity {
			return wrongArity(w, name)
		}
		return cc.handler(s, w, client, args[1:])
	}

	s.execMu.Lock()
	reply := s.engine.Execute(args)
	s.execMu.Unlock()

	writeReply(w, reply)
	return false
}

// writeReply encodes a command reply.
func writeReply(w *protocol.Writer, r command.Reply) error {
	switch r.Type {
	case command.StatusReply:
		return w.WriteSimpleString(r.Status)
	case command.IntegerReply:
		return w.WriteInteger(r.Int)
	case command.BulkReply:
		return w.WriteBulkString(r.Bulk)
	case command.NullReply:
		return w.WriteNull()
	case command.ArrayReply:
		return w.WriteArray(r.Array)
	case command.ErrorReply:
		return w.WriteError(r.Err.Error())
	}
	return w.WriteError("ERR unsupported reply")
}
