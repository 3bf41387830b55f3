package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdb/flashkv/internal/command"
	"github.com/flashdb/flashkv/internal/metrics"
	"github.com/flashdb/flashkv/internal/protocol"
	"github.com/flashdb/flashkv/internal/store"
)

func setupTestServer(t *testing.T, cfg Config, opts ...Option) (*Server, *store.Store) {
	t.Helper()
	st := store.New(store.WithExpireInterval(0))
	e := command.New(st)
	s := New(cfg, e, append([]Option{WithKeyspaceStats(st)}, opts...)...)
	t.Cleanup(st.Close)
	return s, st
}

func startTestServer(t *testing.T, s *Server) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	t.Cleanup(func() {
		cancel()
		s.Close()
		<-done
	})
	return s.Addr().String()
}

type testClient struct {
	conn net.Conn
	r    *protocol.Reader
	w    *protocol.Writer
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, r: protocol.NewReader(conn), w: protocol.NewWriter(conn)}
}

func (c *testClient) do(t *testing.T, args ...string) string {
	t.Helper()
	require.NoError(t, c.w.WriteCommand(args...))
	return c.read(t)
}

func (c *testClient) read(t *testing.T) string {
	t.Helper()
	resp, err := c.r.ReadValue()
	require.NoError(t, err)
	return format(resp)
}

func format(v protocol.Value) string {
	switch v.Type {
	case protocol.TypeInteger:
		return fmt.Sprintf("%d", v.Num)
	case protocol.TypeError:
		return "ERR: " + v.Str
	case protocol.TypeArray:
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = format(item)
		}
		return strings.Join(parts, ",")
	}
	if v.Null {
		return "(nil)"
	}
	return v.Text()
}

func sendCommand(t *testing.T, addr string, args ...string) string {
	t.Helper()
	return dial(t, addr).do(t, args...)
}

func TestServer_PING(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)

	assert.Equal(t, "PONG", sendCommand(t, addr, "PING"))
	assert.Equal(t, "hello", sendCommand(t, addr, "PING", "hello"))
	assert.Equal(t, "ERR: ERR wrong number of arguments for 'ping' command", sendCommand(t, addr, "PING", "a", "b"))
}

func TestServer_ECHO(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)

	assert.Equal(t, "hi there", sendCommand(t, addr, "ECHO", "hi there"))
	assert.Equal(t, "ERR: ERR wrong number of arguments for 'echo' command", sendCommand(t, addr, "ECHO"))
}

func TestServer_StringCommands(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	assert.Equal(t, "OK", c.do(t, "SET", "key1", "value1"))
	assert.Equal(t, "value1", c.do(t, "GET", "key1"))
	assert.Equal(t, "", c.do(t, "GET", "missing"))
	assert.Equal(t, "11", c.do(t, "APPEND", "key1", "abcde"))
	assert.Equal(t, "value1abcde,(nil)", c.do(t, "MGET", "key1", "nope"))
	assert.Equal(t, "11", c.do(t, "INCRBY", "counter", "11"))
	assert.Equal(t, "10", c.do(t, "DECR", "counter"))
	assert.Equal(t, "10.5", c.do(t, "INCRBYFLOAT", "counter", "0.5"))
	assert.Equal(t, "alu", c.do(t, "GETRANGE", "key1", "1", "3"))
}

func TestServer_MGETNulls(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	c.do(t, "MSET", "a", "1", "b", "")
	assert.Equal(t, "1,,(nil)", c.do(t, "MGET", "a", "b", "c"))
}

func TestServer_BitCommands(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	assert.Equal(t, "0", c.do(t, "SETBIT", "bits", "7", "1"))
	assert.Equal(t, "1", c.do(t, "GETBIT", "bits", "7"))
	assert.Equal(t, "1", c.do(t, "BITCOUNT", "bits"))
	assert.Equal(t, "1", c.do(t, "BITOP", "NOT", "inv", "bits"))
	assert.Equal(t, "7", c.do(t, "BITCOUNT", "inv"))
}

func TestServer_Errors(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	assert.Equal(t, "ERR: ERR unknown command 'NOPE'", c.do(t, "NOPE"))
	assert.Equal(t, "ERR: ERR wrong number of arguments for 'get' command", c.do(t, "GET"))
	assert.Equal(t, "ERR: ERR value is not an integer or out of range", c.do(t, "INCRBY", "k", "x"))

	// connection stays usable after errors
	assert.Equal(t, "PONG", c.do(t, "PING"))
}

func TestServer_Pipelining(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	c.w.SetAutoFlush(false)
	for i := 0; i < 50; i++ {
		require.NoError(t, c.w.WriteCommand("INCR", "n"))
	}
	require.NoError(t, c.w.Flush())

	for i := 1; i <= 50; i++ {
		assert.Equal(t, fmt.Sprintf("%d", i), c.read(t))
	}
}

func TestServer_InlineCommand(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	_, err := c.conn.Write([]byte("SET inline yes\r\nGET inline\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "OK", c.read(t))
	assert.Equal(t, "yes", c.read(t))
}

func TestServer_ProtocolError(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	_, err := c.conn.Write([]byte("*1\r\n:5\r\n"))
	require.NoError(t, err)
	assert.Contains(t, c.read(t), "ERR: ERR Protocol error")

	_, err = c.r.ReadValue()
	assert.Error(t, err)
}

func TestServer_QUIT(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	assert.Equal(t, "OK", c.do(t, "QUIT"))
	_, err := c.r.ReadValue()
	assert.Error(t, err)
}

func TestServer_AUTH(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	s, _ := setupTestServer(t, cfg)
	addr := startTestServer(t, s)
	c := dial(t, addr)

	assert.Equal(t, "ERR: NOAUTH Authentication required.", c.do(t, "GET", "k"))
	assert.Equal(t, "ERR: NOAUTH Authentication required.", c.do(t, "PING"))
	assert.Equal(t, "ERR: WRONGPASS invalid username-password pair", c.do(t, "AUTH", "wrong"))
	assert.Equal(t, "OK", c.do(t, "AUTH", "secret"))
	assert.Equal(t, "OK", c.do(t, "SET", "k", "v"))

	// authentication is per connection
	assert.Equal(t, "ERR: NOAUTH Authentication required.", sendCommand(t, addr, "GET", "k"))
}

func TestServer_AUTHWithoutPassword(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)

	assert.Equal(t, "ERR: ERR Client sent AUTH, but no password is set", sendCommand(t, addr, "AUTH", "x"))
}

func TestServer_SELECT(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)

	assert.Equal(t, "OK", sendCommand(t, addr, "SELECT", "0"))
	assert.Equal(t, "ERR: ERR DB index is out of range", sendCommand(t, addr, "SELECT", "1"))
	assert.Equal(t, "ERR: ERR value is not an integer or out of range", sendCommand(t, addr, "SELECT", "x"))
}

func TestServer_CLIENT(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	assert.Equal(t, "1", c.do(t, "CLIENT", "ID"))
	assert.Equal(t, "(nil)", c.do(t, "CLIENT", "GETNAME"))
	assert.Equal(t, "OK", c.do(t, "CLIENT", "SETNAME", "worker"))
	assert.Equal(t, "worker", c.do(t, "CLIENT", "GETNAME"))
	assert.Contains(t, c.do(t, "CLIENT", "LIST"), "name=worker")
	assert.Contains(t, c.do(t, "CLIENT", "INFO"), "id=1 ")
	assert.Contains(t, c.do(t, "CLIENT", "NOPE"), "unknown subcommand 'nope'")
}

func TestServer_INFO(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	c.do(t, "SET", "a", "1")
	c.do(t, "SET", "b", "2")
	info := c.do(t, "INFO")
	assert.Contains(t, info, "# Server")
	assert.Contains(t, info, "connected_clients:1")
	assert.Contains(t, info, "db0:keys=2")
}

func TestServer_TIME(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)

	parts := strings.Split(sendCommand(t, addr, "TIME"), ",")
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
}

func TestServer_COMMAND(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)
	c := dial(t, addr)

	want := len(command.Commands()) + len(connCommands)
	assert.Equal(t, fmt.Sprintf("%d", want), c.do(t, "COMMAND", "COUNT"))

	info := c.do(t, "COMMAND", "INFO", "get", "ping", "nope")
	assert.Equal(t, "get,2,readonly,fast,@string,@read,ping,-1,fast,@connection,(nil)", info)
}

func TestServer_MaxClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClients = 1
	s, _ := setupTestServer(t, cfg)
	addr := startTestServer(t, s)

	first := dial(t, addr)
	assert.Equal(t, "PONG", first.do(t, "PING"))

	second := dial(t, addr)
	assert.Equal(t, "ERR: ERR max number of clients reached", second.read(t))
}

func TestServer_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	s, _ := setupTestServer(t, cfg)
	addr := startTestServer(t, s)
	c := dial(t, addr)

	assert.Equal(t, "PONG", c.do(t, "PING"))
	_, err := c.r.ReadValue()
	assert.Error(t, err)
}

func TestServer_ConnObserver(t *testing.T) {
	m := metrics.New(func() int { return 0 }, func() int64 { return 0 })
	s, _ := setupTestServer(t, DefaultConfig(), WithConnObserver(m))
	addr := startTestServer(t, s)

	c := dial(t, addr)
	assert.Equal(t, "PONG", c.do(t, "PING"))
	assert.Equal(t, 1, s.ClientCount())
	expected := `
# HELP flashkv_connections_total Total number of accepted client connections
# TYPE flashkv_connections_total counter
flashkv_connections_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "flashkv_connections_total"))

	c.conn.Close()
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_ConcurrentClients(t *testing.T) {
	s, st := setupTestServer(t, DefaultConfig())
	addr := startTestServer(t, s)

	const clients, perClient = 8, 100
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func() {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			r, w := protocol.NewReader(conn), protocol.NewWriter(conn)
			for j := 0; j < perClient; j++ {
				if err := w.WriteCommand("INCR", "shared"); err != nil {
					errs <- err
					return
				}
				if _, err := r.ReadValue(); err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}()
	}
	for i := 0; i < clients; i++ {
		require.NoError(t, <-errs)
	}

	v, err := st.GetString("shared")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", clients*perClient), string(v.Bytes()))
}

func TestServer_CloseIdempotent(t *testing.T) {
	s, _ := setupTestServer(t, DefaultConfig())
	startTestServer(t, s)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
