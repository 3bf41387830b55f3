package server

import (
	"crypto/subtle"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/flashdb/flashkv/internal/command"
	"github.com/flashdb/flashkv/internal/protocol"
	"github.com/flashdb/flashkv/internal/version"
)

// connHandler serves a command that acts on the connection rather than the
// keyspace. It reports whether the connection should be closed.
type connHandler func(s *Server, w *protocol.Writer, c *clientConn, args [][]byte) bool

type connCommand struct {
	arity   int
	handler connHandler
}

// connCommands is filled in init because COMMAND reads it.
var connCommands map[string]connCommand

func init() {
	connCommands = map[string]connCommand{
		"PING":    {-1, (*Server).cmdPing},
		"ECHO":    {2, (*Server).cmdEcho},
		"QUIT":    {-1, (*Server).cmdQuit},
		"AUTH":    {2, (*Server).cmdAuth},
		"SELECT":  {2, (*Server).cmdSelect},
		"CLIENT":  {-2, (*Server).cmdClient},
		"INFO":    {-1, (*Server).cmdInfo},
		"TIME":    {1, (*Server).cmdTime},
		"COMMAND": {-1, (*Server).cmdCommand},
	}
}

func wrongArity(w *protocol.Writer, name string) bool {
	w.WriteError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
	return false
}

func (s *Server) cmdPing(w *protocol.Writer, _ *clientConn, args [][]byte) bool {
	switch len(args) {
	case 0:
		w.WriteSimpleString("PONG")
	case 1:
		w.WriteBulkString(args[0])
	default:
		return wrongArity(w, "ping")
	}
	return false
}

func (s *Server) cmdEcho(w *protocol.Writer, _ *clientConn, args [][]byte) bool {
	w.WriteBulkString(args[0])
	return false
}

func (s *Server) cmdQuit(w *protocol.Writer, _ *clientConn, _ [][]byte) bool {
	w.WriteSimpleString("OK")
	return true
}

func (s *Server) cmdAuth(w *protocol.Writer, client *clientConn, args [][]byte) bool {
	if s.config.Password == "" {
		w.WriteError("ERR Client sent AUTH, but no password is set")
		return false
	}
	if subtle.ConstantTimeCompare(args[0], []byte(s.config.Password)) != 1 {
		s.logger.Warn("authentication failed", "id", client.id, "remote", client.addr)
		w.WriteError("WRONGPASS invalid username-password pair")
		return false
	}
	client.authenticated = true
	w.WriteSimpleString("OK")
	return false
}

// SELECT only accepts 0; there is a single keyspace.
func (s *Server) cmdSelect(w *protocol.Writer, _ *clientConn, args [][]byte) bool {
	db, err := strconv.Atoi(string(args[0]))
	if err != nil {
		w.WriteError("ERR value is not an integer or out of range")
		return false
	}
	if db != 0 {
		w.WriteError("ERR DB index is out of range")
		return false
	}
	w.WriteSimpleString("OK")
	return false
}

func (c *clientConn) describe(now time.Time) string {
	age := int64(now.Sub(c.createdAt).Seconds())
	idle := int64(now.Sub(time.Unix(0, c.lastCommand.Load())).Seconds())
	return fmt.Sprintf("id=%d addr=%s name=%s age=%d idle=%d cmd=%d",
		c.id, c.addr, c.name, age, idle, c.cmdCount.Load())
}

func (s *Server) cmdClient(w *protocol.Writer, client *clientConn, args [][]byte) bool {
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "LIST":
		now := time.Now()
		s.mu.RLock()
		var sb strings.Builder
		for _, c := range s.clients {
			sb.WriteString(c.describe(now))
			sb.WriteByte('\n')
		}
		s.mu.RUnlock()
		w.WriteBulkString([]byte(sb.String()))

	case "INFO":
		w.WriteBulkString([]byte(client.describe(time.Now()) + "\n"))

	case "ID":
		w.WriteInteger(client.id)

	case "GETNAME":
		if client.name == "" {
			w.WriteNull()
		} else {
			w.WriteBulkString([]byte(client.name))
		}

	case "SETNAME":
		if len(args) != 2 {
			return wrongArity(w, "client|setname")
		}
		if strings.ContainsAny(string(args[1]), " \n") {
			w.WriteError("ERR Client names cannot contain spaces, newlines or special characters.")
			return false
		}
		s.mu.Lock()
		client.name = string(args[1])
		s.mu.Unlock()
		w.WriteSimpleString("OK")

	default:
		w.WriteError(fmt.Sprintf("ERR unknown subcommand '%s'. Try CLIENT HELP.", strings.ToLower(sub)))
	}
	return false
}

func (s *Server) cmdInfo(w *protocol.Writer, _ *clientConn, _ [][]byte) bool {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Server\r\nflashkv_version:%s\r\ngo_version:%s\r\nprocess_id:%d\r\nuptime_in_seconds:%d\r\n\r\n",
		version.Version, runtime.Version(), os.Getpid(), int64(time.Since(s.startTime).Seconds()))
	fmt.Fprintf(&sb, "# Clients\r\nconnected_clients:%d\r\nmaxclients:%d\r\n\r\n",
		s.ClientCount(), s.config.MaxClients)
	fmt.Fprintf(&sb, "# Stats\r\ntotal_connections_received:%d\r\ntotal_commands_processed:%d\r\n",
		s.totalConns.Load(), s.totalCmds.Load())
	if s.keyspace != nil {
		fmt.Fprintf(&sb, "expired_keys:%d\r\n\r\n# Keyspace\r\n", s.keyspace.ExpiredKeys())
		if n := s.keyspace.Size(); n > 0 {
			fmt.Fprintf(&sb, "db0:keys=%d\r\n", n)
		}
	}
	w.WriteBulkString([]byte(sb.String()))
	return false
}

func (s *Server) cmdTime(w *protocol.Writer, _ *clientConn, _ [][]byte) bool {
	now := time.Now()
	w.WriteStringArray([]string{
		strconv.FormatInt(now.Unix(), 10),
		strconv.FormatInt(int64(now.Nanosecond()/1000), 10),
	})
	return false
}

// cmdCommand serves COMMAND, COMMAND COUNT and COMMAND INFO name...
// Each entry is [name, arity, [flags...], [categories...]].
func (s *Server) cmdCommand(w *protocol.Writer, _ *clientConn, args [][]byte) bool {
	if len(args) == 0 {
		cmds := command.Commands()
		w.WriteArrayHeader(len(cmds) + len(connCommands))
		for _, cmd := range cmds {
			writeCommandInfo(w, cmd.Name, cmd.Arity, cmd.Flags.Names(), cmd.Categories.Names())
		}
		for name, cc := range connCommands {
			writeCommandInfo(w, strings.ToLower(name), cc.arity, []string{"fast"}, []string{"@connection"})
		}
		return false
	}

	switch strings.ToUpper(string(args[0])) {
	case "COUNT":
		w.WriteInteger(int64(len(command.Commands()) + len(connCommands)))
	case "INFO":
		w.WriteArrayHeader(len(args) - 1)
		for _, arg := range args[1:] {
			name := strings.ToUpper(string(arg))
			if cc, ok := connCommands[name]; ok {
				writeCommandInfo(w, strings.ToLower(name), cc.arity, []string{"fast"}, []string{"@connection"})
			} else if cmd, ok := command.Lookup(name); ok {
				writeCommandInfo(w, cmd.Name, cmd.Arity, cmd.Flags.Names(), cmd.Categories.Names())
			} else {
				w.WriteNull()
			}
		}
	default:
		w.WriteError(fmt.Sprintf("ERR unknown subcommand '%s'. Try COMMAND HELP.", strings.ToLower(string(args[0]))))
	}
	return false
}

func writeCommandInfo(w *protocol.Writer, name string, arity int, flags, categories []string) {
	w.WriteArrayHeader(4)
	w.WriteBulkString([]byte(name))
	w.WriteInteger(int64(arity))
	w.WriteStringArray(flags)
	w.WriteStringArray(categories)
}
