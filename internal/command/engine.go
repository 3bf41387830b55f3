// Package command implements the string, bitmap and keyspace commands on top
// of a Store.
//
// Every command runs in two phases. The first validates the arguments,
// parses numeric parameters and derives the keys to touch without reading
// the store. The second executes against the store. Argument errors are
// therefore reported without any side effect.
package command

import (
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/flashdb/flashkv/internal/hotkeys"
	"github.com/flashdb/flashkv/internal/store"
	"github.com/flashdb/flashkv/internal/value"
)

// DefaultMaxBitOffset is the largest bit offset SETBIT accepts.
const DefaultMaxBitOffset int64 = 1<<32 - 1

// Store is the keyspace the commands operate on. *store.Store satisfies it.
type Store interface {
	GetString(key string) (value.String, error)
	Exists(key string) bool
	SetString(key string, v value.String)
	ClearExpire(key string) bool
	SetExpire(key string, atMillis int64) bool
	IncrBy(key string, delta int64) (int64, error)
	DecrBy(key string, delta int64) (int64, error)
	IncrByFloat(key string, delta float64) (string, error)

	Delete(keys ...string) int
	TypeOf(key string) (store.Type, bool)
	PTTL(key string) int64
	Size() int
	Clear()
}

// Recorder observes executed commands.
type Recorder interface {
	ObserveCommand(name string, took time.Duration)
	ObserveError(name, kind string)
	ObserveWrite(name string)
}

// Engine executes commands. Callers serialize Execute; the engine itself
// only relies on the atomicity of single Store operations.
type Engine struct {
	store        Store
	logger       hclog.Logger
	hot          *hotkeys.Tracker
	recorder     Recorder
	now          func() time.Time
	maxBitOffset int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHotKeys records the keys every command touches in h.
func WithHotKeys(h *hotkeys.Tracker) Option {
	return func(e *Engine) { e.hot = h }
}

// WithRecorder enables per-command metrics.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock replaces time.Now for expiration arithmetic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxBitOffset bounds SETBIT offsets and SETRANGE lengths.
func WithMaxBitOffset(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBitOffset = n
		}
	}
}

// New creates an Engine over s.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		logger:       hclog.NewNullLogger(),
		now:          time.Now,
		maxBitOffset: DefaultMaxBitOffset,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one command. args[0] is the command name.
func (e *Engine) Execute(args [][]byte) Reply {
	if len(args) == 0 {
		return Fail(errOther("empty command"))
	}
	name := strings.ToLower(string(args[0]))
	cmd, ok := Lookup(name)
	if !ok {
		if e.recorder != nil {
			e.recorder.ObserveError("unknown", UnknownCommand.String())
		}
		return Fail(errUnknownCommand(string(args[0])))
	}

	start := time.Now()
	reply := e.execute(cmd, args)
	if e.recorder != nil {
		e.recorder.ObserveCommand(cmd.Name, time.Since(start))
		if reply.IsError() {
			e.recorder.ObserveError(cmd.Name, reply.Err.Kind.String())
		} else if cmd.Flags&FlagWrite != 0 {
			e.recorder.ObserveWrite(cmd.Name)
		}
	}
	return reply
}

func (e *Engine) execute(cmd *Command, args [][]byte) Reply {
	if !cmd.arityOK(len(args)) {
		return Fail(errWrongArity(cmd.Name))
	}
	c := &call{name: cmd.Name, args: args}
	if err := cmd.validate(c); err != nil {
		return Fail(err)
	}
	if e.hot != nil && len(c.keys) > 0 {
		e.hot.Record(c.keys...)
	}
	return cmd.run(e, c)
}

func (e *Engine) nowMillis() int64 {
	return e.now().UnixMilli()
}

// storeError turns a store error the handler did not expect into a reply.
func (e *Engine) storeError(c *call, err error) Reply {
	switch {
	case errors.Is(err, store.ErrWrongType):
		return Fail(errWrongType)
	case errors.Is(err, store.ErrOverflow):
		return Fail(errOverflow)
	case errors.Is(err, store.ErrNotFound):
		return Fail(&Error{Kind: NotFound, Msg: "ERR no such key"})
	}
	e.logger.Error("store operation failed", "command", c.name, "error", err)
	return Fail(errOther(err.Error()))
}
