package command

import (
	"sort"
	"strings"
)

// Flags describe how a command touches the keyspace.
type Flags uint8

const (
	FlagWrite Flags = 1 << iota
	FlagReadOnly
	FlagAdmin
	FlagFast
)

// Names returns the flag names as reported by COMMAND INFO.
func (f Flags) Names() []string {
	var names []string
	if f&FlagWrite != 0 {
		names = append(names, "write")
	}
	if f&FlagReadOnly != 0 {
		names = append(names, "readonly")
	}
	if f&FlagAdmin != 0 {
		names = append(names, "admin")
	}
	if f&FlagFast != 0 {
		names = append(names, "fast")
	}
	return names
}

// Category is an ACL category bit.
type Category uint16

const (
	CatString Category = 1 << iota
	CatKeyspace
	CatBitmap
	CatRead
	CatWrite
	CatDangerous
)

var categoryNames = []struct {
	cat  Category
	name string
}{
	{CatString, "@string"},
	{CatKeyspace, "@keyspace"},
	{CatBitmap, "@bitmap"},
	{CatRead, "@read"},
	{CatWrite, "@write"},
	{CatDangerous, "@dangerous"},
}

// Names returns the category names in a stable order.
func (c Category) Names() []string {
	var names []string
	for _, cn := range categoryNames {
		if c&cn.cat != 0 {
			names = append(names, cn.name)
		}
	}
	return names
}

// Command is one entry of the command table.
//
// Arity counts the command name. A positive arity is exact and a negative
// arity is a minimum.
type Command struct {
	Name       string
	Arity      int
	Flags      Flags
	Categories Category

	// validate checks argument shape, parses numeric arguments into the call
	// and derives the keys the command will touch. It never reads the store.
	validate func(c *call) *Error
	run      func(e *Engine, c *call) Reply
}

func (cmd *Command) arityOK(argc int) bool {
	if cmd.Arity >= 0 {
		return argc == cmd.Arity
	}
	return argc >= -cmd.Arity
}

const (
	stringWrite = CatString | CatWrite
	stringRead  = CatString | CatRead
	bitmapWrite = CatBitmap | CatWrite
	bitmapRead  = CatBitmap | CatRead
	keyWrite    = CatKeyspace | CatWrite
	keyRead     = CatKeyspace | CatRead
)

var commandTable = map[string]*Command{}

func init() {
	for _, cmd := range []*Command{
		{Name: "get", Arity: 2, Flags: FlagReadOnly | FlagFast, Categories: stringRead, validate: oneKey, run: cmdGet},
		{Name: "set", Arity: 3, Flags: FlagWrite, Categories: stringWrite, validate: oneKey, run: cmdSet},
		{Name: "append", Arity: 3, Flags: FlagWrite, Categories: stringWrite, validate: oneKey, run: cmdAppend},
		{Name: "getset", Arity: 3, Flags: FlagWrite, Categories: stringWrite, validate: oneKey, run: cmdGetSet},
		{Name: "getdel", Arity: 2, Flags: FlagWrite | FlagFast, Categories: stringWrite, validate: oneKey, run: cmdGetDel},
		{Name: "mget", Arity: -2, Flags: FlagReadOnly | FlagFast, Categories: stringRead, validate: allKeys, run: cmdMGet},
		{Name: "mset", Arity: -3, Flags: FlagWrite, Categories: stringWrite, validate: pairKeys, run: cmdMSet},
		{Name: "msetnx", Arity: -3, Flags: FlagWrite, Categories: stringWrite, validate: pairKeys, run: cmdMSetNX},
		{Name: "incr", Arity: 2, Flags: FlagWrite | FlagFast, Categories: stringWrite, validate: oneKey, run: cmdIncr},
		{Name: "decr", Arity: 2, Flags: FlagWrite | FlagFast, Categories: stringWrite, validate: oneKey, run: cmdDecr},
		{Name: "incrby", Arity: 3, Flags: FlagWrite | FlagFast, Categories: stringWrite, validate: keyAndInt, run: cmdIncrBy},
		{Name: "decrby", Arity: 3, Flags: FlagWrite | FlagFast, Categories: stringWrite, validate: keyAndInt, run: cmdDecrBy},
		{Name: "incrbyfloat", Arity: 3, Flags: FlagWrite | FlagFast, Categories: stringWrite, validate: keyAndFloat, run: cmdIncrByFloat},
		{Name: "setnx", Arity: 3, Flags: FlagWrite | FlagFast, Categories: stringWrite, validate: oneKey, run: cmdSetNX},
		{Name: "setex", Arity: 4, Flags: FlagWrite, Categories: stringWrite, validate: keyAndExpire(1000), run: cmdSetEx},
		{Name: "psetex", Arity: 4, Flags: FlagWrite, Categories: stringWrite, validate: keyAndExpire(1), run: cmdSetEx},
		{Name: "strlen", Arity: 2, Flags: FlagReadOnly | FlagFast, Categories: stringRead, validate: oneKey, run: cmdStrLen},
		{Name: "getrange", Arity: 4, Flags: FlagReadOnly, Categories: stringRead, validate: keyAndRange, run: cmdGetRange},
		{Name: "setrange", Arity: 4, Flags: FlagWrite, Categories: stringWrite, validate: keyAndOffset, run: cmdSetRange},

		{Name: "setbit", Arity: 4, Flags: FlagWrite, Categories: bitmapWrite, validate: keyAndBit, run: cmdSetBit},
		{Name: "getbit", Arity: 3, Flags: FlagReadOnly | FlagFast, Categories: bitmapRead, validate: keyAndBitOffset, run: cmdGetBit},
		{Name: "bitcount", Arity: -2, Flags: FlagReadOnly, Categories: bitmapRead, validate: bitCountArgs, run: cmdBitCount},
		{Name: "bitop", Arity: -4, Flags: FlagWrite, Categories: bitmapWrite, validate: bitOpArgs, run: cmdBitOp},

		{Name: "del", Arity: -2, Flags: FlagWrite, Categories: keyWrite, validate: allKeys, run: cmdDel},
		{Name: "exists", Arity: -2, Flags: FlagReadOnly | FlagFast, Categories: keyRead, validate: allKeys, run: cmdExists},
		{Name: "type", Arity: 2, Flags: FlagReadOnly | FlagFast, Categories: keyRead, validate: oneKey, run: cmdType},
		{Name: "ttl", Arity: 2, Flags: FlagReadOnly | FlagFast, Categories: keyRead, validate: oneKey, run: cmdTTL},
		{Name: "pttl", Arity: 2, Flags: FlagReadOnly | FlagFast, Categories: keyRead, validate: oneKey, run: cmdPTTL},
		{Name: "persist", Arity: 2, Flags: FlagWrite | FlagFast, Categories: keyWrite, validate: oneKey, run: cmdPersist},
		{Name: "expire", Arity: 3, Flags: FlagWrite | FlagFast, Categories: keyWrite, validate: keyAndExpire(1000), run: cmdExpire},
		{Name: "pexpire", Arity: 3, Flags: FlagWrite | FlagFast, Categories: keyWrite, validate: keyAndExpire(1), run: cmdExpire},
		{Name: "dbsize", Arity: 1, Flags: FlagReadOnly | FlagFast, Categories: keyRead, validate: noKeys, run: cmdDBSize},
		{Name: "flushall", Arity: -1, Flags: FlagWrite, Categories: keyWrite | CatDangerous, validate: flushArgs, run: cmdFlush},
		{Name: "flushdb", Arity: -1, Flags: FlagWrite, Categories: keyWrite | CatDangerous, validate: flushArgs, run: cmdFlush},
		{Name: "object", Arity: -2, Flags: FlagReadOnly, Categories: keyRead, validate: objectArgs, run: cmdObject},
		{Name: "hotkeys", Arity: -1, Flags: FlagReadOnly | FlagAdmin, Categories: keyRead, validate: hotKeysArgs, run: cmdHotKeys},
	} {
		commandTable[cmd.Name] = cmd
	}
}

// Lookup finds a command by name, case-insensitively.
func Lookup(name string) (*Command, bool) {
	cmd, ok := commandTable[strings.ToLower(name)]
	return cmd, ok
}

// Commands returns every registered command sorted by name.
func Commands() []*Command {
	cmds := make([]*Command, 0, len(commandTable))
	for _, cmd := range commandTable {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}
