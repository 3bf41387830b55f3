package command

import (
	"strconv"

	"github.com/flashdb/flashkv/internal/store"
)

func cmdDel(e *Engine, c *call) Reply {
	return Integer(int64(e.store.Delete(c.keys...)))
}

// cmdExists counts every argument, so a repeated key counts twice.
func cmdExists(e *Engine, c *call) Reply {
	var n int64
	for _, key := range c.keys {
		if e.store.Exists(key) {
			n++
		}
	}
	return Integer(n)
}

func cmdType(e *Engine, c *call) Reply {
	t, ok := e.store.TypeOf(c.key())
	if !ok {
		return Status("none")
	}
	return Status(t.String())
}

func cmdPTTL(e *Engine, c *call) Reply {
	return Integer(e.store.PTTL(c.key()))
}

func cmdTTL(e *Engine, c *call) Reply {
	ms := e.store.PTTL(c.key())
	if ms < 0 {
		return Integer(ms)
	}
	return Integer((ms + 500) / 1000)
}

func cmdPersist(e *Engine, c *call) Reply {
	if e.store.ClearExpire(c.key()) {
		return Integer(1)
	}
	return Integer(0)
}

// cmdExpire serves EXPIRE and PEXPIRE. A lifetime that is already over
// deletes the key.
func cmdExpire(e *Engine, c *call) Reply {
	key := c.key()
	if c.ints[0] <= 0 {
		return Integer(int64(e.store.Delete(key)))
	}
	at, ok := addInt64(e.nowMillis(), c.ints[0])
	if !ok {
		return Fail(errInvalidExpire(c.name))
	}
	if e.store.SetExpire(key, at) {
		return Integer(1)
	}
	return Integer(0)
}

func cmdDBSize(e *Engine, c *call) Reply {
	return Integer(int64(e.store.Size()))
}

func cmdFlush(e *Engine, c *call) Reply {
	e.store.Clear()
	e.logger.Info("keyspace flushed", "command", c.name)
	return OK()
}

// cmdObject answers OBJECT ENCODING. Non-string types report the encoding
// their own command families would use.
func cmdObject(e *Engine, c *call) Reply {
	key := c.key()
	t, ok := e.store.TypeOf(key)
	if !ok {
		return Null()
	}
	switch t {
	case store.TypeString:
		v, err := e.store.GetString(key)
		if err != nil {
			return Null()
		}
		return Bulk([]byte(v.Encoding().String()))
	case store.TypeList:
		return Bulk([]byte("quicklist"))
	case store.TypeZSet:
		return Bulk([]byte("skiplist"))
	default:
		return Bulk([]byte("hashtable"))
	}
}

// cmdHotKeys replies a flat array of key and count pairs, hottest first.
func cmdHotKeys(e *Engine, c *call) Reply {
	if e.hot == nil {
		return Array([][]byte{})
	}
	top := e.hot.Top(int(c.ints[0]))
	items := make([][]byte, 0, len(top)*2)
	for _, entry := range top {
		items = append(items, []byte(entry.Key), []byte(strconv.FormatInt(entry.Count, 10)))
	}
	return Array(items)
}
