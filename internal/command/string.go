package command

import (
	"errors"
	"math"

	"github.com/flashdb/flashkv/internal/store"
	"github.com/flashdb/flashkv/internal/value"
)

// set binds a fresh value to key and drops any expiration.
func (e *Engine) set(key string, v value.String) {
	e.store.ClearExpire(key)
	e.store.SetString(key, v)
}

func cmdGet(e *Engine, c *call) Reply {
	v, err := e.store.GetString(c.key())
	switch {
	case err == nil:
		return Bulk(v.Bytes())
	case errors.Is(err, store.ErrNotFound):
		return Bulk(nil)
	}
	return e.storeError(c, err)
}

func cmdSet(e *Engine, c *call) Reply {
	e.set(c.key(), value.New(c.args[2]))
	return OK()
}

func cmdAppend(e *Engine, c *call) Reply {
	key, suffix := c.key(), c.args[2]
	v, err := e.store.GetString(key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		e.set(key, value.New(suffix))
		return Integer(int64(len(suffix)))
	case err != nil:
		return e.storeError(c, err)
	}
	b := append(v.Bytes(), suffix...)
	e.store.SetString(key, value.FromBytes(b))
	return Integer(int64(len(b)))
}

func cmdGetSet(e *Engine, c *call) Reply {
	key := c.key()
	old, err := e.store.GetString(key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return e.storeError(c, err)
	}
	e.set(key, value.New(c.args[2]))
	return Bulk(old.Bytes())
}

func cmdGetDel(e *Engine, c *call) Reply {
	key := c.key()
	v, err := e.store.GetString(key)
	switch {
	case err == nil:
		e.store.Delete(key)
		return Bulk(v.Bytes())
	case errors.Is(err, store.ErrNotFound):
		return Bulk(nil)
	}
	return e.storeError(c, err)
}

func cmdMGet(e *Engine, c *call) Reply {
	items := make([][]byte, len(c.keys))
	for i, key := range c.keys {
		v, err := e.store.GetString(key)
		if err != nil {
			continue
		}
		items[i] = v.Bytes()
	}
	return Array(items)
}

func cmdMSet(e *Engine, c *call) Reply {
	for i := 1; i < len(c.args); i += 2 {
		e.set(string(c.args[i]), value.New(c.args[i+1]))
	}
	return OK()
}

func cmdMSetNX(e *Engine, c *call) Reply {
	for _, key := range c.keys {
		if e.store.Exists(key) {
			return Integer(0)
		}
	}
	cmdMSet(e, c)
	return Integer(1)
}

func cmdSetNX(e *Engine, c *call) Reply {
	key := c.key()
	if e.store.Exists(key) {
		return Integer(0)
	}
	e.set(key, value.New(c.args[2]))
	return Integer(1)
}

// cmdSetEx serves SETEX and PSETEX; validation already converted the
// lifetime to milliseconds.
func cmdSetEx(e *Engine, c *call) Reply {
	at, ok := addInt64(e.nowMillis(), c.ints[0])
	if !ok {
		return Fail(errInvalidExpire(c.name))
	}
	key := c.key()
	e.store.SetString(key, value.New(c.args[3]))
	e.store.SetExpire(key, at)
	return OK()
}

func cmdStrLen(e *Engine, c *call) Reply {
	v, err := e.store.GetString(c.key())
	switch {
	case err == nil:
		return Integer(int64(v.Len()))
	case errors.Is(err, store.ErrNotFound):
		return Integer(0)
	}
	return e.storeError(c, err)
}

func cmdIncr(e *Engine, c *call) Reply {
	return e.step(c, 1)
}

func cmdDecr(e *Engine, c *call) Reply {
	return e.step(c, -1)
}

// step adds delta to an Integer-encoded value. Raw values are rejected even
// when their text is numeric.
func (e *Engine) step(c *call, delta int64) Reply {
	key := c.key()
	v, err := e.store.GetString(key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		e.store.SetString(key, value.FromInt(delta))
		return Integer(delta)
	case err != nil:
		return e.arithError(c, err)
	case v.Encoding() != value.Integer:
		return Fail(errInvalidInt)
	}
	n, err := e.store.IncrBy(key, delta)
	if err != nil {
		return e.arithError(c, err)
	}
	return Integer(n)
}

func cmdIncrBy(e *Engine, c *call) Reply {
	key, delta := c.key(), c.ints[0]
	n, err := e.store.IncrBy(key, delta)
	if errors.Is(err, store.ErrNotFound) {
		e.set(key, value.FromInt(delta))
		return Integer(delta)
	}
	if err != nil {
		return e.arithError(c, err)
	}
	return Integer(n)
}

func cmdDecrBy(e *Engine, c *call) Reply {
	key, delta := c.key(), c.ints[0]
	n, err := e.store.DecrBy(key, delta)
	if errors.Is(err, store.ErrNotFound) {
		if delta == math.MinInt64 {
			return Fail(errOverflow)
		}
		e.set(key, value.FromInt(-delta))
		return Integer(-delta)
	}
	if err != nil {
		return e.arithError(c, err)
	}
	return Integer(n)
}

func cmdIncrByFloat(e *Engine, c *call) Reply {
	key := c.key()
	text, err := e.store.IncrByFloat(key, c.float)
	switch {
	case err == nil:
		return Bulk([]byte(text))
	case errors.Is(err, store.ErrNotFound):
		e.set(key, value.New(c.args[2]))
		return Bulk(c.args[2])
	case errors.Is(err, store.ErrWrongType):
		return Fail(errInvalidFloat)
	case errors.Is(err, store.ErrOverflow):
		return Fail(errFloatOverflow)
	}
	return e.storeError(c, err)
}

// arithError maps integer arithmetic failures. A key of another type or with
// non-numeric content is reported as not an integer.
func (e *Engine) arithError(c *call, err error) Reply {
	switch {
	case errors.Is(err, store.ErrWrongType):
		return Fail(errInvalidInt)
	case errors.Is(err, store.ErrOverflow):
		return Fail(errOverflow)
	}
	return e.storeError(c, err)
}
