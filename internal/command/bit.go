package command

import (
	"errors"

	"github.com/flashdb/flashkv/internal/bitops"
	"github.com/flashdb/flashkv/internal/store"
	"github.com/flashdb/flashkv/internal/value"
)

// lookupBytes returns the decoded value of key, or nil when it is absent.
func (e *Engine) lookupBytes(c *call, key string) ([]byte, bool, *Reply) {
	v, err := e.store.GetString(key)
	switch {
	case err == nil:
		return v.Bytes(), true, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, false, nil
	}
	r := e.storeError(c, err)
	return nil, false, &r
}

func cmdGetRange(e *Engine, c *call) Reply {
	b, _, fail := e.lookupBytes(c, c.key())
	if fail != nil {
		return *fail
	}
	start, end := c.ints[0], c.ints[1]
	// Offsets of the same sign compare directly before normalization.
	if end < start && (start < 0) == (end < 0) {
		return Bulk(nil)
	}
	s, t, ok := bitops.NormalizeRange(start, end, int64(len(b)))
	if !ok {
		return Bulk(nil)
	}
	return Bulk(b[s : t+1])
}

func cmdSetRange(e *Engine, c *call) Reply {
	key, offset, patch := c.key(), c.ints[0], c.args[3]
	b, found, fail := e.lookupBytes(c, key)
	if fail != nil {
		return *fail
	}
	if len(patch) == 0 {
		return Integer(int64(len(b)))
	}
	limit := e.maxBitOffset/8 + 1
	if offset > limit-int64(len(patch)) {
		return Fail(errStringTooLong)
	}
	end := offset + int64(len(patch))
	if end > int64(len(b)) {
		b = append(b, make([]byte, end-int64(len(b)))...)
	}
	copy(b[offset:], patch)
	if found {
		e.store.SetString(key, value.FromBytes(b))
	} else {
		e.set(key, value.FromBytes(b))
	}
	return Integer(int64(len(b)))
}

func cmdSetBit(e *Engine, c *call) Reply {
	key, offset, bit := c.key(), c.ints[0], c.ints[1]
	if offset < 0 || offset > e.maxBitOffset {
		return Integer(0)
	}
	b, _, fail := e.lookupBytes(c, key)
	if fail != nil {
		return *fail
	}
	b, prev := bitops.SetBit(b, offset, bit != 0)
	e.store.SetString(key, value.FromBytes(b))
	return Integer(prev)
}

func cmdGetBit(e *Engine, c *call) Reply {
	b, _, fail := e.lookupBytes(c, c.key())
	if fail != nil {
		return *fail
	}
	return Integer(bitops.BitAt(b, c.ints[0]))
}

func cmdBitCount(e *Engine, c *call) Reply {
	b, _, fail := e.lookupBytes(c, c.key())
	if fail != nil {
		return *fail
	}
	if !c.ranged {
		return Integer(bitops.CountSetBits(b))
	}
	s, t, ok := bitops.NormalizeRange(c.ints[0], c.ints[1], int64(len(b)))
	if !ok {
		return Integer(0)
	}
	return Integer(bitops.CountSetBits(b[s : t+1]))
}

// cmdBitOp folds the sources into the destination. Sources that are absent
// or hold another type are skipped. The destination keeps its expiration.
func cmdBitOp(e *Engine, c *call) Reply {
	dest, sources := c.keys[0], c.keys[1:]

	var result []byte
	if c.op == bitops.Not {
		if v, err := e.store.GetString(sources[0]); err == nil {
			result = bitops.Complement(v.Bytes())
		}
	} else {
		for _, src := range sources {
			v, err := e.store.GetString(src)
			if err != nil {
				continue
			}
			result = bitops.Combine(c.op, result, v.Bytes())
		}
	}

	e.store.SetString(dest, value.New(result))
	return Integer(int64(len(result)))
}
