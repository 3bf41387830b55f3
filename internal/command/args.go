package command

import (
	"math"
	"strconv"
	"strings"

	"github.com/flashdb/flashkv/internal/bitops"
	"github.com/flashdb/flashkv/internal/value"
)

// call is one validated invocation. args[0] is the command name as sent.
type call struct {
	name string
	args [][]byte
	keys []string

	ints   [2]int64
	float  float64
	ranged bool
	op     bitops.Op
}

func (c *call) key() string { return c.keys[0] }

func parseInt(b []byte) (int64, *Error) {
	n, ok := value.ParseInt(b)
	if !ok {
		return 0, errInvalidInt
	}
	return n, nil
}

func parseFloat(b []byte) (float64, *Error) {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errInvalidFloat
	}
	return f, nil
}

func noKeys(c *call) *Error { return nil }

func oneKey(c *call) *Error {
	c.keys = []string{string(c.args[1])}
	return nil
}

func allKeys(c *call) *Error {
	c.keys = make([]string, 0, len(c.args)-1)
	for _, a := range c.args[1:] {
		c.keys = append(c.keys, string(a))
	}
	return nil
}

// pairKeys accepts "name k1 v1 k2 v2 ..." and keeps the keys in order.
func pairKeys(c *call) *Error {
	if len(c.args)%2 != 1 {
		return errWrongArity(c.name)
	}
	c.keys = make([]string, 0, len(c.args)/2)
	for i := 1; i < len(c.args); i += 2 {
		c.keys = append(c.keys, string(c.args[i]))
	}
	return nil
}

func keyAndInt(c *call) *Error {
	n, err := parseInt(c.args[2])
	if err != nil {
		return err
	}
	c.ints[0] = n
	return oneKey(c)
}

func keyAndFloat(c *call) *Error {
	f, err := parseFloat(c.args[2])
	if err != nil {
		return err
	}
	c.float = f
	return oneKey(c)
}

// keyAndExpire parses a relative lifetime in units of unitMillis and stores
// it in milliseconds.
func keyAndExpire(unitMillis int64) func(c *call) *Error {
	return func(c *call) *Error {
		n, err := parseInt(c.args[2])
		if err != nil {
			return err
		}
		ms, ok := mulInt64(n, unitMillis)
		if !ok {
			return errInvalidExpire(c.name)
		}
		c.ints[0] = ms
		return oneKey(c)
	}
}

func keyAndRange(c *call) *Error {
	for i := 0; i < 2; i++ {
		n, err := parseInt(c.args[2+i])
		if err != nil {
			return err
		}
		c.ints[i] = n
	}
	c.ranged = true
	return oneKey(c)
}

func keyAndOffset(c *call) *Error {
	n, err := parseInt(c.args[2])
	if err != nil {
		return err
	}
	if n < 0 {
		return errOffsetRange
	}
	c.ints[0] = n
	return oneKey(c)
}

func keyAndBitOffset(c *call) *Error {
	n, ok := value.ParseInt(c.args[2])
	if !ok {
		return errBitOffset
	}
	c.ints[0] = n
	return oneKey(c)
}

func keyAndBit(c *call) *Error {
	if err := keyAndBitOffset(c); err != nil {
		return err
	}
	bit, err := parseInt(c.args[3])
	if err != nil {
		return err
	}
	c.ints[1] = bit
	return nil
}

// bitCountArgs accepts "BITCOUNT key" or "BITCOUNT key start end".
func bitCountArgs(c *call) *Error {
	switch len(c.args) {
	case 2:
		return oneKey(c)
	case 4:
		return keyAndRange(c)
	default:
		return errSyntax
	}
}

// bitOpArgs accepts "BITOP op dest src [src ...]". The derived keys are the
// destination followed by the sources.
func bitOpArgs(c *call) *Error {
	op, err := bitops.ParseOp(string(c.args[1]))
	if err != nil {
		return errSyntax
	}
	if op == bitops.Not && len(c.args) != 4 {
		return errSyntax
	}
	c.op = op
	c.keys = make([]string, 0, len(c.args)-2)
	for _, a := range c.args[2:] {
		c.keys = append(c.keys, string(a))
	}
	return nil
}

func flushArgs(c *call) *Error {
	switch len(c.args) {
	case 1:
		return nil
	case 2:
		if mode := strings.ToUpper(string(c.args[1])); mode == "ASYNC" || mode == "SYNC" {
			return nil
		}
	}
	return errSyntax
}

// objectArgs accepts "OBJECT ENCODING key".
func objectArgs(c *call) *Error {
	if len(c.args) != 3 || !strings.EqualFold(string(c.args[1]), "ENCODING") {
		return errSyntax
	}
	c.keys = []string{string(c.args[2])}
	return nil
}

// hotKeysArgs accepts "HOTKEYS [count]".
func hotKeysArgs(c *call) *Error {
	switch len(c.args) {
	case 1:
		return nil
	case 2:
		n, err := parseInt(c.args[1])
		if err != nil {
			return err
		}
		if n < 0 {
			return errInvalidInt
		}
		c.ints[0] = n
		return nil
	}
	return errSyntax
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return r, true
}

func addInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}
