// Package value defines how a string value is represented in the keyspace.
//
// A value is either a raw byte buffer or, when it was built from a canonical
// decimal literal or by an arithmetic command, a signed 64-bit integer whose
// text form is rendered only when bytes are requested.
package value

import (
	"strconv"
)

// Encoding is the internal representation of a String.
type Encoding uint8

const (
	// Raw holds the bytes as given.
	Raw Encoding = iota
	// Integer holds an int64 and renders its decimal text on demand.
	Integer
)

// String returns the name reported by OBJECT ENCODING.
func (e Encoding) String() string {
	switch e {
	case Integer:
		return "int"
	default:
		return "raw"
	}
}

// maxIntLen is the length of "-9223372036854775808".
const maxIntLen = 20

// String is an immutable string value. The zero value is an empty Raw string.
type String struct {
	enc Encoding
	raw []byte
	num int64
}

// New builds a value from literal bytes, choosing Integer when the bytes are
// the canonical decimal form of an int64. The bytes are copied.
func New(b []byte) String {
	if n, ok := parseCanonical(b); ok {
		return String{enc: Integer, num: n}
	}
	return String{enc: Raw, raw: append([]byte(nil), b...)}
}

// FromInt builds an Integer-encoded value.
func FromInt(n int64) String {
	return String{enc: Integer, num: n}
}

// FromBytes builds a Raw value without classifying the bytes. Commands that
// mutate existing bytes use it so the result never re-enters the integer
// fast path. The bytes are copied.
func FromBytes(b []byte) String {
	return String{enc: Raw, raw: append([]byte(nil), b...)}
}

// Classify reports the encoding New would choose for b.
func Classify(b []byte) Encoding {
	if _, ok := parseCanonical(b); ok {
		return Integer
	}
	return Raw
}

// Encoding returns the representation in use.
func (s String) Encoding() Encoding {
	return s.enc
}

// Int returns the integer held by an Integer-encoded value.
func (s String) Int() (int64, bool) {
	if s.enc != Integer {
		return 0, false
	}
	return s.num, true
}

// Bytes decodes the value. Raw values return a copy of their buffer; Integer
// values render canonical decimal text. Callers may modify the result.
func (s String) Bytes() []byte {
	if s.enc == Integer {
		return strconv.AppendInt(make([]byte, 0, maxIntLen), s.num, 10)
	}
	return append(make([]byte, 0, len(s.raw)), s.raw...)
}

// Len is len(s.Bytes()) without materializing integers.
func (s String) Len() int {
	if s.enc == Integer {
		return intLen(s.num)
	}
	return len(s.raw)
}

// ParseInt parses the decoded text of s as an int64. Integer values succeed
// without parsing.
func (s String) ParseInt() (int64, bool) {
	if s.enc == Integer {
		return s.num, true
	}
	n, err := strconv.ParseInt(string(s.raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseInt parses b with the same rules that select the Integer encoding:
// an optional '-', no '+', no spaces and no leading zeros. Commands use it
// for their integer arguments.
func ParseInt(b []byte) (int64, bool) {
	return parseCanonical(b)
}

// parseCanonical accepts an optional '-' followed by digits with no leading
// zeros (except "0" itself) that fit in an int64. "-0" is rejected because it
// would not survive a decode round trip.
func parseCanonical(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > maxIntLen {
		return 0, false
	}
	digits := b
	if b[0] == '-' {
		digits = b[1:]
		if len(digits) == 0 || digits[0] == '0' {
			return 0, false
		}
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func intLen(n int64) int {
	l := 1
	if n < 0 {
		l++
		// -9223372036854775808 cannot be negated
		if n == -n {
			return maxIntLen
		}
		n = -n
	}
	for n >= 10 {
		n /= 10
		l++
	}
	return l
}
