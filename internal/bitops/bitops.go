// Package bitops provides the pure byte and offset arithmetic used by the
// range and bit commands (GETRANGE, SETRANGE, BITCOUNT, GETBIT, SETBIT, BITOP).
package bitops

import (
	"errors"
	"math/bits"
	"strings"
)

// Op is a BITOP operator.
type Op uint8

const (
	And Op = iota + 1
	Or
	Xor
	Not
)

// ErrUnknownOp is returned by ParseOp for anything but AND, OR, XOR and NOT.
var ErrUnknownOp = errors.New("bitops: unknown operation")

// ParseOp parses an operator name case-insensitively.
func ParseOp(name string) (Op, error) {
	switch strings.ToUpper(name) {
	case "AND":
		return And, nil
	case "OR":
		return Or, nil
	case "XOR":
		return Xor, nil
	case "NOT":
		return Not, nil
	}
	return 0, ErrUnknownOp
}

func (op Op) String() string {
	switch op {
	case And:
		return "AND"
	case Or:
		return "OR"
	case Xor:
		return "XOR"
	case Not:
		return "NOT"
	}
	return "UNKNOWN"
}

// CountSetBits returns the population count of b.
func CountSetBits(b []byte) int64 {
	var n int
	for len(b) >= 8 {
		n += bits.OnesCount64(uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
			uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56)
		b = b[8:]
	}
	for _, c := range b {
		n += bits.OnesCount8(c)
	}
	return int64(n)
}

// Combine folds next into acc with op (AND, OR or XOR) and returns the new
// accumulator, which may share acc's backing array.
//
// An empty accumulator takes a copy of next. When next is longer, acc is
// zero-extended to its length first. Only the first len(next) bytes of the
// accumulator are combined; bytes past the end of a shorter operand are left
// as they were.
func Combine(op Op, acc, next []byte) []byte {
	if len(acc) == 0 {
		return append(acc[:0], next...)
	}
	if len(next) > len(acc) {
		acc = append(acc, make([]byte, len(next)-len(acc))...)
	}
	switch op {
	case And:
		for i, c := range next {
			acc[i] &= c
		}
	case Or:
		for i, c := range next {
			acc[i] |= c
		}
	case Xor:
		for i, c := range next {
			acc[i] ^= c
		}
	}
	return acc
}

// Complement returns a new slice holding the bitwise NOT of every byte of b.
func Complement(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = ^c
	}
	return out
}

// NormalizeRange converts an inclusive [start, end] byte range that may use
// negative offsets into absolute offsets for a value of length n. Negative
// offsets count from the end, results are clamped to the value, and ok is
// false when the range selects nothing.
func NormalizeRange(start, end, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	if end >= n {
		end = n - 1
	}
	if end < start || n == 0 {
		return 0, 0, false
	}
	return start, end, true
}

// BitAt reports the bit at offset in b. Bits are numbered from the least
// significant bit of each byte. Offsets outside b read as 0.
func BitAt(b []byte, offset int64) int64 {
	if offset < 0 || offset >= int64(len(b))*8 {
		return 0
	}
	if b[offset/8]&(1<<uint(offset%8)) != 0 {
		return 1
	}
	return 0
}

// SetBit sets or clears the bit at offset, growing b with zero bytes as
// needed. It returns the updated slice and the previous bit.
func SetBit(b []byte, offset int64, on bool) ([]byte, int64) {
	idx := offset / 8
	if need := idx + 1; need > int64(len(b)) {
		b = append(b, make([]byte, need-int64(len(b)))...)
	}
	mask := byte(1) << uint(offset%8)
	prev := int64(0)
	if b[idx]&mask != 0 {
		prev = 1
	}
	if on {
		b[idx] |= mask
	} else {
		b[idx] &^= mask
	}
	return b, prev
}
