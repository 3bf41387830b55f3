package bitops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOp(t *testing.T) {
	for name, want := range map[string]Op{"and": And, "OR": Or, "xOr": Xor, "NOT": Not} {
		op, err := ParseOp(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, op)
	}

	_, err := ParseOp("nand")
	assert.ErrorIs(t, err, ErrUnknownOp)
	_, err = ParseOp("")
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestCountSetBits(t *testing.T) {
	assert.Equal(t, int64(0), CountSetBits(nil))
	assert.Equal(t, int64(8), CountSetBits([]byte{0xff}))
	assert.Equal(t, int64(26), CountSetBits([]byte("foobar")))

	long := make([]byte, 17)
	for i := range long {
		long[i] = 0x0f
	}
	assert.Equal(t, int64(17*4), CountSetBits(long))
}

func TestCombine_AndOrXor(t *testing.T) {
	a := []byte{0xf0, 0x0f}
	b := []byte{0xff, 0x00}

	assert.Equal(t, []byte{0xf0, 0x00}, Combine(And, append([]byte(nil), a...), b))
	assert.Equal(t, []byte{0xff, 0x0f}, Combine(Or, append([]byte(nil), a...), b))
	assert.Equal(t, []byte{0x0f, 0x0f}, Combine(Xor, append([]byte(nil), a...), b))
}

func TestCombine_EmptyAccumulatorCopies(t *testing.T) {
	src := []byte("abc")
	acc := Combine(And, nil, src)
	assert.Equal(t, []byte("abc"), acc)

	acc[0] = 'x'
	assert.Equal(t, []byte("abc"), src)
}

func TestCombine_LongerOperandExtends(t *testing.T) {
	acc := Combine(Or, []byte{0x01}, []byte{0x02, 0x04, 0x08})
	assert.Equal(t, []byte{0x03, 0x04, 0x08}, acc)

	acc = Combine(And, []byte{0xff}, []byte{0x0f, 0xff})
	assert.Equal(t, []byte{0x0f, 0x00}, acc)
}

func TestCombine_ShorterOperandLeavesTail(t *testing.T) {
	acc := Combine(And, []byte{0xff, 0xff, 0xff}, []byte{0x0f})
	assert.Equal(t, []byte{0x0f, 0xff, 0xff}, acc)

	acc = Combine(Xor, []byte{0x01, 0x02}, []byte{0x01})
	assert.Equal(t, []byte{0x00, 0x02}, acc)
}

func TestComplement(t *testing.T) {
	in := []byte{0x00, 0xff, 0x0f}
	out := Complement(in)
	assert.Equal(t, []byte{0xff, 0x00, 0xf0}, out)
	assert.Equal(t, []byte{0x00, 0xff, 0x0f}, in)
	assert.Empty(t, Complement(nil))
}

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		name          string
		start, end, n int64
		wantS, wantE  int64
		wantOK        bool
	}{
		{"whole", 0, -1, 11, 0, 10, true},
		{"tail", -5, -1, 11, 6, 10, true},
		{"end clamped", 2, 100, 5, 2, 4, true},
		{"start clamped", -100, 1, 5, 0, 1, true},
		{"start past end", 20, 30, 10, 0, 0, false},
		{"reversed", 3, 1, 10, 0, 0, false},
		{"both negative beyond", -100, -50, 10, 0, 0, true},
		{"empty value", 0, -1, 0, 0, 0, false},
		{"single byte", 0, 0, 1, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e, ok := NormalizeRange(tt.start, tt.end, tt.n)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantS, s)
				assert.Equal(t, tt.wantE, e)
			}
		})
	}
}

func TestBitAt(t *testing.T) {
	b := []byte{0x01, 0x80}
	assert.Equal(t, int64(1), BitAt(b, 0))
	assert.Equal(t, int64(0), BitAt(b, 1))
	assert.Equal(t, int64(1), BitAt(b, 15))
	assert.Equal(t, int64(0), BitAt(b, 16))
	assert.Equal(t, int64(0), BitAt(b, -1))
	assert.Equal(t, int64(0), BitAt(nil, 0))
}

func TestSetBit(t *testing.T) {
	b, prev := SetBit(nil, 23, true)
	assert.Equal(t, int64(0), prev)
	assert.Equal(t, []byte{0x00, 0x00, 0x80}, b)

	b, prev = SetBit(b, 23, true)
	assert.Equal(t, int64(1), prev)
	assert.Equal(t, []byte{0x00, 0x00, 0x80}, b)

	b, prev = SetBit(b, 23, false)
	assert.Equal(t, int64(1), prev)
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, b)

	b, prev = SetBit(b, 0, true)
	assert.Equal(t, int64(0), prev)
	assert.Equal(t, []byte{0x01, 0x00, 0x00}, b)
}
