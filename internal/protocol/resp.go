// Package protocol implements the RESP (Redis Serialization Protocol) parser and encoder.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
)

var (
	// ErrInvalidProtocol indicates malformed RESP data
	ErrInvalidProtocol = errors.New("protocol: invalid RESP format")
	// ErrUnexpectedType indicates an unexpected RESP type
	ErrUnexpectedType = errors.New("protocol: unexpected type")
)

// Value is a decoded RESP value. Bulk strings keep their bytes in Bulk;
// simple strings and errors use Str.
type Value struct {
	Type  byte
	Str   string
	Bulk  []byte
	Num   int64
	Array []Value
	Null  bool
}

// Text returns the string content of a simple string, error or bulk string.
func (v Value) Text() string {
	if v.Type == TypeBulkString {
		return string(v.Bulk)
	}
	return v.Str
}

// RESP type constants
const (
	TypeSimpleString = '+'
	TypeError        = '-'
	TypeInteger      = ':'
	TypeBulkString   = '$'
	TypeArray        = '*'
)

const (
	maxBulkStringLength = 512 * 1024 * 1024 // 512 MiB
	maxArrayLength      = 1_000_000
	maxInlineLength     = 16 * 1024
	defaultBufSize      = 64 * 1024 // 64 KiB read/write buffers
)

// Shared byte slices to avoid allocations on every write.
var (
	crlfBytes = []byte("\r\n")
	nullBytes = []byte("$-1\r\n")
	okBytes   = []byte("+OK\r\n")
)

// intBufPool provides scratch buffers for integer formatting.
var intBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 20) // max int64 is 19 digits + sign
		return &b
	},
}

// Reader wraps a bufio.Reader for RESP parsing
type Reader struct {
	rd *bufio.Reader
}

// NewReader creates a new RESP Reader with an optimised buffer.
func NewReader(r io.Reader) *Reader {
	return &Reader{rd: bufio.NewReaderSize(r, defaultBufSize)}
}

// Buffered returns the number of bytes that can be read without a syscall.
// The server uses it to detect pipelined commands.
func (r *Reader) Buffered() int {
	return r.rd.Buffered()
}

// ReadCommand reads one request and returns its arguments. Requests are
// either arrays of bulk strings or inline commands: a single line of
// whitespace separated words. An empty inline line yields no arguments.
func (r *Reader) ReadCommand() ([][]byte, error) {
	prefix, err := r.rd.Peek(1)
	if err != nil {
		return nil, err
	}
	if prefix[0] != TypeArray {
		return r.readInline()
	}
	r.rd.ReadByte()

	count, err := r.readLength(maxArrayLength, "array")
	if err != nil {
		return nil, err
	}
	args := make([][]byte, 0, max(count, 0))
	for i := 0; i < count; i++ {
		b, err := r.rd.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != TypeBulkString {
			return nil, fmt.Errorf("%w: expected bulk string, got %q", ErrUnexpectedType, b)
		}
		arg, err := r.readBulk()
		if err != nil {
			return nil, err
		}
		if arg == nil {
			return nil, fmt.Errorf("%w: null bulk string in request", ErrInvalidProtocol)
		}
		args = append(args, arg)
	}
	return args, nil
}

func (r *Reader) readInline() ([][]byte, error) {
	line, err := r.rd.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("%w: inline command too long", ErrInvalidProtocol)
		}
		return nil, err
	}
	if len(line) > maxInlineLength {
		return nil, fmt.Errorf("%w: inline command too long", ErrInvalidProtocol)
	}
	fields := bytes.Fields(line)
	args := make([][]byte, len(fields))
	for i, f := range fields {
		args[i] = append([]byte(nil), f...)
	}
	return args, nil
}

// ReadValue reads a single RESP value of any type. Clients use it to read
// replies.
func (r *Reader) ReadValue() (Value, error) {
	typeByte, err := r.rd.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch typeByte {
	case TypeSimpleString, TypeError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: typeByte, Str: line}, nil
	case TypeInteger:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		num, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid integer", ErrInvalidProtocol)
		}
		return Value{Type: TypeInteger, Num: num}, nil
	case TypeBulkString:
		b, err := r.readBulk()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeBulkString, Bulk: b, Null: b == nil}, nil
	case TypeArray:
		return r.readArray()
	default:
		return Value{}, fmt.Errorf("%w: unknown type %c", ErrInvalidProtocol, typeByte)
	}
}

// readLine reads a line until \r\n
func (r *Reader) readLine() (string, error) {
	line, err := r.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", ErrInvalidProtocol
	}
	return line[:len(line)-2], nil
}

// readLength reads a length header. -1 is returned as is for null values.
func (r *Reader) readLength(limit int, what string) (int, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s length", ErrInvalidProtocol, what)
	}
	switch {
	case n == -1:
		return -1, nil
	case n < 0:
		return 0, fmt.Errorf("%w: negative %s length", ErrInvalidProtocol, what)
	case n > int64(limit):
		return 0, fmt.Errorf("%w: %s too large", ErrInvalidProtocol, what)
	}
	return int(n), nil
}

// readBulk reads the body of a bulk string after its '$'. A null bulk
// string returns nil; an empty one returns a non-nil empty slice.
func (r *Reader) readBulk() ([]byte, error) {
	length, err := r.readLength(maxBulkStringLength, "bulk string")
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return nil, nil
	}

	// Read the data + \r\n
	data := make([]byte, length+2)
	if _, err := io.ReadFull(r.rd, data); err != nil {
		return nil, err
	}
	if data[length] != '\r' || data[length+1] != '\n' {
		return nil, ErrInvalidProtocol
	}
	return data[:length:length], nil
}

func (r *Reader) readArray() (Value, error) {
	count, err := r.readLength(maxArrayLength, "array")
	if err != nil {
		return Value{}, err
	}
	if count == -1 {
		return Value{Type: TypeArray, Null: true}, nil
	}

	array := make([]Value, count)
	for i := range array {
		val, err := r.ReadValue()
		if err != nil {
			return Value{}, err
		}
		array[i] = val
	}
	return Value{Type: TypeArray, Array: array}, nil
}

// Writer wraps a bufio.Writer for RESP encoding.
// By default every Write* call flushes immediately (autoFlush=true).
// Call SetAutoFlush(false) before a pipeline batch, then Flush()
// once at the end, to amortise syscalls across many responses.
type Writer struct {
	wr        *bufio.Writer
	autoFlush bool
}

// NewWriter creates a new RESP Writer with an optimised buffer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{wr: bufio.NewWriterSize(w, defaultBufSize), autoFlush: true}
}

// SetAutoFlush controls whether each Write* call flushes automatically.
func (w *Writer) SetAutoFlush(on bool) { w.autoFlush = on }

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error { return w.wr.Flush() }

func (w *Writer) flush() error {
	if w.autoFlush {
		return w.wr.Flush()
	}
	return nil
}

// writeTypedInt writes a type byte followed by n and CRLF without going
// through fmt.
func (w *Writer) writeTypedInt(prefix byte, n int64) error {
	if err := w.wr.WriteByte(prefix); err != nil {
		return err
	}
	bp := intBufPool.Get().(*[]byte)
	b := strconv.AppendInt((*bp)[:0], n, 10)
	_, err := w.wr.Write(b)
	*bp = b
	intBufPool.Put(bp)
	if err != nil {
		return err
	}
	_, err = w.wr.Write(crlfBytes)
	return err
}

func (w *Writer) writeLine(prefix byte, s string) error {
	if err := w.wr.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.wr.WriteString(s); err != nil {
		return err
	}
	_, err := w.wr.Write(crlfBytes)
	return err
}

// writeBulk writes one bulk string; nil is written as a null bulk string.
func (w *Writer) writeBulk(b []byte) error {
	if b == nil {
		_, err := w.wr.Write(nullBytes)
		return err
	}
	if err := w.writeTypedInt(TypeBulkString, int64(len(b))); err != nil {
		return err
	}
	if _, err := w.wr.Write(b); err != nil {
		return err
	}
	_, err := w.wr.Write(crlfBytes)
	return err
}

// WriteSimpleString writes a simple string response (+OK\r\n fast-path).
func (w *Writer) WriteSimpleString(s string) error {
	if s == "OK" {
		if _, err := w.wr.Write(okBytes); err != nil {
			return err
		}
		return w.flush()
	}
	if err := w.writeLine(TypeSimpleString, s); err != nil {
		return err
	}
	return w.flush()
}

// WriteError writes an error response. msg is the complete error text,
// including its prefix such as "ERR" or "WRONGTYPE".
func (w *Writer) WriteError(msg string) error {
	if err := w.writeLine(TypeError, msg); err != nil {
		return err
	}
	return w.flush()
}

// WriteInteger writes an integer response
func (w *Writer) WriteInteger(n int64) error {
	if err := w.writeTypedInt(TypeInteger, n); err != nil {
		return err
	}
	return w.flush()
}

// WriteBulkString writes a bulk string response. A nil slice is written as
// an empty bulk string; use WriteNull for a null reply.
func (w *Writer) WriteBulkString(s []byte) error {
	if s == nil {
		s = []byte{}
	}
	if err := w.writeBulk(s); err != nil {
		return err
	}
	return w.flush()
}

// WriteNull writes a null bulk string response
func (w *Writer) WriteNull() error {
	if _, err := w.wr.Write(nullBytes); err != nil {
		return err
	}
	return w.flush()
}

// WriteArray writes an array of bulk strings. Nil elements are written as
// null bulk strings.
func (w *Writer) WriteArray(items [][]byte) error {
	if err := w.writeTypedInt(TypeArray, int64(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := w.writeBulk(item); err != nil {
			return err
		}
	}
	return w.flush()
}

// WriteStringArray writes an array of strings (avoids []byte conversion allocations).
func (w *Writer) WriteStringArray(items []string) error {
	if err := w.writeTypedInt(TypeArray, int64(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := w.writeTypedInt(TypeBulkString, int64(len(item))); err != nil {
			return err
		}
		if _, err := w.wr.WriteString(item); err != nil {
			return err
		}
		if _, err := w.wr.Write(crlfBytes); err != nil {
			return err
		}
	}
	return w.flush()
}

// WriteArrayHeader writes only the array header; the caller writes the
// elements with the other Write* methods.
func (w *Writer) WriteArrayHeader(count int) error {
	if err := w.writeTypedInt(TypeArray, int64(count)); err != nil {
		return err
	}
	return w.flush()
}

// WriteCommand encodes a request as an array of bulk strings.
func (w *Writer) WriteCommand(args ...string) error {
	return w.WriteStringArray(args)
}
