package command

import "fmt"

// ErrorKind classifies a command failure.
type ErrorKind uint8

const (
	NotFound ErrorKind = iota + 1
	WrongType
	InvalidInt
	InvalidFloat
	SyntaxErr
	WrongArity
	Overflow
	Other
	UnknownCommand
)

// String returns the label used in metrics.
func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case WrongType:
		return "wrong_type"
	case InvalidInt:
		return "invalid_int"
	case InvalidFloat:
		return "invalid_float"
	case SyntaxErr:
		return "syntax"
	case WrongArity:
		return "wrong_arity"
	case Overflow:
		return "overflow"
	case UnknownCommand:
		return "unknown_command"
	default:
		return "other"
	}
}

// Error is a failed command. Msg is the complete text sent to the client,
// including its "ERR" or "WRONGTYPE" prefix.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	errWrongType     = &Error{Kind: WrongType, Msg: "WRONGTYPE Operation against a key holding the wrong kind of value"}
	errInvalidInt    = &Error{Kind: InvalidInt, Msg: "ERR value is not an integer or out of range"}
	errInvalidFloat  = &Error{Kind: InvalidFloat, Msg: "ERR value is not a valid float"}
	errSyntax        = &Error{Kind: SyntaxErr, Msg: "ERR syntax error"}
	errOverflow      = &Error{Kind: Overflow, Msg: "ERR increment or decrement would overflow"}
	errFloatOverflow = &Error{Kind: Overflow, Msg: "ERR increment would produce NaN or Infinity"}
	errBitOffset     = &Error{Kind: InvalidInt, Msg: "ERR bit offset is not an integer or out of range"}
	errOffsetRange   = &Error{Kind: InvalidInt, Msg: "ERR offset is out of range"}
	errStringTooLong = &Error{Kind: Other, Msg: "ERR string exceeds maximum allowed size"}
)

func errWrongArity(name string) *Error {
	return &Error{Kind: WrongArity, Msg: fmt.Sprintf("ERR wrong number of arguments for '%s' command", name)}
}

func errUnknownCommand(name string) *Error {
	return &Error{Kind: UnknownCommand, Msg: fmt.Sprintf("ERR unknown command '%s'", name)}
}

func errInvalidExpire(name string) *Error {
	return &Error{Kind: InvalidInt, Msg: fmt.Sprintf("ERR invalid expire time in '%s' command", name)}
}

func errOther(msg string) *Error {
	return &Error{Kind: Other, Msg: "ERR " + msg}
}
