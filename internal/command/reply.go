package command

// ReplyType tells the transport how to encode a Reply.
type ReplyType uint8

const (
	StatusReply ReplyType = iota
	IntegerReply
	BulkReply
	NullReply
	ArrayReply
	ErrorReply
)

// Reply is the result of one command.
type Reply struct {
	Type   ReplyType
	Status string
	Int    int64
	Bulk   []byte
	// Array elements that are nil encode as null bulk strings.
	Array [][]byte
	Err   *Error
}

// OK is the "+OK" status reply.
func OK() Reply { return Reply{Type: StatusReply, Status: "OK"} }

// Status builds a status reply.
func Status(s string) Reply { return Reply{Type: StatusReply, Status: s} }

// Integer builds an integer reply.
func Integer(n int64) Reply { return Reply{Type: IntegerReply, Int: n} }

// Bulk builds a bulk string reply. A nil b is sent as an empty string.
func Bulk(b []byte) Reply {
	if b == nil {
		b = []byte{}
	}
	return Reply{Type: BulkReply, Bulk: b}
}

// Null builds a null bulk string reply.
func Null() Reply { return Reply{Type: NullReply} }

// Array builds an array of bulk strings.
func Array(items [][]byte) Reply { return Reply{Type: ArrayReply, Array: items} }

// Fail builds an error reply.
func Fail(err *Error) Reply { return Reply{Type: ErrorReply, Err: err} }

// IsError reports whether r carries an error.
func (r Reply) IsError() bool { return r.Type == ErrorReply }
