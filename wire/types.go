package wire

import (
	"bytes"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	OpReply       int32 = 1
	OpUpdate      int32 = 2001
	OpInsert      int32 = 2002
	OpQuery       int32 = 2004
	OpGetMore     int32 = 2005
	OpDelete      int32 = 2006
	OpKillCursors int32 = 2007
	OpMsg         int32 = 2013
)

// HeaderLen is the size of an OP_REPLY header on the wire: the common
// 16-byte message header plus responseFlags, cursorID, startingFrom
// and numberReturned.
const HeaderLen = 36

// ReplyHeader is the fixed leading record of an OP_REPLY, all fields
// little-endian in the order they appear on the wire.
type ReplyHeader struct {
	Length         int32
	RequestID      int32
	ResponseTo     int32
	OpCode         int32
	Flags          int32
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
}

// Reply is a parsed OP_REPLY: the header plus the NumberReturned
// documents that trail it. Documents is empty, never nil, when the
// server returned none.
type Reply struct {
	ReplyHeader
	Documents []bson.Raw
}

// Reply flag bits.
const (
	CursorNotFound int32 = 1 << iota
	QueryFailure
	ShardConfigStale
	AwaitCapable
)

// Query flag bits (OP_QUERY).
const (
	TailableCursor int32 = 1 << (iota + 1)
	SlaveOK
	OplogReplay
	NoCursorTimeout
	AwaitData
	Exhaust
	Partial
)

// ConnectionError reports a stream that ended before a full header or
// body could be collected. It is the only error this package produces
// for short reads; transport errors pass through untouched.
type ConnectionError struct {
	Expected int
	Received int
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("wire: connection closed: expected %d bytes, received %d", e.Expected, e.Received)
}

// ReplyReader yields parsed replies from a connection. Implemented by
// mongowire.Connection; declared here so operations can pull their own
// results without depending on the connection package.
type ReplyReader interface {
	Read() (*Reply, error)
}

// Operation is an outbound request. The connection assigns it a
// request id and asks it to frame itself onto a shared buffer; after
// the batch is flushed, ReceiveReplies lets the operation pull however
// many replies it expects (possibly none).
type Operation interface {
	SetRequestID(id int32)
	Serialize(buf *bytes.Buffer) error
	ReceiveReplies(r ReplyReader) ([]*Reply, error)
}

// DocumentDecoder decodes one wire-format document from the front of
// buf, reporting how many bytes it consumed.
type DocumentDecoder interface {
	DecodeOne(buf []byte) (bson.Raw, int, error)
}
