package wire

import (
	"bytes"
	"encoding/binary"
)

// Low-level little-endian appenders shared by the operation
// serializers. bytes.Buffer writes cannot fail, so these return
// nothing.

func appendInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func appendInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func appendCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// appendHeader writes the common 16-byte message header. length is the
// total message size including the header itself.
func appendHeader(buf *bytes.Buffer, length, requestID, responseTo, opCode int32) {
	appendInt32(buf, length)
	appendInt32(buf, requestID)
	appendInt32(buf, responseTo)
	appendInt32(buf, opCode)
}
