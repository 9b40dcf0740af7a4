package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ReadReply reads one OP_REPLY from r: exactly HeaderLen bytes of
// header, then Length-HeaderLen bytes of body decoded into
// NumberReturned documents. The stream ending early in either phase
// yields a *ConnectionError rather than a partial reply.
func ReadReply(r io.Reader, dec DocumentDecoder) (*Reply, error) {
	hdr, err := readExact(r, HeaderLen)
	if err != nil {
		return nil, err
	}
	reply := &Reply{
		ReplyHeader: ParseReplyHeader(hdr),
		Documents:   []bson.Raw{},
	}

	if reply.NumberReturned == 0 {
		return reply, nil
	}

	bodyLen := int(reply.Length) - HeaderLen
	if bodyLen < 0 {
		return nil, fmt.Errorf("wire: reply length %d shorter than header", reply.Length)
	}
	body, err := readExact(r, bodyLen)
	if err != nil {
		return nil, err
	}

	pos := 0
	for i := int32(0); i < reply.NumberReturned; i++ {
		doc, n, err := dec.DecodeOne(body[pos:])
		if err != nil {
			return nil, fmt.Errorf("wire: decode document %d of %d: %w", i+1, reply.NumberReturned, err)
		}
		reply.Documents = append(reply.Documents, doc)
		pos += n
	}
	return reply, nil
}

// ParseReplyHeader decodes the fixed 36-byte header. buf must hold at
// least HeaderLen bytes.
func ParseReplyHeader(buf []byte) ReplyHeader {
	return ReplyHeader{
		Length:         int32(binary.LittleEndian.Uint32(buf[0:4])),
		RequestID:      int32(binary.LittleEndian.Uint32(buf[4:8])),
		ResponseTo:     int32(binary.LittleEndian.Uint32(buf[8:12])),
		OpCode:         int32(binary.LittleEndian.Uint32(buf[12:16])),
		Flags:          int32(binary.LittleEndian.Uint32(buf[16:20])),
		CursorID:       int64(binary.LittleEndian.Uint64(buf[20:28])),
		StartingFrom:   int32(binary.LittleEndian.Uint32(buf[28:32])),
		NumberReturned: int32(binary.LittleEndian.Uint32(buf[32:36])),
	}
}

// readExact collects exactly n bytes from r, looping over short reads.
// The stream ending first is a *ConnectionError carrying how far the
// read got; any other read error passes through as-is.
func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	have := 0
	for have < n {
		k, err := r.Read(buf[have:])
		have += k
		if have == n {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, &ConnectionError{Expected: n, Received: have}
			}
			return nil, err
		}
		if k == 0 {
			return nil, &ConnectionError{Expected: n, Received: have}
		}
	}
	return buf, nil
}

// BSONDecoder is the default DocumentDecoder. It consumes each
// document per its own int32 length prefix and rejects structurally
// invalid BSON.
type BSONDecoder struct{}

func (BSONDecoder) DecodeOne(buf []byte) (bson.Raw, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("buffer too short for document length: %d bytes", len(buf))
	}
	docLen := int(binary.LittleEndian.Uint32(buf[:4]))
	if docLen < 5 || docLen > len(buf) {
		return nil, 0, fmt.Errorf("invalid document length: %d (buffer: %d)", docLen, len(buf))
	}
	doc := make(bson.Raw, docLen)
	copy(doc, buf[:docLen])
	if err := doc.Validate(); err != nil {
		return nil, 0, fmt.Errorf("malformed document: %w", err)
	}
	return doc, docLen, nil
}
