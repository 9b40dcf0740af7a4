package wire

import (
	"bytes"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Query is an OP_QUERY against database.collection. Selector and
// Projection may be anything bson.Marshal accepts; a nil Selector
// queries for everything. A Query expects exactly one reply.
type Query struct {
	Database   string
	Collection string
	Selector   any
	Projection any
	Skip       int32
	Limit      int32
	Flags      int32

	requestID int32
}

func (q *Query) SetRequestID(id int32) { q.requestID = id }

func (q *Query) Serialize(buf *bytes.Buffer) error {
	selector := q.Selector
	if selector == nil {
		selector = bson.D{}
	}
	sel, err := bson.Marshal(selector)
	if err != nil {
		return fmt.Errorf("marshal selector: %w", err)
	}
	var proj []byte
	if q.Projection != nil {
		if proj, err = bson.Marshal(q.Projection); err != nil {
			return fmt.Errorf("marshal projection: %w", err)
		}
	}

	name := q.Database + "." + q.Collection
	// header(16) + flags(4) + cstring + skip(4) + limit(4) + selector + projection
	length := int32(16 + 4 + len(name) + 1 + 4 + 4 + len(sel) + len(proj))

	appendHeader(buf, length, q.requestID, 0, OpQuery)
	appendInt32(buf, q.Flags)
	appendCString(buf, name)
	appendInt32(buf, q.Skip)
	appendInt32(buf, q.Limit)
	buf.Write(sel)
	buf.Write(proj)
	return nil
}

func (q *Query) ReceiveReplies(r ReplyReader) ([]*Reply, error) {
	reply, err := r.Read()
	if err != nil {
		return nil, err
	}
	return []*Reply{reply}, nil
}

// GetMore is an OP_GET_MORE pulling the next batch from an open server
// cursor. It expects exactly one reply.
type GetMore struct {
	Database   string
	Collection string
	CursorID   int64
	Limit      int32

	requestID int32
}

func (g *GetMore) SetRequestID(id int32) { g.requestID = id }

func (g *GetMore) Serialize(buf *bytes.Buffer) error {
	name := g.Database + "." + g.Collection
	// header(16) + ZERO(4) + cstring + numberToReturn(4) + cursorID(8)
	length := int32(16 + 4 + len(name) + 1 + 4 + 8)

	appendHeader(buf, length, g.requestID, 0, OpGetMore)
	appendInt32(buf, 0)
	appendCString(buf, name)
	appendInt32(buf, g.Limit)
	appendInt64(buf, g.CursorID)
	return nil
}

func (g *GetMore) ReceiveReplies(r ReplyReader) ([]*Reply, error) {
	reply, err := r.Read()
	if err != nil {
		return nil, err
	}
	return []*Reply{reply}, nil
}

// KillCursors is an OP_KILL_CURSORS releasing server-side cursors. The
// server never answers it.
type KillCursors struct {
	CursorIDs []int64

	requestID int32
}

func (k *KillCursors) SetRequestID(id int32) { k.requestID = id }

func (k *KillCursors) Serialize(buf *bytes.Buffer) error {
	// header(16) + ZERO(4) + count(4) + ids(8 each)
	length := int32(16 + 4 + 4 + 8*len(k.CursorIDs))

	appendHeader(buf, length, k.requestID, 0, OpKillCursors)
	appendInt32(buf, 0)
	appendInt32(buf, int32(len(k.CursorIDs)))
	for _, id := range k.CursorIDs {
		appendInt64(buf, id)
	}
	return nil
}

func (k *KillCursors) ReceiveReplies(ReplyReader) ([]*Reply, error) { return nil, nil }

// Insert is a fire-and-forget OP_INSERT. Callers wanting write
// acknowledgement follow it with a getLastError Command in the same
// batch.
type Insert struct {
	Database   string
	Collection string
	Documents  []any
	Flags      int32

	requestID int32
}

func (in *Insert) SetRequestID(id int32) { in.requestID = id }

func (in *Insert) Serialize(buf *bytes.Buffer) error {
	name := in.Database + "." + in.Collection
	docs := make([][]byte, 0, len(in.Documents))
	total := 0
	for i, d := range in.Documents {
		raw, err := bson.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal document %d: %w", i, err)
		}
		docs = append(docs, raw)
		total += len(raw)
	}

	// header(16) + flags(4) + cstring + documents
	length := int32(16 + 4 + len(name) + 1 + total)

	appendHeader(buf, length, in.requestID, 0, OpInsert)
	appendInt32(buf, in.Flags)
	appendCString(buf, name)
	for _, raw := range docs {
		buf.Write(raw)
	}
	return nil
}

func (in *Insert) ReceiveReplies(ReplyReader) ([]*Reply, error) { return nil, nil }

// NewCommand builds the OP_QUERY form of a database command: a
// single-batch query against db.$cmd. cmd is the command document,
// e.g. bson.D{{Key: "ping", Value: 1}}.
func NewCommand(db string, cmd any) *Query {
	return &Query{
		Database:   db,
		Collection: "$cmd",
		Selector:   cmd,
		Limit:      -1,
	}
}
