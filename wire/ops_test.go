package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ---- helpers ----

func serialize(t *testing.T, op Operation, id int32) []byte {
	t.Helper()
	var buf bytes.Buffer
	op.SetRequestID(id)
	if err := op.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return buf.Bytes()
}

func int32At(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off:]))
}

func int64At(b []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(b[off:]))
}

// cannedReader serves a fixed sequence of replies.
type cannedReader struct {
	replies []*Reply
	err     error
}

func (r *cannedReader) Read() (*Reply, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(r.replies) == 0 {
		return nil, &ConnectionError{Expected: HeaderLen}
	}
	reply := r.replies[0]
	r.replies = r.replies[1:]
	return reply, nil
}

// ---- Query ----

func TestQuery_Serialize(t *testing.T) {
	sel := mustMarshal(t, bson.D{{Key: "name", Value: "x"}})
	q := &Query{
		Database:   "db",
		Collection: "users",
		Selector:   bson.D{{Key: "name", Value: "x"}},
		Skip:       7,
		Limit:      -1,
		Flags:      SlaveOK,
	}
	out := serialize(t, q, 3)

	if got := int32At(out, 0); got != int32(len(out)) {
		t.Fatalf("length field %d, message is %d bytes", got, len(out))
	}
	if int32At(out, 4) != 3 {
		t.Fatalf("requestID = %d, want 3", int32At(out, 4))
	}
	if int32At(out, 8) != 0 {
		t.Fatalf("responseTo = %d, want 0", int32At(out, 8))
	}
	if int32At(out, 12) != OpQuery {
		t.Fatalf("opCode = %d, want %d", int32At(out, 12), OpQuery)
	}
	if int32At(out, 16) != SlaveOK {
		t.Fatalf("flags = %d, want %d", int32At(out, 16), SlaveOK)
	}

	name := out[20:]
	end := bytes.IndexByte(name, 0)
	if end < 0 || string(name[:end]) != "db.users" {
		t.Fatalf("collection name = %q", name)
	}
	rest := name[end+1:]
	if int32At(rest, 0) != 7 || int32At(rest, 4) != -1 {
		t.Fatalf("skip/limit = %d/%d", int32At(rest, 0), int32At(rest, 4))
	}
	if !bytes.Equal(rest[8:], sel) {
		t.Fatal("selector bytes differ")
	}
}

func TestQuery_SerializeNilSelector(t *testing.T) {
	out := serialize(t, &Query{Database: "db", Collection: "c"}, 1)
	empty := mustMarshal(t, bson.D{})
	if !bytes.HasSuffix(out, empty) {
		t.Fatal("nil selector should serialize as empty document")
	}
}

func TestQuery_SerializeProjection(t *testing.T) {
	proj := mustMarshal(t, bson.D{{Key: "name", Value: int32(1)}})
	q := &Query{
		Database:   "db",
		Collection: "c",
		Projection: bson.D{{Key: "name", Value: int32(1)}},
	}
	out := serialize(t, q, 1)
	if got := int32At(out, 0); got != int32(len(out)) {
		t.Fatalf("length field %d, message is %d bytes", got, len(out))
	}
	if !bytes.HasSuffix(out, proj) {
		t.Fatal("projection should trail the selector")
	}
}

func TestQuery_ReceiveReplies(t *testing.T) {
	want := &Reply{ReplyHeader: ReplyHeader{ResponseTo: 3}}
	replies, err := (&Query{}).ReceiveReplies(&cannedReader{replies: []*Reply{want}})
	if err != nil {
		t.Fatalf("ReceiveReplies: %v", err)
	}
	if len(replies) != 1 || replies[0] != want {
		t.Fatalf("expected the single canned reply, got %v", replies)
	}
}

func TestQuery_ReceiveRepliesError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := (&Query{}).ReceiveReplies(&cannedReader{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected read error to surface, got %v", err)
	}
}

// ---- GetMore ----

func TestGetMore_Serialize(t *testing.T) {
	g := &GetMore{Database: "db", Collection: "c", CursorID: 0x1122334455667788, Limit: 100}
	out := serialize(t, g, 9)

	if int32At(out, 0) != int32(len(out)) {
		t.Fatalf("length field %d, message is %d bytes", int32At(out, 0), len(out))
	}
	if int32At(out, 4) != 9 || int32At(out, 12) != OpGetMore {
		t.Fatalf("header mismatch: id=%d op=%d", int32At(out, 4), int32At(out, 12))
	}
	if int32At(out, 16) != 0 {
		t.Fatal("ZERO field must be zero")
	}
	end := bytes.IndexByte(out[20:], 0) + 20
	if string(out[20:end]) != "db.c" {
		t.Fatalf("collection name = %q", out[20:end])
	}
	if int32At(out, end+1) != 100 {
		t.Fatalf("numberToReturn = %d", int32At(out, end+1))
	}
	if int64At(out, end+5) != 0x1122334455667788 {
		t.Fatalf("cursorID = %x", int64At(out, end+5))
	}
}

// ---- KillCursors ----

func TestKillCursors_Serialize(t *testing.T) {
	k := &KillCursors{CursorIDs: []int64{10, 20}}
	out := serialize(t, k, 4)

	if len(out) != 16+4+4+16 {
		t.Fatalf("message is %d bytes", len(out))
	}
	if int32At(out, 0) != int32(len(out)) || int32At(out, 12) != OpKillCursors {
		t.Fatalf("header mismatch")
	}
	if int32At(out, 20) != 2 {
		t.Fatalf("cursor count = %d", int32At(out, 20))
	}
	if int64At(out, 24) != 10 || int64At(out, 32) != 20 {
		t.Fatalf("cursor ids = %d, %d", int64At(out, 24), int64At(out, 32))
	}
}

func TestKillCursors_NoReplies(t *testing.T) {
	replies, err := (&KillCursors{}).ReceiveReplies(&cannedReader{})
	if err != nil || replies != nil {
		t.Fatalf("expected no replies and no error, got %v, %v", replies, err)
	}
}

// ---- Insert ----

func TestInsert_Serialize(t *testing.T) {
	d1 := mustMarshal(t, bson.D{{Key: "a", Value: int32(1)}})
	d2 := mustMarshal(t, bson.D{{Key: "b", Value: int32(2)}})
	in := &Insert{
		Database:   "db",
		Collection: "c",
		Documents:  []any{bson.D{{Key: "a", Value: int32(1)}}, bson.D{{Key: "b", Value: int32(2)}}},
	}
	out := serialize(t, in, 2)

	if int32At(out, 0) != int32(len(out)) || int32At(out, 12) != OpInsert {
		t.Fatalf("header mismatch")
	}
	want := append(append([]byte{}, d1...), d2...)
	if !bytes.HasSuffix(out, want) {
		t.Fatal("documents must trail back-to-back")
	}
}

// ---- NewCommand ----

func TestNewCommand(t *testing.T) {
	cmd := NewCommand("admin", bson.D{{Key: "ping", Value: int32(1)}})
	if cmd.Database != "admin" || cmd.Collection != "$cmd" {
		t.Fatalf("command targets %s.%s", cmd.Database, cmd.Collection)
	}
	if cmd.Limit != -1 {
		t.Fatalf("command limit = %d, want -1", cmd.Limit)
	}
	out := serialize(t, cmd, 1)
	end := bytes.IndexByte(out[20:], 0) + 20
	if string(out[20:end]) != "admin.$cmd" {
		t.Fatalf("collection name = %q", out[20:end])
	}
}
