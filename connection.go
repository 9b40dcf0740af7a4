// Package mongowire owns a single physical connection to a MongoDB
// server: one socket, lazily dialed and transparently redialed, with
// request-id assignment on the way out and OP_REPLY framing on the way
// in. Pooling, retry policy and server selection all live above this
// package; a Connection is handed to one caller at a time and is not
// safe for concurrent use.
package mongowire

import (
	"bytes"
	"crypto/tls"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mongowire/transport"
	"github.com/wricardo/mongowire/wire"
)

// Options configures a Connection at construction. The zero value
// gives a plaintext transport, the default BSON decoder and no
// logging.
type Options struct {
	// SSL selects the TLS transport variant.
	SSL bool
	// TLSConfig is used when SSL is set; nil gets a default config
	// verifying the server certificate against the host.
	TLSConfig *tls.Config
	// Logger receives debug events for dial, redial and teardown.
	// Nil discards them.
	Logger *zerolog.Logger
	// Decoder overrides the document codec. Nil uses wire.BSONDecoder.
	Decoder wire.DocumentDecoder
}

// Connection is one physical socket to host:port. The transport is
// dialed on first use and redialed whenever it is found missing or
// dead before an I/O call; an I/O error itself is surfaced to the
// caller untouched, who is expected to discard the Connection or let
// its pool do so.
type Connection struct {
	host    string
	port    int
	timeout time.Duration
	options Options
	address string

	log  zerolog.Logger
	dec  wire.DocumentDecoder
	dial func() (transport.Conn, error)
	conn transport.Conn

	lastRequestID int32
	pin           any
}

// New builds a disconnected Connection. No I/O happens until the first
// Connect, Read or Write.
func New(host string, port int, timeout time.Duration, options Options) *Connection {
	log := zerolog.Nop()
	if options.Logger != nil {
		log = *options.Logger
	}
	dec := options.Decoder
	if dec == nil {
		dec = wire.BSONDecoder{}
	}
	c := &Connection{
		host:    host,
		port:    port,
		timeout: timeout,
		options: options,
		address: net.JoinHostPort(host, strconv.Itoa(port)),
		log:     log,
		dec:     dec,
	}
	c.dial = c.dialTransport
	return c
}

// dialTransport picks the variant the options select.
func (c *Connection) dialTransport() (transport.Conn, error) {
	if c.options.SSL {
		return transport.DialTLS(c.host, c.port, c.timeout, c.options.TLSConfig)
	}
	return transport.DialTCP(c.host, c.port, c.timeout)
}

// Connect dials a fresh transport, replacing any prior handle. Dial
// errors are returned as the transport produced them.
func (c *Connection) Connect() error {
	nc, err := c.dial()
	if err != nil {
		c.log.Debug().Str("address", c.address).Err(err).Msg("dial failed")
		return err
	}
	c.conn = nc
	c.log.Debug().Str("address", c.address).Bool("tls", c.options.SSL).Msg("connected")
	return nil
}

// Connected reports whether a transport handle is held. It does not
// probe the socket; see Alive.
func (c *Connection) Connected() bool {
	return c.conn != nil
}

// Alive reports whether the held transport still looks usable. A
// Connection without a transport is not alive.
func (c *Connection) Alive() bool {
	return c.conn != nil && c.conn.Alive()
}

// Disconnect closes the transport, swallowing any close error, and is
// guaranteed to leave the Connection without a handle.
func (c *Connection) Disconnect() {
	if c.conn == nil {
		return
	}
	defer func() { c.conn = nil }()
	c.conn.Close()
	c.log.Debug().Str("address", c.address).Msg("disconnected")
}

// ensureConnected is the reconnect guard run before every I/O call:
// redial when no transport is held or the held one is no longer alive.
// It never reacts to errors from earlier I/O calls; those surface to
// the caller.
func (c *Connection) ensureConnected() error {
	if c.conn != nil && c.conn.Alive() {
		return nil
	}
	if c.conn != nil {
		c.log.Debug().Str("address", c.address).Msg("transport dead, reconnecting")
	}
	return c.Connect()
}

// Write frames ops in order into one buffer, assigning each a request
// id strictly greater than any this instance issued before, and hands
// the whole buffer to a single transport write. It returns the number
// of bytes written. The assigned ids remain visible on the operations.
func (c *Connection) Write(ops ...wire.Operation) (int, error) {
	if err := c.ensureConnected(); err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	for _, op := range ops {
		op.SetRequestID(c.nextRequestID())
		if err := op.Serialize(&buf); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(buf.Bytes())
}

// Read parses one OP_REPLY off the transport: the 36-byte header, then
// the trailing documents. A stream that ends mid-header or mid-body
// fails with *wire.ConnectionError and never yields a partial reply.
func (c *Connection) Read() (*wire.Reply, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}
	return wire.ReadReply(c.conn, c.dec)
}

// ReceiveReplies lets each operation pull its own replies from this
// Connection, in the order the operations are given. Results line up
// index-for-index with ops; fire-and-forget operations contribute nil.
func (c *Connection) ReceiveReplies(ops ...wire.Operation) ([][]*wire.Reply, error) {
	replies := make([][]*wire.Reply, 0, len(ops))
	for _, op := range ops {
		r, err := op.ReceiveReplies(c)
		if err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, nil
}

// nextRequestID issues the next id, starting at 1 and wrapping back to
// 1 past the int32 boundary so an id is never zero or negative.
func (c *Connection) nextRequestID() int32 {
	if c.lastRequestID == math.MaxInt32 {
		c.lastRequestID = 0
	}
	c.lastRequestID++
	return c.lastRequestID
}

// Address returns "host:port", computed once at construction.
func (c *Connection) Address() string {
	return c.address
}

// Equal reports whether two Connections target the same server with
// the same timeout and options. Transport state, the request-id
// counter and pinning never participate.
func (c *Connection) Equal(other *Connection) bool {
	if other == nil {
		return false
	}
	return c.address == other.address &&
		c.timeout == other.timeout &&
		c.options.SSL == other.options.SSL &&
		c.options.TLSConfig == other.options.TLSConfig
}

// PinTo associates the Connection with an opaque owner token, e.g. a
// session or worker identity assigned by the pool. The Connection
// never interprets the token.
func (c *Connection) PinTo(token any) {
	c.pin = token
}

// Pinned reports whether an owner token is stored.
func (c *Connection) Pinned() bool {
	return c.pin != nil
}

// Pin returns the stored owner token, nil when unpinned.
func (c *Connection) Pin() any {
	return c.pin
}

// Unpin clears the owner token.
func (c *Connection) Unpin() {
	c.pin = nil
}
