// Package transport provides the byte-stream transports a Connection
// speaks over: plain TCP and TLS. Both satisfy Conn; the caller picks
// a variant once at dial time and treats it uniformly afterward.
package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Conn is a connected byte stream. Read may return fewer bytes than
// requested; a zero-byte read with io.EOF means the peer closed the
// stream. Alive reports whether the stream is still usable without
// consuming protocol bytes.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	Alive() bool
}

// DialTCP opens a plaintext transport to host:port, failing if the
// connection cannot be established within timeout.
func DialTCP(host string, port int, timeout time.Duration) (Conn, error) {
	nc, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return nil, err
	}
	return &tcpConn{nc: nc}, nil
}

// DialTLS opens a TLS transport to host:port. A nil config uses the
// default, which verifies the server certificate against host.
func DialTLS(host string, port int, timeout time.Duration, config *tls.Config) (Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	if config == nil {
		config = &tls.Config{ServerName: host}
	} else if config.ServerName == "" && !config.InsecureSkipVerify {
		config = config.Clone()
		config.ServerName = host
	}
	nc, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, strconv.Itoa(port)), config)
	if err != nil {
		return nil, fmt.Errorf("tls dial %s:%d: %w", host, port, err)
	}
	return &tlsConn{nc: nc}, nil
}

type tcpConn struct {
	nc net.Conn
	probe
}

func (c *tcpConn) Read(p []byte) (int, error)  { return c.probe.read(c.nc, p) }
func (c *tcpConn) Write(p []byte) (int, error) { return trackWrite(&c.probe, c.nc, p) }
func (c *tcpConn) Close() error                { c.probe.dead = true; return c.nc.Close() }
func (c *tcpConn) Alive() bool                 { return c.probe.alive(c.nc) }

type tlsConn struct {
	nc *tls.Conn
	probe
}

func (c *tlsConn) Read(p []byte) (int, error)  { return c.probe.read(c.nc, p) }
func (c *tlsConn) Write(p []byte) (int, error) { return trackWrite(&c.probe, c.nc, p) }
func (c *tlsConn) Close() error                { c.probe.dead = true; return c.nc.Close() }
func (c *tlsConn) Alive() bool                 { return c.probe.alive(c.nc) }

// probe tracks whether a socket is known broken and performs the
// liveness check shared by both variants. A failed read or write
// marks the conn dead so Alive never reports a socket that already
// produced an I/O error as healthy.
type probe struct {
	dead    bool
	pending []byte // bytes consumed by a liveness peek, replayed on the next read
}

func (p *probe) read(nc net.Conn, buf []byte) (int, error) {
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}
	n, err := nc.Read(buf)
	if err != nil {
		p.dead = true
	}
	return n, err
}

func trackWrite(p *probe, nc net.Conn, buf []byte) (int, error) {
	n, err := nc.Write(buf)
	if err != nil {
		p.dead = true
	}
	return n, err
}

// alive peeks the socket under a near-immediate read deadline. A
// timeout means the peer is there and quiet; EOF or any other error
// means the stream is gone. The deadline must sit slightly in the
// future: an already-expired one fails before the read is attempted
// and would mask a pending EOF. A byte that arrives during the peek
// is held and replayed by the next read.
func (p *probe) alive(nc net.Conn) bool {
	if p.dead {
		return false
	}
	if err := nc.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		p.dead = true
		return false
	}
	var b [1]byte
	n, err := nc.Read(b[:])
	nc.SetReadDeadline(time.Time{})
	if n > 0 {
		p.pending = append(p.pending, b[:n]...)
	}
	if err == nil {
		return true
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	p.dead = true
	return false
}
