package testutils

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
)

var netdebug = os.Getenv("NETDEBUG") != ""

// RecordingConn keeps a copy of every byte written and read, and notices
// when it gets closed.
type RecordingConn struct {
	net.Conn

	mu       sync.Mutex
	dataSent []byte
	dataRecv []byte
	closed   bool

	tb testing.TB
}

func (c *RecordingConn) Read(b []byte) (n int, err error) {
	n, err = c.Conn.Read(b)

	c.mu.Lock()
	c.dataRecv = append(c.dataRecv, b[:n]...)
	c.mu.Unlock()

	if netdebug {
		c.tb.Logf("%s: read %d bytes: %q", c.LocalAddr(), n, b[:n])
	}
	return
}

func (c *RecordingConn) Write(b []byte) (n int, err error) {
	n, err = c.Conn.Write(b)

	c.mu.Lock()
	c.dataSent = append(c.dataSent, b[:n]...)
	c.mu.Unlock()

	if netdebug {
		c.tb.Logf("%s: wrote %d bytes: %q", c.LocalAddr(), n, b[:n])
	}
	return
}

func (c *RecordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return c.Conn.Close()
}

func (c *RecordingConn) Sent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.dataSent)
}

func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dialer sends every dial to one test server, whatever address was asked
// for, and remembers the connections it made.
type Dialer struct {
	tb   testing.TB
	addr net.Addr

	dials atomic.Int64

	mu    sync.Mutex
	conns []*RecordingConn
}

func NewDialer(tb testing.TB, srv *httptest.Server) *Dialer {
	tb.Helper()

	return &Dialer{tb: tb, addr: srv.Listener.Addr()}
}

func (d *Dialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	d.dials.Add(1)

	var nd net.Dialer
	c, err := nd.DialContext(ctx, d.addr.Network(), d.addr.String())
	if err != nil {
		return nil, err
	}

	rc := &RecordingConn{Conn: c, tb: d.tb}

	d.mu.Lock()
	d.conns = append(d.conns, rc)
	d.mu.Unlock()

	return rc, nil
}

// Dials is the number of dial attempts so far.
func (d *Dialer) Dials() int {
	return int(d.dials.Load())
}

func (d *Dialer) Conns() []*RecordingConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*RecordingConn(nil), d.conns...)
}

// Transport returns an http.Transport for srv that dials through d. For TLS
// servers the certificate is checked against the listener's own address.
func (d *Dialer) Transport(srv *httptest.Server) *http.Transport {
	tr := srv.Client().Transport.(*http.Transport).Clone()
	tr.DialContext = d.DialContext

	if tr.TLSClientConfig != nil {
		tr.TLSClientConfig = tr.TLSClientConfig.Clone()
	} else {
		tr.TLSClientConfig = &tls.Config{}
	}
	tr.TLSClientConfig.ServerName, _, _ = net.SplitHostPort(d.addr.String())

	return tr
}

// ServerTransport is NewDialer(tb, srv).Transport(srv), for tests that don't
// care about the connections.
func ServerTransport(tb testing.TB, srv *httptest.Server) *http.Transport {
	tb.Helper()

	return NewDialer(tb, srv).Transport(srv)
}
