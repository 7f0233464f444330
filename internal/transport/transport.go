package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

var (
	ErrClosed  = errors.New("transport: closed")
	ErrTimeout = errors.New("transport: timeout")
)

// Transport is a byte-oriented channel with blocking reads and writes.
//
// A zero deadline means no timeout. Read returns io.EOF once the peer has
// closed its side. Close unblocks pending Read and Write calls and is safe to
// call more than once.
type Transport interface {
	Read(p []byte, deadline time.Time) (int, error)
	Write(p []byte, deadline time.Time) (int, error)
	Close() error
}

// HalfCloser is implemented by transports that can close their write side
// alone, such as *net.TCPConn and Conn.
type HalfCloser interface {
	CloseWrite() error
}

// Conn adapts a net.Conn. One goroutine may read while another writes.
type Conn struct {
	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, closed: make(chan struct{})}
}

// Read returns io.EOF once the peer closed its side, including on in-memory
// pipes where the deadline setter already fails with io.ErrClosedPipe.
func (c *Conn) Read(p []byte, deadline time.Time) (int, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, c.mapReadErr(err)
	}
	n, err := c.conn.Read(p)
	return n, c.mapReadErr(err)
}

func (c *Conn) Write(p []byte, deadline time.Time) (int, error) {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return 0, c.mapErr(err)
	}
	n, err := c.conn.Write(p)
	return n, c.mapErr(err)
}

// CloseWrite half-closes the connection: the peer reads EOF while reads on
// this side keep working. Connections without half-close support return
// errors.ErrUnsupported.
func (c *Conn) CloseWrite() error {
	if c.isClosed() {
		return ErrClosed
	}
	hc, ok := c.conn.(HalfCloser)
	if !ok {
		return fmt.Errorf("transport: half-close on %T: %w", c.conn, errors.ErrUnsupported)
	}
	return c.mapErr(hc.CloseWrite())
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if c.isClosed() {
		return ErrClosed
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}

func (c *Conn) mapReadErr(err error) error {
	if errors.Is(err, io.ErrClosedPipe) && !c.isClosed() {
		return io.EOF
	}
	return c.mapErr(err)
}

// Pipe returns two connected in-memory transports.
func Pipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}
