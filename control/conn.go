package control

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	writeTimeout = 10 * time.Second
	flushTimeout = time.Second
)

// conn wraps one control socket. All outbound frames go through the buffered
// send channel and a single writer goroutine, which preserves per-connection
// delivery order.
type conn struct {
	id      string
	netConn net.Conn
	log     *slog.Logger

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	bytesIn atomic.Uint64 // raw bytes read, drained into the registry per frame
}

func newConn(netConn net.Conn, bufferSize int, log *slog.Logger) *conn {
	return &conn{
		id:      uuid.NewString(),
		netConn: netConn,
		log:     log,
		send:    make(chan []byte, bufferSize),
		closed:  make(chan struct{}),
	}
}

// writePump is the only goroutine allowed to write to the socket. It owns the
// socket close: closing after a flush ensures a final kicked or error frame
// still reaches the client.
func (c *conn) writePump() {
	defer func() { _ = c.netConn.Close() }()

	for {
		select {
		case <-c.closed:
			c.flush()
			return
		case frame := <-c.send:
			_ = c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.netConn.Write(frame); err != nil {
				c.log.Debug("Control write failed, closing connection", "conn", c.id, "err", err)
				c.close()
				return
			}
		}
	}
}

// flush drains frames already queued at close time, each under a short
// deadline so a dead client cannot hold the teardown hostage.
func (c *conn) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.netConn.SetWriteDeadline(time.Now().Add(flushTimeout))
			if _, err := c.netConn.Write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// enqueue hands a frame to the writer without blocking. It reports false when
// the connection is closed or its buffer is full (slow client).
func (c *conn) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close signals shutdown exactly once. The writer flushes and closes the
// socket, which in turn unblocks the connection's read loop.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// countingReader tracks inbound traffic for the per-participant byte
// counters.
type countingReader struct {
	inner net.Conn
	count *atomic.Uint64
}

func (r countingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.count.Add(uint64(n))
	return n, err
}
