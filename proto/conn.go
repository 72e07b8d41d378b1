package proto

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ConnStats are transport counters for one connection.
type ConnStats struct {
	FramesRead       int64
	BytesRead        int64
	CompressedFrames int64
	FramesWritten    int64
	BytesWritten     int64
}

// Conn is a framed, optionally compressed message connection.
//
// Every read and write is bounded by the I/O timeout, capped at the session
// deadline when one is set. A timed-out operation surfaces the underlying
// os.ErrDeadlineExceeded.
type Conn struct {
	conn      net.Conn
	frames    *FrameReader
	codec     Codec
	ioTimeout time.Duration
	deadline  time.Time
	now       func() time.Time
	stats     ConnStats
}

// Dial connects to addr and wraps the connection.
func Dial(ctx context.Context, addr string, ioTimeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: ioTimeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(c, ioTimeout), nil
}

// NewConn wraps an established connection.
func NewConn(c net.Conn, ioTimeout time.Duration) *Conn {
	return &Conn{
		conn:      c,
		frames:    NewFrameReader(c),
		ioTimeout: ioTimeout,
		now:       time.Now,
	}
}

// SetSessionDeadline caps every subsequent I/O deadline at t.
func (c *Conn) SetSessionDeadline(t time.Time) {
	c.deadline = t
}

// Codec exposes the connection's compression state.
func (c *Conn) Codec() *Codec {
	return &c.codec
}

// Stats returns a copy of the transport counters.
func (c *Conn) Stats() ConnStats {
	s := c.stats
	s.CompressedFrames = c.codec.inflated
	return s
}

// ReadMessage reads and decodes the next inbound message.
func (c *Conn) ReadMessage() (Message, error) {
	if err := c.conn.SetReadDeadline(c.ioDeadline()); err != nil {
		return Message{}, fmt.Errorf("set read deadline: %w", err)
	}
	body, err := c.frames.ReadFrame()
	if err != nil {
		return Message{}, err
	}
	c.stats.FramesRead++
	c.stats.BytesRead += int64(len(body))

	msg, err := c.codec.Decode(body)
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// WriteMessage encodes p and writes it as one frame.
func (c *Conn) WriteMessage(p Packet) error {
	if err := c.conn.SetWriteDeadline(c.ioDeadline()); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	body := c.codec.Encode(p)
	if err := WriteFrame(c.conn, body); err != nil {
		return err
	}
	c.stats.FramesWritten++
	c.stats.BytesWritten += int64(len(body))
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) ioDeadline() time.Time {
	var d time.Time
	if c.ioTimeout > 0 {
		d = c.now().Add(c.ioTimeout)
	}
	if !c.deadline.IsZero() && (d.IsZero() || c.deadline.Before(d)) {
		d = c.deadline
	}
	return d
}
