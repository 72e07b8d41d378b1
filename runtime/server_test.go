package runtime

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/justapithecus/chunkprobe/proto"
)

// fakeServer accepts a single connection and runs a script against it.
type fakeServer struct {
	ln   net.Listener
	port uint16
	done chan error
}

// serverConn is the server side of a capture session.
type serverConn struct {
	conn   net.Conn
	frames *proto.FrameReader
	codec  proto.Codec
}

func startServer(t *testing.T, script func(s *serverConn) error) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	srv := &fakeServer{
		ln:   ln,
		port: uint16(ln.Addr().(*net.TCPAddr).Port),
		done: make(chan error, 1),
	}
	go func() {
		c, err := ln.Accept()
		if err != nil {
			srv.done <- err
			return
		}
		defer func() { _ = c.Close() }()
		srv.done <- script(&serverConn{conn: c, frames: proto.NewFrameReader(c)})
	}()
	return srv
}

// wait returns the script's error.
func (f *fakeServer) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fake server")
		return nil
	}
}

func (s *serverConn) read() (proto.Message, error) {
	body, err := s.frames.ReadFrame()
	if err != nil {
		return proto.Message{}, err
	}
	return s.codec.Decode(body)
}

// expect reads the next message and checks its identifier.
func (s *serverConn) expect(id int32) (proto.Message, error) {
	msg, err := s.read()
	if err != nil {
		return msg, fmt.Errorf("waiting for 0x%02X: %w", id, err)
	}
	if msg.ID != id {
		return msg, fmt.Errorf("got message 0x%02X, want 0x%02X", msg.ID, id)
	}
	return msg, nil
}

func (s *serverConn) send(id int32, payload []byte) error {
	p := proto.Packet{ID: id, Payload: payload}
	return proto.WriteFrame(s.conn, s.codec.Encode(p))
}

// sendDeflated sends a message as a real compressed envelope.
func (s *serverConn) sendDeflated(id int32, payload []byte) error {
	body := proto.Packet{ID: id, Payload: payload}.Body()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	frame := proto.AppendVarInt(nil, uint32(len(body)))
	return proto.WriteFrame(s.conn, append(frame, buf.Bytes()...))
}

// sendRaw writes a frame body as-is.
func (s *serverConn) sendRaw(body []byte) error {
	return proto.WriteFrame(s.conn, body)
}

// drain blocks until the client closes the connection.
func (s *serverConn) drain() error {
	for {
		if _, err := s.frames.ReadFrame(); err != nil {
			return nil
		}
	}
}

// login runs the server side up to the play state. With threshold >= 0
// compression is negotiated first.
func (s *serverConn) login(threshold int) error {
	if _, err := s.expect(0x00); err != nil { // handshake
		return err
	}
	if _, err := s.expect(0x00); err != nil { // login start
		return err
	}
	if threshold >= 0 {
		if err := s.send(0x03, proto.EncodeVarInt(uint32(threshold))); err != nil {
			return err
		}
		s.codec.Enable(int32(threshold))
	}
	if err := s.send(0x02, []byte{0xAB}); err != nil {
		return err
	}
	if _, err := s.expect(0x03); err != nil { // login acknowledged
		return err
	}
	if err := s.send(0x0E, nil); err != nil {
		return err
	}
	if _, err := s.expect(0x00); err != nil { // client settings
		return err
	}
	if _, err := s.expect(0x07); err != nil { // known packs
		return err
	}
	if err := s.send(0x03, nil); err != nil {
		return err
	}
	_, err := s.expect(0x03) // acknowledge finish configuration
	return err
}

// chunkPayload is a chunk message payload (without the identifier).
func chunkPayload(x, z int32, tail ...byte) []byte {
	p := make([]byte, 8, 8+len(tail))
	binary.BigEndian.PutUint32(p[0:], uint32(x))
	binary.BigEndian.PutUint32(p[4:], uint32(z))
	return append(p, tail...)
}
