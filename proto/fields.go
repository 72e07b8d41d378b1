package proto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrShortBuffer is returned by Reader when a field extends past the end of the buffer.
var ErrShortBuffer = errors.New("field extends past end of buffer")

// AppendString appends a VarInt length-prefixed UTF-8 string.
func AppendString(dst []byte, s string) []byte {
	dst = AppendVarInt(dst, uint32(len(s)))
	return append(dst, s...)
}

// AppendUint16 appends v as big-endian.
func AppendUint16(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

// AppendInt32 appends v as big-endian.
func AppendInt32(dst []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(v))
}

// AppendBool appends a single 0/1 byte.
func AppendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// AppendUUID appends the 16 raw bytes of id.
func AppendUUID(dst []byte, id uuid.UUID) []byte {
	return append(dst, id[:]...)
}

// Reader is a cursor over a message payload.
// The first failing read sticks: subsequent reads return zero values and Err reports it.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader creates a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first decoding error, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the unread bytes.
func (r *Reader) Remaining() []byte {
	if r.off >= len(r.buf) {
		return nil
	}
	return r.buf[r.off:]
}

// VarInt reads a VarInt.
func (r *Reader) VarInt() uint32 {
	if r.err != nil {
		return 0
	}
	v, n, err := DecodeVarInt(r.buf[r.off:])
	if err != nil {
		r.err = err
		return 0
	}
	if n == 0 {
		r.err = fmt.Errorf("varint at offset %d: %w", r.off, ErrShortBuffer)
		return 0
	}
	r.off += n
	return v
}

// Bytes reads exactly n bytes.
func (r *Reader) Bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%d bytes at offset %d: %w", n, r.off, ErrShortBuffer)
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

// Byte reads a single byte.
func (r *Reader) Byte() byte {
	b := r.Bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Str reads a VarInt length-prefixed string.
func (r *Reader) Str() string {
	n := r.VarInt()
	return string(r.Bytes(int(n)))
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() uint16 {
	b := r.Bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

// Int32 reads a big-endian int32.
func (r *Reader) Int32() int32 {
	b := r.Bytes(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// UUID reads 16 raw bytes as a UUID.
func (r *Reader) UUID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], r.Bytes(16))
	return id
}
