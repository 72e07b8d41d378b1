// Package proto implements the wire primitives of the game protocol client:
// the VarInt codec, field encoders, length-prefixed framing and the optional
// compression envelope.
package proto

import "errors"

// MaxVarIntLen is the maximum encoded size of a 32-bit VarInt.
const MaxVarIntLen = 5

// ErrVarIntTooLong is returned when the fifth byte of a VarInt still carries
// a continuation bit.
var ErrVarIntTooLong = errors.New("varint too long")

// AppendVarInt appends the VarInt encoding of v to dst.
// Values are treated as unsigned 32-bit, so negative int32 values encode to 5 bytes.
func AppendVarInt(dst []byte, v uint32) []byte {
	for v&^0x7F != 0 {
		dst = append(dst, byte(v&0x7F)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// EncodeVarInt returns the VarInt encoding of v.
func EncodeVarInt(v uint32) []byte {
	return AppendVarInt(make([]byte, 0, MaxVarIntLen), v)
}

// VarIntSize returns the number of bytes AppendVarInt would write for v.
func VarIntSize(v uint32) int {
	n := 1
	for v&^0x7F != 0 {
		v >>= 7
		n++
	}
	return n
}

// DecodeVarInt decodes a VarInt from the start of buf.
//
// Returns the value and the number of bytes consumed. If buf ends before the
// VarInt terminates, n is 0 and err is nil: the caller should read more bytes
// and retry. A fifth byte with the continuation bit set returns ErrVarIntTooLong.
func DecodeVarInt(buf []byte) (v uint32, n int, err error) {
	var shift uint
	for i := 0; i < MaxVarIntLen; i++ {
		if i >= len(buf) {
			return 0, 0, nil
		}
		b := buf[i]
		v |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrVarIntTooLong
}
