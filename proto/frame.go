package proto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest frame body accepted from the server.
// It is the largest value a 3-byte VarInt length prefix can carry.
const MaxFrameSize = 1<<21 - 1

// FrameErrorKind classifies frame read errors.
type FrameErrorKind int

const (
	// FrameErrorClosed indicates the stream ended before a frame completed.
	FrameErrorClosed FrameErrorKind = iota
	// FrameErrorVarInt indicates a malformed length prefix.
	FrameErrorVarInt
	// FrameErrorTooLarge indicates a declared length above MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorIO indicates any other transport failure (including timeouts).
	FrameErrorIO
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorClosed:
		return "closed"
	case FrameErrorVarInt:
		return "varint"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorIO:
		return "io"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FrameError represents a frame read error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsClosed reports whether err is a FrameError caused by the peer closing the stream.
func IsClosed(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == FrameErrorClosed
}

// FrameReader reads VarInt length-prefixed frames from a stream.
//
// The length prefix is parsed incrementally: one byte is pulled from the
// stream at a time and decoding is retried until the prefix terminates.
type FrameReader struct {
	r      *bufio.Reader
	header [MaxVarIntLen]byte
	n      int
}

// NewFrameReader creates a frame reader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame reads a single frame and returns its body.
//
// Errors:
//   - *FrameError with Kind=FrameErrorClosed: stream ended mid-prefix or mid-body
//   - *FrameError with Kind=FrameErrorVarInt: length prefix longer than 5 bytes
//   - *FrameError with Kind=FrameErrorTooLarge: declared length exceeds MaxFrameSize
//   - *FrameError with Kind=FrameErrorIO: transport error (wraps the cause)
func (f *FrameReader) ReadFrame() ([]byte, error) {
	length, err := f.readLength()
	if err != nil {
		return nil, err
	}

	if length > MaxFrameSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("frame size %d exceeds maximum %d", length, MaxFrameSize),
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, classifyReadErr("failed to read frame body", err)
	}
	return body, nil
}

// readLength consumes bytes until the accumulated prefix decodes.
func (f *FrameReader) readLength() (uint32, error) {
	f.n = 0
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return 0, classifyReadErr("failed to read length prefix", err)
		}
		f.header[f.n] = b
		f.n++

		v, n, err := DecodeVarInt(f.header[:f.n])
		if err != nil {
			return 0, &FrameError{Kind: FrameErrorVarInt, Msg: "invalid length prefix", Err: err}
		}
		if n > 0 {
			return v, nil
		}
	}
}

func classifyReadErr(msg string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FrameError{Kind: FrameErrorClosed, Msg: "connection closed: " + msg, Err: err}
	}
	return &FrameError{Kind: FrameErrorIO, Msg: msg, Err: err}
}

// AppendFrame appends body prefixed with its VarInt length.
func AppendFrame(dst, body []byte) []byte {
	dst = AppendVarInt(dst, uint32(len(body)))
	return append(dst, body...)
}

// WriteFrame writes body as a single length-prefixed frame.
func WriteFrame(w io.Writer, body []byte) error {
	frame := AppendFrame(make([]byte, 0, len(body)+MaxVarIntLen), body)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
