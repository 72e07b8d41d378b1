package proto

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// MaxUncompressedSize bounds the declared length of a compressed message.
const MaxUncompressedSize = 8 * 1024 * 1024

// CompressionError is returned when a compressed envelope cannot be inflated
// to exactly its declared length.
type CompressionError struct {
	Declared int
	Actual   int
	Err      error
}

func (e *CompressionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid compressed message (declared %d bytes): %v", e.Declared, e.Err)
	}
	return fmt.Sprintf("invalid decompression length: declared %d, got %d", e.Declared, e.Actual)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}

// Codec converts between frame bodies and messages.
//
// Compression is off until Enable is called. Once on, every inbound body is
// an envelope of {uncompressed length VarInt, data} where a zero length means
// data is used verbatim. Outbound bodies always use the zero-length form.
type Codec struct {
	enabled   bool
	threshold int32
	inflated  int64
}

// Enable switches the codec to the compression envelope.
func (c *Codec) Enable(threshold int32) {
	c.enabled = true
	c.threshold = threshold
}

// Enabled reports whether compression has been negotiated.
func (c *Codec) Enabled() bool { return c.enabled }

// Threshold returns the threshold announced by the server.
func (c *Codec) Threshold() int32 { return c.threshold }

// Decode turns a frame body into a message.
func (c *Codec) Decode(frameBody []byte) (Message, error) {
	if !c.enabled {
		return DecodeMessage(frameBody)
	}

	declared, n, err := DecodeVarInt(frameBody)
	if err != nil {
		return Message{}, fmt.Errorf("%w: uncompressed length: %w", ErrMalformedMessage, err)
	}
	if n == 0 {
		return Message{}, fmt.Errorf("%w: truncated uncompressed length", ErrMalformedMessage)
	}
	data := frameBody[n:]
	if declared == 0 {
		return DecodeMessage(data)
	}

	if declared > MaxUncompressedSize {
		return Message{}, &CompressionError{
			Declared: int(declared),
			Err:      fmt.Errorf("declared length exceeds maximum %d", MaxUncompressedSize),
		}
	}
	body, err := inflate(data, int(declared))
	if err != nil {
		return Message{}, err
	}
	c.inflated++
	return DecodeMessage(body)
}

// Encode turns an outbound packet into a frame body.
func (c *Codec) Encode(p Packet) []byte {
	body := p.Body()
	if !c.enabled {
		return body
	}
	out := make([]byte, 0, len(body)+1)
	out = AppendVarInt(out, 0)
	return append(out, body...)
}

// inflate decompresses data and checks it yields exactly declared bytes.
func inflate(data []byte, declared int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &CompressionError{Declared: declared, Err: err}
	}
	defer func() { _ = zr.Close() }()

	// Read one byte past the declared length so overlong streams are detected.
	out, err := io.ReadAll(io.LimitReader(zr, int64(declared)+1))
	if err != nil {
		return nil, &CompressionError{Declared: declared, Actual: len(out), Err: err}
	}
	if len(out) != declared {
		return nil, &CompressionError{Declared: declared, Actual: len(out)}
	}
	return out, nil
}
