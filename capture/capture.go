// Package capture deduplicates chunk messages by coordinate.
package capture

import "encoding/binary"

// Offsets of the chunk coordinates inside a chunk-data-with-light body.
const (
	offsetX = 1
	offsetZ = 5
	// MinBodySize is the type tag plus both coordinates.
	MinBodySize = 9
)

// Key is a chunk coordinate pair.
type Key struct {
	X int32
	Z int32
}

// Entry is one captured chunk body.
type Entry struct {
	X    int32
	Z    int32
	Body []byte
}

// Key returns the entry's coordinate pair.
func (e Entry) Key() Key { return Key{X: e.X, Z: e.Z} }

// ChunkKey reads the big-endian X and Z that follow the one-byte type tag.
func ChunkKey(body []byte) (Key, bool) {
	if len(body) < MinBodySize {
		return Key{}, false
	}
	return Key{
		X: int32(binary.BigEndian.Uint32(body[offsetX:])),
		Z: int32(binary.BigEndian.Uint32(body[offsetZ:])),
	}, true
}

// Engine accumulates first-seen chunk bodies until a target count is reached.
// Not safe for concurrent use; a session owns exactly one engine.
type Engine struct {
	target     int
	seen       map[Key]struct{}
	entries    []Entry
	duplicates int64
	rejected   int64
}

// NewEngine creates an engine that is done after target distinct chunks.
func NewEngine(target int) *Engine {
	return &Engine{
		target: target,
		seen:   make(map[Key]struct{}, target),
	}
}

// Offer records body if its coordinate has not been seen yet.
// Returns the entry and true when it was added. The engine keeps body
// without copying; callers must not reuse the slice.
func (e *Engine) Offer(body []byte) (Entry, bool) {
	key, ok := ChunkKey(body)
	if !ok {
		e.rejected++
		return Entry{}, false
	}
	if _, dup := e.seen[key]; dup {
		e.duplicates++
		return Entry{}, false
	}
	e.seen[key] = struct{}{}
	entry := Entry{X: key.X, Z: key.Z, Body: body}
	e.entries = append(e.entries, entry)
	return entry, true
}

// Done reports whether the target count has been reached.
func (e *Engine) Done() bool {
	return len(e.entries) >= e.target
}

// Len returns the number of distinct chunks captured.
func (e *Engine) Len() int { return len(e.entries) }

// Target returns the configured target count.
func (e *Engine) Target() int { return e.target }

// Duplicates returns how many bodies were discarded as already seen.
func (e *Engine) Duplicates() int64 { return e.duplicates }

// Rejected returns how many bodies were too short to carry coordinates.
func (e *Engine) Rejected() int64 { return e.rejected }

// Entries returns the captured entries in capture order.
func (e *Engine) Entries() []Entry {
	return e.entries
}
