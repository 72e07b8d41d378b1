package capture

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func chunkBody(x, z int32, tail ...byte) []byte {
	b := []byte{0x2C}
	b = binary.BigEndian.AppendUint32(b, uint32(x))
	b = binary.BigEndian.AppendUint32(b, uint32(z))
	return append(b, tail...)
}

func TestEngine_FirstSeenWins(t *testing.T) {
	e := NewEngine(64)

	stream := [][]byte{
		chunkBody(0, 0, 'a'),
		chunkBody(1, 0, 'b'),
		chunkBody(0, 0, 'c'),
		chunkBody(2, 1, 'd'),
		chunkBody(1, 0, 'e'),
	}
	for _, body := range stream {
		e.Offer(body)
	}

	entries := e.Entries()
	if len(entries) != 3 {
		t.Fatalf("captured %d entries, want 3", len(entries))
	}

	want := []struct {
		key  Key
		body []byte
	}{
		{Key{0, 0}, stream[0]},
		{Key{1, 0}, stream[1]},
		{Key{2, 1}, stream[3]},
	}
	for i, w := range want {
		if entries[i].Key() != w.key {
			t.Errorf("entry %d key = %+v, want %+v", i, entries[i].Key(), w.key)
		}
		if !bytes.Equal(entries[i].Body, w.body) {
			t.Errorf("entry %d body = %x, want first-seen %x", i, entries[i].Body, w.body)
		}
	}
	if e.Duplicates() != 2 {
		t.Errorf("Duplicates = %d, want 2", e.Duplicates())
	}
}

func TestEngine_DoneAtTarget(t *testing.T) {
	e := NewEngine(2)
	e.Offer(chunkBody(0, 0))
	if e.Done() {
		t.Fatal("done after 1 of 2")
	}
	e.Offer(chunkBody(0, 0))
	if e.Done() {
		t.Fatal("duplicate must not count toward target")
	}
	e.Offer(chunkBody(5, -3))
	if !e.Done() {
		t.Fatal("not done after 2 distinct")
	}
	if e.Len() != 2 || e.Target() != 2 {
		t.Errorf("Len=%d Target=%d", e.Len(), e.Target())
	}
}

func TestChunkKey(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want Key
		ok   bool
	}{
		{"positive", chunkBody(3, 7), Key{3, 7}, true},
		{"negative", chunkBody(-1, -2147483648), Key{-1, -2147483648}, true},
		{"with payload", chunkBody(10, 20, 1, 2, 3), Key{10, 20}, true},
		{"too short", chunkBody(1, 1)[:8], Key{}, false},
		{"empty", nil, Key{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ChunkKey(tt.body)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ChunkKey = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEngine_RejectsShortBodies(t *testing.T) {
	e := NewEngine(4)
	if _, added := e.Offer([]byte{0x2C, 0, 0}); added {
		t.Fatal("short body should not be added")
	}
	if e.Rejected() != 1 || e.Len() != 0 {
		t.Errorf("Rejected=%d Len=%d", e.Rejected(), e.Len())
	}
}
