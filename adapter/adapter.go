// Package adapter defines the notification boundary for finished captures.
//
// A replaying server keeps its template pool in memory, so it needs to know
// when a capture has replaced the files on disk. Adapters deliver one
// CaptureCompletedEvent per run; PoolChanged tells the consumer whether a
// reload is worthwhile.
package adapter

import (
	"context"
	"slices"
)

// EventCaptureCompleted is the event_type of CaptureCompletedEvent.
const EventCaptureCompleted = "capture_completed"

// Bounds is the coordinate rectangle covered by a captured pool.
type Bounds struct {
	MinX int32 `json:"min_x"`
	MaxX int32 `json:"max_x"`
	MinZ int32 `json:"min_z"`
	MaxZ int32 `json:"max_z"`
}

// Coord is one captured chunk position.
type Coord struct {
	X int32
	Z int32
}

// BoundsOf returns the rectangle enclosing coords, or nil when empty.
func BoundsOf(coords []Coord) *Bounds {
	if len(coords) == 0 {
		return nil
	}
	b := &Bounds{MinX: coords[0].X, MaxX: coords[0].X, MinZ: coords[0].Z, MaxZ: coords[0].Z}
	for _, c := range coords[1:] {
		b.MinX = min(b.MinX, c.X)
		b.MaxX = max(b.MaxX, c.X)
		b.MinZ = min(b.MinZ, c.Z)
		b.MaxZ = max(b.MaxZ, c.Z)
	}
	return b
}

// CaptureCompletedEvent is the payload published when a capture run finishes.
type CaptureCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"`
	RunID           string `json:"run_id"`
	Target          string `json:"target"` // host:port
	Outcome         string `json:"outcome"`
	StopReason      string `json:"stop_reason"`
	// PoolChanged is true when the files under PoolDir were replaced.
	// A no_templates or persist_error run leaves the previous pool in place.
	PoolChanged bool     `json:"pool_changed"`
	PoolDir     string   `json:"pool_dir"`
	Files       []string `json:"files,omitempty"`
	Bounds      *Bounds  `json:"bounds,omitempty"`
	MirrorPath  string   `json:"mirror_path,omitempty"`
	Threshold   int32    `json:"compression_threshold,omitempty"`
	Timestamp   string   `json:"timestamp"` // RFC 3339
	Captured    int      `json:"captured"`
	TargetCount int      `json:"target_count"`
	DurationMs  int64    `json:"duration_ms"`
}

// HasFile reports whether name is one of the pool files the run wrote.
func (e *CaptureCompletedEvent) HasFile(name string) bool {
	return slices.Contains(e.Files, name)
}

// Adapter publishes capture completion events to a downstream system.
type Adapter interface {
	// Publish delivers the event. Must respect context cancellation.
	Publish(ctx context.Context, event *CaptureCompletedEvent) error

	Close() error
}
