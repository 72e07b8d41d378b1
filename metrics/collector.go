// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single capture run. It is a
// leaf package with no internal dependencies. Transport counters are absorbed
// from the connection at session end rather than recorded per frame.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
type Snapshot struct {
	// Run lifecycle
	RunsStarted     int64 `json:"runs_started"`
	RunsSucceeded   int64 `json:"runs_succeeded"`
	RunsUnderTarget int64 `json:"runs_under_target"`
	RunsFailed      int64 `json:"runs_failed"`

	// Transport (absorbed from the connection)
	FramesRead       int64 `json:"frames_read"`
	BytesRead        int64 `json:"bytes_read"`
	CompressedFrames int64 `json:"compressed_frames"`
	FramesWritten    int64 `json:"frames_written"`
	BytesWritten     int64 `json:"bytes_written"`

	// Protocol
	StateTransitions int64 `json:"state_transitions"`
	MessagesIgnored  int64 `json:"messages_ignored"`

	// Capture
	ChunksSeen      int64 `json:"chunks_seen"`
	ChunksCaptured  int64 `json:"chunks_captured"`
	ChunksDuplicate int64 `json:"chunks_duplicate"`
	ChunksRejected  int64 `json:"chunks_rejected"`

	// Pool
	PoolWriteSuccess int64 `json:"pool_write_success"`
	PoolWriteFailure int64 `json:"pool_write_failure"`
	TemplatesWritten int64 `json:"templates_written"`
	TemplatesRemoved int64 `json:"templates_removed"`

	// Mirror / notification
	MirrorPutSuccess int64 `json:"mirror_put_success"`
	MirrorPutFailure int64 `json:"mirror_put_failure"`
	PublishSuccess   int64 `json:"publish_success"`
	PublishFailure   int64 `json:"publish_failure"`

	// Dimensions (informational, set at construction)
	Target string `json:"target"`
	OutDir string `json:"outdir"`
	RunID  string `json:"run_id"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(target, outDir, runID string) *Collector {
	return &Collector{s: Snapshot{Target: target, OutDir: outDir, RunID: runID}}
}

func (c *Collector) add(f func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	f(&c.s)
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() { c.add(func(s *Snapshot) { s.RunsStarted++ }) }

// IncRunSucceeded records a run that persisted the full target.
func (c *Collector) IncRunSucceeded() { c.add(func(s *Snapshot) { s.RunsSucceeded++ }) }

// IncRunUnderTarget records a run that persisted fewer templates than targeted.
func (c *Collector) IncRunUnderTarget() { c.add(func(s *Snapshot) { s.RunsUnderTarget++ }) }

// IncRunFailed records a run that persisted nothing.
func (c *Collector) IncRunFailed() { c.add(func(s *Snapshot) { s.RunsFailed++ }) }

// --- Protocol ---

// IncStateTransition records a protocol state change.
func (c *Collector) IncStateTransition() { c.add(func(s *Snapshot) { s.StateTransitions++ }) }

// IncMessageIgnored records an inbound message that triggered nothing.
func (c *Collector) IncMessageIgnored() { c.add(func(s *Snapshot) { s.MessagesIgnored++ }) }

// --- Capture ---

// IncChunkSeen records a candidate chunk message.
func (c *Collector) IncChunkSeen() { c.add(func(s *Snapshot) { s.ChunksSeen++ }) }

// IncChunkCaptured records a newly captured coordinate.
func (c *Collector) IncChunkCaptured() { c.add(func(s *Snapshot) { s.ChunksCaptured++ }) }

// IncChunkDuplicate records a chunk discarded as already seen.
func (c *Collector) IncChunkDuplicate() { c.add(func(s *Snapshot) { s.ChunksDuplicate++ }) }

// IncChunkRejected records a chunk body too short to key.
func (c *Collector) IncChunkRejected() { c.add(func(s *Snapshot) { s.ChunksRejected++ }) }

// --- Pool ---

// RecordPoolWrite records a successful pool swap.
func (c *Collector) RecordPoolWrite(written, removed int) {
	c.add(func(s *Snapshot) {
		s.PoolWriteSuccess++
		s.TemplatesWritten += int64(written)
		s.TemplatesRemoved += int64(removed)
	})
}

// IncPoolWriteFailure records a failed pool write.
func (c *Collector) IncPoolWriteFailure() { c.add(func(s *Snapshot) { s.PoolWriteFailure++ }) }

// --- Mirror / notification ---
// Mirror counters are per-object: each template and the manifest count once.

// IncMirrorPutSuccess records a successful mirror object write.
func (c *Collector) IncMirrorPutSuccess() { c.add(func(s *Snapshot) { s.MirrorPutSuccess++ }) }

// IncMirrorPutFailure records a failed mirror object write.
func (c *Collector) IncMirrorPutFailure() { c.add(func(s *Snapshot) { s.MirrorPutFailure++ }) }

// IncPublishSuccess records a delivered completion event.
func (c *Collector) IncPublishSuccess() { c.add(func(s *Snapshot) { s.PublishSuccess++ }) }

// IncPublishFailure records a completion event that could not be delivered.
func (c *Collector) IncPublishFailure() { c.add(func(s *Snapshot) { s.PublishFailure++ }) }

// --- Transport (absorbed) ---

// AbsorbTransport copies connection counters into the collector.
// Called once when the session's connection closes.
func (c *Collector) AbsorbTransport(framesRead, bytesRead, compressed, framesWritten, bytesWritten int64) {
	c.add(func(s *Snapshot) {
		s.FramesRead = framesRead
		s.BytesRead = bytesRead
		s.CompressedFrames = compressed
		s.FramesWritten = framesWritten
		s.BytesWritten = bytesWritten
	})
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
