// Package runtime orchestrates a capture run: session, capture loop,
// pool persistence, reporting and post-run hooks.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/chunkprobe/adapter"
	"github.com/justapithecus/chunkprobe/capture"
	"github.com/justapithecus/chunkprobe/lode"
	"github.com/justapithecus/chunkprobe/log"
	"github.com/justapithecus/chunkprobe/metrics"
	"github.com/justapithecus/chunkprobe/pool"
	"github.com/justapithecus/chunkprobe/proto"
	"github.com/justapithecus/chunkprobe/session"
	"github.com/justapithecus/chunkprobe/types"
)

// hookTimeout bounds the mirror and notification steps after a run.
const hookTimeout = 30 * time.Second

// DialFunc opens a message connection. Used for test injection.
type DialFunc func(ctx context.Context, addr string, ioTimeout time.Duration) (*proto.Conn, error)

// CaptureConfig configures a single capture run.
type CaptureConfig struct {
	// Host and Port locate the server.
	Host string
	Port uint16
	// Target is the number of distinct chunks to capture (>= 1).
	Target int
	// Timeout is the overall wall-clock budget from the start of the run.
	Timeout time.Duration
	// IOTimeout bounds each individual read or write. Zero means Timeout.
	IOTimeout time.Duration
	// OutDir is the template pool directory.
	OutDir string
	// Profile holds the protocol constants. Zero value means DefaultProfile.
	Profile *session.Profile
	// RunID identifies the run. Generated when empty.
	RunID string
	// Logger overrides the default stderr logger.
	Logger *log.Logger
	// Collector records run metrics. May be nil.
	Collector *metrics.Collector
	// Dial overrides proto.Dial (for testing).
	Dial DialFunc
	// Mirror, when set, receives a copy of a freshly written pool.
	Mirror lode.Mirror
	// Adapter, when set, is notified once the run is classified.
	Adapter adapter.Adapter
}

// Addr returns host:port.
func (c *CaptureConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Validate checks the configuration.
func (c *CaptureConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port == 0 {
		return errors.New("port must be in 1..65535")
	}
	if c.Target < 1 {
		return fmt.Errorf("target must be >= 1, got %d", c.Target)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %s", c.Timeout)
	}
	if c.IOTimeout < 0 {
		return fmt.Errorf("io timeout must be >= 0, got %s", c.IOTimeout)
	}
	if c.OutDir == "" {
		return errors.New("output directory is required")
	}
	return nil
}

// ConnectError is returned when the server cannot be reached or the opening
// handshake cannot be written. The pool is never touched after one.
type ConnectError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CaptureResult is the result of a capture run.
type CaptureResult struct {
	RunID    string
	Target   string
	Outcome  *types.Outcome
	Duration time.Duration
	// Captured is the number of distinct chunks held at session end.
	Captured    int
	TargetCount int
	// FinalState is the protocol state when the session ended.
	FinalState session.State
	Threshold  int32
	// Pool is nil unless the pool was replaced.
	Pool *pool.Result
	// Mirror is nil unless a mirror was configured and succeeded.
	Mirror *lode.Result
	// Entries are the captured chunks in capture order.
	Entries []capture.Entry
	// Err is the error that ended the session or failed persistence, if any.
	Err error
}

// Capturer runs one capture session end-to-end.
type Capturer struct {
	config  *CaptureConfig
	profile *session.Profile
	logger  *log.Logger
	writer  *pool.Writer
	dial    DialFunc
	now     func() time.Time
	start   time.Time
}

// NewCapturer creates a capturer.
// Returns error if the configuration is invalid.
func NewCapturer(config *CaptureConfig) (*Capturer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if config.IOTimeout == 0 {
		config.IOTimeout = config.Timeout
	}
	if config.RunID == "" {
		config.RunID = uuid.NewString()
	}

	profile := config.Profile
	if profile == nil {
		p := session.DefaultProfile()
		profile = &p
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(log.RunContext{RunID: config.RunID, Target: config.Addr()})
	}

	dial := config.Dial
	if dial == nil {
		dial = proto.Dial
	}

	return &Capturer{
		config:  config,
		profile: profile,
		logger:  logger,
		writer:  pool.NewWriter(config.OutDir),
		dial:    dial,
		now:     time.Now,
	}, nil
}

// RunID returns the run identifier.
func (c *Capturer) RunID() string { return c.config.RunID }

// Execute runs the capture end-to-end.
//
// Execution flow:
//  1. Dial and send the handshake and login-start
//  2. Drive the state machine, capturing distinct chunks in play
//  3. Stop on target, deadline, cancellation or stream failure
//  4. Replace the pool with whatever was captured
//  5. Classify the outcome, then mirror and notify (best effort)
//
// The returned error is reserved for programmer errors; every runtime
// failure is reported through the result's Outcome.
func (c *Capturer) Execute(ctx context.Context) (*CaptureResult, error) {
	c.start = c.now()
	c.config.Collector.IncRunStarted()

	deadline := c.start.Add(c.config.Timeout)
	sess := session.New(deadline, c.config.Target)
	engine := capture.NewEngine(c.config.Target)

	c.logger.Info("starting capture", map[string]any{
		"target_count": c.config.Target,
		"timeout":      c.config.Timeout.String(),
		"io_timeout":   c.config.IOTimeout.String(),
		"outdir":       c.config.OutDir,
	})

	conn, err := c.connect(ctx, sess, deadline)
	if err != nil {
		c.logger.Error("connect failed", map[string]any{"error": err.Error()})
		c.config.Collector.IncRunFailed()
		result := c.buildResult(sess, engine, &types.Outcome{
			Status:  types.OutcomeConnectError,
			Stop:    types.StopNotStarted,
			Message: err.Error(),
		})
		result.Err = err
		return result, nil
	}

	// Closing the connection unblocks a pending read on cancellation.
	stopWatch := context.AfterFunc(ctx, func() { _ = conn.Close() })
	stop, loopErr := c.run(ctx, conn, sess, engine)
	stopWatch()
	_ = conn.Close()

	st := conn.Stats()
	c.config.Collector.AbsorbTransport(st.FramesRead, st.BytesRead, st.CompressedFrames, st.FramesWritten, st.BytesWritten)

	fields := map[string]any{
		"stop_reason": stop,
		"captured":    engine.Len(),
		"duplicates":  engine.Duplicates(),
		"state":       sess.State.String(),
	}
	if loopErr != nil {
		fields["error"] = loopErr.Error()
	}
	switch stop {
	case types.StopTargetReached, types.StopDeadline:
		c.logger.Info("capture stopped", fields)
	default:
		c.logger.Warn("capture interrupted", fields)
	}

	entries := engine.Entries()
	poolRes, persistErr := c.writer.Write(entries)
	switch {
	case persistErr == nil:
		c.config.Collector.RecordPoolWrite(len(poolRes.Files), poolRes.Removed)
		c.logger.Info("pool written", map[string]any{
			"dir":     poolRes.Dir,
			"files":   len(poolRes.Files),
			"removed": poolRes.Removed,
			"bytes":   poolRes.Bytes,
		})
	case errors.Is(persistErr, pool.ErrNoTemplates):
		c.logger.Warn("no templates captured; keeping existing templates unchanged", map[string]any{
			"dir": c.config.OutDir,
		})
	default:
		c.config.Collector.IncPoolWriteFailure()
		c.logger.Error("pool write failed", map[string]any{"error": persistErr.Error()})
	}

	outcome := DetermineOutcome(stop, len(entries), c.config.Target, persistErr)
	c.recordOutcome(outcome)

	result := c.buildResult(sess, engine, outcome)
	result.Pool = poolRes
	result.Err = loopErr
	if persistErr != nil && !errors.Is(persistErr, pool.ErrNoTemplates) {
		result.Err = persistErr
	}

	if poolRes != nil {
		result.Mirror = c.mirror(ctx, entries, poolRes)
	}
	c.publish(ctx, result)

	c.logger.Info("capture completed", map[string]any{
		"outcome":     outcome.Status,
		"stop_reason": outcome.Stop,
		"captured":    result.Captured,
		"duration":    result.Duration.String(),
	})
	return result, nil
}

// connect dials the server and writes the opening messages.
func (c *Capturer) connect(ctx context.Context, sess *session.Session, deadline time.Time) (*proto.Conn, error) {
	addr := c.config.Addr()

	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	conn, err := c.dial(dialCtx, addr, c.config.IOTimeout)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Op: "dial", Err: err}
	}
	conn.SetSessionDeadline(deadline)

	from := sess.State
	for _, p := range sess.Begin(c.profile, c.config.Port) {
		if err := conn.WriteMessage(p); err != nil {
			_ = conn.Close()
			return nil, &ConnectError{Addr: addr, Op: "handshake", Err: err}
		}
	}
	c.transition(from, sess.State)
	return conn, nil
}

// run is the capture loop. It returns the stop reason and the error that
// ended the session, if any.
func (c *Capturer) run(ctx context.Context, conn *proto.Conn, sess *session.Session, engine *capture.Engine) (types.StopReason, error) {
	for {
		if engine.Done() {
			return types.StopTargetReached, nil
		}
		if err := ctx.Err(); err != nil {
			return types.StopCanceled, err
		}
		if sess.Expired(c.now()) {
			return types.StopDeadline, nil
		}

		msg, err := conn.ReadMessage()
		if err != nil {
			return c.classify(ctx, sess, err), err
		}

		from := sess.State
		t := sess.Apply(c.profile, msg)
		if t.EnableCompression {
			conn.Codec().Enable(t.Threshold)
			c.logger.Info("compression enabled", map[string]any{"threshold": t.Threshold})
		}
		if t.Next != from {
			c.transition(from, t.Next)
		}
		if !t.Handled {
			c.config.Collector.IncMessageIgnored()
			c.logger.Debug("ignoring message", map[string]any{
				"state": from.String(),
				"id":    fmt.Sprintf("0x%02X", msg.ID),
				"bytes": len(msg.Body),
			})
		}

		for _, reply := range t.Replies {
			if err := conn.WriteMessage(reply); err != nil {
				return c.classify(ctx, sess, err), err
			}
		}

		if t.Capture {
			c.offer(engine, msg.Body)
		}
	}
}

func (c *Capturer) offer(engine *capture.Engine, body []byte) {
	c.config.Collector.IncChunkSeen()
	entry, added := engine.Offer(body)
	if !added {
		c.config.Collector.IncChunkDuplicate()
		key, _ := capture.ChunkKey(body)
		c.logger.Debug("duplicate chunk", map[string]any{"x": key.X, "z": key.Z})
		return
	}
	c.config.Collector.IncChunkCaptured()
	c.logger.Debug("captured chunk", map[string]any{
		"x":        entry.X,
		"z":        entry.Z,
		"bytes":    len(entry.Body),
		"captured": engine.Len(),
	})
}

func (c *Capturer) transition(from, to session.State) {
	c.config.Collector.IncStateTransition()
	c.logger.Info("state transition", map[string]any{
		"from": from.String(),
		"to":   to.String(),
	})
}

// classify maps a session-ending error to a stop reason. A timeout at or
// past the session deadline is the deadline, not a connection failure.
func (c *Capturer) classify(ctx context.Context, sess *session.Session, err error) types.StopReason {
	if ctx.Err() != nil {
		return types.StopCanceled
	}
	return ClassifyStop(err, sess.Expired(c.now()))
}

// mirror copies a freshly written pool into the configured mirror.
// Failures are warnings only.
func (c *Capturer) mirror(ctx context.Context, entries []capture.Entry, res *pool.Result) *lode.Result {
	if c.config.Mirror == nil {
		return nil
	}

	files := make([]lode.File, len(entries))
	for i, e := range entries {
		files[i] = lode.File{Name: res.Files[i], X: e.X, Z: e.Z, Data: e.Body}
	}

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
	defer cancel()
	mres, err := c.config.Mirror.PutPool(mctx, files)
	if err != nil {
		c.config.Collector.IncMirrorPutFailure()
		c.logger.Warn("pool mirror failed", map[string]any{"error": err.Error()})
		return nil
	}
	c.config.Collector.IncMirrorPutSuccess()
	c.logger.Info("pool mirrored", map[string]any{
		"prefix": mres.Prefix,
		"files":  mres.Files,
	})
	return mres
}

// publish notifies the configured adapter. Failures are warnings only.
func (c *Capturer) publish(ctx context.Context, result *CaptureResult) {
	if c.config.Adapter == nil {
		return
	}

	event := BuildEvent(result, c.config.OutDir, c.now())
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
	defer cancel()
	if err := c.config.Adapter.Publish(pctx, event); err != nil {
		c.config.Collector.IncPublishFailure()
		c.logger.Warn("completion notification failed", map[string]any{"error": err.Error()})
		return
	}
	c.config.Collector.IncPublishSuccess()
}

func (c *Capturer) recordOutcome(outcome *types.Outcome) {
	switch outcome.Status {
	case types.OutcomeSuccess:
		c.config.Collector.IncRunSucceeded()
	case types.OutcomeUnderTarget:
		c.config.Collector.IncRunUnderTarget()
	default:
		c.config.Collector.IncRunFailed()
	}
}

func (c *Capturer) buildResult(sess *session.Session, engine *capture.Engine, outcome *types.Outcome) *CaptureResult {
	return &CaptureResult{
		RunID:       c.config.RunID,
		Target:      c.config.Addr(),
		Outcome:     outcome,
		Duration:    c.now().Sub(c.start),
		Captured:    engine.Len(),
		TargetCount: c.config.Target,
		FinalState:  sess.State,
		Threshold:   sess.Threshold,
		Entries:     engine.Entries(),
	}
}

// BuildEvent composes the completion event for a result.
func BuildEvent(result *CaptureResult, poolDir string, now time.Time) *adapter.CaptureCompletedEvent {
	event := &adapter.CaptureCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventCaptureCompleted,
		RunID:           result.RunID,
		Target:          result.Target,
		Outcome:         string(result.Outcome.Status),
		StopReason:      string(result.Outcome.Stop),
		PoolDir:         poolDir,
		Threshold:       result.Threshold,
		Timestamp:       now.UTC().Format(time.RFC3339),
		Captured:        result.Captured,
		TargetCount:     result.TargetCount,
		DurationMs:      result.Duration.Milliseconds(),
	}
	if result.Pool != nil {
		event.PoolChanged = true
		event.PoolDir = result.Pool.Dir
		event.Files = result.Pool.Files
		coords := make([]adapter.Coord, len(result.Entries))
		for i, e := range result.Entries {
			coords[i] = adapter.Coord{X: e.X, Z: e.Z}
		}
		event.Bounds = adapter.BoundsOf(coords)
	}
	if result.Mirror != nil {
		event.MirrorPath = result.Mirror.Prefix
	}
	return event
}
