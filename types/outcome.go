// Package types defines the outcome vocabulary shared by the runtime, CLI and adapters.
//
//nolint:revive // types is a common Go package naming convention
package types

// OutcomeStatus is the final classification of a capture run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the target count was captured and persisted.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeUnderTarget indicates fewer templates than the target were persisted.
	OutcomeUnderTarget OutcomeStatus = "under_target"
	// OutcomeNoTemplates indicates nothing was captured; the pool is untouched.
	OutcomeNoTemplates OutcomeStatus = "no_templates"
	// OutcomeConnectError indicates the server could not be reached; the pool is untouched.
	OutcomeConnectError OutcomeStatus = "connect_error"
	// OutcomePersistError indicates the pool could not be written.
	OutcomePersistError OutcomeStatus = "persist_error"
)

// StopReason records why the capture loop ended.
type StopReason string

const (
	// StopTargetReached means the capture list reached the target size.
	StopTargetReached StopReason = "target_reached"
	// StopDeadline means the session deadline elapsed.
	StopDeadline StopReason = "deadline"
	// StopConnectionClosed means the server closed the stream.
	StopConnectionClosed StopReason = "connection_closed"
	// StopFramingError means a frame or message could not be parsed.
	StopFramingError StopReason = "framing_error"
	// StopDecompressionError means a compressed message failed to inflate.
	StopDecompressionError StopReason = "decompression_error"
	// StopConnectionError means a read or write failed for any other reason.
	StopConnectionError StopReason = "connection_error"
	// StopCanceled means the run context was canceled.
	StopCanceled StopReason = "canceled"
	// StopNotStarted means the session never reached the capture loop.
	StopNotStarted StopReason = "not_started"
)

// Outcome is the final outcome of a capture run.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Stop    StopReason    `json:"stop_reason"`
	Message string        `json:"message"`
}
