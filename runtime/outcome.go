package runtime

import (
	"errors"
	"fmt"
	"os"

	"github.com/justapithecus/chunkprobe/pool"
	"github.com/justapithecus/chunkprobe/proto"
	"github.com/justapithecus/chunkprobe/types"
)

// Exit codes returned by the capture command.
const (
	ExitCodeSuccess      = 0 // success, under_target or no_templates
	ExitCodeConnectError = 2 // server unreachable, pool untouched
	ExitCodePersistError = 3 // pool could not be written
)

// ExitCode maps an outcome status to the process exit code.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess, types.OutcomeUnderTarget, types.OutcomeNoTemplates:
		// An empty capture keeps the previous pool, which is still usable.
		return ExitCodeSuccess
	case types.OutcomeConnectError:
		return ExitCodeConnectError
	default:
		return ExitCodePersistError
	}
}

// ClassifyStop maps the error that ended a session to a stop reason.
// expired reports whether the session deadline had passed when the error
// surfaced; a timeout in that case is the deadline itself.
func ClassifyStop(err error, expired bool) types.StopReason {
	var (
		frameErr *proto.FrameError
		compErr  *proto.CompressionError
	)

	switch {
	case err == nil:
		return types.StopTargetReached
	case expired && errors.Is(err, os.ErrDeadlineExceeded):
		return types.StopDeadline
	case proto.IsClosed(err):
		return types.StopConnectionClosed
	case errors.As(err, &compErr):
		return types.StopDecompressionError
	case errors.Is(err, proto.ErrMalformedMessage):
		return types.StopFramingError
	case errors.As(err, &frameErr) && frameErr.Kind != proto.FrameErrorIO:
		return types.StopFramingError
	default:
		return types.StopConnectionError
	}
}

// DetermineOutcome classifies a finished session.
//
// Outcome mapping:
//   - nothing captured: no_templates (pool untouched)
//   - pool write failed: persist_error
//   - captured >= target: success
//   - otherwise: under_target (the partial pool is kept)
func DetermineOutcome(stop types.StopReason, captured, target int, persistErr error) *types.Outcome {
	switch {
	case captured == 0 || errors.Is(persistErr, pool.ErrNoTemplates):
		return &types.Outcome{
			Status:  types.OutcomeNoTemplates,
			Stop:    stop,
			Message: "no templates captured; keeping existing templates unchanged",
		}
	case persistErr != nil:
		return &types.Outcome{
			Status:  types.OutcomePersistError,
			Stop:    stop,
			Message: fmt.Sprintf("failed to write templates: %v", persistErr),
		}
	case captured >= target:
		return &types.Outcome{
			Status:  types.OutcomeSuccess,
			Stop:    stop,
			Message: fmt.Sprintf("captured %d templates", captured),
		}
	default:
		return &types.Outcome{
			Status:  types.OutcomeUnderTarget,
			Stop:    stop,
			Message: fmt.Sprintf("captured %d of %d templates (%s)", captured, target, stop),
		}
	}
}
