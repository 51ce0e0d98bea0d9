// Package errs collects the submitter's error conditions. Conditions with
// no payload are sentinel values; conditions that carry context are
// constructor functions returning a wrapped error, built on
// github.com/pkg/errors so every wrapped error keeps a stack trace back to
// the call that first observed the failure.
package errs

import (
	"github.com/pkg/errors"
)

// ========== queue / dispatch ==========

var (
	// ErrActorQueueNotFound is returned when an operation names an actor
	// that AddActorQueue was never called for.
	ErrActorQueueNotFound = errors.New("actor queue not found")
	// ErrTaskNotInFlight names the condition of a reply or disconnect
	// flush for a task no longer tracked as in-flight. The reply handler's
	// dedup guard drops such replies silently and does not return it.
	ErrTaskNotInFlight = errors.New("task is not in-flight")
	// ErrQueueCanceled names the condition of a canceled task reaching
	// the front of the submit queue. The queues remove canceled entries
	// outright, so no path in this module returns it.
	ErrQueueCanceled = errors.New("task entry is canceled")
	// ErrSchedulingCancelled is the transport error a push_actor_task
	// callback reports when the receiver's scheduler discarded the task
	// before running it (spec.md §4.5 point 3), distinct from a generic
	// transport failure: it always resolves to TASK_CANCELLED, never a
	// retry or a death-info stash.
	ErrSchedulingCancelled = errors.New("scheduling was cancelled")
)

func ErrStaleGeneration(actorID string, have, got uint64) error {
	return errors.Errorf("actor %s: stale restart generation %d (current %d)", actorID, got, have)
}

func ErrUnexpectedState(actorID string, state string) error {
	return errors.Errorf("actor %s: unexpected state %s", actorID, state)
}

// ========== collaborators ==========

func ErrDependencyResolution(taskID string, cause error) error {
	return errors.Wrapf(cause, "task %s: dependency resolution failed", taskID)
}

func ErrCreateActorFailed(actorID string, cause error) error {
	return errors.Wrapf(cause, "actor %s: create_actor failed", actorID)
}

func ErrConnectFailed(actorID string, cause error) error {
	return errors.Wrapf(cause, "actor %s: connect failed", actorID)
}

func ErrRestartForLineageFailed(actorID string, cause error) error {
	return errors.Wrapf(cause, "actor %s: lineage-reconstruction restart failed", actorID)
}

// ========== config ==========

func ErrReadConfigFileFailed(cause error) error {
	return errors.Wrap(cause, "read config file failed")
}

func ErrUnmarshalConfigFailed(cause error) error {
	return errors.Wrap(cause, "unmarshal config failed")
}

// ========== transport ==========

var (
	ErrClientClosed    = errors.New("rpc client is closed")
	ErrPoolShuttingDown = errors.New("rpc client pool is shutting down")
)

func ErrDialFailed(addr string, cause error) error {
	return errors.Wrapf(cause, "dial %s failed", addr)
}

func ErrEncodeFailed(cause error) error {
	return errors.Wrap(cause, "encode frame failed")
}

func ErrDecodeFailed(cause error) error {
	return errors.Wrap(cause, "decode frame failed")
}

// ========== directory ==========

func ErrDirectoryUnavailable(cause error) error {
	return errors.Wrap(cause, "actor directory unavailable")
}

func ErrPlacerConfigInvalid(reason string) error {
	return errors.Errorf("placer config invalid: %s", reason)
}

func ErrPlacementStrategyNotFound(name string) error {
	return errors.Errorf("placement strategy %q is not registered", name)
}
