// Package errs declares the engine's abstract error kinds (spec.md §7).
// Call sites wrap these with fmt.Errorf("...: %w", ErrX) and callers
// unwrap with errors.Is.
package errs

import "errors"

var (
	// ErrAdmissionDenied means a task was rejected at admission time:
	// sandbox blocked, or a resource cap already exhausted.
	ErrAdmissionDenied = errors.New("admission denied")

	// ErrSubprocessFailure means an agent process exited non-zero or
	// could not be spawned at all.
	ErrSubprocessFailure = errors.New("subprocess failure")

	// ErrTimeout means a per-agent or per-task wall-clock deadline
	// elapsed. Callers treat this as ErrSubprocessFailure after
	// killing the process and emitting a synthetic timeout event.
	ErrTimeout = errors.New("timeout")

	// ErrSidechannelAuth means a sidechannel request carried a missing
	// or mismatched shared token.
	ErrSidechannelAuth = errors.New("sidechannel authentication failed")

	// ErrClientResourceLimit means a caller-visible cap was hit (too
	// many pending questions, too many agents for a task).
	ErrClientResourceLimit = errors.New("resource limit exceeded")

	// ErrInvalidRequest means the request itself is malformed
	// independent of how busy the engine is (a field over its own
	// fixed size limit, not a shared capacity cap).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMissingCollaborator means the agent binary or sidechannel
	// binary could not be found on PATH. Admission-level
	// ErrSubprocessFailure: terminal for the task.
	ErrMissingCollaborator = errors.New("missing collaborator binary")

	// ErrNotFound means a referenced entity (agent, question, task)
	// is unknown to the engine.
	ErrNotFound = errors.New("not found")
)
