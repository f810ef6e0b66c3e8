package completion

import "errors"

var (
	// ErrStaleVersion means the handle refers to an enumeration that has
	// since been replaced, or to a candidate that snapshot never had.
	ErrStaleVersion = errors.New("stale completion version")
	// ErrEnumeration wraps failures of a candidate engine.
	ErrEnumeration = errors.New("candidate enumeration failed")
	// ErrSimulation wraps failures while inserting a candidate or stepping
	// its template in the synthetic buffer.
	ErrSimulation = errors.New("insertion simulation failed")
	// ErrDiffInconsistency means the computed edits do not reproduce the
	// simulated document or could not be rearranged.
	ErrDiffInconsistency = errors.New("diff inconsistency")
	// ErrCancelled means the request was cancelled before a result existed.
	ErrCancelled = errors.New("resolution cancelled")
	// ErrEmptyDiff means the simulated insertion did not change the
	// document, so there is nothing to resolve.
	ErrEmptyDiff = errors.New("insertion produced no changes")
)
