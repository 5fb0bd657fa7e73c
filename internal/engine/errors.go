package engine

import "errors"

// ErrChallengeNotFound is returned by CheckSolution when no pending
// challenge exists for the given uniq-key, per spec.md §4.3 and the
// EngineError::ChallengeNotFound taxonomy entry in spec.md §7.
var ErrChallengeNotFound = errors.New("engine: challenge not found")
