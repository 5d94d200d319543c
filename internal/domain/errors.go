package domain

import "errors"

var (
	// ErrSourceUnavailable marks a connector that exhausted its retries.
	// It fails that source only; the run continues with the others.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrUnknownSource is returned when a request names a source ID no
	// connector is registered for. This is caller input, not a system fault.
	ErrUnknownSource = errors.New("unknown source")

	// ErrScoringFailed marks an item the scorer could not produce a score
	// for (empty or non-lexical text). The item is excluded from numeric
	// aggregates and counted as skipped.
	ErrScoringFailed = errors.New("scoring failed")

	// ErrDuplicateRejected is the expected dedup outcome, not a failure.
	ErrDuplicateRejected = errors.New("duplicate rejected")

	// ErrRunCancelled marks a caller-initiated cancellation.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrStoreWriteConflict is a concurrent update race on a TimeBucket.
	// Stores retry the fold against the latest read; it never reaches the
	// caller.
	ErrStoreWriteConflict = errors.New("store write conflict")

	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunTerminal is returned when trying to mutate a finished run.
	ErrRunTerminal = errors.New("run already terminal")
)
