package fetch

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Transient upstream errors
// The boundary type all adapters return
// ---------------------------------------------------------------------------

// TransientError marks an upstream call that failed in a way the pipeline
// absorbs instead of aborting on: the orchestrator substitutes defaults for
// the fields that call would have filled and keeps the cycle going.
type TransientError struct {
	Op  string // failed operation, e.g. "bitquery.fast_stats"
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the given operation.
// Returns nil when err is nil so adapters can wrap unconditionally.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err, or anything it wraps, is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Op extracts the operation name from a TransientError chain, or "" if the
// error is not transient.
func Op(err error) string {
	var te *TransientError
	if errors.As(err, &te) {
		return te.Op
	}
	return ""
}
