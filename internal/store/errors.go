package store

import (
	"errors"
	"fmt"
)

// PersistenceError wraps any failure of a Message Store operation: connection
// loss, constraint violations, bad input. Callers decide how to react (the
// load path degrades to empty state, the send path propagates it upward) but
// a store failure is never silently dropped.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistenceError reports whether err is (or wraps) a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
