package scanning

import (
	"errors"
	"fmt"
)

// Terminal object-retrieval errors. These map directly to skipped or failed
// outcomes and are never retried.
var (
	// ErrObjectNotFound indicates the referenced object no longer exists.
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectTooLarge indicates the object exceeds the configured size
	// ceiling.
	ErrObjectTooLarge = errors.New("object exceeds size ceiling")

	// ErrUnsupportedType indicates the object's extension is not in the
	// scan allowlist.
	ErrUnsupportedType = errors.New("object type not supported for scanning")
)

// Repository sentinel errors.
var (
	// ErrNoProgressFound indicates no progress row exists for the job.
	ErrNoProgressFound = errors.New("no job progress found")
)

// TransientError wraps connectivity and throttling faults that are safe to
// retry with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// PersistError wraps a result-writer failure that exhausted its retries. The
// batch processor downgrades it to a failed(persist_error) outcome so the
// poller can route the message through the requeue path.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist: %v", e.Err) }

func (e *PersistError) Unwrap() error { return e.Err }

// IsPersistError reports whether err is (or wraps) a PersistError.
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}
