package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptRecord matches every *EncodingError
	ErrCorruptRecord = errors.New("corrupt ledger record")

	ErrUnknownUser      = errors.New("unknown user")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrKeyCollision     = errors.New("could not allocate a unique ledger key")
)

// EncodingError reports a stored record that cannot be decoded or that is
// filed under a key it does not belong to. Reads stop at the first one
// rather than skip it, because a skipped record would yield a wrong balance.
type EncodingError struct {
	Key string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("corrupt ledger record %q: %v", e.Key, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrCorruptRecord }
