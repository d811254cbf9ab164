package txn

import (
	"github.com/pingcap/errors"
)

// ErrAborted is the terminal failure of a commit attempt. It covers both a
// sequencer rejection (conflicting keys appended after the snapshot) and a
// transport failure, which is treated as a rejection for safety. None of the
// transaction's writes are visible to any reader; the caller must open a new
// context to retry.
var ErrAborted = errors.New("transaction aborted")

// IsAborted reports whether err is a transaction abort, however annotated.
func IsAborted(err error) bool {
	return errors.Cause(err) == ErrAborted
}
