package smr

import (
	"github.com/dgryski/go-farm"
	"github.com/google/uuid"
)

// Addresses returned by a commit. Non-negative values are durable log
// positions. The negative values are local sentinels, except RejectedAddress
// which is what the sequencer answers when the conflict check fails.
const (
	// RejectedAddress is the sequencer's answer to a conflicting commit.
	RejectedAddress int64 = -1
	// FoldedAddress reports a nested transaction merged into its parent.
	FoldedAddress int64 = -2
	// NoWriteAddress reports a read-only transaction that never reached the log.
	NoWriteAddress int64 = -3
	// AbortedAddress reports a commit attempt that was rejected or failed.
	AbortedAddress int64 = -4
	// UncommittedAddress marks a context whose commit has not resolved yet.
	UncommittedAddress int64 = -5
)

// Hook is an optional side-effect callback invoked by the ordering service
// around an accepted append. Hooks have no bearing on the conflict decision.
type Hook func(addr int64)

// Fingerprint reduces an application conflict key to the 64-bit form carried
// in conflict descriptors and kept in the sequencer's conflict table.
func Fingerprint(key []byte) uint64 {
	return farm.Fingerprint64(key)
}

// ConflictDescriptor describes one commit attempt to the sequencer: the
// snapshot the transaction read from and, per stream, the fingerprints of the
// conflict keys it read and wrote. The sequencer rejects the commit if any
// record appended after SnapshotTimestamp wrote a key appearing in either set
// on the same stream. Under the write-after-write strategy both sets are
// populated from the write set and the descriptor says nothing about reads.
type ConflictDescriptor struct {
	SnapshotTimestamp int64
	ReadKeys          map[uuid.UUID][]uint64
	WriteKeys         map[uuid.UUID][]uint64
}
