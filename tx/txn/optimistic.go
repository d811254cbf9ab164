package txn

import (
	"github.com/google/uuid"

	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// Optimistic is the general-purpose commit strategy. Reads are tracked at
// conflict-key granularity, and the sequencer rejects the commit if anything
// appended after the snapshot wrote a key this transaction read (read-write
// conflict) or wrote (write-write conflict).
type Optimistic struct{}

func (Optimistic) Name() string { return "optimistic" }

func (Optimistic) TracksReads() bool { return true }

func (Optimistic) SnapshotAtBegin() bool { return false }

func (Optimistic) BuildDescriptor(c *Context, snapshot int64) *smr.ConflictDescriptor {
	return &smr.ConflictDescriptor{
		SnapshotTimestamp: snapshot,
		ReadKeys:          c.readKeys(),
		WriteKeys:         c.writeKeys(),
	}
}

func (Optimistic) AffectedStreams(c *Context) []uuid.UUID {
	return c.writeStreams()
}
