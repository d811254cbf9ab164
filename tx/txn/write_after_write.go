package txn

import (
	"github.com/google/uuid"

	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// WriteAfterWrite is the cheaper commit strategy for transactions that only
// need write atomicity. Reads behave as usual but are never tracked, and the
// descriptor's read keys and write keys are both populated from the write
// set, so the sequencer can only ever detect write-write conflicts. The
// isolation guarantee is strictly weaker than Optimistic: concurrent readers
// never abort this transaction and it never aborts them. Atomicity of the
// write set is unchanged.
//
// The snapshot is pinned when the transaction begins, so the conflict window
// covers everything appended after the first operation rather than after the
// first read.
type WriteAfterWrite struct{}

func (WriteAfterWrite) Name() string { return "write-after-write" }

func (WriteAfterWrite) TracksReads() bool { return false }

func (WriteAfterWrite) SnapshotAtBegin() bool { return true }

func (WriteAfterWrite) BuildDescriptor(c *Context, snapshot int64) *smr.ConflictDescriptor {
	writeKeys := c.writeKeys()
	return &smr.ConflictDescriptor{
		SnapshotTimestamp: snapshot,
		ReadKeys:          writeKeys,
		WriteKeys:         writeKeys,
	}
}

// AffectedStreams adds the reserved transaction stream when transaction
// logging is on, so every committed write-after-write transaction is
// independently discoverable by an audit reader.
func (WriteAfterWrite) AffectedStreams(c *Context) []uuid.UUID {
	streams := c.writeStreams()
	if c.scope.cfg.TransactionLogging {
		streams = append(streams, smr.TransactionStreamID)
	}
	return streams
}
