package txn

import (
	"github.com/google/uuid"

	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// Strategy is the commit behavior of a transactional context. The control
// flow of a commit is shared; a strategy decides only what the conflict
// descriptor says, whether reads are tracked at all, and which streams the
// sequencer treats as affected.
type Strategy interface {
	Name() string
	// TracksReads reports whether AddToReadSet records anything.
	TracksReads() bool
	// SnapshotAtBegin pins the snapshot when the transaction begins rather
	// than lazily at first use.
	SnapshotAtBegin() bool
	// BuildDescriptor builds the conflict-resolution information sent with
	// one commit attempt.
	BuildDescriptor(c *Context, snapshot int64) *smr.ConflictDescriptor
	// AffectedStreams names the streams the commit touches.
	AffectedStreams(c *Context) []uuid.UUID
}
