package txn

import (
	"github.com/google/uuid"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// LogClient is the ordering-service surface the engine needs: the current
// tail for snapshots, and the single atomic call that both resolves conflicts
// against the descriptor and appends the batch if accepted. AcquireAndWrite
// answers RejectedAddress when the conflict check fails. Timeouts and retries
// of the transport live behind this interface, not in the engine.
type LogClient interface {
	Tail() (int64, error)
	AcquireAndWrite(streams []uuid.UUID, batch *smr.UpdateBatch, pre, post smr.Hook,
		desc *smr.ConflictDescriptor) (int64, error)
}

// Coordinator performs the one synchronous round trip of a commit attempt and
// interprets the answer. It never retries: a rejection or a transport failure
// is surfaced as ErrAborted and retry policy belongs to the caller, with a
// fresh context.
type Coordinator struct {
	client LogClient
	pre    smr.Hook
	post   smr.Hook
}

func NewCoordinator(client LogClient) *Coordinator {
	return &Coordinator{client: client}
}

// SetHooks installs the pre/post append callbacks passed along with every
// submission.
func (co *Coordinator) SetHooks(pre, post smr.Hook) {
	co.pre = pre
	co.post = post
}

// Tail asks the ordering service for the current tail position.
func (co *Coordinator) Tail() (int64, error) {
	tail, err := co.client.Tail()
	return tail, errors.Trace(err)
}

// Submit sends one conditional append. It returns the assigned durable
// position, or ErrAborted if the sequencer rejected the commit or the round
// trip failed. A transport failure counts as a rejection: without an explicit
// success the engine must assume nothing was appended.
func (co *Coordinator) Submit(streams []uuid.UUID, batch *smr.UpdateBatch,
	desc *smr.ConflictDescriptor) (int64, error) {
	addr, err := co.client.AcquireAndWrite(streams, batch, co.pre, co.post, desc)
	if err != nil {
		log.Warnf("commit round trip failed, treating as rejection: %v", err)
		return smr.AbortedAddress, errors.Annotatef(ErrAborted, "ordering service failure: %v", err)
	}
	if addr == smr.RejectedAddress {
		log.Debugf("commit rejected by sequencer, snapshot ts=%d", desc.SnapshotTimestamp)
		return smr.AbortedAddress, errors.Annotatef(ErrAborted,
			"conflicting append after snapshot ts=%d", desc.SnapshotTimestamp)
	}
	return addr, nil
}
