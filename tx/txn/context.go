// Package txn is the transactional commit engine. A Context accumulates a
// read set and a write set while a transaction is open; commit resolves
// conflicts and obtains a durable log position in a single round trip to the
// sequencer, through the strategy chosen when the transaction began.
package txn

import (
	"sync"

	"github.com/google/uuid"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"

	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// pendingWrites is one stream's slice of the write set: the queued records in
// arrival order and the distinct fingerprints of the conflict keys they write.
type pendingWrites struct {
	recs []*smr.UpdateRecord
	keys map[uint64]struct{}
}

// Context tracks one open transaction. A context belongs to exactly one
// logical execution and must not be mutated concurrently; independent
// transactions are independent contexts that only meet inside the sequencer.
// Both sets are append-only while the transaction is open and are never
// mutated once commit begins. A context is never reused after commit or abort.
type Context struct {
	strategy Strategy
	scope    *Scope
	parent   *Context

	snapshot    int64
	snapshotSet bool

	reads   map[uuid.UUID]map[uint64]struct{}
	order   []uuid.UUID
	writes  map[uuid.UUID]*pendingWrites
	proxies map[uuid.UUID]smr.Proxy

	commitAddress *atomic.Int64
	aborted       *atomic.Bool
	done          chan struct{}
	completeOnce  sync.Once
	finished      bool
}

func newContext(scope *Scope, strategy Strategy, parent *Context) *Context {
	return &Context{
		strategy:      strategy,
		scope:         scope,
		parent:        parent,
		reads:         make(map[uuid.UUID]map[uint64]struct{}),
		writes:        make(map[uuid.UUID]*pendingWrites),
		proxies:       make(map[uuid.UUID]smr.Proxy),
		commitAddress: atomic.NewInt64(smr.UncommittedAddress),
		aborted:       atomic.NewBool(false),
		done:          make(chan struct{}),
	}
}

// Strategy reports which commit strategy the context was opened with.
func (c *Context) Strategy() Strategy {
	return c.strategy
}

// AddToReadSet records that the transaction observed the given fine-grained
// conflict keys on the proxy's stream. Under a strategy that does not track
// reads this is a no-op.
func (c *Context) AddToReadSet(p smr.Proxy, keys ...[]byte) {
	if !c.strategy.TracksReads() {
		return
	}
	c.pinSnapshot()
	stream := p.StreamID()
	set, ok := c.reads[stream]
	if !ok {
		set = make(map[uint64]struct{})
		c.reads[stream] = set
	}
	for _, key := range keys {
		set[smr.Fingerprint(key)] = struct{}{}
	}
}

// AddToWriteSet appends rec to the stream's pending list, tagged with the
// conflict keys the record writes, and remembers the proxy as dirty so the
// committed updates can be applied to it.
func (c *Context) AddToWriteSet(p smr.Proxy, rec *smr.UpdateRecord, keys ...[]byte) {
	c.pinSnapshot()
	stream := p.StreamID()
	pw, ok := c.writes[stream]
	if !ok {
		pw = &pendingWrites{keys: make(map[uint64]struct{})}
		c.writes[stream] = pw
		c.order = append(c.order, stream)
	}
	pw.recs = append(pw.recs, rec)
	for _, key := range keys {
		pw.keys[smr.Fingerprint(key)] = struct{}{}
	}
	c.proxies[stream] = p
}

// pinSnapshot fixes the read view at the first access so the conflict window
// covers everything appended from that point on.
func (c *Context) pinSnapshot() {
	if _, err := c.SnapshotTimestamp(); err != nil {
		log.Warnf("pin snapshot: %v", err)
	}
}

// SnapshotTimestamp returns the log position the transaction reads at,
// fetching it from the sequencer on first use. A nested context reads at its
// parent's snapshot. The snapshot is assigned at most once.
func (c *Context) SnapshotTimestamp() (int64, error) {
	if c.snapshotSet {
		return c.snapshot, nil
	}
	if c.parent != nil {
		ts, err := c.parent.SnapshotTimestamp()
		if err != nil {
			return 0, errors.Trace(err)
		}
		c.snapshot, c.snapshotSet = ts, true
		return ts, nil
	}
	ts, err := c.scope.coord.Tail()
	if err != nil {
		return 0, errors.Annotatef(err, "acquire snapshot timestamp")
	}
	c.snapshot, c.snapshotSet = ts, true
	log.Debugf("%s tx pinned snapshot ts=%d", c.strategy.Name(), ts)
	return ts, nil
}

// Commit resolves the transaction. It returns the durable position on
// success, FoldedAddress for a nested transaction (deferred to the parent,
// no log interaction), NoWriteAddress for an empty write set (the sequencer
// is never contacted), or AbortedAddress together with an ErrAborted failure.
func (c *Context) Commit() (int64, error) {
	if c.finished {
		return smr.AbortedAddress, errors.New("transaction context is not reusable")
	}
	defer func() {
		c.finished = true
		c.scope.pop(c)
	}()

	// A nested transaction folds into its parent instead of producing an
	// independent, possibly conflicting round trip.
	if c.parent != nil {
		c.parent.absorb(c)
		c.complete(smr.FoldedAddress)
		log.Debugf("%s tx folded into parent, %d pending streams", c.strategy.Name(), len(c.order))
		return smr.FoldedAddress, nil
	}

	// A read-only transaction never produces a log record.
	if len(c.writes) == 0 {
		c.complete(smr.NoWriteAddress)
		log.Debugf("%s tx commit: write set empty, no log write", c.strategy.Name())
		return smr.NoWriteAddress, nil
	}

	snapshot, err := c.SnapshotTimestamp()
	if err != nil {
		c.abort()
		return smr.AbortedAddress, errors.Annotatef(ErrAborted, "no snapshot: %v", err)
	}

	affected := c.strategy.AffectedStreams(c)
	batch := c.buildBatch()
	if !c.scope.cfg.CoalesceDisabled {
		c.coalesceBatch(batch)
	}
	desc := c.strategy.BuildDescriptor(c, snapshot)

	addr, err := c.scope.coord.Submit(affected, batch, desc)
	if err != nil {
		c.abort()
		return smr.AbortedAddress, errors.Trace(err)
	}

	c.complete(addr)
	c.applyCommitted(batch)
	log.Debugf("%s tx commit at address=%d snapshot=%d streams=%d",
		c.strategy.Name(), addr, snapshot, len(affected))
	return addr, nil
}

// absorb merges a child's accumulated state into c. Per stream, the child's
// records follow everything the parent already queued, in the order the child
// added them.
func (c *Context) absorb(child *Context) {
	for stream, set := range child.reads {
		dst, ok := c.reads[stream]
		if !ok {
			dst = make(map[uint64]struct{})
			c.reads[stream] = dst
		}
		for fp := range set {
			dst[fp] = struct{}{}
		}
	}
	for _, stream := range child.order {
		pw := child.writes[stream]
		dst, ok := c.writes[stream]
		if !ok {
			dst = &pendingWrites{keys: make(map[uint64]struct{})}
			c.writes[stream] = dst
			c.order = append(c.order, stream)
		}
		dst.recs = append(dst.recs, pw.recs...)
		for fp := range pw.keys {
			dst.keys[fp] = struct{}{}
		}
		c.proxies[stream] = child.proxies[stream]
	}
}

// buildBatch assembles the update batch from the write set, stream by stream
// in first-write order.
func (c *Context) buildBatch() *smr.UpdateBatch {
	batch := smr.NewUpdateBatch()
	for _, stream := range c.order {
		batch.SetUpdates(stream, c.writes[stream].recs)
	}
	return batch
}

// applyCommitted pushes the accepted batch into the dirty proxies so reads in
// this process observe the writes immediately, without waiting for replay.
func (c *Context) applyCommitted(batch *smr.UpdateBatch) {
	for _, stream := range batch.Streams() {
		p, ok := c.proxies[stream]
		if !ok {
			continue
		}
		for _, rec := range batch.Updates(stream) {
			if err := p.ApplyUpdate(rec); err != nil {
				log.Errorf("apply committed update %q on stream %s: %v", rec.Method, stream, err)
			}
		}
	}
}

// readKeys returns the distinct read fingerprints grouped by stream.
func (c *Context) readKeys() map[uuid.UUID][]uint64 {
	out := make(map[uuid.UUID][]uint64, len(c.reads))
	for stream, set := range c.reads {
		fps := make([]uint64, 0, len(set))
		for fp := range set {
			fps = append(fps, fp)
		}
		out[stream] = fps
	}
	return out
}

// writeKeys returns the distinct write fingerprints grouped by stream.
// Deduplication is per stream only.
func (c *Context) writeKeys() map[uuid.UUID][]uint64 {
	out := make(map[uuid.UUID][]uint64, len(c.writes))
	for stream, pw := range c.writes {
		fps := make([]uint64, 0, len(pw.keys))
		for fp := range pw.keys {
			fps = append(fps, fp)
		}
		out[stream] = fps
	}
	return out
}

// writeStreams returns the streams touched by the write set in first-write
// order.
func (c *Context) writeStreams() []uuid.UUID {
	streams := make([]uuid.UUID, len(c.order))
	copy(streams, c.order)
	return streams
}

func (c *Context) abort() {
	c.aborted.Store(true)
	c.complete(smr.AbortedAddress)
}

// complete resolves the completion signal exactly once. The commit address is
// write-once.
func (c *Context) complete(addr int64) {
	c.completeOnce.Do(func() {
		c.commitAddress.CAS(smr.UncommittedAddress, addr)
		close(c.done)
	})
}

// CommitAddress returns the resolved address, or UncommittedAddress while the
// transaction is still open.
func (c *Context) CommitAddress() int64 {
	return c.commitAddress.Load()
}

// Aborted reports whether the commit attempt was rejected or failed.
func (c *Context) Aborted() bool {
	return c.aborted.Load()
}

// Done is closed when the context resolves, successfully or not.
func (c *Context) Done() <-chan struct{} {
	return c.done
}
