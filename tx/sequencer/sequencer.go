// Package sequencer implements the log's ordering service contract: a single
// atomic call that resolves a commit's conflict descriptor and, if nothing
// conflicting was appended since the snapshot, assigns the next durable
// position. MemSequencer is the in-memory reference implementation, backed by
// a per-stream conflict table and an address-ordered entry window; it is the
// sole synchronization point between concurrent transactions.
package sequencer

import (
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/ngaut/log"

	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// Entry is one accepted append: the assigned address, the streams the commit
// declared as affected, and the update batch itself.
type Entry struct {
	Address int64
	Streams []uuid.UUID
	Batch   *smr.UpdateBatch
}

// Touches reports whether the entry was appended to stream.
func (e *Entry) Touches(stream uuid.UUID) bool {
	for _, s := range e.Streams {
		if s == stream {
			return true
		}
	}
	return false
}

func (e *Entry) Less(than btree.Item) bool {
	return e.Address < than.(*Entry).Address
}

// MemSequencer keeps the whole log in memory. Accept/reject decisions are
// linearizable: one mutex covers the conflict check, the address assignment
// and the conflict-table update, so of any two racing commits with
// overlapping keys exactly one wins.
type MemSequencer struct {
	mu sync.Mutex

	// tail is the last assigned address, -1 while the log is empty.
	tail int64

	// conflicts records, per stream, the address of the last accepted write
	// to each conflict-key fingerprint.
	conflicts map[uuid.UUID]map[uint64]int64

	// window holds the accepted entries ordered by address.
	window *btree.BTree

	appendAttempts int
}

func NewMemSequencer() *MemSequencer {
	return &MemSequencer{
		tail:      -1,
		conflicts: make(map[uuid.UUID]map[uint64]int64),
		window:    btree.New(16),
	}
}

// Tail returns the address of the most recent accepted append, -1 if none.
func (s *MemSequencer) Tail() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail, nil
}

// AcquireAndWrite atomically resolves desc and appends batch if accepted. It
// returns smr.RejectedAddress when any fingerprint in the descriptor's read
// or write sets was written on the same stream after the snapshot; otherwise
// it assigns the next address, installs the batch's write keys in the
// conflict table, and runs the hooks around the append.
func (s *MemSequencer) AcquireAndWrite(streams []uuid.UUID, batch *smr.UpdateBatch,
	pre, post smr.Hook, desc *smr.ConflictDescriptor) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendAttempts++

	if s.hasConflict(desc.ReadKeys, desc.SnapshotTimestamp) ||
		s.hasConflict(desc.WriteKeys, desc.SnapshotTimestamp) {
		return smr.RejectedAddress, nil
	}

	addr := s.tail + 1
	if pre != nil {
		pre(addr)
	}

	s.window.ReplaceOrInsert(&Entry{Address: addr, Streams: streams, Batch: batch})
	s.tail = addr
	for stream, fps := range desc.WriteKeys {
		table, ok := s.conflicts[stream]
		if !ok {
			table = make(map[uint64]int64)
			s.conflicts[stream] = table
		}
		for _, fp := range fps {
			table[fp] = addr
		}
	}

	if post != nil {
		post(addr)
	}
	log.Debugf("sequencer accepted append at address=%d, %d streams, %d records",
		addr, len(streams), batch.Len())
	return addr, nil
}

// hasConflict reports whether any fingerprint in keys saw a write newer than
// snapshot on its stream. Callers hold s.mu.
func (s *MemSequencer) hasConflict(keys map[uuid.UUID][]uint64, snapshot int64) bool {
	for stream, fps := range keys {
		table, ok := s.conflicts[stream]
		if !ok {
			continue
		}
		for _, fp := range fps {
			if last, ok := table[fp]; ok && last > snapshot {
				return true
			}
		}
	}
	return false
}

// ReadStream returns the entries appended to stream with addresses in
// [from, to], in address order.
func (s *MemSequencer) ReadStream(stream uuid.UUID, from, to int64) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Entry
	s.window.AscendGreaterOrEqual(&Entry{Address: from}, func(item btree.Item) bool {
		e := item.(*Entry)
		if e.Address > to {
			return false
		}
		if e.Touches(stream) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// AppendAttempts counts AcquireAndWrite calls, accepted or not. Tests use it
// to prove the ordering service was never contacted.
func (s *MemSequencer) AppendAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAttempts
}
