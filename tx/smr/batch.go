package smr

import (
	"github.com/google/uuid"
)

// UpdateBatch maps each stream to the ordered list of update records destined
// for it. One batch is built per commit attempt from a transaction's write
// set, after coalescing if that is enabled. Stream order is insertion order.
type UpdateBatch struct {
	order   []uuid.UUID
	updates map[uuid.UUID][]*UpdateRecord
}

func NewUpdateBatch() *UpdateBatch {
	return &UpdateBatch{updates: make(map[uuid.UUID][]*UpdateRecord)}
}

// Add appends rec to the stream's pending list, preserving arrival order.
func (b *UpdateBatch) Add(stream uuid.UUID, rec *UpdateRecord) {
	if _, ok := b.updates[stream]; !ok {
		b.order = append(b.order, stream)
	}
	b.updates[stream] = append(b.updates[stream], rec)
}

// Updates returns the record list for stream, nil if the stream is untouched.
func (b *UpdateBatch) Updates(stream uuid.UUID) []*UpdateRecord {
	return b.updates[stream]
}

// SetUpdates replaces a stream's record list; the coalescer uses this to swap
// in a merged-equivalent sequence.
func (b *UpdateBatch) SetUpdates(stream uuid.UUID, recs []*UpdateRecord) {
	if _, ok := b.updates[stream]; !ok {
		b.order = append(b.order, stream)
	}
	b.updates[stream] = recs
}

// Streams returns the touched streams in insertion order.
func (b *UpdateBatch) Streams() []uuid.UUID {
	return b.order
}

// Len returns the total number of records across all streams.
func (b *UpdateBatch) Len() int {
	n := 0
	for _, recs := range b.updates {
		n += len(recs)
	}
	return n
}
