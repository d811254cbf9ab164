package txn

import (
	"github.com/ngaut/log"

	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// coalesceBatch asks every dirty proxy that declares the Mergeable capability
// to fold its pending records into an equivalent, shorter sequence. Streams
// with fewer than two records and proxies without the capability pass through
// unchanged. Coalescing runs after the write set is finalized and before the
// batch is handed to the coordinator; it is a write-amplification
// optimization only and must never change post-commit state.
func (c *Context) coalesceBatch(batch *smr.UpdateBatch) {
	for _, stream := range batch.Streams() {
		recs := batch.Updates(stream)
		if len(recs) < 2 {
			continue
		}
		m, ok := c.proxies[stream].(smr.Mergeable)
		if !ok {
			continue
		}

		// New records inherit the codec of the stream's pending updates.
		codecID := recs[0].Codec
		makeRecord := func(method string, args []interface{}, undo *smr.UpdateRecord) *smr.UpdateRecord {
			rec := smr.NewUpdateRecord(method, args, codecID)
			rec.Undo = undo
			return rec
		}

		merged := m.CoalesceUpdates(recs, makeRecord)
		if merged == nil {
			continue
		}
		if len(merged) < len(recs) {
			log.Debugf("coalesced %d updates into %d on stream %s", len(recs), len(merged), stream)
		}
		batch.SetUpdates(stream, merged)
	}
}
